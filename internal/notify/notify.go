package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/store"
)

// Status is the outcome of evaluating one metric check.
type Status int

const (
	// StatusOK means a matching value exists and every configured bound holds.
	StatusOK Status = iota
	// StatusNoData means no stored value matched the check's scope. Missing
	// telemetry is not a threshold breach and never pages anyone.
	StatusNoData
	// StatusViolation means at least one bound is breached.
	StatusViolation
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoData:
		return "no_data"
	case StatusViolation:
		return "violation"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Violation describes one breached bound.
type Violation struct {
	ID          string          `json:"id"`
	CheckID     string          `json:"check_id"`
	CheckName   string          `json:"check_name"`
	CheckURL    string          `json:"check_url,omitempty"`
	Severity    Severity        `json:"severity"`
	Metric      string          `json:"metric"`
	Service     string          `json:"service"`
	Label       string          `json:"label,omitempty"`
	Value       decimal.Decimal `json:"value"`
	Threshold   decimal.Decimal `json:"threshold"`
	Bound       string          `json:"bound"` // "min", "max", or "stale"
	Description string          `json:"description"`
	ValidFrom   time.Time       `json:"valid_from"`
	ValidTo     time.Time       `json:"valid_to"`
}

// Result is the tri-state outcome of one metric check evaluation.
type Result struct {
	Status     Status
	Violations []Violation
}

// CheckReport is the evaluation outcome of one whole check.
type CheckReport struct {
	Check      Check
	Violations []Violation
}

// Evaluator runs checks against the store and dispatches violations.
type Evaluator struct {
	store *store.Store
	sink  Sink

	mu     sync.RWMutex
	checks []Check

	// now is re-sampled for staleness bounds so max_timeout always compares
	// against wall-clock time, not the batch timestamp.
	now func() time.Time
}

// NewEvaluator wires an evaluator against its store, sink, and initial
// check set.
func NewEvaluator(s *store.Store, sink Sink, checks []Check) *Evaluator {
	return &Evaluator{store: s, sink: sink, checks: checks, now: time.Now}
}

// SetChecks swaps in a new check set, typically from the file watcher.
func (e *Evaluator) SetChecks(checks []Check) {
	e.mu.Lock()
	e.checks = checks
	e.mu.Unlock()
}

// Checks returns the current check set.
func (e *Evaluator) Checks() []Check {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Check, len(e.checks))
	copy(out, e.checks)
	return out
}

// CheckMetric evaluates one metric check at the given batch timestamp. When
// no staleness bound is configured the query is constrained to values whose
// validity window contains the timestamp; with a staleness bound it is
// unconstrained so the age of the latest value can be measured.
func (e *Evaluator) CheckMetric(ctx context.Context, check Check, mc MetricCheck, at time.Time) (Result, error) {
	if err := mc.validate(); err != nil {
		return Result{}, err
	}

	filter := store.Filter{
		Metric:    mc.Metric,
		Service:   mc.Service,
		EventType: mc.EventType,
		Label:     mc.Label,
	}
	if mc.ResourceType != "" || mc.ResourceName != "" {
		filter.Resource = &store.Resource{Type: mc.ResourceType, Name: mc.ResourceName}
	}
	if mc.MaxTimeout == nil {
		filter.ValidOn = at
	}

	value, ok, err := e.store.Latest(ctx, filter)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Status: StatusNoData}, nil
	}

	var violations []Violation

	if (mc.MinValue != nil || mc.MaxValue != nil) && !value.ValueNum.Valid {
		return Result{Status: StatusNoData}, nil
	}
	if mc.MinValue != nil && value.ValueNum.Decimal.LessThan(*mc.MinValue) {
		violations = append(violations, e.violation(check, mc, value, "min",
			value.ValueNum.Decimal, *mc.MinValue,
			fmt.Sprintf("%s for %s is %s, below the minimum of %s",
				mc.Metric, mc.Service, value.ValueNum.Decimal, mc.MinValue)))
	}
	if mc.MaxValue != nil && value.ValueNum.Decimal.GreaterThan(*mc.MaxValue) {
		violations = append(violations, e.violation(check, mc, value, "max",
			value.ValueNum.Decimal, *mc.MaxValue,
			fmt.Sprintf("%s for %s is %s, above the maximum of %s",
				mc.Metric, mc.Service, value.ValueNum.Decimal, mc.MaxValue)))
	}
	if mc.MaxTimeout != nil {
		age := e.now().Sub(value.ValidTo)
		if age > mc.MaxTimeout.Std() {
			violations = append(violations, e.violation(check, mc, value, "stale",
				decimal.NewFromFloat(age.Seconds()),
				decimal.NewFromFloat(mc.MaxTimeout.Std().Seconds()),
				fmt.Sprintf("%s for %s is stale: last value is %s old, limit is %s",
					mc.Metric, mc.Service, age.Round(time.Second), mc.MaxTimeout.Std())))
		}
	}

	if len(violations) > 0 {
		return Result{Status: StatusViolation, Violations: violations}, nil
	}
	return Result{Status: StatusOK}, nil
}

func (e *Evaluator) violation(check Check, mc MetricCheck, value store.Value, bound string, offending, threshold decimal.Decimal, description string) Violation {
	if mc.Description != "" {
		description = mc.Description + ": " + description
	}
	return Violation{
		ID:          uuid.NewString(),
		CheckID:     check.ID,
		CheckName:   check.Name,
		CheckURL:    check.URL,
		Severity:    check.Severity,
		Metric:      mc.Metric,
		Service:     mc.Service,
		Label:       value.Label,
		Value:       offending,
		Threshold:   threshold,
		Bound:       bound,
		Description: description,
		ValidFrom:   value.ValidFrom,
		ValidTo:     value.ValidTo,
	}
}

// CheckNotifications evaluates every active check at the given timestamp.
// NoData outcomes are skipped; only checks with at least one violation
// appear in the reports.
func (e *Evaluator) CheckNotifications(ctx context.Context, at time.Time) ([]CheckReport, error) {
	var reports []CheckReport
	for _, check := range e.Checks() {
		if !check.Active {
			continue
		}
		var violations []Violation
		for _, mc := range check.Metrics {
			result, err := e.CheckMetric(ctx, check, mc, at)
			if err != nil {
				return nil, err
			}
			if result.Status == StatusViolation {
				violations = append(violations, result.Violations...)
			}
		}
		if len(violations) > 0 {
			reports = append(reports, CheckReport{Check: check, Violations: violations})
		}
	}
	return reports, nil
}

// CanSend reports whether the check's grace period has elapsed since its
// last dispatch. A check that has never dispatched can always send.
func (e *Evaluator) CanSend(ctx context.Context, check Check, now time.Time) (bool, error) {
	last, err := e.store.LastSend(ctx, check.Name)
	if err != nil {
		return false, err
	}
	if last == nil {
		return true, nil
	}
	return now.Sub(*last) > check.GracePeriod.Std(), nil
}

// EmitNotifications evaluates all checks and dispatches each violating
// check's report to the sink, skipping checks still inside their grace
// period. The send marker is advanced even when dispatch fails, so a broken
// channel cannot retry every cycle. Returns the number of dispatches
// attempted.
func (e *Evaluator) EmitNotifications(ctx context.Context, at time.Time) (int, error) {
	reports, err := e.CheckNotifications(ctx, at)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, report := range reports {
		can, err := e.CanSend(ctx, report.Check, at)
		if err != nil {
			return sent, err
		}
		if !can {
			log.Debug().
				Str("check", report.Check.Name).
				Msg("Grace period not elapsed, skipping dispatch")
			continue
		}

		msg := Message{
			CheckName:   report.Check.Name,
			CheckURL:    report.Check.URL,
			Description: report.Check.Description,
			At:          at,
			Violations:  report.Violations,
		}
		if err := e.sink.Send(ctx, report.Check.Recipients, report.Check.Severity, msg); err != nil {
			log.Error().Err(err).
				Str("check", report.Check.Name).
				Int("violations", len(report.Violations)).
				Msg("Notification dispatch failed")
		}
		sent++

		if err := e.store.MarkSend(ctx, report.Check.Name, at); err != nil {
			return sent, err
		}
	}
	return sent, nil
}
