// Package notify evaluates threshold checks against stored metric values and
// dispatches violations to notification sinks, rate-limited per check by a
// grace period.
package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/errors"
)

// Severity orders how loudly a check complains.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityFatal   Severity = "fatal"
)

// ParseSeverity validates a severity string from the checks file.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityWarning, SeverityError, SeverityFatal:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q: %w", s, errors.ErrInvalidConfig)
	}
}

// Duration wraps time.Duration for JSON checks files, accepting Go duration
// strings like "10m" or "1h30m".
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, errors.ErrInvalidConfig)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// MetricCheck is one threshold rule inside a Check. At least one of
// MinValue, MaxValue, or MaxTimeout must be set.
type MetricCheck struct {
	Metric       string           `json:"metric"`
	Service      string           `json:"service"`
	ResourceType string           `json:"resource_type,omitempty"`
	ResourceName string           `json:"resource_name,omitempty"`
	EventType    string           `json:"event_type,omitempty"`
	Label        string           `json:"label,omitempty"`
	MinValue     *decimal.Decimal `json:"min_value,omitempty"`
	MaxValue     *decimal.Decimal `json:"max_value,omitempty"`
	MaxTimeout   *Duration        `json:"max_timeout,omitempty"`
	Description  string           `json:"description,omitempty"`
}

func (mc MetricCheck) validate() error {
	if mc.Metric == "" {
		return fmt.Errorf("metric check without a metric name: %w", errors.ErrInvalidConfig)
	}
	if mc.Service == "" {
		return fmt.Errorf("metric check %s without a service: %w", mc.Metric, errors.ErrInvalidConfig)
	}
	if mc.MinValue == nil && mc.MaxValue == nil && mc.MaxTimeout == nil {
		return fmt.Errorf("metric check %s/%s: %w", mc.Service, mc.Metric, errors.ErrNoThreshold)
	}
	return nil
}

// Check is one named notification check: a set of threshold rules sharing a
// severity, a recipient list, and a grace period between dispatches.
// UserThresholdCount caps how many user-tunable threshold slots an outer
// configuration surface may expose for this check; the evaluator itself
// only carries it through.
type Check struct {
	ID                 string        `json:"id,omitempty"`
	Name               string        `json:"name"`
	Description        string        `json:"description,omitempty"`
	Severity           Severity      `json:"severity"`
	GracePeriod        Duration      `json:"grace_period"`
	Active             bool          `json:"active"`
	URL                string        `json:"url,omitempty"`
	UserThresholdCount int           `json:"user_threshold_count,omitempty"`
	Recipients         []string      `json:"recipients"`
	Metrics            []MetricCheck `json:"metrics"`
}

func (c *Check) validate() error {
	if c.Name == "" {
		return fmt.Errorf("check without a name: %w", errors.ErrInvalidConfig)
	}
	if _, err := ParseSeverity(string(c.Severity)); err != nil {
		return fmt.Errorf("check %s: %w", c.Name, err)
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("check %s has no grace period: %w", c.Name, errors.ErrInvalidConfig)
	}
	if c.UserThresholdCount < 0 {
		return fmt.Errorf("check %s has a negative user threshold count: %w", c.Name, errors.ErrInvalidConfig)
	}
	if len(c.Metrics) == 0 {
		return fmt.Errorf("check %s has no metric checks: %w", c.Name, errors.ErrInvalidConfig)
	}
	for _, mc := range c.Metrics {
		if err := mc.validate(); err != nil {
			return fmt.Errorf("check %s: %w", c.Name, err)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

type checksFile struct {
	Checks []Check `json:"checks"`
}

// ParseChecks decodes and validates a checks file. Any invalid check fails
// the whole parse; a half-applied checks file never takes effect.
func ParseChecks(data []byte) ([]Check, error) {
	var file checksFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.WrapConfigError("parse_checks",
			fmt.Errorf("malformed checks file: %w", err))
	}
	for i := range file.Checks {
		if err := file.Checks[i].validate(); err != nil {
			return nil, errors.WrapConfigError("parse_checks", err)
		}
	}
	return file.Checks, nil
}

// LoadChecks reads and parses the checks file at path.
func LoadChecks(path string) ([]Check, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError("load_checks", err)
	}
	return ParseChecks(data)
}
