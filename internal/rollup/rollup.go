// Package rollup rewrites fine-grained stored values into coarser
// long-term buckets, applying each metric's aggregate rule and deleting the
// consumed inputs.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/errors"
	"github.com/cartoworks/geomon/internal/period"
	"github.com/cartoworks/geomon/internal/store"
)

// Stage compacts everything older than CutoffAge (up to the previous
// stage's cutoff, or the retention horizon) into Granularity-width buckets.
type Stage struct {
	CutoffAge   time.Duration
	Granularity time.Duration
}

// ValidatePlan checks a stage list: non-empty, positive durations, ordered
// coarsest-oldest first (strictly decreasing cutoff ages).
func ValidatePlan(plan []Stage) error {
	if len(plan) == 0 {
		return errors.WrapConfigError("validate_plan", fmt.Errorf("empty aggregation plan: %w", errors.ErrInvalidConfig))
	}
	prev := time.Duration(0)
	for i, stage := range plan {
		if stage.CutoffAge <= 0 || stage.Granularity <= 0 {
			return errors.WrapConfigError("validate_plan",
				fmt.Errorf("stage %d has non-positive durations: %w", i, errors.ErrInvalidConfig))
		}
		if i > 0 && stage.CutoffAge >= prev {
			return errors.WrapConfigError("validate_plan",
				fmt.Errorf("stage %d cutoff %s not below previous %s; plan must run coarsest-oldest first: %w",
					i, stage.CutoffAge, prev, errors.ErrInvalidConfig))
		}
		prev = stage.CutoffAge
	}
	return nil
}

// Stats summarizes one compaction run.
type Stats struct {
	Buckets     int
	Series      int
	RowsDeleted int64
}

// Compactor walks the stage plan backward from now to the retention
// horizon.
type Compactor struct {
	store    *store.Store
	registry *catalog.Registry
}

// New wires a compactor against its store and catalog.
func New(s *store.Store, registry *catalog.Registry) *Compactor {
	return &Compactor{store: s, registry: registry}
}

// Run executes the whole plan. When cleanup is set, consumed fine rows are
// first stamped with a run-scoped sentinel and deleted only after the
// coarse row is written; a crash in between leaves the sentinel behind,
// which the next run resets so the bucket is recomputed rather than
// double-counted.
func (c *Compactor) Run(ctx context.Context, plan []Stage, now time.Time, horizon time.Duration, cleanup bool) (Stats, error) {
	var stats Stats

	if err := ValidatePlan(plan); err != nil {
		return stats, err
	}

	if reset, err := c.store.ResetMarks(ctx); err != nil {
		return stats, err
	} else if reset > 0 {
		log.Warn().Int64("rows", reset).Msg("Recovered rows marked by an interrupted compaction")
	}

	now = now.UTC()
	rangeStart := now.Add(-horizon)

	for i, stage := range plan {
		rangeEnd := now.Add(-stage.CutoffAge)
		if rangeEnd.Before(rangeStart) {
			// Misconfigured period; skip it and keep walking.
			log.Warn().
				Int("stage", i).
				Time("start", rangeStart).
				Time("end", rangeEnd).
				Msg("Skipping rollup stage whose end precedes its start")
			continue
		}

		if err := c.compactRange(ctx, rangeStart, rangeEnd, stage.Granularity, cleanup, &stats); err != nil {
			return stats, err
		}
		rangeStart = rangeEnd
	}

	log.Info().
		Int("buckets", stats.Buckets).
		Int("series", stats.Series).
		Int64("deleted", stats.RowsDeleted).
		Msg("Rollup completed")
	return stats, nil
}

// compactRange coarsens [from, to) into granularity-width buckets. Buckets
// whose full width extends past `to` are left for a later run so fresh fine
// rows are never swallowed early.
func (c *Compactor) compactRange(ctx context.Context, from, to time.Time, granularity time.Duration, cleanup bool, stats *Stats) error {
	gen, err := period.Generate(from, granularity, to, true)
	if err != nil {
		return err
	}

	kinds := make(map[string]catalog.ServiceKind)

	for {
		p, ok := gen.Next()
		if !ok {
			return nil
		}
		if p.End.After(to) {
			return nil
		}

		series, err := c.store.DistinctSeries(ctx, p.Start, p.End)
		if err != nil {
			return err
		}
		if len(series) == 0 {
			continue
		}
		stats.Buckets++

		for _, sr := range series {
			if err := c.compactSeries(ctx, sr, p, kinds, cleanup, stats); err != nil {
				return err
			}
		}
	}
}

func (c *Compactor) compactSeries(ctx context.Context, sr store.Series, p period.Period, kinds map[string]catalog.ServiceKind, cleanup bool, stats *Stats) error {
	sk, ok := kinds[sr.Service]
	if !ok {
		svc, err := c.store.GetService(ctx, sr.Service)
		if err != nil {
			log.Warn().Err(err).Str("service", sr.Service).
				Msg("Skipping series whose service is not registered")
			return nil
		}
		sk, err = catalog.ParseServiceKind(svc.Kind)
		if err != nil {
			return err
		}
		kinds[sr.Service] = sk
	}

	kind, err := c.registry.AggregateFor(sr.Metric, sk)
	if err != nil {
		// An unregistered metric would wedge compaction forever; leave its
		// rows alone and keep going.
		log.Warn().Err(err).Str("metric", sr.Metric).Str("service", sr.Service).
			Msg("Skipping series with no catalog entry")
		return nil
	}

	values, samples, err := c.store.SeriesInputs(ctx, sr, p.Start, p.End)
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	weighted := make([]catalog.WeightedSample, len(values))
	for i := range values {
		weighted[i] = catalog.WeightedSample{Value: values[i], Samples: samples[i]}
	}
	aggregate, samplesSum, err := kind.Aggregate(weighted)
	if err != nil {
		return err
	}

	mark := ""
	if cleanup {
		mark = "rollup-" + uuid.NewString()
		if _, err := c.store.MarkForRollup(ctx, sr, p.Start, p.End, mark); err != nil {
			return err
		}
	}

	_, err = c.store.Upsert(ctx, store.Sample{
		Metric:       sr.Metric,
		ValidFrom:    p.Start,
		ValidTo:      p.End,
		Service:      sr.Service,
		Resource:     store.Resource{Type: sr.ResourceType, Name: sr.ResourceName},
		EventType:    sr.EventType,
		Label:        sr.Label,
		Value:        aggregate.String(),
		ValueNum:     decimal.NullDecimal{Decimal: aggregate, Valid: true},
		ValueRaw:     aggregate.String(),
		SamplesCount: samplesSum,
	})
	if err != nil {
		return err
	}
	stats.Series++

	if cleanup {
		deleted, err := c.store.DeleteMarked(ctx, mark)
		if err != nil {
			return err
		}
		stats.RowsDeleted += deleted
	}
	return nil
}
