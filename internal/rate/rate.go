// Package rate derives per-second rates (and percentages) from stored
// counter samples by looking back at the immediately preceding value of the
// same series.
package rate

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/store"
)

// previousLookup is the slice of the store the deriver needs.
type previousLookup interface {
	LatestBefore(ctx context.Context, metric, service, label string, before time.Time) (store.Value, bool, error)
}

// Deriver computes rates against previously persisted samples.
type Deriver struct {
	store previousLookup
}

// New returns a Deriver reading prior samples from the given store.
func New(s previousLookup) *Deriver {
	return &Deriver{store: s}
}

// Rate returns (Δvalue/Δseconds, true) for the counter sample ending at
// validTo, against the most recent stored sample of the same
// (metric, service, label) series with a strictly earlier valid_to.
//
// The ok result is false when no rate is available: the first sample of a
// series, a counter reset (current < previous, never a negative rate), a
// previous sample without a numeric value, or a zero time delta. A
// legitimately zero rate returns (0, true) and is distinguishable from
// "unavailable".
func (d *Deriver) Rate(ctx context.Context, metric, service, label string, current decimal.Decimal, validTo time.Time) (decimal.Decimal, bool, error) {
	prev, found, err := d.store.LatestBefore(ctx, metric, service, label, validTo)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !found || !prev.ValueNum.Valid {
		return decimal.Zero, false, nil
	}

	if current.LessThan(prev.ValueNum.Decimal) {
		// Counter reset.
		return decimal.Zero, false, nil
	}

	seconds := validTo.Sub(prev.ValidTo).Seconds()
	if seconds <= 0 {
		return decimal.Zero, false, nil
	}

	delta := current.Sub(prev.ValueNum.Decimal)
	return delta.Div(decimal.NewFromFloat(seconds)), true, nil
}

// Percent is Rate scaled by 100, with the same availability propagation.
func (d *Deriver) Percent(ctx context.Context, metric, service, label string, current decimal.Decimal, validTo time.Time) (decimal.Decimal, bool, error) {
	r, ok, err := d.Rate(ctx, metric, service, label, current, validTo)
	if err != nil || !ok {
		return decimal.Zero, ok, err
	}
	return r.Mul(decimal.NewFromInt(100)), true, nil
}
