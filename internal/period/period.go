// Package period aligns timestamps to bucket boundaries and generates the
// ordered bucket sequences that every aggregated metric value is expressed
// against.
//
// Boundaries are anchored at the UTC midnight of the input's calendar day:
// AlignStart(t, i) is the largest midnight+k*i that does not exceed t. For
// intervals that do not evenly divide 24h this produces a seam at day
// boundaries; that is accepted behavior, not something to paper over.
package period

import (
	"fmt"
	"time"

	"github.com/cartoworks/geomon/internal/errors"
)

// Period is a half-open time bucket [Start, End).
type Period struct {
	Start time.Time
	End   time.Time
}

func (p Period) String() string {
	return fmt.Sprintf("[%s, %s)", p.Start.UTC().Format(time.RFC3339), p.End.UTC().Format(time.RFC3339))
}

// Contains reports whether t falls inside the half-open interval.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// AlignStart returns the largest boundary <= t, where boundaries are
// midnight(t)+k*interval in UTC.
func AlignStart(t time.Time, interval time.Duration) time.Time {
	t = t.UTC()
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	elapsed := t.Sub(midnight)
	k := elapsed / interval
	return midnight.Add(k * interval)
}

// AlignEnd returns the smallest boundary >= t, the ceil counterpart of
// AlignStart.
func AlignEnd(t time.Time, interval time.Duration) time.Time {
	start := AlignStart(t, interval)
	if start.Equal(t.UTC()) {
		return start
	}
	return start.Add(interval)
}

// Generator produces a finite, restartable sequence of interval-width
// buckets covering [since, until].
type Generator struct {
	start    time.Time
	interval time.Duration
	count    int
	idx      int
}

// Generate builds a Generator over [since, until]. When align is true, since
// is first snapped backward via AlignStart. The bucket count is
// ceil((until-since)/interval) computed from the (possibly aligned) start, so
// the final bucket is always full width and may overshoot until.
func Generate(since time.Time, interval time.Duration, until time.Time, align bool) (*Generator, error) {
	if interval <= 0 {
		return nil, errors.WrapConfigError("generate_periods", fmt.Errorf("non-positive interval %s: %w", interval, errors.ErrInvalidConfig))
	}
	if until.Before(since) {
		return nil, errors.WrapConfigError("generate_periods", fmt.Errorf("until %s precedes since %s: %w", until.UTC().Format(time.RFC3339), since.UTC().Format(time.RFC3339), errors.ErrInvalidRange))
	}

	start := since.UTC()
	if align {
		start = AlignStart(start, interval)
	}

	span := until.UTC().Sub(start)
	count := int(span / interval)
	if span%interval != 0 {
		count++
	}

	return &Generator{start: start, interval: interval, count: count}, nil
}

// Next returns the next bucket in chronological order.
func (g *Generator) Next() (Period, bool) {
	if g.idx >= g.count {
		return Period{}, false
	}
	p := Period{
		Start: g.start.Add(time.Duration(g.idx) * g.interval),
		End:   g.start.Add(time.Duration(g.idx+1) * g.interval),
	}
	g.idx++
	return p, true
}

// Reset rewinds the generator to the first bucket.
func (g *Generator) Reset() {
	g.idx = 0
}

// Count returns the total number of buckets the generator yields.
func (g *Generator) Count() int {
	return g.count
}

// All drains the generator into a slice. The generator is reset first so the
// result is the full sequence regardless of prior Next calls.
func (g *Generator) All() []Period {
	g.Reset()
	periods := make([]Period, 0, g.count)
	for {
		p, ok := g.Next()
		if !ok {
			return periods
		}
		periods = append(periods, p)
	}
}
