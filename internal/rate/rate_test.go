package rate

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoworks/geomon/internal/store"
)

// fakeLookup serves a canned previous value.
type fakeLookup struct {
	value store.Value
	found bool
}

func (f *fakeLookup) LatestBefore(_ context.Context, _, _, _ string, _ time.Time) (store.Value, bool, error) {
	return f.value, f.found, nil
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func prior(value string, validTo time.Time) store.Value {
	return store.Value{
		ValueNum: decimal.NullDecimal{Decimal: dec(value), Valid: true},
		ValidTo:  validTo,
	}
}

func TestRateIncreasingCounter(t *testing.T) {
	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	d := New(&fakeLookup{value: prior("100", at), found: true})

	// (150-100)/60s = 0.8333...
	r, ok, err := d.Rate(context.Background(), "cpu.usage", "host1", "", dec("150"), at.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	want := dec("50").Div(dec("60"))
	assert.True(t, want.Sub(r).Abs().LessThan(dec("0.000001")), "got %s", r)
}

func TestRateFirstSampleUnavailable(t *testing.T) {
	d := New(&fakeLookup{found: false})

	_, ok, err := d.Rate(context.Background(), "cpu.usage", "host1", "", dec("100"), time.Now())
	require.NoError(t, err)
	assert.False(t, ok, "first sample in a series never has a rate")
}

func TestRateCounterResetUnavailable(t *testing.T) {
	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	d := New(&fakeLookup{value: prior("500", at), found: true})

	_, ok, err := d.Rate(context.Background(), "network.in", "host1", "eth0", dec("10"), at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "counter reset must never produce a negative rate")
}

func TestRateZeroDeltaIsAvailable(t *testing.T) {
	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	d := New(&fakeLookup{value: prior("100", at), found: true})

	r, ok, err := d.Rate(context.Background(), "network.in", "host1", "eth0", dec("100"), at.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok, "a flat counter has a real zero rate, not no rate")
	assert.True(t, r.IsZero())
}

func TestRatePreviousWithoutNumericUnavailable(t *testing.T) {
	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	d := New(&fakeLookup{value: store.Value{ValidTo: at}, found: true})

	_, ok, err := d.Rate(context.Background(), "cpu.usage", "host1", "", dec("100"), at.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPercent(t *testing.T) {
	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	d := New(&fakeLookup{value: prior("100", at), found: true})

	p, ok, err := d.Percent(context.Background(), "cpu.usage", "host1", "", dec("160"), at.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	// (60/60)*100 = 100
	assert.True(t, dec("100").Sub(p).Abs().LessThan(dec("0.0001")), "got %s", p)
}

func TestRateAgainstRealStore(t *testing.T) {
	s, err := store.Open(store.Config{DBPath: t.TempDir() + "/rate.db"})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	at := time.Date(2019, 9, 11, 20, 0, 0, 0, time.UTC)
	_, err = s.Upsert(ctx, store.Sample{
		Metric: "network.in", Service: "host1", Label: "eth0",
		ValidFrom: at.Add(-time.Minute), ValidTo: at,
		Value:    "100",
		ValueNum: decimal.NullDecimal{Decimal: dec("100"), Valid: true},
	})
	require.NoError(t, err)

	d := New(s)
	r, ok, err := d.Rate(ctx, "network.in", "host1", "eth0", dec("160"), at.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, dec("1").Equal(r.Round(6)), "got %s", r)
}
