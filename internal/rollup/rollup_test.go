package rollup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.Config{DBPath: filepath.Join(t.TempDir(), "geomon-test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	require.NoError(t, s.UpsertService(ctx, store.Service{
		Name: "geoserver", Host: "node01", Kind: "web", CheckInterval: 5 * time.Minute, Active: true,
	}))
	require.NoError(t, s.UpsertService(ctx, store.Service{
		Name: "node01", Host: "node01", Kind: "host", CheckInterval: 5 * time.Minute, Active: true,
	}))
	return s
}

func num(v string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: decimal.RequireFromString(v), Valid: true}
}

func at(value string) time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return ts.UTC()
}

func fineSample(metric, service string, from time.Time, value string, samples int64) store.Sample {
	return store.Sample{
		Metric:       metric,
		ValidFrom:    from,
		ValidTo:      from.Add(5 * time.Minute),
		Service:      service,
		Value:        value,
		ValueNum:     num(value),
		SamplesCount: samples,
	}
}

func TestValidatePlan(t *testing.T) {
	assert.Error(t, ValidatePlan(nil), "empty plan")
	assert.Error(t, ValidatePlan([]Stage{{CutoffAge: 0, Granularity: time.Hour}}), "zero cutoff")
	assert.Error(t, ValidatePlan([]Stage{{CutoffAge: time.Hour, Granularity: 0}}), "zero granularity")
	assert.Error(t, ValidatePlan([]Stage{
		{CutoffAge: time.Hour, Granularity: 5 * time.Minute},
		{CutoffAge: 2 * time.Hour, Granularity: time.Hour},
	}), "cutoffs must decrease toward now")

	assert.NoError(t, ValidatePlan([]Stage{
		{CutoffAge: 7 * 24 * time.Hour, Granularity: 24 * time.Hour},
		{CutoffAge: 24 * time.Hour, Granularity: time.Hour},
		{CutoffAge: 8 * time.Hour, Granularity: 5 * time.Minute},
	}))
}

func TestStageBeyondHorizonIsSkipped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", at("2019-09-12T02:00:00Z"), "10", 10))
	require.NoError(t, err)

	// The stage's range ends before the horizon-anchored start. It is
	// skipped, and the fine row survives.
	stats, err := c.Run(ctx,
		[]Stage{{CutoffAge: 48 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 24*time.Hour, true)
	require.NoError(t, err)
	assert.Zero(t, stats.Series)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, at("2019-09-12T02:00:00Z"), values[0].ValidFrom)
}

func TestCompactCountSeries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	// Three 5-minute buckets inside the 02:00-03:00 hour, well past the cutoff.
	fineSums := []string{"10", "20", "30"}
	for i, v := range fineSums {
		from := at("2019-09-12T02:00:00Z").Add(time.Duration(i) * 5 * time.Minute)
		_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", from, v, 10*(int64(i)+1)))
		require.NoError(t, err)
	}

	stats, err := c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, true)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Series)
	assert.Equal(t, int64(3), stats.RowsDeleted)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1, "fine rows replaced by one coarse row")

	coarse := values[0]
	assert.Equal(t, at("2019-09-12T02:00:00Z"), coarse.ValidFrom)
	assert.Equal(t, at("2019-09-12T03:00:00Z"), coarse.ValidTo)
	assert.True(t, decimal.RequireFromString("60").Equal(coarse.ValueNum.Decimal),
		"coarse sum must equal the sum of the fine sums")
	assert.Equal(t, int64(60), coarse.SamplesCount)
}

func TestCompactRateSeriesIsSampleWeighted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	_, err := s.Upsert(ctx, fineSample("response.time", "geoserver", at("2019-09-12T02:00:00Z"), "2", 10))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fineSample("response.time", "geoserver", at("2019-09-12T02:05:00Z"), "4", 30))
	require.NoError(t, err)

	_, err = c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, true)
	require.NoError(t, err)

	values, err := s.Query(ctx, store.Filter{Metric: "response.time", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, decimal.RequireFromString("3.5").Equal(values[0].ValueNum.Decimal),
		"(2*10 + 4*30) / 40")
	assert.Equal(t, int64(40), values[0].SamplesCount)
}

func TestCompactNumericSeriesKeepsMax(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	_, err := s.Upsert(ctx, fineSample("load.1m", "node01", at("2019-09-12T02:00:00Z"), "1.5", 1))
	require.NoError(t, err)
	_, err = s.Upsert(ctx, fineSample("load.1m", "node01", at("2019-09-12T02:05:00Z"), "0.75", 1))
	require.NoError(t, err)

	_, err = c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, true)
	require.NoError(t, err)

	values, err := s.Query(ctx, store.Filter{Metric: "load.1m", Service: "node01"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, decimal.RequireFromString("1.5").Equal(values[0].ValueNum.Decimal))
}

func TestCompactLeavesRecentRowsAlone(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	// 30 minutes old: inside the cutoff, must survive untouched.
	fresh := at("2019-09-12T11:30:00Z")
	_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", fresh, "7", 7))
	require.NoError(t, err)

	_, err = c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, true)
	require.NoError(t, err)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, fresh, values[0].ValidFrom)
	assert.Equal(t, fresh.Add(5*time.Minute), values[0].ValidTo)
}

func TestCompactWithoutCleanupKeepsFineRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	for i := 0; i < 3; i++ {
		from := at("2019-09-12T02:00:00Z").Add(time.Duration(i) * 5 * time.Minute)
		_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", from, "10", 10))
		require.NoError(t, err)
	}

	stats, err := c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, false)
	require.NoError(t, err)
	assert.Zero(t, stats.RowsDeleted)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	assert.Len(t, values, 4, "three fine rows plus the coarse aggregate")
}

func TestRunIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	for i := 0; i < 3; i++ {
		from := at("2019-09-12T02:00:00Z").Add(time.Duration(i) * 5 * time.Minute)
		_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", from, "10", 10))
		require.NoError(t, err)
	}

	plan := []Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}}
	now := at("2019-09-12T12:00:00Z")

	_, err := c.Run(ctx, plan, now, 7*24*time.Hour, true)
	require.NoError(t, err)
	_, err = c.Run(ctx, plan, now, 7*24*time.Hour, true)
	require.NoError(t, err)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.True(t, decimal.RequireFromString("30").Equal(values[0].ValueNum.Decimal),
		"re-running must not double-count")
}

func TestRunRecoversAbandonedMarks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	c := New(s, catalog.Default())

	from := at("2019-09-12T02:00:00Z")
	_, err := s.Upsert(ctx, fineSample("request.count", "geoserver", from, "10", 10))
	require.NoError(t, err)

	// Simulate a crash between marking and deleting.
	marked, err := s.MarkForRollup(ctx, store.Series{
		Service: "geoserver", Metric: "request.count",
	}, from, from.Add(5*time.Minute), "rollup-dead-run")
	require.NoError(t, err)
	require.Equal(t, int64(1), marked)

	_, err = c.Run(ctx,
		[]Stage{{CutoffAge: 6 * time.Hour, Granularity: time.Hour}},
		at("2019-09-12T12:00:00Z"), 7*24*time.Hour, true)
	require.NoError(t, err)

	values, err := s.Query(ctx, store.Filter{Metric: "request.count", Service: "geoserver"})
	require.NoError(t, err)
	require.Len(t, values, 1, "abandoned row must be recovered and compacted, not dropped")
	assert.True(t, decimal.RequireFromString("10").Equal(values[0].ValueNum.Decimal))
}

