package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoworks/geomon/internal/errors"
)

func ts(value string) time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestAlignStart(t *testing.T) {
	cases := []struct {
		name     string
		in       time.Time
		interval time.Duration
		want     time.Time
	}{
		{"mid-bucket", ts("2017-06-20T12:22:50Z"), 5 * time.Minute, ts("2017-06-20T12:20:00Z")},
		{"on boundary", ts("2017-06-20T12:20:00Z"), 5 * time.Minute, ts("2017-06-20T12:20:00Z")},
		{"midnight", ts("2017-06-20T00:00:00Z"), time.Hour, ts("2017-06-20T00:00:00Z")},
		{"hourly", ts("2017-06-20T12:59:59Z"), time.Hour, ts("2017-06-20T12:00:00Z")},
		{"daily", ts("2017-06-20T23:59:59Z"), 24 * time.Hour, ts("2017-06-20T00:00:00Z")},
		{"odd interval day seam", ts("2017-06-20T23:50:00Z"), 7 * time.Minute, ts("2017-06-20T23:48:00Z")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AlignStart(tc.in, tc.interval))
		})
	}
}

func TestAlignStartProperties(t *testing.T) {
	intervals := []time.Duration{time.Minute, 5 * time.Minute, time.Hour, 90 * time.Second, 7 * time.Minute}
	stamps := []time.Time{
		ts("2017-06-20T12:22:50Z"),
		ts("2019-09-11T20:00:00Z"),
		ts("2020-02-29T23:59:59Z"),
		ts("2021-01-01T00:00:01Z"),
	}

	for _, interval := range intervals {
		for _, stamp := range stamps {
			aligned := AlignStart(stamp, interval)

			// aligned <= t < aligned+interval
			assert.False(t, aligned.After(stamp), "aligned %s after %s", aligned, stamp)
			assert.True(t, stamp.Before(aligned.Add(interval)), "t %s not inside bucket from %s", stamp, aligned)

			// idempotence
			assert.Equal(t, aligned, AlignStart(aligned, interval))
		}
	}
}

func TestAlignEnd(t *testing.T) {
	assert.Equal(t, ts("2017-06-20T12:25:00Z"), AlignEnd(ts("2017-06-20T12:22:50Z"), 5*time.Minute))
	// Already on a boundary stays put.
	assert.Equal(t, ts("2017-06-20T12:25:00Z"), AlignEnd(ts("2017-06-20T12:25:00Z"), 5*time.Minute))
}

func TestGenerateKnownSequence(t *testing.T) {
	gen, err := Generate(ts("2017-06-20T12:22:50Z"), 5*time.Minute, ts("2017-06-20T12:27:12Z"), true)
	require.NoError(t, err)

	periods := gen.All()
	require.Len(t, periods, 2)
	assert.Equal(t, ts("2017-06-20T12:20:00Z"), periods[0].Start)
	assert.Equal(t, ts("2017-06-20T12:25:00Z"), periods[0].End)
	assert.Equal(t, ts("2017-06-20T12:25:00Z"), periods[1].Start)
	assert.Equal(t, ts("2017-06-20T12:30:00Z"), periods[1].End)
}

func TestGenerateCoversRange(t *testing.T) {
	since := ts("2017-06-20T00:00:00Z")
	until := ts("2017-06-20T03:10:00Z")
	gen, err := Generate(since, time.Hour, until, true)
	require.NoError(t, err)

	periods := gen.All()
	require.Len(t, periods, 4)

	// Contiguous, non-overlapping, interval-width.
	for i, p := range periods {
		assert.Equal(t, time.Hour, p.End.Sub(p.Start))
		if i > 0 {
			assert.Equal(t, periods[i-1].End, p.Start)
		}
	}
	assert.Equal(t, since, periods[0].Start)
	assert.False(t, periods[len(periods)-1].End.Before(until), "final bucket must reach until")
}

func TestGenerateUnaligned(t *testing.T) {
	since := ts("2017-06-20T12:22:50Z")
	gen, err := Generate(since, 5*time.Minute, since.Add(6*time.Minute), false)
	require.NoError(t, err)

	periods := gen.All()
	require.Len(t, periods, 2)
	assert.Equal(t, since, periods[0].Start)
	assert.Equal(t, since.Add(5*time.Minute), periods[0].End)
}

func TestGenerateRestartable(t *testing.T) {
	gen, err := Generate(ts("2017-06-20T12:00:00Z"), time.Minute, ts("2017-06-20T12:03:00Z"), true)
	require.NoError(t, err)

	first := gen.All()
	gen.Reset()
	second := gen.All()
	assert.Equal(t, first, second)
}

func TestGenerateRejectsInvertedRange(t *testing.T) {
	_, err := Generate(ts("2017-06-20T12:00:00Z"), time.Minute, ts("2017-06-20T11:00:00Z"), true)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestGenerateRejectsNonPositiveInterval(t *testing.T) {
	_, err := Generate(ts("2017-06-20T12:00:00Z"), 0, ts("2017-06-20T13:00:00Z"), true)
	require.Error(t, err)
}

func TestPeriodContains(t *testing.T) {
	p := Period{Start: ts("2017-06-20T12:00:00Z"), End: ts("2017-06-20T12:05:00Z")}
	assert.True(t, p.Contains(ts("2017-06-20T12:00:00Z")))
	assert.True(t, p.Contains(ts("2017-06-20T12:04:59Z")))
	assert.False(t, p.Contains(ts("2017-06-20T12:05:00Z")))
	assert.False(t, p.Contains(ts("2017-06-20T11:59:59Z")))
}
