package collect

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/errors"
)

func ipDim() dimension {
	for _, d := range requestDimensions {
		if d.metric == catalog.MetricRequestIP {
			return d
		}
	}
	panic("ip dimension missing")
}

func timeDim() dimension {
	for _, d := range requestDimensions {
		if d.metric == catalog.MetricResponseTime {
			return d
		}
	}
	panic("response time dimension missing")
}

func TestAggregateDimensionValueHistogram(t *testing.T) {
	group := []RequestSample{
		{ClientIP: "10.0.0.1"},
		{ClientIP: "10.0.0.2"},
		{ClientIP: "10.0.0.1"},
		{ClientIP: "10.0.0.1"},
	}

	rows, err := aggregateDimension(catalog.Value, ipDim(), group)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	// Sorted descending by frequency.
	assert.Equal(t, "10.0.0.1", rows[0].Label)
	assert.True(t, decimal.NewFromInt(3).Equal(rows[0].Value))
	assert.Equal(t, int64(3), rows[0].Samples)
	assert.Equal(t, "10.0.0.2", rows[1].Label)
	assert.True(t, decimal.NewFromInt(1).Equal(rows[1].Value))
}

func TestAggregateDimensionSkipsEmptyLabels(t *testing.T) {
	group := []RequestSample{
		{ClientIP: "10.0.0.1"},
		{ClientIP: ""},
	}
	rows, err := aggregateDimension(catalog.Value, ipDim(), group)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestAggregateDimensionRateMean(t *testing.T) {
	group := []RequestSample{
		{ResponseTime: 100 * time.Millisecond},
		{ResponseTime: 300 * time.Millisecond},
	}

	rows, err := aggregateDimension(catalog.Rate, timeDim(), group)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, rateLabel, rows[0].Label)
	assert.Equal(t, int64(2), rows[0].Samples)
	assert.True(t, decimal.RequireFromString("0.2").Equal(rows[0].Value), "got %s", rows[0].Value)
}

func TestAggregateDimensionValueNumericMax(t *testing.T) {
	group := []RequestSample{
		{ResponseTime: 100 * time.Millisecond},
		{ResponseTime: 700 * time.Millisecond},
		{ResponseTime: 300 * time.Millisecond},
	}

	rows, err := aggregateDimension(catalog.ValueNumeric, timeDim(), group)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, decimal.RequireFromString("0.7").Equal(rows[0].Value))
	assert.Equal(t, int64(3), rows[0].Samples)
}

func TestAggregateDimensionCapsDistinctValues(t *testing.T) {
	var group []RequestSample
	for i := 0; i < maxDistinctRows+50; i++ {
		group = append(group, RequestSample{ClientIP: fmt.Sprintf("10.0.%d.%d", i/256, i%256)})
	}
	// One address dominates so the cap keeps it.
	for i := 0; i < 5; i++ {
		group = append(group, RequestSample{ClientIP: "10.9.9.9"})
	}

	rows, err := aggregateDimension(catalog.Value, ipDim(), group)
	require.NoError(t, err)
	assert.Len(t, rows, maxDistinctRows)
	assert.Equal(t, "10.9.9.9", rows[0].Label)
}

func TestAggregateDimensionUnsupportedKind(t *testing.T) {
	_, err := aggregateDimension(catalog.Kind(42), ipDim(), []RequestSample{{ClientIP: "10.0.0.1"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedKind)
}

func TestAggregateDimensionEmptyGroup(t *testing.T) {
	rows, err := aggregateDimension(catalog.Value, ipDim(), nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
