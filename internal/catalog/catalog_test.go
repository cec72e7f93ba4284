package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartoworks/geomon/internal/errors"
)

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestAggregateRate(t *testing.T) {
	// Weighted average: (2*10 + 4*30) / 40 = 3.5
	samples := []WeightedSample{
		{Value: dec("2"), Samples: 10},
		{Value: dec("4"), Samples: 30},
	}
	value, count, err := Rate.Aggregate(samples)
	require.NoError(t, err)
	assert.Equal(t, int64(40), count)
	assert.True(t, dec("3.5").Equal(value), "got %s", value)
}

func TestAggregateRateZeroSamples(t *testing.T) {
	value, count, err := Rate.Aggregate([]WeightedSample{{Value: dec("5"), Samples: 0}})
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.True(t, value.IsZero())
}

func TestAggregateCountAndValueSum(t *testing.T) {
	samples := []WeightedSample{
		{Value: dec("10"), Samples: 10},
		{Value: dec("5"), Samples: 5},
	}
	for _, kind := range []Kind{Count, Value} {
		value, count, err := kind.Aggregate(samples)
		require.NoError(t, err)
		assert.Equal(t, int64(15), count)
		assert.True(t, dec("15").Equal(value), "%s got %s", kind, value)
	}
}

func TestAggregateValueNumericMax(t *testing.T) {
	samples := []WeightedSample{
		{Value: dec("3.2"), Samples: 1},
		{Value: dec("9.7"), Samples: 1},
		{Value: dec("1.1"), Samples: 1},
	}
	value, count, err := ValueNumeric.Aggregate(samples)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.True(t, dec("9.7").Equal(value))
}

func TestAggregateUnknownKind(t *testing.T) {
	_, _, err := Kind(99).Aggregate(nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnsupportedKind)
}

func TestRegistryLookup(t *testing.T) {
	r := Default()

	m, err := r.Lookup(MetricRequestCount, ServiceWeb)
	require.NoError(t, err)
	assert.Equal(t, Count, m.Kind)

	// The same name never resolves across service kinds it was not
	// registered for.
	_, err = r.Lookup(MetricRequestCount, ServiceHost)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotFound)

	_, err = r.Lookup("no.such.metric", ServiceMapServer)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestRegistryAggregateFor(t *testing.T) {
	r := Default()

	kind, err := r.AggregateFor(MetricResponseTime, ServiceMapServer)
	require.NoError(t, err)
	assert.Equal(t, Rate, kind)

	kind, err = r.AggregateFor(MetricStorageUsed, ServiceHost)
	require.NoError(t, err)
	assert.Equal(t, ValueNumeric, kind)
}

func TestParseServiceKind(t *testing.T) {
	for _, sk := range []ServiceKind{ServiceHost, ServiceWeb, ServiceMapServer} {
		parsed, err := ParseServiceKind(sk.String())
		require.NoError(t, err)
		assert.Equal(t, sk, parsed)
	}

	_, err := ParseServiceKind("ftp")
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestRequestLogKinds(t *testing.T) {
	assert.False(t, ServiceHost.RequestLog())
	assert.True(t, ServiceWeb.RequestLog())
	assert.True(t, ServiceMapServer.RequestLog())
}
