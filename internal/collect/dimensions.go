package collect

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/catalog"
	"github.com/cartoworks/geomon/internal/errors"
)

// maxDistinctRows caps the number of rows emitted per dimension per group.
const maxDistinctRows = 100

// rateLabel is the sentinel label of the single row a Rate dimension emits.
const rateLabel = "rate"

// dimension binds a metric name to how its label and numeric column are
// read off a request sample.
type dimension struct {
	metric string
	label  func(RequestSample) string
	column func(RequestSample) decimal.Decimal
}

func one(RequestSample) decimal.Decimal { return decimal.NewFromInt(1) }

// requestDimensions is the fixed categorical/numeric dimension list the
// aggregator evaluates per group.
var requestDimensions = []dimension{
	{metric: catalog.MetricRequestIP, label: func(s RequestSample) string { return s.ClientIP }, column: one},
	{metric: catalog.MetricRequestCountry, label: func(s RequestSample) string { return s.Country }, column: one},
	{metric: catalog.MetricRequestRegion, label: func(s RequestSample) string { return s.Region }, column: one},
	{metric: catalog.MetricRequestCity, label: func(s RequestSample) string { return s.City }, column: one},
	{metric: catalog.MetricRequestUA, label: func(s RequestSample) string { return s.UserAgent }, column: one},
	{metric: catalog.MetricRequestUAFamily, label: func(s RequestSample) string { return s.UserAgentFamily }, column: one},
	{metric: catalog.MetricRequestMethod, label: func(s RequestSample) string { return s.Method }, column: one},
	{metric: catalog.MetricRequestUsers, label: func(s RequestSample) string { return s.UserID }, column: one},
	{
		metric: catalog.MetricResponseTime,
		label:  func(RequestSample) string { return rateLabel },
		column: func(s RequestSample) decimal.Decimal { return decimal.NewFromFloat(s.ResponseTime.Seconds()) },
	},
	{
		metric: catalog.MetricResponseSize,
		label:  func(RequestSample) string { return rateLabel },
		column: func(s RequestSample) decimal.Decimal { return decimal.NewFromInt(s.ResponseSize) },
	},
	{metric: catalog.MetricResponseStatus, label: func(s RequestSample) string { return strconv.Itoa(s.Status) }, column: one},
}

// dimensionRow is one aggregated row for a dimension within a group.
type dimensionRow struct {
	Label   string
	Value   decimal.Decimal
	Samples int64
}

// aggregateDimension applies the metric-kind-specific aggregation rule to
// one dimension over one group of samples.
//
// Rate: a single row, the mean of the column, labeled with the "rate"
// sentinel. Count: per distinct label, sum of the column. Value: per
// distinct label, a frequency count. ValueNumeric: a single row, the max of
// the column. Multi-row results are sorted by aggregate descending, capped
// at maxDistinctRows; ties keep first-seen order.
func aggregateDimension(kind catalog.Kind, dim dimension, group []RequestSample) ([]dimensionRow, error) {
	if len(group) == 0 {
		return nil, nil
	}

	switch kind {
	case catalog.Rate:
		sum := decimal.Zero
		for _, s := range group {
			sum = sum.Add(dim.column(s))
		}
		mean := sum.Div(decimal.NewFromInt(int64(len(group))))
		return []dimensionRow{{Label: rateLabel, Value: mean, Samples: int64(len(group))}}, nil

	case catalog.Count, catalog.Value:
		idx := make(map[string]int)
		var rows []dimensionRow
		for _, s := range group {
			label := dim.label(s)
			if label == "" {
				continue
			}
			i, ok := idx[label]
			if !ok {
				i = len(rows)
				idx[label] = i
				rows = append(rows, dimensionRow{Label: label})
			}
			if kind == catalog.Count {
				rows[i].Value = rows[i].Value.Add(dim.column(s))
			} else {
				rows[i].Value = rows[i].Value.Add(decimal.NewFromInt(1))
			}
			rows[i].Samples++
		}
		sort.SliceStable(rows, func(a, b int) bool {
			return rows[a].Value.GreaterThan(rows[b].Value)
		})
		if len(rows) > maxDistinctRows {
			rows = rows[:maxDistinctRows]
		}
		return rows, nil

	case catalog.ValueNumeric:
		max := dim.column(group[0])
		for _, s := range group[1:] {
			if v := dim.column(s); v.GreaterThan(max) {
				max = v
			}
		}
		return []dimensionRow{{Label: "", Value: max, Samples: int64(len(group))}}, nil

	default:
		return nil, errors.WrapConfigError("aggregate_dimension",
			fmt.Errorf("metric %s has kind %s: %w", dim.metric, kind, errors.ErrUnsupportedKind))
	}
}
