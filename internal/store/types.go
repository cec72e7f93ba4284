package store

import (
	"time"

	"github.com/shopspring/decimal"
)

// WireTimeFormat is the fixed external representation of bucket timestamps:
// ISO-8601 UTC with microsecond precision and a literal Z suffix.
const WireTimeFormat = "2006-01-02T15:04:05.000000Z"

// FormatTimestamp renders a bucket timestamp for external consumers.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(WireTimeFormat)
}

// Resource identifies an opaque monitored resource by (type, name). The
// empty Resource means "no resource" (service-wide values).
type Resource struct {
	Type string
	Name string
}

// IsZero reports whether the resource is the "no resource" sentinel.
func (r Resource) IsZero() bool {
	return r.Type == "" && r.Name == ""
}

// Service is a monitored service with a fixed collection schedule.
type Service struct {
	Name          string
	Host          string
	Kind          string
	CheckInterval time.Duration
	LastCheck     time.Time
	Active        bool
}

// Value is one stored metric value row.
type Value struct {
	ID           int64
	Metric       string
	ValidFrom    time.Time
	ValidTo      time.Time
	Service      string
	Resource     Resource
	EventType    string
	Label        string
	LabelUser    string
	Value        string
	ValueNum     decimal.NullDecimal
	ValueRaw     string
	SamplesCount int64
	Data         string
}

// Sample is the input to Upsert: a fully-aggregated statistic for one
// bucket of one series.
type Sample struct {
	Metric       string
	ValidFrom    time.Time
	ValidTo      time.Time
	Service      string
	Resource     Resource
	EventType    string
	Label        string
	LabelUser    string
	Value        string
	ValueNum     decimal.NullDecimal
	ValueRaw     string
	SamplesCount int64
	Data         string
}

// Series identifies a single time series: every stored value sharing the
// same (service, metric, resource, event type, label) identity.
type Series struct {
	Service      string
	Metric       string
	ResourceType string
	ResourceName string
	EventType    string
	Label        string
}

// Filter narrows a Query. Zero-valued fields are ignored; Metric is
// required.
type Filter struct {
	Metric    string
	Service   string
	Resource  *Resource
	EventType string
	Label     string
	ValidOn   time.Time // rows whose [valid_from, valid_to] contains this instant
	Since     time.Time // valid_from >= Since
	Until     time.Time // valid_to <= Until
	Limit     int
}
