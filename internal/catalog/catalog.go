// Package catalog is the static registry of known metrics: their value
// semantics, units, and the aggregate rule each semantic implies at roll-up
// and query time.
package catalog

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/errors"
)

// Kind is the value semantic of a metric. It is a closed set: the two
// dispatch points (collector dimension aggregation and roll-up) switch
// exhaustively over it and fail on anything else.
type Kind int

const (
	// Rate aggregates by sample-count-weighted average.
	Rate Kind = iota
	// Count aggregates by sum.
	Count
	// Value is a categorical metric: aggregation is a frequency count per
	// distinct value, roll-up is a sum.
	Value
	// ValueNumeric aggregates by max.
	ValueNumeric
)

func (k Kind) String() string {
	switch k {
	case Rate:
		return "rate"
	case Count:
		return "count"
	case Value:
		return "value"
	case ValueNumeric:
		return "value_numeric"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ServiceKind selects which metric set applies to a service and which
// collector shape it uses.
type ServiceKind int

const (
	// ServiceHost is an OS-probe service: one snapshot per cycle.
	ServiceHost ServiceKind = iota
	// ServiceWeb is the content-management application's own request stream.
	ServiceWeb
	// ServiceMapServer is a remote map server's audit log request stream.
	ServiceMapServer
)

func (sk ServiceKind) String() string {
	switch sk {
	case ServiceHost:
		return "host"
	case ServiceWeb:
		return "web"
	case ServiceMapServer:
		return "mapserver"
	default:
		return fmt.Sprintf("servicekind(%d)", int(sk))
	}
}

// ParseServiceKind maps a stored service kind string back to its enum value.
func ParseServiceKind(s string) (ServiceKind, error) {
	switch s {
	case "host":
		return ServiceHost, nil
	case "web":
		return ServiceWeb, nil
	case "mapserver":
		return ServiceMapServer, nil
	default:
		return 0, fmt.Errorf("unknown service kind %q: %w", s, errors.ErrInvalidConfig)
	}
}

// RequestLog reports whether the service kind consumes request-log samples
// (as opposed to host-probe snapshots).
func (sk ServiceKind) RequestLog() bool {
	return sk == ServiceWeb || sk == ServiceMapServer
}

// Units
const (
	UnitBytes          = "B"
	UnitBytesPerSecond = "B/s"
	UnitSeconds        = "s"
	UnitPercent        = "%"
	UnitCount          = "count"
	UnitRate           = "count/s"
)

// Metric describes one entry in the catalog.
type Metric struct {
	Name        string
	Kind        Kind
	Unit        string
	Description string
}

// WeightedSample is one already-aggregated input to a roll-up aggregate:
// a numeric value plus how many raw samples produced it.
type WeightedSample struct {
	Value   decimal.Decimal
	Samples int64
}

// Aggregate applies the kind's aggregate rule over a set of weighted
// samples, returning the coarse value and the summed sample count.
func (k Kind) Aggregate(samples []WeightedSample) (decimal.Decimal, int64, error) {
	var totalSamples int64
	for _, s := range samples {
		totalSamples += s.Samples
	}

	switch k {
	case Rate:
		if totalSamples <= 0 {
			return decimal.Zero, 0, nil
		}
		weighted := decimal.Zero
		for _, s := range samples {
			weighted = weighted.Add(s.Value.Mul(decimal.NewFromInt(s.Samples)))
		}
		return weighted.Div(decimal.NewFromInt(totalSamples)), totalSamples, nil
	case Count, Value:
		sum := decimal.Zero
		for _, s := range samples {
			sum = sum.Add(s.Value)
		}
		return sum, totalSamples, nil
	case ValueNumeric:
		if len(samples) == 0 {
			return decimal.Zero, 0, nil
		}
		max := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value.GreaterThan(max) {
				max = s.Value
			}
		}
		return max, totalSamples, nil
	default:
		return decimal.Zero, 0, fmt.Errorf("aggregate for %s: %w", k, errors.ErrUnsupportedKind)
	}
}

// Registry maps (service kind, metric name) pairs to metric definitions.
// It is built once by the process entry point and read-only afterwards.
type Registry struct {
	byKind map[ServiceKind]map[string]Metric
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byKind: make(map[ServiceKind]map[string]Metric)}
}

// Register adds a metric under a service kind. Registering the same name
// twice replaces the earlier definition.
func (r *Registry) Register(sk ServiceKind, m Metric) {
	metrics, ok := r.byKind[sk]
	if !ok {
		metrics = make(map[string]Metric)
		r.byKind[sk] = metrics
	}
	metrics[m.Name] = m
}

// Lookup resolves a metric by name for a service kind.
func (r *Registry) Lookup(name string, sk ServiceKind) (Metric, error) {
	if metrics, ok := r.byKind[sk]; ok {
		if m, ok := metrics[name]; ok {
			return m, nil
		}
	}
	return Metric{}, errors.NewPipelineError(errors.ErrorTypeNotFound, "catalog_lookup", sk.String(),
		fmt.Errorf("metric %q not registered for service kind %s: %w", name, sk, errors.ErrNotFound))
}

// AggregateFor resolves the aggregate rule for a metric under a service kind.
func (r *Registry) AggregateFor(name string, sk ServiceKind) (Kind, error) {
	m, err := r.Lookup(name, sk)
	if err != nil {
		return 0, err
	}
	return m.Kind, nil
}

// Names lists the registered metric names for a service kind.
func (r *Registry) Names(sk ServiceKind) []string {
	metrics := r.byKind[sk]
	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	return names
}
