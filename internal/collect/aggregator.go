package collect

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/cartoworks/geomon/internal/catalog"
	gerrors "github.com/cartoworks/geomon/internal/errors"
	"github.com/cartoworks/geomon/internal/period"
	"github.com/cartoworks/geomon/internal/rate"
	"github.com/cartoworks/geomon/internal/store"
)

// Aggregator groups raw samples by dimension combinations and emits one
// upserted metric value per combination per metric per bucket. Buckets are
// processed oldest first so later rate derivations can read earlier buckets.
type Aggregator struct {
	store    *store.Store
	registry *catalog.Registry
	deriver  *rate.Deriver
}

// NewAggregator wires an aggregator against its store and catalog.
func NewAggregator(s *store.Store, registry *catalog.Registry) *Aggregator {
	return &Aggregator{
		store:    s,
		registry: registry,
		deriver:  rate.New(s),
	}
}

// group is one dimension combination samples are aggregated under.
type group struct {
	resource store.Resource
	event    string
	samples  []RequestSample
}

// CollectRequests aggregates a batch of request-log samples covering
// [since, until) for one service. Re-running over an already-processed
// window is safe: every write is an upsert on the composite key.
func (a *Aggregator) CollectRequests(ctx context.Context, svc store.Service, samples []RequestSample, since, until time.Time) error {
	sk, err := catalog.ParseServiceKind(svc.Kind)
	if err != nil {
		return err
	}
	if !sk.RequestLog() {
		return fmt.Errorf("service %s has kind %s, not a request-log service", svc.Name, svc.Kind)
	}

	gen, err := period.Generate(since, svc.CheckInterval, until, true)
	if err != nil {
		return err
	}

	written := 0
	for {
		p, ok := gen.Next()
		if !ok {
			break
		}

		var bucketSamples []RequestSample
		for _, s := range samples {
			if p.Contains(s.Timestamp) {
				bucketSamples = append(bucketSamples, s)
			}
		}
		if len(bucketSamples) == 0 {
			continue
		}

		for _, g := range buildGroups(bucketSamples) {
			n, err := a.emitGroup(ctx, svc, sk, p, g)
			if err != nil {
				return err
			}
			written += n
		}
	}

	log.Debug().
		Str("service", svc.Name).
		Int("samples", len(samples)).
		Int("rows", written).
		Time("since", since).
		Time("until", until).
		Msg("Aggregated request samples")
	return nil
}

// buildGroups expands one bucket's samples into every grouping that gets
// its own metric rows: service-wide, the two synthetic event cross-cuts,
// then per resource with the same event slicing plus each concrete event
// type.
func buildGroups(samples []RequestSample) []group {
	groups := []group{{samples: samples}}
	groups = appendEventCrossCuts(groups, store.Resource{}, samples)

	for _, res := range distinctResources(samples) {
		var touching []RequestSample
		for _, s := range samples {
			for _, r := range s.Resources {
				if r == res {
					touching = append(touching, s)
					break
				}
			}
		}

		groups = append(groups, group{resource: res, samples: touching})
		groups = appendEventCrossCuts(groups, res, touching)

		for _, event := range distinctEvents(touching) {
			var matching []RequestSample
			for _, s := range touching {
				if s.EventType == event {
					matching = append(matching, s)
				}
			}
			groups = append(groups, group{resource: res, event: event, samples: matching})
		}
	}
	return groups
}

func appendEventCrossCuts(groups []group, res store.Resource, samples []RequestSample) []group {
	var monitored, other []RequestSample
	for _, s := range samples {
		if s.EventType != "" {
			monitored = append(monitored, s)
		} else {
			other = append(other, s)
		}
	}
	if len(monitored) > 0 {
		groups = append(groups, group{resource: res, event: EventAll, samples: monitored})
	}
	if len(other) > 0 {
		groups = append(groups, group{resource: res, event: EventOther, samples: other})
	}
	return groups
}

func distinctEvents(samples []RequestSample) []string {
	seen := make(map[string]struct{})
	var events []string
	for _, s := range samples {
		if s.EventType == "" {
			continue
		}
		if _, ok := seen[s.EventType]; ok {
			continue
		}
		seen[s.EventType] = struct{}{}
		events = append(events, s.EventType)
	}
	return events
}

// emitGroup writes this group's request.count, per-path counts, the fixed
// dimension aggregates, and the error rows. Returns the row count written.
func (a *Aggregator) emitGroup(ctx context.Context, svc store.Service, sk catalog.ServiceKind, p period.Period, g group) (int, error) {
	if len(g.samples) == 0 {
		return 0, nil
	}
	written := 0

	put := func(metric, label, labelUser string, value decimal.Decimal, samplesCount int64) error {
		_, err := a.store.Upsert(ctx, store.Sample{
			Metric:       metric,
			ValidFrom:    p.Start,
			ValidTo:      p.End,
			Service:      svc.Name,
			Resource:     g.resource,
			EventType:    g.event,
			Label:        label,
			LabelUser:    labelUser,
			Value:        value.String(),
			ValueNum:     decimal.NullDecimal{Decimal: value, Valid: true},
			ValueRaw:     value.String(),
			SamplesCount: samplesCount,
		})
		if err == nil {
			written++
		}
		return err
	}

	// request.count: one row, count of samples in the group.
	total := int64(len(g.samples))
	if err := put(catalog.MetricRequestCount, "", "", decimal.NewFromInt(total), total); err != nil {
		return written, err
	}

	// request.path: one row per distinct path, count per path.
	type pathCount struct {
		path  string
		count int64
	}
	pathIdx := make(map[string]int)
	var paths []pathCount
	for _, s := range g.samples {
		if s.Path == "" {
			continue
		}
		i, ok := pathIdx[s.Path]
		if !ok {
			i = len(paths)
			pathIdx[s.Path] = i
			paths = append(paths, pathCount{path: s.Path})
		}
		paths[i].count++
	}
	sort.SliceStable(paths, func(a, b int) bool { return paths[a].count > paths[b].count })
	for _, pc := range paths {
		if err := put(catalog.MetricRequestPath, pc.path, "", decimal.NewFromInt(pc.count), pc.count); err != nil {
			return written, err
		}
	}

	// The fixed categorical/numeric dimension list.
	for _, dim := range requestDimensions {
		kind, err := a.registry.AggregateFor(dim.metric, sk)
		if err != nil {
			return written, err
		}
		rows, err := aggregateDimension(kind, dim, g.samples)
		if err != nil {
			return written, err
		}
		for _, row := range rows {
			labelUser := ""
			if dim.metric == catalog.MetricRequestUsers {
				labelUser = row.Label
			}
			if err := put(dim.metric, row.Label, labelUser, row.Value, row.Samples); err != nil {
				return written, err
			}
		}
	}

	// Error rows: total failed count plus a per-error-type breakdown.
	var failed []RequestSample
	for _, s := range g.samples {
		if s.Failed() {
			failed = append(failed, s)
		}
	}
	if len(failed) > 0 {
		if err := put(catalog.MetricErrorCount, "", "", decimal.NewFromInt(int64(len(failed))), int64(len(failed))); err != nil {
			return written, err
		}
		typeCounts := make(map[string]int64)
		var types []string
		for _, s := range failed {
			if _, ok := typeCounts[s.ErrorType]; !ok {
				types = append(types, s.ErrorType)
			}
			typeCounts[s.ErrorType]++
		}
		for _, et := range types {
			if err := put(catalog.MetricErrorTypes, et, "", decimal.NewFromInt(typeCounts[et]), typeCounts[et]); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// CollectHost stores one host-probe snapshot into the bucket containing
// `at`. Prior rows for the same bucket are removed first, so repeated
// collection for a bucket is idempotent at the bucket level.
func (a *Aggregator) CollectHost(ctx context.Context, svc store.Service, snap HostSnapshot, at time.Time) error {
	sk, err := catalog.ParseServiceKind(svc.Kind)
	if err != nil {
		return err
	}
	if sk != catalog.ServiceHost {
		return fmt.Errorf("service %s has kind %s, not a host-probe service", svc.Name, svc.Kind)
	}
	if svc.CheckInterval <= 0 {
		return gerrors.WrapConfigError("collect_host",
			fmt.Errorf("service %s has check interval %s, cannot align buckets: %w",
				svc.Name, svc.CheckInterval, gerrors.ErrInvalidConfig))
	}

	start := period.AlignStart(at, svc.CheckInterval)
	end := start.Add(svc.CheckInterval)

	if err := a.store.DeleteBucket(ctx, svc.Name, a.registry.Names(catalog.ServiceHost), start, end); err != nil {
		return err
	}

	put := func(metric, label string, value decimal.Decimal) error {
		_, err := a.store.Upsert(ctx, store.Sample{
			Metric:       metric,
			ValidFrom:    start,
			ValidTo:      end,
			Service:      svc.Name,
			Label:        label,
			Value:        value.String(),
			ValueNum:     decimal.NullDecimal{Decimal: value, Valid: true},
			ValueRaw:     value.String(),
			SamplesCount: 1,
		})
		return err
	}

	// putCounter stores a cumulative counter and, when the previous bucket
	// makes one derivable, its per-second rate series.
	putCounter := func(metric, label string, value decimal.Decimal) error {
		derived, ok, err := a.deriver.Rate(ctx, metric, svc.Name, label, value, end)
		if err != nil {
			return err
		}
		if err := put(metric, label, value); err != nil {
			return err
		}
		if ok {
			if err := put(metric+catalog.RateSuffix, label, derived); err != nil {
				return err
			}
		}
		return nil
	}

	if err := put(catalog.MetricUptime, "", decimal.NewFromFloat(snap.UptimeSeconds)); err != nil {
		return err
	}
	loads := []struct {
		metric string
		value  float64
	}{
		{catalog.MetricLoad1m, snap.Load1},
		{catalog.MetricLoad5m, snap.Load5},
		{catalog.MetricLoad15m, snap.Load15},
	}
	for _, l := range loads {
		if err := put(l.metric, "", decimal.NewFromFloat(l.value)); err != nil {
			return err
		}
	}

	if err := put(catalog.MetricMemAll, "", decimal.NewFromUint64(snap.Memory.Total)); err != nil {
		return err
	}
	if err := put(catalog.MetricMemUsage, "", decimal.NewFromUint64(snap.Memory.Used)); err != nil {
		return err
	}
	if err := put(catalog.MetricMemFree, "", decimal.NewFromUint64(snap.Memory.Free)); err != nil {
		return err
	}
	if err := put(catalog.MetricMemUsagePct, "", decimal.NewFromFloat(snap.Memory.UsedPercent)); err != nil {
		return err
	}

	for _, disk := range snap.Disks {
		if err := put(catalog.MetricStorageTotal, disk.Mountpoint, decimal.NewFromUint64(disk.Total)); err != nil {
			return err
		}
		if err := put(catalog.MetricStorageUsed, disk.Mountpoint, decimal.NewFromUint64(disk.Used)); err != nil {
			return err
		}
		if err := put(catalog.MetricStorageFree, disk.Mountpoint, decimal.NewFromUint64(disk.Free)); err != nil {
			return err
		}
	}

	for _, iface := range snap.Network {
		if err := putCounter(catalog.MetricNetworkIn, iface.Interface, decimal.NewFromUint64(iface.RxBytes)); err != nil {
			return err
		}
		if err := putCounter(catalog.MetricNetworkOut, iface.Interface, decimal.NewFromUint64(iface.TxBytes)); err != nil {
			return err
		}
	}

	if err := putCounter(catalog.MetricCPUUsage, "", decimal.NewFromFloat(snap.CPU.Seconds)); err != nil {
		return err
	}
	if err := put(catalog.MetricCPUUsagePct, "", decimal.NewFromFloat(snap.CPU.Percent)); err != nil {
		return err
	}

	log.Debug().
		Str("service", svc.Name).
		Str("bucketStart", store.FormatTimestamp(start)).
		Str("bucketEnd", store.FormatTimestamp(end)).
		Msg("Stored host snapshot")
	return nil
}
