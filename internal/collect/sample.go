// Package collect turns raw per-request and per-host samples into
// aggregated metric values, one upserted row per dimension combination per
// metric per time bucket.
package collect

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/cartoworks/geomon/internal/store"
)

// Synthetic event-type buckets. A sample's own event type names the
// protocol operation (WMS, WFS, ...) and is empty for traffic outside the
// monitored class.
const (
	// EventAll aggregates every sample carrying a monitored event type.
	EventAll = "all"
	// EventOther aggregates samples outside the monitored class.
	EventOther = "other"
)

// RequestSample is one access-log record as delivered by a raw sample
// source. Client locality and user-agent fields arrive pre-enriched; the
// transport that produced them is an external collaborator.
type RequestSample struct {
	Timestamp       time.Time        `json:"timestamp"`
	Path            string           `json:"path"`
	Method          string           `json:"method"`
	EventType       string           `json:"eventType,omitempty"`
	Resources       []store.Resource `json:"resources,omitempty"`
	Status          int              `json:"status"`
	ResponseTime    time.Duration    `json:"responseTime"`
	ResponseSize    int64            `json:"responseSize"`
	ClientIP        string           `json:"clientIp,omitempty"`
	Country         string           `json:"country,omitempty"`
	Region          string           `json:"region,omitempty"`
	City            string           `json:"city,omitempty"`
	UserAgent       string           `json:"userAgent,omitempty"`
	UserAgentFamily string           `json:"userAgentFamily,omitempty"`
	UserID          string           `json:"userId,omitempty"`
	ErrorType       string           `json:"errorType,omitempty"`
	ErrorDetail     string           `json:"errorDetail,omitempty"`
}

// Failed reports whether the sample recorded an error.
func (s RequestSample) Failed() bool {
	return s.ErrorType != ""
}

// SampleSource yields the request-log records for one service over a time
// span. The span's samples are materialized before the aggregation runs.
type SampleSource interface {
	Samples(ctx context.Context, service store.Service, since, until time.Time) ([]RequestSample, error)
}

// FileSource reads request samples from a JSON-lines file; it serves the
// one-shot CLI jobs and tests.
type FileSource struct {
	Path string
}

// Samples implements SampleSource. Records outside [since, until) are
// dropped.
func (f FileSource) Samples(_ context.Context, _ store.Service, since, until time.Time) ([]RequestSample, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sample file: %w", err)
	}
	defer file.Close()

	var samples []RequestSample
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s RequestSample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("malformed sample at line %d: %w", line, err)
		}
		if s.Timestamp.Before(since) || !s.Timestamp.Before(until) {
			continue
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sample file: %w", err)
	}
	return samples, nil
}

// distinctResources lists the resources referenced by a sample set, in
// first-seen order.
func distinctResources(samples []RequestSample) []store.Resource {
	seen := make(map[store.Resource]struct{})
	var resources []store.Resource
	for _, s := range samples {
		for _, r := range s.Resources {
			if r.IsZero() {
				continue
			}
			if _, ok := seen[r]; ok {
				continue
			}
			seen[r] = struct{}{}
			resources = append(resources, r)
		}
	}
	return resources
}
