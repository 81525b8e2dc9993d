// Package observe holds the OpenTelemetry instruments for kiosk and the
// Prometheus bridge that exposes them on /metrics.
//
// A nil *Metrics is valid and records nothing, so packages can take one
// without forcing every caller to build a provider.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "kiosk"

type Metrics struct {
	// ProcessStarts counts spawned pipeline processes. Attribute: proc.
	ProcessStarts metric.Int64Counter

	// ProcessStops counts stopped processes. Attributes: proc, how
	// (exited, terminated, killed).
	ProcessStops metric.Int64Counter

	// SpawnFailures counts pipeline entries that failed to start. Attribute: proc.
	SpawnFailures metric.Int64Counter

	// ActiveProcesses is the number of pipeline processes currently running.
	ActiveProcesses metric.Int64UpDownCounter

	// PresenceEvents counts debounced transitions. Attribute: event.
	PresenceEvents metric.Int64Counter

	// Frames counts frames read from the detector. Attribute: present.
	Frames metric.Int64Counter

	// ClassifyRequests counts /analyze calls. Attribute: status.
	ClassifyRequests metric.Int64Counter

	// ClassifyDuration tracks extraction plus prediction latency.
	ClassifyDuration metric.Float64Histogram

	// HTTPRequestDuration tracks request latency. Attributes: method, path, code.
	HTTPRequestDuration metric.Float64Histogram
}

var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProcessStarts, err = m.Int64Counter("kiosk.process.starts",
		metric.WithDescription("Pipeline processes spawned, by process name."),
	); err != nil {
		return nil, err
	}
	if met.ProcessStops, err = m.Int64Counter("kiosk.process.stops",
		metric.WithDescription("Pipeline processes stopped, by process name and how they stopped."),
	); err != nil {
		return nil, err
	}
	if met.SpawnFailures, err = m.Int64Counter("kiosk.process.spawn_failures",
		metric.WithDescription("Pipeline entries that failed to spawn."),
	); err != nil {
		return nil, err
	}
	if met.ActiveProcesses, err = m.Int64UpDownCounter("kiosk.process.active",
		metric.WithDescription("Pipeline processes currently running."),
	); err != nil {
		return nil, err
	}
	if met.PresenceEvents, err = m.Int64Counter("kiosk.presence.events",
		metric.WithDescription("Debounced presence transitions."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("kiosk.presence.frames",
		metric.WithDescription("Detector frames observed."),
	); err != nil {
		return nil, err
	}
	if met.ClassifyRequests, err = m.Int64Counter("kiosk.classify.requests",
		metric.WithDescription("Classification requests by status."),
	); err != nil {
		return nil, err
	}
	if met.ClassifyDuration, err = m.Float64Histogram("kiosk.classify.duration",
		metric.WithDescription("Latency of feature extraction and prediction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("kiosk.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

func (m *Metrics) RecordProcessStart(ctx context.Context, name string) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("proc", name))
	m.ProcessStarts.Add(ctx, 1, attrs)
	m.ActiveProcesses.Add(ctx, 1, attrs)
}

func (m *Metrics) RecordProcessStop(ctx context.Context, name, how string) {
	if m == nil {
		return
	}
	m.ProcessStops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("proc", name),
		attribute.String("how", how),
	))
	m.ActiveProcesses.Add(ctx, -1, metric.WithAttributes(attribute.String("proc", name)))
}

func (m *Metrics) RecordSpawnFailure(ctx context.Context, name string) {
	if m == nil {
		return
	}
	m.SpawnFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("proc", name)))
}

func (m *Metrics) RecordPresenceEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	m.PresenceEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

func (m *Metrics) RecordFrame(ctx context.Context, present bool) {
	if m == nil {
		return
	}
	m.Frames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("present", present)))
}

func (m *Metrics) RecordClassification(ctx context.Context, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.ClassifyRequests.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	if status == "success" {
		m.ClassifyDuration.Record(ctx, took.Seconds())
	}
}
