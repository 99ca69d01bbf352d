// Package observe provides application-wide observability primitives for
// Aura: OpenTelemetry metrics and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Aura metrics.
const meterName = "github.com/voxelware/aura"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// RecognitionDuration tracks per-frame recognition latency (decode,
	// detection, gallery match).
	RecognitionDuration metric.Float64Histogram

	// AgentTurnDuration tracks agent response latency per routed transcript.
	AgentTurnDuration metric.Float64Histogram

	// SummaryDuration tracks background summarisation latency.
	SummaryDuration metric.Float64Histogram

	// --- Counters ---

	// FramesReceived counts frames successfully read off the camera socket.
	FramesReceived metric.Int64Counter

	// FramesDropped counts frames evicted from the recognition queue.
	FramesDropped metric.Int64Counter

	// FrameErrors counts framing/read errors on the camera socket.
	FrameErrors metric.Int64Counter

	// Switches counts committed person-switch transitions.
	Switches metric.Int64Counter

	// ToolCalls counts agent tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// ActiveClients tracks the number of connected WebSocket clients.
	ActiveClients metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) covering
// sub-frame recognition latencies up to slow LLM round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.RecognitionDuration, err = m.Float64Histogram("aura.recognition.duration",
		metric.WithDescription("Latency of per-frame face recognition."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AgentTurnDuration, err = m.Float64Histogram("aura.agent.turn.duration",
		metric.WithDescription("Latency of one agent turn per routed transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SummaryDuration, err = m.Float64Histogram("aura.summary.duration",
		metric.WithDescription("Latency of background conversation summarisation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.FramesReceived, err = m.Int64Counter("aura.frames.received",
		metric.WithDescription("Total frames read off the camera socket."),
	); err != nil {
		return nil, err
	}
	if met.FramesDropped, err = m.Int64Counter("aura.frames.dropped",
		metric.WithDescription("Total frames evicted from the recognition queue."),
	); err != nil {
		return nil, err
	}
	if met.FrameErrors, err = m.Int64Counter("aura.frames.errors",
		metric.WithDescription("Total framing and read errors on the camera socket."),
	); err != nil {
		return nil, err
	}
	if met.Switches, err = m.Int64Counter("aura.switches",
		metric.WithDescription("Total committed person-switch transitions."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("aura.tool.calls",
		metric.WithDescription("Total agent tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveClients, err = m.Int64UpDownCounter("aura.active_clients",
		metric.WithDescription("Number of connected WebSocket clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
