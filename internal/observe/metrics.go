// Package observe provides application-wide observability primitives for
// tabrec: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all tabrec metrics.
const meterName = "github.com/MrWong99/tabrec"

// Session outcome labels for [Metrics.SessionsFinished].
const (
	StatusSaved   = "saved"
	StatusError   = "error"
	StatusAborted = "aborted"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Pipeline ---

	// FramesProcessed counts fixed-size frames that reached the processor.
	FramesProcessed metric.Int64Counter

	// EncodeDuration tracks the time spent in one encoder call. Use with
	// attribute.String("codec", ...).
	EncodeDuration metric.Float64Histogram

	// EncodedBytes counts compressed bytes produced. Use with
	// attribute.String("codec", ...).
	EncodedBytes metric.Int64Counter

	// DroppedChunks counts capture chunks discarded because the pipeline fell
	// behind the audio thread.
	DroppedChunks metric.Int64Counter

	// --- Sessions ---

	// SessionsStarted counts recordings that reached the Recording state.
	SessionsStarted metric.Int64Counter

	// SessionsFinished counts terminal outcomes. Use with
	// attribute.String("status", StatusSaved|StatusError|StatusAborted).
	SessionsFinished metric.Int64Counter

	// FinalizeDuration tracks flush + concatenate + save latency.
	FinalizeDuration metric.Float64Histogram

	// --- Gauges ---

	// ActiveSessions is 1 while a recording is running.
	ActiveSessions metric.Int64UpDownCounter

	// MonitorClients tracks connected monitor listeners.
	MonitorClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// encodeBuckets defines histogram bucket boundaries (in seconds) for a single
// encoder call, which must finish well within one frame period.
var encodeBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
}

// finalizeBuckets covers flushing and uploading a finished recording.
var finalizeBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Pipeline.
	if met.FramesProcessed, err = m.Int64Counter("tabrec.frames.processed",
		metric.WithDescription("Total audio frames handed to the processor."),
	); err != nil {
		return nil, err
	}
	if met.EncodeDuration, err = m.Float64Histogram("tabrec.encode.duration",
		metric.WithDescription("Latency of a single encoder call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(encodeBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EncodedBytes, err = m.Int64Counter("tabrec.encoded.bytes",
		metric.WithDescription("Total compressed bytes produced by codec."),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	if met.DroppedChunks, err = m.Int64Counter("tabrec.capture.dropped_chunks",
		metric.WithDescription("Capture chunks dropped because the consumer was too slow."),
	); err != nil {
		return nil, err
	}

	// Sessions.
	if met.SessionsStarted, err = m.Int64Counter("tabrec.sessions.started",
		metric.WithDescription("Total recording sessions started."),
	); err != nil {
		return nil, err
	}
	if met.SessionsFinished, err = m.Int64Counter("tabrec.sessions.finished",
		metric.WithDescription("Total recording sessions finished by status."),
	); err != nil {
		return nil, err
	}
	if met.FinalizeDuration, err = m.Float64Histogram("tabrec.finalize.duration",
		metric.WithDescription("Latency of flushing, concatenating and saving a recording."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(finalizeBuckets...),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("tabrec.active_sessions",
		metric.WithDescription("Number of running recordings."),
	); err != nil {
		return nil, err
	}
	if met.MonitorClients, err = m.Int64UpDownCounter("tabrec.monitor.clients",
		metric.WithDescription("Number of connected monitor listeners."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("tabrec.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordEncode records one encoder call: its latency and the bytes it
// produced.
func (m *Metrics) RecordEncode(ctx context.Context, codec string, d time.Duration, n int) {
	attrs := metric.WithAttributes(attribute.String("codec", codec))
	m.EncodeDuration.Record(ctx, d.Seconds(), attrs)
	if n > 0 {
		m.EncodedBytes.Add(ctx, int64(n), attrs)
	}
}

// RecordSessionFinished records a terminal session outcome and its finalize
// latency. A zero d skips the latency sample (aborted sessions never
// finalize).
func (m *Metrics) RecordSessionFinished(ctx context.Context, status string, d time.Duration) {
	m.SessionsFinished.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
	if d > 0 {
		m.FinalizeDuration.Record(ctx, d.Seconds())
	}
}
