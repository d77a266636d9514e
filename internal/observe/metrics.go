// Package observe holds the OpenTelemetry instruments for the voice pipeline
// and the Prometheus bridge that exposes them on /metrics.
//
// Components default to [DefaultMetrics], which records against the global
// meter provider. Until [InitProvider] runs that provider is a no-op, so
// tests and tools that never initialise metrics pay nothing.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "telly"

// Metrics holds every instrument the pipeline records into.
type Metrics struct {
	// FramesCaptured counts raw blocks read from the audio source.
	FramesCaptured metric.Int64Counter

	// QueueBacklog tracks frames waiting between capture and processing.
	QueueBacklog metric.Int64UpDownCounter

	// WakeDetections counts wake transitions. Use with attribute:
	//   attribute.String("source", "phrase"|"trigger")
	WakeDetections metric.Int64Counter

	// Transcripts counts finalized command transcripts. Use with attribute:
	//   attribute.String("outcome", "dispatched"|"injected"|"timeout")
	Transcripts metric.Int64Counter

	// Dispatches counts dispatcher results by kind.
	Dispatches metric.Int64Counter

	// Routes counts fallback route decisions.
	Routes metric.Int64Counter

	// Deliveries counts payloads handed to the sink by status.
	Deliveries metric.Int64Counter

	// CompletionDuration tracks completion request latency by endpoint.
	CompletionDuration metric.Float64Histogram

	// CompletionErrors counts failed or unusable completions. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.String("reason", ...)
	CompletionErrors metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 10,
}

func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesCaptured, err = m.Int64Counter("telly.audio.frames",
		metric.WithDescription("Raw audio blocks read from the capture source."),
	); err != nil {
		return nil, err
	}
	if met.QueueBacklog, err = m.Int64UpDownCounter("telly.audio.backlog",
		metric.WithDescription("Frames queued between capture and processing."),
	); err != nil {
		return nil, err
	}
	if met.WakeDetections, err = m.Int64Counter("telly.wake.detections",
		metric.WithDescription("Transitions into command listening."),
	); err != nil {
		return nil, err
	}
	if met.Transcripts, err = m.Int64Counter("telly.transcripts",
		metric.WithDescription("Command listening windows by outcome."),
	); err != nil {
		return nil, err
	}
	if met.Dispatches, err = m.Int64Counter("telly.dispatch.results",
		metric.WithDescription("Dispatcher results by kind."),
	); err != nil {
		return nil, err
	}
	if met.Routes, err = m.Int64Counter("telly.dispatch.routes",
		metric.WithDescription("Fallback route decisions."),
	); err != nil {
		return nil, err
	}
	if met.Deliveries, err = m.Int64Counter("telly.sink.deliveries",
		metric.WithDescription("Payload deliveries by status."),
	); err != nil {
		return nil, err
	}
	if met.CompletionDuration, err = m.Float64Histogram("telly.completion.duration",
		metric.WithDescription("Latency of completion requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CompletionErrors, err = m.Int64Counter("telly.completion.errors",
		metric.WithDescription("Completion requests that produced nothing usable."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global meter
// provider. Call it after InitProvider so the instruments bind to the real
// provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) RecordWake(ctx context.Context, source string) {
	m.WakeDetections.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordDispatch(ctx context.Context, kind string) {
	m.Dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) RecordRoute(ctx context.Context, route string) {
	m.Routes.Add(ctx, 1, metric.WithAttributes(attribute.String("route", route)))
}

func (m *Metrics) RecordDelivery(ctx context.Context, device, status string) {
	m.Deliveries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device", device),
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordCompletion(ctx context.Context, endpoint string, d time.Duration) {
	m.CompletionDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("endpoint", endpoint)))
}

func (m *Metrics) RecordCompletionError(ctx context.Context, endpoint, reason string) {
	m.CompletionErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", endpoint),
		attribute.String("reason", reason),
	))
}
