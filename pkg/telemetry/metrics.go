package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Operation outcomes recorded on fetch/store metrics.
const (
	OutcomeHit          = "hit"
	OutcomeNotFound     = "notfound"
	OutcomeNoConversion = "noconversion"
	OutcomeError        = "error"
	OutcomeStored       = "stored"
	OutcomeNoop         = "noop"
)

var (
	metricsOnce      sync.Once
	metricsInitErr   error
	fetchCounter     metric.Int64Counter
	storeCounter     metric.Int64Counter
	fetchLatency     metric.Float64Histogram
	conversionSteps  metric.Int64Histogram
)

// FetchMetrics captures the fields recorded for one top-level get operation.
type FetchMetrics struct {
	Type     string
	Outcome  string
	Duration time.Duration
	// Handlers is how many source handlers were tried before the outcome.
	Handlers int
	// ChainSteps is the length of the winning conversion chain, if any.
	ChainSteps int
}

// StoreMetrics captures the fields recorded for one top-level put operation.
type StoreMetrics struct {
	Type     string
	Outcome  string
	Duration time.Duration
	// Sinks is how many sink handlers received the write.
	Sinks int
}

// RecordFetch emits the counters and histograms describing a get operation.
func RecordFetch(ctx context.Context, m FetchMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.type", m.Type),
		attribute.String("pipeline.outcome", m.Outcome),
	}
	fetchCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	if m.Duration > 0 {
		fetchLatency.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if m.ChainSteps > 0 {
		conversionSteps.Record(ctx, int64(m.ChainSteps), metric.WithAttributes(attrs...))
	}
}

// RecordStore emits the counters describing a put operation.
func RecordStore(ctx context.Context, m StoreMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("pipeline.type", m.Type),
		attribute.String("pipeline.outcome", m.Outcome),
		attribute.Int("pipeline.sinks", m.Sinks),
	}
	storeCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("meshpipe.pipeline")

		fetchCounter, metricsInitErr = meter.Int64Counter(
			"meshpipe.fetch_total",
			metric.WithDescription("Top-level get operations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		storeCounter, metricsInitErr = meter.Int64Counter(
			"meshpipe.store_total",
			metric.WithDescription("Top-level put operations partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		fetchLatency, metricsInitErr = meter.Float64Histogram(
			"meshpipe.fetch_duration_ms",
			metric.WithDescription("Observed latency of top-level get operations"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		conversionSteps, metricsInitErr = meter.Int64Histogram(
			"meshpipe.conversion_steps",
			metric.WithDescription("Length of the conversion chain applied to returned values"),
			metric.WithUnit("{step}"),
		)
	})

	return metricsInitErr
}
