package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// metrics holds the engine's pipeline instruments. Instrument creation
// failures are logged, never fatal — a broken meter must not take the
// pipeline down with it.
type metrics struct {
	meter       metric.Meter
	logger      *zap.Logger
	requests    metric.Int64Counter
	requestDur  metric.Float64Histogram
	degradation metric.Int64Counter
}

func newMetrics(logger *zap.Logger) *metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}

	var err error
	m.requests, err = m.meter.Int64Counter(
		"discoveryd.engine.requests_total",
		metric.WithDescription("Completed pipeline requests labeled by search type (semantic, fallback)."),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		logger.Warn("failed to create requests counter", zap.Error(err))
	}

	m.requestDur, err = m.meter.Float64Histogram(
		"discoveryd.engine.request_duration_seconds",
		metric.WithDescription("Whole-pipeline request duration in seconds, labeled by search type."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.degradation, err = m.meter.Int64Counter(
		"discoveryd.engine.degradations_total",
		metric.WithDescription("Graceful degradation events labeled by pipeline stage (expanding, retrieving, reranking)."),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		logger.Warn("failed to create degradation counter", zap.Error(err))
	}

	return m
}

func (m *metrics) observeRequest(ctx context.Context, searchType string, dur time.Duration) {
	attrs := metric.WithAttributes(attribute.String("search_type", searchType))
	if m.requests != nil {
		m.requests.Add(ctx, 1, attrs)
	}
	if m.requestDur != nil {
		m.requestDur.Record(ctx, dur.Seconds(), attrs)
	}
}

func (m *metrics) degraded(ctx context.Context, stage string) {
	if m.degradation != nil {
		m.degradation.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}
