package anonapi

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("explorer.anonapi")
	meter  = otel.Meter("explorer.anonapi")
)

var (
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	queryDuration   metric.Float64Histogram
	queryTotal      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		requestDuration, err = meter.Float64Histogram(
			"anonapi_request_duration_seconds",
			metric.WithDescription("Duration of requests to the anonymized query service"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		requestTotal, err = meter.Int64Counter(
			"anonapi_requests_total",
			metric.WithDescription("Requests to the anonymized query service"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryDuration, err = meter.Float64Histogram(
			"anonapi_query_duration_seconds",
			metric.WithDescription("Time from submission to completion of a query"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"anonapi_queries_total",
			metric.WithDescription("Queries executed, by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRequest(ctx context.Context, method, endpoint string, status int, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("endpoint", endpoint),
		attribute.Int("status", status),
	)
	requestDuration.Record(ctx, d.Seconds(), attrs)
	requestTotal.Add(ctx, 1, attrs)
}

func recordQuery(ctx context.Context, outcome string, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	queryDuration.Record(ctx, d.Seconds(), attrs)
	queryTotal.Add(ctx, 1, attrs)
}
