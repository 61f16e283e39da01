package explorer

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	tracer = otel.Tracer("explorer")
	meter  = otel.Meter("explorer")
)

var (
	componentLatency   metric.Float64Histogram
	componentTotal     metric.Int64Counter
	explorationTotal   metric.Int64Counter
	activeExplorations metric.Int64UpDownCounter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		componentLatency, err = meter.Float64Histogram(
			"explorer_component_duration_seconds",
			metric.WithDescription("Time spent computing a component"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		componentTotal, err = meter.Int64Counter(
			"explorer_component_total",
			metric.WithDescription("Component executions by kind and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		explorationTotal, err = meter.Int64Counter(
			"explorer_explorations_total",
			metric.WithDescription("Finished explorations by status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		activeExplorations, err = meter.Int64UpDownCounter(
			"explorer_active_explorations",
			metric.WithDescription("Explorations currently processing"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordComponent(ctx context.Context, kind, name string, success bool, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("component", name),
		attribute.Bool("success", success),
	)
	componentLatency.Record(ctx, d.Seconds(), attrs)
	componentTotal.Add(ctx, 1, attrs)
}

func recordExplorationStarted(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	activeExplorations.Add(ctx, 1)
}

func recordExplorationFinished(ctx context.Context, status Status) {
	if err := initMetrics(); err != nil {
		return
	}
	activeExplorations.Add(ctx, -1)
	explorationTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}
