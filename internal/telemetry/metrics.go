package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/mohammad-safakhou/tickerscope/internal/executor"
)

var (
	metricsOnce    sync.Once
	tasksTotal     otelmetric.Int64Counter
	taskDuration   otelmetric.Float64Histogram
	runsTotal      otelmetric.Int64Counter
	fallbacksTotal otelmetric.Int64Counter
)

// The global meter delegates to whatever provider Setup installs later.
func initMetrics() {
	meter := otel.Meter("tickerscope")
	var err error
	tasksTotal, err = meter.Int64Counter(
		"tickerscope_tasks_total",
		otelmetric.WithDescription("Indicator tasks executed, by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	taskDuration, err = meter.Float64Histogram(
		"tickerscope_task_duration_seconds",
		otelmetric.WithDescription("Wall time of a single indicator task"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		otel.Handle(err)
	}
	runsTotal, err = meter.Int64Counter(
		"tickerscope_runs_total",
		otelmetric.WithDescription("Completed orchestration runs"),
	)
	if err != nil {
		otel.Handle(err)
	}
	fallbacksTotal, err = meter.Int64Counter(
		"tickerscope_fallbacks_total",
		otelmetric.WithDescription("Deterministic fallbacks taken, by component"),
	)
	if err != nil {
		otel.Handle(err)
	}
}

// ExecutorMetrics adapts the task instruments to executor callbacks.
func ExecutorMetrics() executor.Metrics {
	metricsOnce.Do(initMetrics)
	return executor.Metrics{
		Duration: func(ctx context.Context, indicator string, d time.Duration) {
			if taskDuration != nil {
				taskDuration.Record(ctx, d.Seconds(), otelmetric.WithAttributes(attribute.String("indicator", indicator)))
			}
		},
		Outcome: func(ctx context.Context, indicator, outcome string) {
			if tasksTotal != nil {
				tasksTotal.Add(ctx, 1, otelmetric.WithAttributes(
					attribute.String("indicator", indicator),
					attribute.String("outcome", outcome),
				))
			}
		},
	}
}

// RecordRun counts a completed run.
func RecordRun(ctx context.Context, mode, planSource, summaryMethod string) {
	metricsOnce.Do(initMetrics)
	if runsTotal == nil {
		return
	}
	runsTotal.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("plan_source", planSource),
		attribute.String("summary_method", summaryMethod),
	))
}

// RecordFallback counts a fallback taken by component (planner, summarizer, market).
func RecordFallback(ctx context.Context, component string) {
	metricsOnce.Do(initMetrics)
	if fallbacksTotal == nil {
		return
	}
	fallbacksTotal.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("component", component)))
}
