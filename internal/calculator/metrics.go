package calculator

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric instruments. They stay no-ops until InitMetrics runs so that
// sessions work without a meter provider (CLI, tests).
var (
	opsCounter     metric.Int64Counter     = noop.Int64Counter{}
	opsHistogram   metric.Float64Histogram = noop.Float64Histogram{}
	errorCounter   metric.Int64Counter     = noop.Int64Counter{}
	historyCounter metric.Int64Counter     = noop.Int64Counter{}
	resultGauge    metric.Float64Gauge     = noop.Float64Gauge{}
)

// InitMetrics registers custom OTel metric instruments for the calculator domain.
// Call this once at startup (after observability.InitMetrics).
func InitMetrics() error {
	meter := otel.Meter("calculator")

	var err error

	opsCounter, err = meter.Int64Counter("calculator.operations.total",
		metric.WithDescription("Total number of calculator operations that returned a result"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return fmt.Errorf("creating ops counter: %w", err)
	}

	opsHistogram, err = meter.Float64Histogram("calculator.operation.duration",
		metric.WithDescription("Duration of calculator operations, including the history refresh, in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 50, 100, 500, 1000, 5000),
	)
	if err != nil {
		return fmt.Errorf("creating ops histogram: %w", err)
	}

	errorCounter, err = meter.Int64Counter("calculator.errors.total",
		metric.WithDescription("Total number of errors shown to the user"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return fmt.Errorf("creating error counter: %w", err)
	}

	historyCounter, err = meter.Int64Counter("calculator.history.fetches.total",
		metric.WithDescription("Total number of history fetches, by outcome"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return fmt.Errorf("creating history counter: %w", err)
	}

	resultGauge, err = meter.Float64Gauge("calculator.last_result",
		metric.WithDescription("The result of the last calculator operation"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("creating result gauge: %w", err)
	}

	return nil
}
