package calcclient

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metric instruments. They are no-ops until InitMetrics runs.
var (
	requestCounter   metric.Int64Counter     = noop.Int64Counter{}
	requestHistogram metric.Float64Histogram = noop.Float64Histogram{}
)

// InitMetrics registers the client's OTel instruments. Call it once at
// startup, after observability.InitMetrics.
func InitMetrics() error {
	meter := otel.Meter("calcclient")

	var err error

	requestCounter, err = meter.Int64Counter("calcclient.requests.total",
		metric.WithDescription("Total number of requests sent to the calculator service"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return fmt.Errorf("creating request counter: %w", err)
	}

	requestHistogram, err = meter.Float64Histogram("calcclient.request.duration",
		metric.WithDescription("Round-trip time of calculator service requests in milliseconds"),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000),
	)
	if err != nil {
		return fmt.Errorf("creating request histogram: %w", err)
	}

	return nil
}
