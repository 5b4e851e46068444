package observability

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// unmatchedRoute labels requests no route pattern matched, so 404 scans
// cannot blow up label cardinality.
const unmatchedRoute = "unmatched"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "calculator_console",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Requests served by the calculator front-end",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "calculator_console",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of front-end requests in seconds, including calls to the calculator service",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func observeHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = unmatchedRoute
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// InitMetrics pushes OTel instruments (calculator.*, calcclient.*) to the
// collector over OTLP/HTTP.
func InitMetrics(ctx context.Context, serviceName string) (func(context.Context) error, error) {

	exporter, err := otlpmetrichttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter),
		),
	)

	otel.SetMeterProvider(provider)

	return provider.Shutdown, nil
}

// PrometheusHandler serves the default registry: the front-end HTTP
// metrics plus the process and Go runtime collectors.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}
