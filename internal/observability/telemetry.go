package observability

import (
	"context"
	"errors"
	"os"
)

// TelemetryOptions selects which OTLP pipelines to start.
type TelemetryOptions struct {
	Enabled     bool
	ServiceName string
	ExportLogs  bool
}

// ServiceName returns name, falling back to OTEL_SERVICE_NAME and then to
// a fixed default.
func ServiceName(name string) string {
	if name != "" {
		return name
	}
	if env := os.Getenv("OTEL_SERVICE_NAME"); env != "" {
		return env
	}
	return "calculator-console"
}

// SetupTelemetry starts tracing, metrics and (optionally) log export and
// returns one function shutting all of them down. With telemetry
// disabled it does nothing and the global no-op providers stay in place.
func SetupTelemetry(ctx context.Context, opts TelemetryOptions) (func(context.Context) error, error) {
	var shutdowns []func(context.Context) error

	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		return errors.Join(errs...)
	}

	if !opts.Enabled {
		return shutdown, nil
	}

	name := ServiceName(opts.ServiceName)

	traceShutdown, err := InitTracing(ctx, name)
	if err != nil {
		return nil, err
	}
	shutdowns = append(shutdowns, traceShutdown)

	metricShutdown, err := InitMetrics(ctx, name)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	shutdowns = append(shutdowns, metricShutdown)

	if opts.ExportLogs {
		logShutdown, err := InitLogging(ctx, name)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		shutdowns = append(shutdowns, logShutdown)
	}

	return shutdown, nil
}
