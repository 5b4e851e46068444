package main

import (
	"context"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/calculator"
	"calculator-console/internal/config"
	"calculator-console/internal/observability"
)

// initTelemetry starts the exporters selected in cfg and creates the
// instruments of every package that records metrics.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	shutdown, err := observability.SetupTelemetry(ctx, observability.TelemetryOptions{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
		ExportLogs:  cfg.Telemetry.ExportLogs,
	})
	if err != nil {
		return nil, err
	}

	if err := calculator.InitMetrics(); err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	if err := calcclient.InitMetrics(); err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	return shutdown, nil
}
