package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// InitLogging tees Logger into an OTLP log exporter. Only records at or
// above the current Logger level are exported, so a debug-level collector
// feed requires a debug-level process.
func InitLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {

	exporter, err := otlploghttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := newResource(ctx, serviceName)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(
			sdklog.NewBatchProcessor(exporter),
		),
	)

	exportCore, err := zapcore.NewIncreaseLevelCore(
		otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(provider)),
		Logger.Level(),
	)
	if err != nil {
		_ = provider.Shutdown(ctx)
		return nil, fmt.Errorf("gating log export: %w", err)
	}

	Logger = zap.New(zapcore.NewTee(Logger.Core(), exportCore))

	return provider.Shutdown, nil
}
