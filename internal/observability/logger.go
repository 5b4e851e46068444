package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide logger. It discards everything until
// InitLogger runs.
var Logger = zap.NewNop()

// InitLogger installs a production JSON logger writing at level
// ("debug", "info", "warn", "error").
func InitLogger(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}

	Logger = logger
	return nil
}

func SyncLogger() {
	_ = Logger.Sync()
}

// LoggerWithTrace returns a child logger enriched with trace_id and span_id
// fields from the active OTel span in ctx.
//
// ctx itself is attached as a zap.Any("context", ctx) field: the otelzap
// core uses any context.Context field as the Emit context, which gives
// exported OTLP log records their native TraceID/SpanID.
func LoggerWithTrace(ctx context.Context) *zap.Logger {
	span := trace.SpanContextFromContext(ctx)

	if !span.IsValid() {
		return Logger
	}

	return Logger.With(
		zap.Any("context", ctx),
		zap.String("trace_id", span.TraceID().String()),
		zap.String("span_id", span.SpanID().String()),
	)
}
