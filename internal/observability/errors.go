package observability

import (
	"context"
	"encoding/json"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// HTTPError describes a request the front-end refuses.
type HTTPError struct {
	Status    int
	Message   string // returned to the caller
	Operation string // metric and log attribute
	Err       error
}

// ErrorBody is the JSON body of every error response. The request ID
// travels in the X-Request-ID header only.
type ErrorBody struct {
	Error string `json:"error"`
}

// RecordError marks the active span as failed, counts the failure on
// counter, logs it with trace context and writes an ErrorBody. Client
// errors log at warn level, everything else at error level.
func RecordError(ctx context.Context, w http.ResponseWriter, counter metric.Int64Counter, e HTTPError) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(e.Err)
	span.SetStatus(codes.Error, e.Message)

	counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", e.Operation),
		attribute.Int("status", e.Status),
	))

	fields := []zap.Field{
		zap.String("operation", e.Operation),
		zap.Error(e.Err),
		zap.Int("status", e.Status),
		zap.String("request_id", RequestIDFromContext(ctx)),
	}
	logger := LoggerWithTrace(ctx)
	if e.Status < http.StatusInternalServerError {
		logger.Warn(e.Message, fields...)
	} else {
		logger.Error(e.Message, fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(ErrorBody{Error: e.Message})
}
