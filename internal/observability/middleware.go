package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

var untracedPaths = map[string]struct{}{
	"/metrics": {},
	"/health":  {},
}

func shouldTraceRequest(r *http.Request) bool {
	_, skip := untracedPaths[r.URL.Path]
	return !skip
}

// RequestIDMiddleware tags every request with an ID. A well-formed UUID
// sent by the caller is kept; anything else is replaced.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		requestID, ok := inboundRequestID(r.Header)
		if !ok {
			requestID = NewRequestID()
		}
		ctx := ContextWithRequestID(r.Context(), requestID)

		w.Header().Set(RequestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs every request once it completes and records it
// in the Prometheus HTTP metrics under its chi route pattern.
func LoggingMiddleware(next http.Handler) http.Handler {

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

		start := time.Now()

		ctx := r.Context()
		logger := LoggerWithTrace(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		// The route context is filled in by the router after this
		// middleware handed the request on.
		var route string
		if rctx := chi.RouteContext(ctx); rctx != nil {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		observeHTTPRequest(r.Method, route, status, elapsed)

		logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.String("request_id", RequestIDFromContext(ctx)),
			zap.Duration("duration", elapsed),
		)
	})
}

func TracingMiddleware(next http.Handler) http.Handler {
	return otelhttp.NewHandler(next, "http_request", otelhttp.WithFilter(shouldTraceRequest))
}
