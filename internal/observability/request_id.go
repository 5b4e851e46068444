package observability

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID on inbound requests, on
// responses and on calls to the calculator service.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

func NewRequestID() string {
	return uuid.New().String()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request ID in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// inboundRequestID returns the caller's request ID when it is a UUID.
func inboundRequestID(h http.Header) (string, bool) {
	id := h.Get(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		return "", false
	}
	return id, true
}

// PropagateRequestID copies the request ID in ctx, if any, onto an
// outbound request.
func PropagateRequestID(ctx context.Context, req *http.Request) {
	if id := RequestIDFromContext(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
}
