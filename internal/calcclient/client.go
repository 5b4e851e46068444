// Package calcclient talks to the remote calculator service over HTTP.
package calcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"calculator-console/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultBaseURL is where the calculator service listens in local setups.
const DefaultBaseURL = "http://localhost:8089"

var tracer = otel.Tracer("calcclient")

// ErrUnavailable wraps every failure that produced no usable response:
// the service was unreachable or answered with a body that is not the
// expected JSON.
var ErrUnavailable = errors.New("calculator service unavailable")

// RemoteError is a non-2xx response from the calculator service.
type RemoteError struct {
	Status int
	// Detail is the "detail" string of the error body, or "" when the
	// body carried none.
	Detail string
}

func (e *RemoteError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("calculator service returned %d", e.Status)
	}
	return fmt.Sprintf("calculator service returned %d: %s", e.Status, e.Detail)
}

// Query is anything that renders as a URL query string. Both url.Values
// and calculator.HistoryQuery satisfy it.
type Query interface {
	Encode() string
}

// Entry is one history record as returned on the wire.
type Entry struct {
	Numbers   []float64 `json:"numbers"`
	Operation string    `json:"operation"`
	Result    float64   `json:"result"`
	Date      string    `json:"date"`
}

// BatchItem is one operation of a batch request.
type BatchItem struct {
	Op   string    `json:"op"`
	Nums []float64 `json:"nums"`
}

// BatchResult is the outcome of one batch item. Exactly one of Result
// and Error is set.
type BatchResult struct {
	Op     string   `json:"op"`
	Result *float64 `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// Client is a calculator service client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	history    singleflight.Group
	// writes counts successful calls that may have changed the stored
	// history. History requests only merge within one generation.
	writes atomic.Uint64
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New returns a client for the service at baseURL. A zero timeout means
// requests wait until their context is done.
func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the service address the client targets.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Calculate runs GET /calculator/{operation}?a=..&a=.. and returns the
// "result" field.
func (c *Client) Calculate(ctx context.Context, operation string, operands Query) (float64, error) {
	endpoint := c.baseURL + "/calculator/" + url.PathEscape(operation)
	if q := operands.Encode(); q != "" {
		endpoint += "?" + q
	}

	var resp struct {
		Result *float64 `json:"result"`
	}
	if err := c.do(ctx, operation, http.MethodGet, endpoint, nil, &resp); err != nil {
		return 0, err
	}
	if resp.Result == nil {
		return 0, fmt.Errorf("%w: response has no result", ErrUnavailable)
	}
	c.writes.Add(1)
	return *resp.Result, nil
}

// History runs GET /calculator/history. Identical queries already in
// flight share one upstream request, unless a Calculate or Batch call
// succeeded since that request was sent. The returned slice must be
// treated as read-only.
//
// The shared request is detached from the cancellation of the caller
// that started it; each caller stops waiting when its own ctx is done.
func (c *Client) History(ctx context.Context, query Query) ([]Entry, error) {
	raw := query.Encode()
	endpoint := c.baseURL + "/calculator/history"
	if raw != "" {
		endpoint += "?" + raw
	}
	key := raw + "#" + strconv.FormatUint(c.writes.Load(), 10)

	flightCtx := context.WithoutCancel(ctx)
	ch := c.history.DoChan(key, func() (any, error) {
		var resp struct {
			History []Entry `json:"history"`
		}
		if err := c.do(flightCtx, "history", http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, err
		}
		if resp.History == nil {
			return []Entry{}, nil
		}
		return resp.History, nil
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, ctx.Err())
	case res := <-ch:
		if res.Shared {
			observability.LoggerWithTrace(ctx).Debug("history request shared",
				zap.String("query", raw),
			)
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]Entry), nil
	}
}

// Batch runs POST /calculator/batch_operations. The service evaluates
// each item independently and does not record them in history.
func (c *Client) Batch(ctx context.Context, items []BatchItem) ([]BatchResult, error) {
	body, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encoding batch: %w", err)
	}

	var results []BatchResult
	if err := c.do(ctx, "batch", http.MethodPost, c.baseURL+"/calculator/batch_operations", body, &results); err != nil {
		return nil, err
	}
	c.writes.Add(1)
	return results, nil
}

func (c *Client) do(ctx context.Context, opName, method, endpoint string, body []byte, out any) (err error) {
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "calcclient."+opName,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("calculator.operation", opName),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	start := time.Now()
	status := 0
	defer func() {
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		attrs := metric.WithAttributes(
			attribute.String("operation", opName),
			attribute.Int("status", status),
		)
		requestCounter.Add(ctx, 1, attrs)
		requestHistogram.Record(ctx, elapsed, attrs)

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Warn("calculator service call failed",
				zap.String("operation", opName),
				zap.Int("status", status),
				zap.Error(err),
				zap.String("request_id", requestID),
				zap.Float64("duration_ms", elapsed),
			)
			return
		}
		span.SetStatus(codes.Ok, "")
		logger.Debug("calculator service call completed",
			zap.String("operation", opName),
			zap.Int("status", status),
			zap.String("request_id", requestID),
			zap.Float64("duration_ms", elapsed),
		)
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	observability.PropagateRequestID(ctx, req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	status = resp.StatusCode
	span.SetAttributes(attribute.Int("http.response.status_code", status))

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %w", ErrUnavailable, err)
	}

	if status < 200 || status > 299 {
		return &RemoteError{Status: status, Detail: errorDetail(payload)}
	}

	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: decoding response: %w", ErrUnavailable, err)
	}
	return nil
}

// errorDetail extracts a string "detail" field from an error body.
// Structured details (e.g. validation error lists) and non-JSON bodies
// yield "".
func errorDetail(payload []byte) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || len(body.Detail) == 0 {
		return ""
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil {
		return ""
	}
	return detail
}
