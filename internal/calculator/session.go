package calculator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// tracer is the calculator's dedicated OpenTelemetry tracer.
var tracer = otel.Tracer("calculator")

// Messages shown to the user.
const (
	MsgNoNumbers        = "Please enter at least one number."
	MsgRequestFailed    = "The request failed."
	MsgConnectFailed    = "Could not connect to the server."
	MsgHistoryFailed    = "Could not fetch history."
	MsgUnknownOperation = "Unknown operation."
)

// ErrNoNumbers is returned when the input holds no parseable number.
var ErrNoNumbers = errors.New("at least one number required")

// Remote is the calculator service as seen by a Session.
type Remote interface {
	Calculate(ctx context.Context, operation string, operands calcclient.Query) (float64, error)
	History(ctx context.Context, query calcclient.Query) ([]calcclient.Entry, error)
}

// Session owns the state of one calculator page: the input text, the
// last result, the error message, the filter selection, and the history
// snapshot. State only changes through the action methods, which may be
// called from several goroutines. Remote calls run outside the lock.
//
// Responses are applied by ticket: every operation and every history
// fetch takes a ticket when issued, and its response is dropped if a
// response to a later-issued request has already been applied.
type Session struct {
	remote Remote

	mu      sync.Mutex
	input   string
	result  *float64
	errMsg  string
	filters Filters
	history []HistoryEntry

	opIssued, opApplied     uint64
	histIssued, histApplied uint64
}

// NewSession returns a session with default filters and empty history.
// Call Init to load the first history snapshot.
func NewSession(remote Remote) *Session {
	return &Session{
		remote:  remote,
		filters: DefaultFilters(),
		history: []HistoryEntry{},
	}
}

// Init performs the initial history fetch.
func (s *Session) Init(ctx context.Context) error {
	return s.FetchHistory(ctx)
}

// SetInput replaces the free-text number input.
func (s *Session) SetInput(text string) {
	s.mu.Lock()
	s.input = text
	s.mu.Unlock()
}

// View returns a copy of the current state.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Input:   s.input,
		Error:   s.errMsg,
		Filters: s.filters,
		History: make([]HistoryEntry, len(s.history)),
	}
	if s.result != nil {
		r := *s.result
		v.Result = &r
	}
	for i, e := range s.history {
		e.Numbers = slices.Clone(e.Numbers)
		v.History[i] = e
	}
	return v
}

// Filters returns the current filter selection.
func (s *Session) Filters() Filters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filters
}

// PerformOperation parses the current input and asks the remote service
// to apply op to it. On success the result is stored and the history is
// refreshed; on failure only the error message changes. The returned
// error mirrors what was shown to the user.
func (s *Session) PerformOperation(ctx context.Context, op Operation) error {
	logger := observability.LoggerWithTrace(ctx)
	requestID := observability.RequestIDFromContext(ctx)

	ctx, span := tracer.Start(ctx, "calculator.perform_operation",
		trace.WithAttributes(
			attribute.String("calculator.operation", string(op)),
			attribute.String("request.id", requestID),
		),
	)
	defer span.End()

	s.mu.Lock()
	s.opIssued++
	ticket := s.opIssued
	s.errMsg = ""
	s.result = nil
	input := s.input
	s.mu.Unlock()

	if !op.Valid() {
		err := fmt.Errorf("%w: %q", ErrUnknownOperation, op)
		s.failOperation(ctx, span, logger, ticket, op, MsgUnknownOperation, err)
		return err
	}

	numbers := ParseNumbers(input)
	if len(numbers) == 0 {
		s.failOperation(ctx, span, logger, ticket, op, MsgNoNumbers, ErrNoNumbers)
		return ErrNoNumbers
	}

	span.SetAttributes(attribute.Int("calculator.operands", len(numbers)))

	start := time.Now()
	result, err := s.remote.Calculate(ctx, string(op), OperandQuery(numbers))
	if err != nil {
		s.failOperation(ctx, span, logger, ticket, op, OperationMessage(err), err)
		return err
	}

	s.mu.Lock()
	applied := ticket > s.opApplied
	if applied {
		s.opApplied = ticket
		s.result = &result
		s.errMsg = ""
	}
	s.mu.Unlock()

	attrs := metric.WithAttributes(attribute.String("operation", string(op)))
	opsCounter.Add(ctx, 1, attrs)
	resultGauge.Record(ctx, result, attrs)

	span.AddEvent("computation.complete", trace.WithAttributes(
		attribute.Float64("result", result),
		attribute.Bool("applied", applied),
	))
	span.SetAttributes(attribute.Float64("calculator.result", result))
	span.SetStatus(codes.Ok, "")

	logger.Info("calculator operation completed",
		zap.String("operation", string(op)),
		zap.Float64s("numbers", numbers),
		zap.Float64("result", result),
		zap.Bool("applied", applied),
		zap.String("request_id", requestID),
	)

	// History is only refreshed once the operation is known to have
	// succeeded. A refresh failure is reported through the error message
	// and does not fail the operation.
	_ = s.FetchHistory(ctx)

	opsHistogram.Record(ctx, float64(time.Since(start).Microseconds())/1000.0, attrs)
	return nil
}

func (s *Session) failOperation(ctx context.Context, span trace.Span, logger *zap.Logger, ticket uint64, op Operation, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", string(op))))

	s.mu.Lock()
	if ticket > s.opApplied {
		s.opApplied = ticket
		s.errMsg = msg
	}
	s.mu.Unlock()

	logger.Warn(msg,
		zap.String("operation", string(op)),
		zap.Error(err),
		zap.String("request_id", observability.RequestIDFromContext(ctx)),
	)
}

// OperationMessage maps a remote failure to the message shown to the user.
func OperationMessage(err error) string {
	var remoteErr *calcclient.RemoteError
	if errors.As(err, &remoteErr) {
		if remoteErr.Detail != "" {
			return remoteErr.Detail
		}
		return MsgRequestFailed
	}
	return MsgConnectFailed
}

// FetchHistory replaces the history snapshot with the entries matching
// the current filters. On failure the previous snapshot is kept and the
// error message is set.
func (s *Session) FetchHistory(ctx context.Context) error {
	logger := observability.LoggerWithTrace(ctx)

	s.mu.Lock()
	s.histIssued++
	ticket := s.histIssued
	query := NewHistoryQuery(s.filters)
	s.mu.Unlock()

	ctx, span := tracer.Start(ctx, "calculator.fetch_history",
		trace.WithAttributes(attribute.String("calculator.history.query", query.Encode())),
	)
	defer span.End()

	entries, err := s.remote.History(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, MsgHistoryFailed)
		historyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "error")))
		errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", "history")))

		s.mu.Lock()
		stale := ticket <= s.histApplied
		if !stale {
			s.errMsg = MsgHistoryFailed
		}
		s.mu.Unlock()

		logger.Warn("history fetch failed",
			zap.String("query", query.Encode()),
			zap.Bool("stale", stale),
			zap.Error(err),
		)
		return fmt.Errorf("fetching history: %w", err)
	}

	history := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		history = append(history, toHistoryEntry(e))
	}

	s.mu.Lock()
	stale := ticket <= s.histApplied
	if !stale {
		s.histApplied = ticket
		s.history = history
	}
	s.mu.Unlock()

	historyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "ok")))
	span.SetAttributes(
		attribute.Int("calculator.history.entries", len(history)),
		attribute.Bool("calculator.history.stale", stale),
	)
	span.SetStatus(codes.Ok, "")

	logger.Debug("history fetched",
		zap.String("query", query.Encode()),
		zap.Int("entries", len(history)),
		zap.Bool("stale", stale),
	)
	return nil
}

// SetOperationFilter filters history by op, or clears the filter for
// AllOperations.
func (s *Session) SetOperationFilter(ctx context.Context, op Operation) error {
	return s.updateFilters(ctx, func(f *Filters) { f.Operation = op })
}

// SetDateFilter filters history to one day (YYYY-MM-DD); "" clears it.
func (s *Session) SetDateFilter(ctx context.Context, date string) error {
	return s.updateFilters(ctx, func(f *Filters) { f.Date = date })
}

func (s *Session) SetSortBy(ctx context.Context, key SortKey) error {
	return s.updateFilters(ctx, func(f *Filters) { f.SortBy = key })
}

func (s *Session) SetSortOrder(ctx context.Context, order SortOrder) error {
	return s.updateFilters(ctx, func(f *Filters) { f.SortOrder = order })
}

// ApplyFilters replaces the whole selection at once. History is fetched
// once if anything changed.
func (s *Session) ApplyFilters(ctx context.Context, next Filters) error {
	return s.updateFilters(ctx, func(f *Filters) { *f = next })
}

func (s *Session) updateFilters(ctx context.Context, mutate func(*Filters)) error {
	s.mu.Lock()
	next := s.filters
	mutate(&next)
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	if next == s.filters {
		s.mu.Unlock()
		return nil
	}
	s.filters = next
	s.mu.Unlock()

	return s.FetchHistory(ctx)
}

// historyDateLayouts are tried in order. The service may drop the UTC
// offset when records round-trip through its store.
var historyDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

func toHistoryEntry(e calcclient.Entry) HistoryEntry {
	entry := HistoryEntry{
		Numbers:   slices.Clone(e.Numbers),
		Operation: Operation(e.Operation),
		Result:    e.Result,
	}
	for _, layout := range historyDateLayouts {
		if t, err := time.Parse(layout, e.Date); err == nil {
			entry.Date = t
			break
		}
	}
	return entry
}
