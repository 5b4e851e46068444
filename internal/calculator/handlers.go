package calculator

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"calculator-console/internal/handlers"
	"calculator-console/internal/observability"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// Handler serves the calculator page and its form actions for one
// Session.
type Handler struct {
	session *Session
	page    *template.Template
}

// NewHandler parses the page template. loc is the zone history
// timestamps are shown in; nil means the server's local zone.
func NewHandler(session *Session, loc *time.Location) (*Handler, error) {
	if loc == nil {
		loc = time.Local
	}

	funcs := template.FuncMap{
		"symbol":     SymbolFor,
		"number":     FormatNumber,
		"expression": FormatExpression,
		"timestamp":  func(e HistoryEntry) string { return FormatTimestamp(e, loc) },
	}

	page, err := template.New("index.html").Funcs(funcs).ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}

	return &Handler{session: session, page: page}, nil
}

// pageData is what the page template renders.
type pageData struct {
	View
	Operations []Operation
}

// Page handles GET /
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	data := pageData{View: h.session.View(), Operations: Operations}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.page.Execute(w, data); err != nil {
		observability.LoggerWithTrace(ctx).Error("rendering page",
			zap.Error(err),
			zap.String("request_id", observability.RequestIDFromContext(ctx)),
		)
	}
}

// Calculate handles POST /calculate/{operation}, the operation buttons.
// Outcome is shown on the page, so every known operation redirects back.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	op, ok := operationParam(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		observability.RecordError(ctx, w, errorCounter, observability.HTTPError{
			Status: http.StatusBadRequest, Message: "invalid form", Operation: string(op), Err: err,
		})
		return
	}

	h.session.SetInput(r.PostFormValue("numbers"))
	_ = h.session.PerformOperation(ctx, op)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// operationParam reads the {operation} URL parameter. Unknown operations
// are answered with 404 and ok is false.
func operationParam(w http.ResponseWriter, r *http.Request) (op Operation, ok bool) {
	op, err := ParseOperation(chi.URLParam(r, "operation"))
	if err != nil {
		observability.RecordError(r.Context(), w, errorCounter, observability.HTTPError{
			Status: http.StatusNotFound, Message: "unknown operation", Operation: "calculate", Err: err,
		})
		return "", false
	}
	return op, true
}

// Filters handles POST /history/filters, the filter and sort controls.
func (h *Handler) Filters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := r.ParseForm(); err != nil {
		observability.RecordError(ctx, w, errorCounter, observability.HTTPError{
			Status: http.StatusBadRequest, Message: "invalid form", Operation: "history", Err: err,
		})
		return
	}

	next, err := filtersFromForm(r, h.session.Filters())
	if err != nil {
		observability.RecordError(ctx, w, errorCounter, observability.HTTPError{
			Status: http.StatusBadRequest, Message: "invalid history filter", Operation: "history", Err: err,
		})
		return
	}

	trace.SpanFromContext(ctx).SetAttributes(attribute.String("calculator.history.query", NewHistoryQuery(next).Encode()))
	_ = h.session.ApplyFilters(ctx, next)

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// filtersFromForm overlays the submitted fields on current. Fields that
// were not submitted keep their current value; an empty date clears the
// date filter.
func filtersFromForm(r *http.Request, current Filters) (Filters, error) {
	next := current

	if _, ok := r.PostForm["operation"]; ok {
		op, err := ParseOperationFilter(r.PostFormValue("operation"))
		if err != nil {
			return Filters{}, err
		}
		next.Operation = op
	}
	if _, ok := r.PostForm["date"]; ok {
		date, err := ParseDateFilter(r.PostFormValue("date"))
		if err != nil {
			return Filters{}, err
		}
		next.Date = date
	}
	if _, ok := r.PostForm["sort_by"]; ok {
		key, err := ParseSortKey(r.PostFormValue("sort_by"))
		if err != nil {
			return Filters{}, err
		}
		next.SortBy = key
	}
	if _, ok := r.PostForm["sort_order"]; ok {
		order, err := ParseSortOrder(r.PostFormValue("sort_order"))
		if err != nil {
			return Filters{}, err
		}
		next.SortOrder = order
	}

	return next, nil
}

// State handles GET /api/state
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, h.session.View())
}

// CalculateRequest is the JSON body of POST /api/calculate/{operation}.
type CalculateRequest struct {
	Numbers string `json:"numbers"` // comma-separated, e.g. "2, 4, 5"
}

// CalculateJSON handles POST /api/calculate/{operation}. It answers with
// the resulting View, or with the error message and a status that tells
// validation (400) and upstream (502) failures apart.
func (h *Handler) CalculateJSON(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	op, ok := operationParam(w, r)
	if !ok {
		return
	}

	var req CalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		observability.RecordError(ctx, w, errorCounter, observability.HTTPError{
			Status: http.StatusBadRequest, Message: "invalid request body", Operation: string(op), Err: err,
		})
		return
	}

	h.session.SetInput(req.Numbers)
	if err := h.session.PerformOperation(ctx, op); err != nil {
		status, msg := http.StatusBadGateway, OperationMessage(err)
		if errors.Is(err, ErrNoNumbers) {
			status, msg = http.StatusBadRequest, MsgNoNumbers
		}
		handlers.WriteError(w, status, msg)
		return
	}

	handlers.WriteJSON(w, http.StatusOK, h.session.View())
}
