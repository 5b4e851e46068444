package calculator

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Operation is the keyword the remote service uses to identify an
// arithmetic function. The values double as the URL path segment of
// GET /calculator/{operation} and as the history "operation" field.
type Operation string

const (
	OpAdd      Operation = "sum"
	OpSubtract Operation = "rest"
	OpDivide   Operation = "div"
	OpMultiply Operation = "mult"

	// AllOperations is the operation filter sentinel meaning "no filter".
	AllOperations Operation = "all"
)

// Operations lists the supported operations in button order.
var Operations = []Operation{OpAdd, OpSubtract, OpDivide, OpMultiply}

// Valid reports whether op is one of the four arithmetic operations.
func (op Operation) Valid() bool {
	switch op {
	case OpAdd, OpSubtract, OpDivide, OpMultiply:
		return true
	}
	return false
}

// Name returns the human-readable name of the operation.
func (op Operation) Name() string {
	switch op {
	case OpAdd:
		return "add"
	case OpSubtract:
		return "subtract"
	case OpDivide:
		return "divide"
	case OpMultiply:
		return "multiply"
	case AllOperations:
		return "all"
	}
	return string(op)
}

// SortKey selects the history field the remote service sorts by.
type SortKey string

const (
	SortByDate   SortKey = "date"
	SortByResult SortKey = "result"
)

// SortOrder selects the history sort direction.
type SortOrder string

const (
	Ascending  SortOrder = "asc"
	Descending SortOrder = "desc"
)

// DateLayout is the format of the history date filter.
const DateLayout = "2006-01-02"

var (
	ErrUnknownOperation = errors.New("unknown operation")
	ErrInvalidFilter    = errors.New("invalid history filter")
)

// ParseOperation accepts either the wire keyword ("sum") or the
// operation name ("add").
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, op := range Operations {
		if s == string(op) || s == op.Name() {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOperation, s)
}

// ParseOperationFilter is ParseOperation plus the "all" sentinel. An
// empty string means "all".
func ParseOperationFilter(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == string(AllOperations) {
		return AllOperations, nil
	}
	op, err := ParseOperation(s)
	if err != nil {
		return "", fmt.Errorf("%w: operation %q", ErrInvalidFilter, s)
	}
	return op, nil
}

func ParseSortKey(s string) (SortKey, error) {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortByDate, SortByResult:
		return k, nil
	}
	return "", fmt.Errorf("%w: sort key %q", ErrInvalidFilter, s)
}

func ParseSortOrder(s string) (SortOrder, error) {
	switch o := strings.ToLower(strings.TrimSpace(s)); o {
	case "asc", "ascending":
		return Ascending, nil
	case "desc", "descending":
		return Descending, nil
	}
	return "", fmt.Errorf("%w: sort order %q", ErrInvalidFilter, s)
}

// ParseDateFilter validates a YYYY-MM-DD date. The empty string clears
// the filter.
func ParseDateFilter(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("%w: date %q", ErrInvalidFilter, s)
	}
	return s, nil
}

// Filters is the filter/sort selection that drives history queries.
type Filters struct {
	Operation Operation `json:"operation"`
	Date      string    `json:"date,omitempty"`
	SortBy    SortKey   `json:"sort_by"`
	SortOrder SortOrder `json:"sort_order"`
}

// DefaultFilters shows every operation, newest first.
func DefaultFilters() Filters {
	return Filters{
		Operation: AllOperations,
		SortBy:    SortByDate,
		SortOrder: Descending,
	}
}

// Validate checks that every field of f holds a canonical value, the
// form sent on the wire.
func (f Filters) Validate() error {
	if f.Operation != AllOperations && !f.Operation.Valid() {
		return fmt.Errorf("%w: operation %q", ErrInvalidFilter, f.Operation)
	}
	if _, err := ParseDateFilter(f.Date); err != nil {
		return err
	}
	if f.SortBy != SortByDate && f.SortBy != SortByResult {
		return fmt.Errorf("%w: sort key %q", ErrInvalidFilter, f.SortBy)
	}
	if f.SortOrder != Ascending && f.SortOrder != Descending {
		return fmt.Errorf("%w: sort order %q", ErrInvalidFilter, f.SortOrder)
	}
	return nil
}

// HistoryEntry is one past operation as reported by the remote service.
type HistoryEntry struct {
	Numbers   []float64 `json:"numbers"`
	Operation Operation `json:"operation"`
	Result    float64   `json:"result"`
	Date      time.Time `json:"date"`
}

// View is a point-in-time copy of a Session's state for rendering.
type View struct {
	Input   string         `json:"input"`
	Result  *float64       `json:"result"`
	Error   string         `json:"error,omitempty"`
	Filters Filters        `json:"filters"`
	History []HistoryEntry `json:"history"`
}
