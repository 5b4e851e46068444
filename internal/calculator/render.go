package calculator

import (
	"strings"
	"time"
)

// SymbolFor maps an operation to its display symbol. Unknown operations
// render as "?".
func SymbolFor(op Operation) string {
	switch op {
	case OpAdd:
		return "+"
	case OpSubtract:
		return "-"
	case OpDivide:
		return "/"
	case OpMultiply:
		return "*"
	default:
		return "?"
	}
}

const (
	invalidEntryText = "invalid operation"
	timestampLayout  = "2006-01-02 15:04:05"
)

// FormatExpression renders the left-hand side and result of an entry,
// e.g. "2 + 4 + 5 = 11".
func FormatExpression(e HistoryEntry) string {
	lhs := invalidEntryText
	if e.Numbers != nil {
		parts := make([]string, len(e.Numbers))
		for i, n := range e.Numbers {
			parts[i] = FormatNumber(n)
		}
		lhs = strings.Join(parts, " "+SymbolFor(e.Operation)+" ")
	}
	return lhs + " = " + FormatNumber(e.Result)
}

// FormatTimestamp renders the entry date in loc, or "" when the remote
// service did not report one.
func FormatTimestamp(e HistoryEntry, loc *time.Location) string {
	if e.Date.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return e.Date.In(loc).Format(timestampLayout)
}

// FormatEntry renders a full history line: "2 + 4 = 6 (2024-01-01 10:00:00)".
func FormatEntry(e HistoryEntry, loc *time.Location) string {
	line := FormatExpression(e)
	if ts := FormatTimestamp(e, loc); ts != "" {
		line += " (" + ts + ")"
	}
	return line
}
