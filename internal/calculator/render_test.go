package calculator

import (
	"testing"
	"time"
)

func TestSymbolForIsTotal(t *testing.T) {
	tests := map[Operation]string{
		OpAdd:         "+",
		OpSubtract:    "-",
		OpDivide:      "/",
		OpMultiply:    "*",
		AllOperations: "?",
		"pow":         "?",
		"":            "?",
		"add":         "?",
	}
	for op, want := range tests {
		if got := SymbolFor(op); got != want {
			t.Errorf("SymbolFor(%q) = %q, want %q", op, got, want)
		}
	}
}

func TestFormatEntry(t *testing.T) {
	date := time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry HistoryEntry
		want  string
	}{
		{
			name:  "sum",
			entry: HistoryEntry{Numbers: []float64{2, 4, 5}, Operation: OpAdd, Result: 11, Date: date},
			want:  "2 + 4 + 5 = 11 (2024-01-01 10:30:00)",
		},
		{
			name:  "division keeps fractions",
			entry: HistoryEntry{Numbers: []float64{1, 4}, Operation: OpDivide, Result: 0.25, Date: date},
			want:  "1 / 4 = 0.25 (2024-01-01 10:30:00)",
		},
		{
			name:  "unknown operation",
			entry: HistoryEntry{Numbers: []float64{1, 2}, Operation: "pow", Result: 1, Date: date},
			want:  "1 ? 2 = 1 (2024-01-01 10:30:00)",
		},
		{
			name:  "missing numbers",
			entry: HistoryEntry{Operation: OpMultiply, Result: 0, Date: date},
			want:  "invalid operation = 0 (2024-01-01 10:30:00)",
		},
		{
			name:  "missing date",
			entry: HistoryEntry{Numbers: []float64{3}, Operation: OpSubtract, Result: 3},
			want:  "3 = 3",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatEntry(tc.entry, time.UTC); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestFormatTimestampUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	e := HistoryEntry{Date: time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)}

	if got := FormatTimestamp(e, loc); got != "2024-01-02 01:00:00" {
		t.Fatalf("expected local timestamp, got %q", got)
	}
}
