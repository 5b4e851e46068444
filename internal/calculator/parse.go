package calculator

import (
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ParseNumbers splits text on commas and returns every token that parses
// as a finite float64, in input order. Tokens that fail to parse are
// dropped. The result is empty when nothing parses; callers treat that
// as a validation failure.
func ParseNumbers(text string) []float64 {
	tokens := strings.Split(text, ",")
	numbers := make([]float64, 0, len(tokens))

	for _, tok := range tokens {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			continue
		}
		numbers = append(numbers, n)
	}

	return numbers
}

// FormatNumber renders n without exponent and with the shortest
// representation that round-trips.
func FormatNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// OperandQuery builds the a=<n>&a=<n>... query for an operation request.
func OperandQuery(numbers []float64) url.Values {
	q := make(url.Values, 1)
	for _, n := range numbers {
		q.Add("a", FormatNumber(n))
	}
	return q
}

// HistoryQuery is the ordered query string of a history request.
// url.Values sorts keys on Encode, so the order is kept explicitly.
type HistoryQuery struct {
	keys   []string
	values []string
}

// NewHistoryQuery builds the history query for f. sort_by and sort_order
// are always present; operation is omitted for the "all" sentinel and
// date when empty.
func NewHistoryQuery(f Filters) HistoryQuery {
	var q HistoryQuery
	if f.Operation != "" && f.Operation != AllOperations {
		q.add("operation", string(f.Operation))
	}
	if f.Date != "" {
		q.add("date", f.Date)
	}
	q.add("sort_by", string(f.SortBy))
	q.add("sort_order", string(f.SortOrder))
	return q
}

func (q *HistoryQuery) add(key, value string) {
	q.keys = append(q.keys, key)
	q.values = append(q.values, value)
}

// Get returns the value for key, or "" when absent.
func (q HistoryQuery) Get(key string) string {
	for i, k := range q.keys {
		if k == key {
			return q.values[i]
		}
	}
	return ""
}

// Has reports whether key is present.
func (q HistoryQuery) Has(key string) bool {
	for _, k := range q.keys {
		if k == key {
			return true
		}
	}
	return false
}

// Encode renders the query in insertion order.
func (q HistoryQuery) Encode() string {
	var b strings.Builder
	for i, k := range q.keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(q.values[i]))
	}
	return b.String()
}
