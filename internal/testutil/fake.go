package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

// historyLimit matches the page size of the real service.
const historyLimit = 20

// FakeRecord is one stored operation of a FakeCalculator.
type FakeRecord struct {
	Operation string
	Numbers   []float64
	Result    float64
	Date      time.Time
}

// RecordedRequest is a request the fake received.
type RecordedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Query    url.Values
	Header   http.Header
}

type cannedResponse struct {
	status int
	body   string
}

// FakeCalculator is an in-process stand-in for the remote calculator
// service: GET /calculator/{sum,rest,div,mult}, GET /calculator/history
// and POST /calculator/batch_operations.
type FakeCalculator struct {
	Server *httptest.Server

	mu       sync.Mutex
	records  []FakeRecord
	requests []RecordedRequest
	canned   map[string]cannedResponse
	now      func() time.Time
	hold     *historyHold
}

type historyHold struct {
	entered chan struct{}
	release chan struct{}
}

// NewFakeCalculator starts a fake service that is closed when the test ends.
func NewFakeCalculator(t testing.TB) *FakeCalculator {
	t.Helper()

	f := &FakeCalculator{
		canned: make(map[string]cannedResponse),
		now:    func() time.Time { return time.Now().UTC() },
	}

	r := chi.NewRouter()
	r.Use(f.record)
	r.Get("/calculator/history", f.history)
	r.Post("/calculator/batch_operations", f.batch)
	r.Get("/calculator/{operation}", f.calculate)

	f.Server = httptest.NewServer(r)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the base URL of the fake.
func (f *FakeCalculator) URL() string {
	return f.Server.URL
}

// SetClock fixes the timestamp given to new records.
func (f *FakeCalculator) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// Seed adds records to the history store.
func (f *FakeCalculator) Seed(records ...FakeRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, records...)
}

// Respond makes every request to path answer with status and body until
// Reset is called.
func (f *FakeCalculator) Respond(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canned[path] = cannedResponse{status: status, body: body}
}

// HoldHistory makes the next history request wait until release is
// called. entered is closed once that request has arrived. The held
// request reads the store only after it is released.
func (f *FakeCalculator) HoldHistory(t testing.TB) (entered <-chan struct{}, release func()) {
	t.Helper()

	h := &historyHold{entered: make(chan struct{}), release: make(chan struct{})}
	f.mu.Lock()
	f.hold = h
	f.mu.Unlock()

	var once sync.Once
	release = func() { once.Do(func() { close(h.release) }) }
	t.Cleanup(release)
	return h.entered, release
}

// Reset drops canned responses.
func (f *FakeCalculator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canned = make(map[string]cannedResponse)
}

// Requests returns the recorded requests to path, oldest first.
func (f *FakeCalculator) Requests(path string) []RecordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []RecordedRequest
	for _, req := range f.requests {
		if req.Path == path {
			out = append(out, req)
		}
	}
	return out
}

// TotalRequests counts every request the fake received.
func (f *FakeCalculator) TotalRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *FakeCalculator) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.requests = append(f.requests, RecordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			RawQuery: r.URL.RawQuery,
			Query:    r.URL.Query(),
			Header:   r.Header.Clone(),
		})
		canned, ok := f.canned[r.URL.Path]
		f.mu.Unlock()

		if ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(canned.status)
			_, _ = w.Write([]byte(canned.body))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (f *FakeCalculator) calculate(w http.ResponseWriter, r *http.Request) {
	op := chi.URLParam(r, "operation")

	var nums []float64
	for _, raw := range r.URL.Query()["a"] {
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "a must be a number")
			return
		}
		nums = append(nums, n)
	}
	if len(nums) == 0 {
		writeDetail(w, http.StatusUnprocessableEntity, "field required: a")
		return
	}

	result, detail := compute(op, nums)
	if detail != "" {
		status := http.StatusBadRequest
		if detail == "not found" {
			status = http.StatusNotFound
		}
		writeDetail(w, status, detail)
		return
	}

	f.mu.Lock()
	f.records = append(f.records, FakeRecord{Operation: op, Numbers: nums, Result: result, Date: f.now()})
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"operation": op,
		"numbers":   nums,
		"result":    result,
	})
}

func compute(op string, nums []float64) (float64, string) {
	for _, n := range nums {
		if n < 0 {
			return 0, "negative numbers are not accepted"
		}
	}

	switch op {
	case "sum":
		var total float64
		for _, n := range nums {
			total += n
		}
		return total, ""
	case "rest":
		total := nums[0]
		for _, n := range nums[1:] {
			total -= n
		}
		return total, ""
	case "div":
		if len(nums) < 2 {
			return 0, "at least two numbers are required for division"
		}
		if slices.Contains(nums[1:], 0) {
			return 0, "cannot divide by zero"
		}
		total := nums[0]
		for _, n := range nums[1:] {
			total /= n
		}
		return total, ""
	case "mult":
		total := 1.0
		for _, n := range nums {
			total *= n
		}
		return total, ""
	}
	return 0, "not found"
}

func (f *FakeCalculator) history(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	hold := f.hold
	f.hold = nil
	f.mu.Unlock()
	if hold != nil {
		close(hold.entered)
		select {
		case <-hold.release:
		case <-r.Context().Done():
			return
		}
	}

	q := r.URL.Query()

	var dayStart, dayEnd time.Time
	if date := q.Get("date"); date != "" {
		d, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid date format, use YYYY-MM-DD")
			return
		}
		dayStart, dayEnd = d, d.AddDate(0, 0, 1)
	}

	f.mu.Lock()
	matched := make([]FakeRecord, 0, len(f.records))
	for _, rec := range f.records {
		if op := q.Get("operation"); op != "" && op != "all" && rec.Operation != op {
			continue
		}
		if !dayStart.IsZero() && (rec.Date.Before(dayStart) || !rec.Date.Before(dayEnd)) {
			continue
		}
		matched = append(matched, rec)
	}
	f.mu.Unlock()

	desc := q.Get("sort_order") != "asc"
	byResult := q.Get("sort_by") == "result"
	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if byResult {
			if desc {
				return a.Result > b.Result
			}
			return a.Result < b.Result
		}
		if desc {
			return a.Date.After(b.Date)
		}
		return a.Date.Before(b.Date)
	})
	if len(matched) > historyLimit {
		matched = matched[:historyLimit]
	}

	history := make([]map[string]any, 0, len(matched))
	for _, rec := range matched {
		history = append(history, map[string]any{
			"numbers":   rec.Numbers,
			"operation": rec.Operation,
			"result":    rec.Result,
			"date":      rec.Date.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

func (f *FakeCalculator) batch(w http.ResponseWriter, r *http.Request) {
	var items []struct {
		Op   string    `json:"op"`
		Nums []float64 `json:"nums"`
	}
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		switch {
		case item.Op != "sum" && item.Op != "rest" && item.Op != "div" && item.Op != "mult":
			results = append(results, map[string]any{"op": item.Op, "error": "operation not supported"})
		case len(item.Nums) < 2:
			results = append(results, map[string]any{"op": item.Op, "error": "the operation requires at least 2 operands"})
		default:
			result, detail := compute(item.Op, item.Nums)
			if detail != "" {
				results = append(results, map[string]any{"op": item.Op, "error": detail})
				continue
			}
			results = append(results, map[string]any{"op": item.Op, "result": result})
		}
	}
	writeJSON(w, http.StatusOK, results)
}
