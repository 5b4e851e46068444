package calculator

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"calculator-console/internal/calcclient"
	"calculator-console/internal/testutil"
)

func newTestSession(t *testing.T) (*Session, *testutil.FakeCalculator) {
	t.Helper()
	fake := testutil.NewFakeCalculator(t)
	return NewSession(calcclient.New(fake.URL(), 0)), fake
}

func TestPerformOperationSuccessSetsResultAndRefreshesHistory(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	s.SetInput("3,4")
	if err := s.PerformOperation(ctx, OpAdd); err != nil {
		t.Fatalf("perform operation: %v", err)
	}

	v := s.View()
	if v.Result == nil || *v.Result != 7 {
		t.Fatalf("expected result 7, got %v", v.Result)
	}
	if v.Error != "" {
		t.Fatalf("expected no error, got %q", v.Error)
	}

	if n := len(fake.Requests("/calculator/history")); n != 1 {
		t.Fatalf("expected 1 history refresh, got %d", n)
	}
	if len(v.History) != 1 || v.History[0].Result != 7 || v.History[0].Operation != OpAdd {
		t.Fatalf("expected refreshed history with the new entry, got %+v", v.History)
	}

	reqs := fake.Requests("/calculator/sum")
	if len(reqs) != 1 || reqs[0].RawQuery != "a=3&a=4" {
		t.Fatalf("expected one sum request with a=3&a=4, got %+v", reqs)
	}
}

func TestPerformOperationEmptyInputMakesNoRequest(t *testing.T) {
	for _, input := range []string{"", "  ", "a, b", ",,,"} {
		t.Run(input, func(t *testing.T) {
			s, fake := newTestSession(t)

			s.SetInput(input)
			err := s.PerformOperation(context.Background(), OpMultiply)
			if !errors.Is(err, ErrNoNumbers) {
				t.Fatalf("expected ErrNoNumbers, got %v", err)
			}

			if n := fake.TotalRequests(); n != 0 {
				t.Fatalf("expected no network call, got %d requests", n)
			}
			v := s.View()
			if v.Error != MsgNoNumbers {
				t.Fatalf("expected error %q, got %q", MsgNoNumbers, v.Error)
			}
			if v.Result != nil {
				t.Fatalf("expected no result, got %v", *v.Result)
			}
		})
	}
}

func TestPerformOperationRemoteFailureUsesDetail(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Respond("/calculator/sum", http.StatusBadRequest, `{"detail":"bad input"}`)

	s.SetInput("3,4")
	err := s.PerformOperation(context.Background(), OpAdd)

	var remoteErr *calcclient.RemoteError
	if !errors.As(err, &remoteErr) {
		t.Fatalf("expected *calcclient.RemoteError, got %v", err)
	}

	v := s.View()
	if v.Result != nil {
		t.Fatalf("expected result to stay absent, got %v", *v.Result)
	}
	if v.Error != "bad input" {
		t.Fatalf("expected error %q, got %q", "bad input", v.Error)
	}
	if n := len(fake.Requests("/calculator/history")); n != 0 {
		t.Fatalf("history must not refresh after a failure, got %d requests", n)
	}
}

func TestPerformOperationRemoteFailureWithoutDetail(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Respond("/calculator/div", http.StatusInternalServerError, `{}`)

	s.SetInput("1,2")
	_ = s.PerformOperation(context.Background(), OpDivide)

	if got := s.View().Error; got != MsgRequestFailed {
		t.Fatalf("expected %q, got %q", MsgRequestFailed, got)
	}
}

func TestPerformOperationTransportFailure(t *testing.T) {
	fake := testutil.NewFakeCalculator(t)
	addr := fake.URL()
	fake.Server.Close()

	s := NewSession(calcclient.New(addr, time.Second))
	s.SetInput("1,2")
	err := s.PerformOperation(context.Background(), OpAdd)
	if !errors.Is(err, calcclient.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	v := s.View()
	if v.Error != MsgConnectFailed {
		t.Fatalf("expected %q, got %q", MsgConnectFailed, v.Error)
	}
	if v.Result != nil {
		t.Fatal("expected result to stay absent")
	}
}

func TestPerformOperationClearsPreviousState(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	s.SetInput("2,3")
	if err := s.PerformOperation(ctx, OpMultiply); err != nil {
		t.Fatalf("perform operation: %v", err)
	}

	fake.Respond("/calculator/mult", http.StatusBadRequest, `{"detail":"negative numbers are not accepted"}`)
	s.SetInput("-1,3")
	_ = s.PerformOperation(ctx, OpMultiply)

	v := s.View()
	if v.Result != nil {
		t.Fatalf("expected previous result to be cleared, got %v", *v.Result)
	}
	if v.Error != "negative numbers are not accepted" {
		t.Fatalf("unexpected error %q", v.Error)
	}
	if len(v.History) != 1 {
		t.Fatalf("expected history from the first operation to remain, got %d entries", len(v.History))
	}

	fake.Reset()
	s.SetInput("2,2")
	if err := s.PerformOperation(ctx, OpMultiply); err != nil {
		t.Fatalf("perform operation: %v", err)
	}
	if got := s.View().Error; got != "" {
		t.Fatalf("expected error to be cleared, got %q", got)
	}
}

func TestPerformOperationUnknownOperation(t *testing.T) {
	s, fake := newTestSession(t)
	s.SetInput("1,2")

	err := s.PerformOperation(context.Background(), "pow")
	if !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected ErrUnknownOperation, got %v", err)
	}
	if fake.TotalRequests() != 0 {
		t.Fatal("expected no network call")
	}
	if got := s.View().Error; got != MsgUnknownOperation {
		t.Fatalf("expected %q, got %q", MsgUnknownOperation, got)
	}
}

func TestFetchHistoryFailureKeepsSnapshot(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()
	fake.Seed(testutil.FakeRecord{Operation: "sum", Numbers: []float64{1, 1}, Result: 2, Date: time.Now().UTC()})

	if err := s.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if got := len(s.View().History); got != 1 {
		t.Fatalf("expected 1 entry, got %d", got)
	}

	fake.Respond("/calculator/history", http.StatusInternalServerError, `{}`)
	if err := s.FetchHistory(ctx); err == nil {
		t.Fatal("expected error")
	}

	v := s.View()
	if v.Error != MsgHistoryFailed {
		t.Fatalf("expected %q, got %q", MsgHistoryFailed, v.Error)
	}
	if len(v.History) != 1 {
		t.Fatalf("expected previous snapshot to remain, got %d entries", len(v.History))
	}
}

func TestFetchHistoryMissingFieldGivesEmptySnapshot(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Respond("/calculator/history", http.StatusOK, `{}`)

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	v := s.View()
	if v.History == nil || len(v.History) != 0 {
		t.Fatalf("expected empty snapshot, got %#v", v.History)
	}
}

func TestFetchHistoryParsesDatesWithoutOffset(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Respond("/calculator/history", http.StatusOK,
		`{"history":[{"numbers":[1,2],"operation":"sum","result":3,"date":"2024-01-01T10:00:00.123000"}]}`)

	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	h := s.View().History
	if len(h) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(h))
	}
	want := time.Date(2024, 1, 1, 10, 0, 0, 123000000, time.UTC)
	if !h[0].Date.Equal(want) {
		t.Fatalf("expected %v, got %v", want, h[0].Date)
	}
}

func TestDateFilterChangeIssuesOneRequest(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	if err := s.SetOperationFilter(ctx, OpMultiply); err != nil {
		t.Fatalf("set operation filter: %v", err)
	}
	if err := s.SetSortBy(ctx, SortByResult); err != nil {
		t.Fatalf("set sort by: %v", err)
	}
	before := len(fake.Requests("/calculator/history"))

	if err := s.SetDateFilter(ctx, "2024-01-01"); err != nil {
		t.Fatalf("set date filter: %v", err)
	}

	reqs := fake.Requests("/calculator/history")
	if len(reqs) != before+1 {
		t.Fatalf("expected exactly one new history request, got %d", len(reqs)-before)
	}
	got := reqs[len(reqs)-1].RawQuery
	want := "operation=mult&date=2024-01-01&sort_by=result&sort_order=desc"
	if got != want {
		t.Fatalf("expected query %q, got %q", want, got)
	}
}

func TestUnchangedFilterDoesNotRefetch(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	if err := s.SetSortOrder(ctx, Descending); err != nil {
		t.Fatalf("set sort order: %v", err)
	}
	if err := s.ApplyFilters(ctx, DefaultFilters()); err != nil {
		t.Fatalf("apply filters: %v", err)
	}
	if n := fake.TotalRequests(); n != 0 {
		t.Fatalf("expected no requests for unchanged filters, got %d", n)
	}
}

func TestApplyFiltersFetchesOnce(t *testing.T) {
	s, fake := newTestSession(t)

	err := s.ApplyFilters(context.Background(), Filters{
		Operation: OpMultiply,
		Date:      "2024-01-01",
		SortBy:    SortByResult,
		SortOrder: Ascending,
	})
	if err != nil {
		t.Fatalf("apply filters: %v", err)
	}

	reqs := fake.Requests("/calculator/history")
	if len(reqs) != 1 {
		t.Fatalf("expected 1 history request, got %d", len(reqs))
	}
	if got := reqs[0].RawQuery; got != "operation=mult&date=2024-01-01&sort_by=result&sort_order=asc" {
		t.Fatalf("unexpected query %q", got)
	}
}

func TestInvalidFilterLeavesStateUntouched(t *testing.T) {
	s, fake := newTestSession(t)

	err := s.SetDateFilter(context.Background(), "yesterday")
	if !errors.Is(err, ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	if s.Filters() != DefaultFilters() {
		t.Fatalf("expected filters unchanged, got %+v", s.Filters())
	}
	if fake.TotalRequests() != 0 {
		t.Fatal("expected no network call")
	}
}

func TestClearingOperationFilterOmitsParameter(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	_ = s.SetOperationFilter(ctx, OpDivide)
	_ = s.SetOperationFilter(ctx, AllOperations)

	reqs := fake.Requests("/calculator/history")
	if len(reqs) != 2 {
		t.Fatalf("expected 2 history requests, got %d", len(reqs))
	}
	if reqs[1].Query.Has("operation") {
		t.Fatalf("expected operation to be omitted, got %q", reqs[1].RawQuery)
	}
}

// scriptedRemote lets a test decide when each history call returns.
type scriptedRemote struct {
	mu      sync.Mutex
	n       int
	history []chan historyReply
	calls   chan int
}

type historyReply struct {
	entries []calcclient.Entry
	err     error
}

func newScriptedRemote(n int) *scriptedRemote {
	r := &scriptedRemote{calls: make(chan int, n)}
	for range n {
		r.history = append(r.history, make(chan historyReply, 1))
	}
	return r
}

func (r *scriptedRemote) Calculate(ctx context.Context, operation string, operands calcclient.Query) (float64, error) {
	return 0, errors.New("not scripted")
}

func (r *scriptedRemote) History(ctx context.Context, query calcclient.Query) ([]calcclient.Entry, error) {
	r.mu.Lock()
	idx := r.n
	r.n++
	r.mu.Unlock()
	r.calls <- idx
	reply := <-r.history[idx]
	return reply.entries, reply.err
}

func TestStaleHistoryResponseIsDiscarded(t *testing.T) {
	remote := newScriptedRemote(2)
	s := NewSession(remote)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- s.FetchHistory(ctx) }()
	<-remote.calls

	second := make(chan error, 1)
	go func() { second <- s.FetchHistory(ctx) }()
	<-remote.calls

	// The later request answers first.
	remote.history[1] <- historyReply{entries: []calcclient.Entry{{Numbers: []float64{2}, Operation: "sum", Result: 2}}}
	if err := <-second; err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	remote.history[0] <- historyReply{entries: []calcclient.Entry{{Numbers: []float64{1}, Operation: "sum", Result: 1}}}
	if err := <-first; err != nil {
		t.Fatalf("first fetch: %v", err)
	}

	h := s.View().History
	if len(h) != 1 || h[0].Result != 2 {
		t.Fatalf("expected the newer snapshot to win, got %+v", h)
	}
}

func TestStaleHistoryFailureDoesNotSetError(t *testing.T) {
	remote := newScriptedRemote(2)
	s := NewSession(remote)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() { first <- s.FetchHistory(ctx) }()
	<-remote.calls

	second := make(chan error, 1)
	go func() { second <- s.FetchHistory(ctx) }()
	<-remote.calls

	remote.history[1] <- historyReply{entries: []calcclient.Entry{}}
	<-second
	remote.history[0] <- historyReply{err: calcclient.ErrUnavailable}
	<-first

	if got := s.View().Error; got != "" {
		t.Fatalf("expected stale failure to be ignored, got %q", got)
	}
}

func TestRefreshAfterOperationIsNotMergedWithEarlierFetch(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	entered, release := fake.HoldHistory(t)
	first := make(chan error, 1)
	go func() { first <- s.FetchHistory(ctx) }()
	<-entered

	s.SetInput("3,4")
	done := make(chan error, 1)
	go func() { done <- s.PerformOperation(ctx, OpAdd) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("perform operation: %v", err)
		}
	case <-time.After(5 * time.Second):
		release()
		t.Fatal("operation waited on the earlier history request")
	}

	v := s.View()
	if v.Result == nil || *v.Result != 7 {
		t.Fatalf("expected result 7, got %v", v.Result)
	}
	if len(v.History) != 1 || v.History[0].Result != 7 {
		t.Fatalf("expected history with the new entry, got %+v", v.History)
	}

	release()
	<-first
	if n := len(fake.Requests("/calculator/history")); n != 2 {
		t.Fatalf("expected 2 history requests, got %d", n)
	}
	if h := s.View().History; len(h) != 1 || h[0].Result != 7 {
		t.Fatalf("expected the earlier fetch to be discarded, got %+v", h)
	}
}

// calcRemote lets a test decide when each calculation returns. History
// answers at once with no entries.
type calcRemote struct {
	calls   chan string
	replies map[string]chan calcReply
}

type calcReply struct {
	result float64
	err    error
}

func newCalcRemote(ops ...Operation) *calcRemote {
	r := &calcRemote{calls: make(chan string, len(ops)), replies: make(map[string]chan calcReply)}
	for _, op := range ops {
		r.replies[string(op)] = make(chan calcReply, 1)
	}
	return r
}

func (r *calcRemote) Calculate(ctx context.Context, operation string, operands calcclient.Query) (float64, error) {
	r.calls <- operation
	reply := <-r.replies[operation]
	return reply.result, reply.err
}

func (r *calcRemote) History(ctx context.Context, query calcclient.Query) ([]calcclient.Entry, error) {
	return []calcclient.Entry{}, nil
}

func TestNewerOperationSuccessClearsOlderFailure(t *testing.T) {
	remote := newCalcRemote(OpDivide, OpAdd)
	s := NewSession(remote)
	ctx := context.Background()
	s.SetInput("3,4")

	divDone := make(chan error, 1)
	go func() { divDone <- s.PerformOperation(ctx, OpDivide) }()
	<-remote.calls

	sumDone := make(chan error, 1)
	go func() { sumDone <- s.PerformOperation(ctx, OpAdd) }()
	<-remote.calls

	remote.replies["div"] <- calcReply{err: &calcclient.RemoteError{Status: http.StatusBadRequest, Detail: "bad input"}}
	<-divDone
	if got := s.View().Error; got != "bad input" {
		t.Fatalf("expected %q, got %q", "bad input", got)
	}

	remote.replies["sum"] <- calcReply{result: 7}
	if err := <-sumDone; err != nil {
		t.Fatalf("sum: %v", err)
	}

	v := s.View()
	if v.Result == nil || *v.Result != 7 {
		t.Fatalf("expected result 7, got %v", v.Result)
	}
	if v.Error != "" {
		t.Fatalf("expected the older failure to be cleared, got %q", v.Error)
	}
}

func TestOlderOperationOutcomeIsDiscarded(t *testing.T) {
	remote := newCalcRemote(OpDivide, OpAdd)
	s := NewSession(remote)
	ctx := context.Background()
	s.SetInput("3,4")

	divDone := make(chan error, 1)
	go func() { divDone <- s.PerformOperation(ctx, OpDivide) }()
	<-remote.calls

	sumDone := make(chan error, 1)
	go func() { sumDone <- s.PerformOperation(ctx, OpAdd) }()
	<-remote.calls

	remote.replies["sum"] <- calcReply{result: 7}
	<-sumDone
	remote.replies["div"] <- calcReply{err: &calcclient.RemoteError{Status: http.StatusBadRequest, Detail: "bad input"}}
	<-divDone

	v := s.View()
	if v.Result == nil || *v.Result != 7 {
		t.Fatalf("expected result 7 to stay, got %v", v.Result)
	}
	if v.Error != "" {
		t.Fatalf("expected the older failure to be ignored, got %q", v.Error)
	}
}

func TestViewIsACopy(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Seed(testutil.FakeRecord{Operation: "sum", Numbers: []float64{1, 2}, Result: 3, Date: time.Now().UTC()})
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	v := s.View()
	v.History[0].Numbers[0] = 99

	if got := s.View().History[0].Numbers[0]; got != 1 {
		t.Fatalf("expected session state to be unaffected, got %v", got)
	}
}
