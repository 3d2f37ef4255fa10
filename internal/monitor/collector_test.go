package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/quota"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/search"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

const (
	brandQuery       = `("Acme")`
	competitorsQuery = `("Globex")`
)

type searchCall struct {
	Query string
	Page  int
	Opts  search.Options
}

// fakeSearcher serves pages whose sizes are configured per query. Links are
// stable per query, page, item and date filter.
type fakeSearcher struct {
	mu    sync.Mutex
	pages map[string][]int
	fail  map[string]int
	calls []searchCall
	block chan struct{}
	// onCall runs after each request is recorded.
	onCall func(searchCall)
}

func (f *fakeSearcher) Paginate(ctx context.Context, query string, maxPages int, opts search.Options, visit func(search.Page) error) (int, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
	requests := 0
	for n := 0; n < maxPages; n++ {
		call := searchCall{Query: query, Page: n, Opts: opts}
		f.mu.Lock()
		f.calls = append(f.calls, call)
		failAt, fails := f.fail[query]
		onCall := f.onCall
		f.mu.Unlock()
		requests++
		if onCall != nil {
			onCall(call)
		}
		if err := ctx.Err(); err != nil {
			return requests, err
		}

		if fails && failAt == n {
			err := errors.New("upstream returned 500")
			if verr := visit(search.Page{Number: n, Err: err}); verr != nil {
				return requests, verr
			}
			return requests, err
		}
		items := f.items(query, n, opts)
		if err := visit(search.Page{Number: n, Items: items}); err != nil {
			return requests, err
		}
		if len(items) == 0 {
			break
		}
	}
	return requests, nil
}

func (f *fakeSearcher) items(query string, page int, opts search.Options) []search.Item {
	sizes := f.pages[query]
	if page >= len(sizes) {
		return nil
	}
	window := "now"
	if !opts.From.IsZero() {
		window = opts.From.Format(model.DateLayout)
	}
	items := make([]search.Item, sizes[page])
	for i := range items {
		items[i] = search.Item{
			Link:  fmt.Sprintf("https://news.example/%s/%s/%d/%d", url.PathEscape(query), window, page, i),
			Title: fmt.Sprintf("item %d", i),
		}
	}
	return items
}

func (f *fakeSearcher) getCalls() []searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]searchCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

type testEnv struct {
	store    *storage.SQLite
	ledger   *quota.Ledger
	searcher *fakeSearcher
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) {
	e.now = e.now.Add(d)
	now := e.now
	e.ledger.SetClock(func() time.Time { return now })
}

func newTestEnv(t *testing.T, maxDaily int) *testEnv {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	env := &testEnv{
		store:    s,
		ledger:   quota.New(s, maxDaily, time.UTC),
		searcher: &fakeSearcher{pages: map[string][]int{}, fail: map[string]int{}},
	}
	env.now = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	env.advance(0)
	return env
}

func (e *testEnv) collector(store Store) *Collector {
	return NewCollector(store, e.searcher, e.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func saveTerms(t *testing.T, s *storage.SQLite, brand, competitors []string) {
	t.Helper()
	terms := model.SearchTerms{
		Brand:       model.TermGroup{MainTerms: brand},
		Competitors: model.TermGroup{MainTerms: competitors},
	}
	if err := s.SaveSearchTerms(context.Background(), terms); err != nil {
		t.Fatalf("save terms: %v", err)
	}
}

func remaining(t *testing.T, l *quota.Ledger) int {
	t.Helper()
	n, err := l.Remaining(context.Background())
	if err != nil {
		t.Fatalf("remaining: %v", err)
	}
	return n
}

func TestRelevantConsumesOneRequestPerPage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	saveTerms(t, env.store, []string{"Acme"}, []string{"Globex"})
	env.searcher.pages[brandQuery] = []int{10, 10, 0}
	env.searcher.pages[competitorsQuery] = []int{10, 10, 0}

	report, err := env.collector(env.store).Relevant(ctx)
	if err != nil {
		t.Fatalf("relevant: %v", err)
	}
	want := Report{Runs: 2, Requests: 6, Saved: 40}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if got := remaining(t, env.ledger); got != 94 {
		t.Errorf("remaining = %d, want 94", got)
	}

	runs, err := env.store.ListRuns(ctx, storage.RunFilter{Type: model.SearchRelevant})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	for _, r := range runs {
		if r.Status != model.RunCompleted || r.TotalResultsFound != 20 {
			t.Errorf("run %s = %s with %d results, want completed with 20", r.SearchGroup, r.Status, r.TotalResultsFound)
		}
	}

	logs, err := env.store.ListRequestLogs(ctx, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	var pages []int
	for i := len(logs) - 1; i >= 0; i-- {
		pages = append(pages, logs[i].Page)
	}
	if diff := cmp.Diff([]int{1, 2, 3, 1, 2, 3}, pages); diff != "" {
		t.Errorf("logged pages mismatch (-want +got):\n%s", diff)
	}
}

func TestRelevantSkipsGroupWithoutTerms(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	saveTerms(t, env.store, nil, []string{"Globex"})
	env.searcher.pages[competitorsQuery] = []int{5}

	report, err := env.collector(env.store).Relevant(ctx)
	if err != nil {
		t.Fatalf("relevant: %v", err)
	}
	if report.Runs != 1 {
		t.Errorf("runs = %d, want 1", report.Runs)
	}

	brandRuns, err := env.store.ListRuns(ctx, storage.RunFilter{Group: model.GroupBrand})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(brandRuns) != 0 {
		t.Errorf("brand runs = %d, want 0", len(brandRuns))
	}
	logs, err := env.store.ListRequestLogs(ctx, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	for _, l := range logs {
		if l.SearchGroup == model.GroupBrand {
			t.Errorf("unexpected brand request log: %+v", l)
		}
	}
}

func TestRelevantStopsWhenQuotaExhausted(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 4)
	saveTerms(t, env.store, []string{"Acme"}, []string{"Globex"})
	env.searcher.pages[brandQuery] = []int{10, 10, 10, 10, 10, 10}
	env.searcher.pages[competitorsQuery] = []int{10}

	report, err := env.collector(env.store).Relevant(ctx)
	if err != nil {
		t.Fatalf("relevant: %v", err)
	}
	if !report.QuotaExhausted || report.Runs != 1 || report.Requests != 4 {
		t.Errorf("report = %+v, want one run of 4 requests and exhausted quota", report)
	}
	for _, c := range env.searcher.getCalls() {
		if c.Query == competitorsQuery {
			t.Fatal("competitors searched after quota ran out")
		}
	}
	if got := remaining(t, env.ledger); got != 0 {
		t.Errorf("remaining = %d, want 0", got)
	}
}

func TestContinuousStoresLinkOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	saveTerms(t, env.store, []string{"Acme"}, nil)
	env.searcher.pages[brandQuery] = []int{3}
	c := env.collector(env.store)

	first, err := c.Continuous(ctx)
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	second, err := c.Continuous(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if first.Saved != 3 || second.Saved != 0 {
		t.Errorf("saved = %d then %d, want 3 then 0", first.Saved, second.Saved)
	}

	runs, err := env.store.ListRuns(ctx, storage.RunFilter{Type: model.SearchContinuous})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	results, err := env.store.ListResultsByRun(ctx, runs[0].ID, runs[1].ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("stored results = %d, want 3", len(results))
	}
	for _, call := range env.searcher.getCalls() {
		if call.Opts.DateRestrict != "d1" {
			t.Errorf("call %+v without the 24h restriction", call)
		}
	}
	today := env.ledger.Today()
	if runs[0].RangeStart == nil || !runs[0].RangeStart.Equal(today) {
		t.Errorf("range start = %v, want %v", runs[0].RangeStart, today)
	}
}

func TestSearchFailureFailsOnlyThatGroup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	saveTerms(t, env.store, []string{"Acme"}, []string{"Globex"})
	env.searcher.pages[brandQuery] = []int{10, 10}
	env.searcher.fail[brandQuery] = 1
	env.searcher.pages[competitorsQuery] = []int{2}

	report, err := env.collector(env.store).Relevant(ctx)
	if err != nil {
		t.Fatalf("relevant: %v", err)
	}
	if report.Runs != 2 || report.FailedRuns != 1 {
		t.Errorf("report = %+v, want 2 runs with 1 failed", report)
	}

	brand, err := env.store.ListRuns(ctx, storage.RunFilter{Group: model.GroupBrand})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(brand) != 1 || brand[0].Status != model.RunFailed || brand[0].Message == "" {
		t.Fatalf("brand runs = %+v, want one failed run with a message", brand)
	}
	kept, err := env.store.ListResultsByRun(ctx, brand[0].ID)
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	if len(kept) != 10 {
		t.Errorf("partial results = %d, want 10", len(kept))
	}

	logs, err := env.store.ListRequestLogs(ctx, 0)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	failedLogs := 0
	for _, l := range logs {
		if l.Error != "" {
			failedLogs++
		}
	}
	if len(logs) != 4 || failedLogs != 1 {
		t.Errorf("logs = %d with %d failures, want 4 with 1", len(logs), failedLogs)
	}
}

type failingResultsStore struct {
	*storage.SQLite
}

func (failingResultsStore) UpsertResults(context.Context, []model.Result) (int, error) {
	return 0, errors.New("disk full")
}

func TestStoreFailureAbortsCycle(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	saveTerms(t, env.store, []string{"Acme"}, []string{"Globex"})
	env.searcher.pages[brandQuery] = []int{10}
	env.searcher.pages[competitorsQuery] = []int{10}

	_, err := env.collector(failingResultsStore{env.store}).Relevant(ctx)
	if err == nil {
		t.Fatal("expected error")
	}

	runs, err := env.store.ListRuns(ctx, storage.RunFilter{})
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != model.RunFailed {
		t.Errorf("runs = %+v, want a single failed run", runs)
	}
}

func TestCycleWithoutSearchClient(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, 100)
	c := NewCollector(env.store, nil, env.ledger, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for name, cycle := range map[string]func(context.Context) (Report, error){
		"relevant":   c.Relevant,
		"continuous": c.Continuous,
		"historical": c.Historical,
	} {
		if _, err := cycle(ctx); !errors.Is(err, search.ErrNotConfigured) {
			t.Errorf("%s err = %v, want ErrNotConfigured", name, err)
		}
	}
}
