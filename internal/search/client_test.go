package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeAPI struct {
	mu       sync.Mutex
	requests []map[string]string
	// pages maps a 1-based start index to the number of items returned.
	pages    map[int]int
	failures map[int][]int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.requests = append(f.requests, map[string]string{
		"key":          q.Get("key"),
		"cx":           q.Get("cx"),
		"q":            q.Get("q"),
		"start":        q.Get("start"),
		"sort":         q.Get("sort"),
		"dateRestrict": q.Get("dateRestrict"),
	})
	start, _ := strconv.Atoi(q.Get("start"))
	var code int
	if codes := f.failures[start]; len(codes) > 0 {
		code = codes[0]
		f.failures[start] = codes[1:]
	}
	n := f.pages[start]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if code != 0 {
		w.WriteHeader(code)
		_, _ = fmt.Fprintf(w, `{"error":{"code":%d,"message":"boom"}}`, code)
		return
	}
	items := make([]map[string]any, 0, n)
	for i := range n {
		items = append(items, map[string]any{
			"link":        fmt.Sprintf("https://example.com/%d", start+i),
			"displayLink": "example.com",
			"title":       "title",
			"snippet":     "snippet",
			"htmlSnippet": "<b>snippet</b>",
			"pagemap":     map[string]any{"metatags": []any{}},
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"items": items})
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	c, err := New(context.Background(), "test-key", "test-cx",
		WithHTTPClient(srv.Client()),
		WithEndpoint(srv.URL+"/"),
		WithRateLimit(1000),
		WithBackoff(time.Millisecond, 3),
	)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestNewRequiresCredentials(t *testing.T) {
	tests := []struct {
		name, key, cx string
	}{
		{name: "missing key", cx: "cx"},
		{name: "missing engine", key: "key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(context.Background(), tt.key, tt.cx); !errors.Is(err, ErrNotConfigured) {
				t.Errorf("New() err = %v, want ErrNotConfigured", err)
			}
		})
	}
}

func TestPaginateStopsAfterEmptyPage(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 10, 11: 10, 21: 0}}
	c := newTestClient(t, api)

	var got []int
	requests, err := c.Paginate(context.Background(), `("acme")`, 10, Options{}, func(p Page) error {
		if p.Err != nil {
			t.Errorf("page %d error: %v", p.Number, p.Err)
		}
		got = append(got, len(p.Items))
		return nil
	})
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if requests != 3 {
		t.Errorf("requests = %d, want 3", requests)
	}
	if diff := cmp.Diff([]int{10, 10, 0}, got); diff != "" {
		t.Errorf("page sizes mismatch (-want +got):\n%s", diff)
	}

	var starts []string
	for _, r := range api.requests {
		starts = append(starts, r["start"])
		if r["key"] != "test-key" || r["cx"] != "test-cx" || r["q"] != `("acme")` {
			t.Errorf("unexpected request params: %v", r)
		}
	}
	if diff := cmp.Diff([]string{"1", "11", "21"}, starts); diff != "" {
		t.Errorf("start params mismatch (-want +got):\n%s", diff)
	}
}

func TestPaginateRespectsMaxPages(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 10, 11: 10, 21: 10}}
	c := newTestClient(t, api)

	requests, err := c.Paginate(context.Background(), "q", 2, Options{}, func(Page) error { return nil })
	if err != nil {
		t.Fatalf("paginate: %v", err)
	}
	if requests != 2 || api.calls() != 2 {
		t.Errorf("requests = %d, calls = %d, want 2", requests, api.calls())
	}

	for _, tt := range []struct {
		name     string
		query    string
		maxPages int
	}{
		{name: "zero pages", query: "q", maxPages: 0},
		{name: "empty query", query: "", maxPages: 5},
	} {
		t.Run(tt.name, func(t *testing.T) {
			before := api.calls()
			n, err := c.Paginate(context.Background(), tt.query, tt.maxPages, Options{}, func(Page) error {
				t.Error("visit should not be called")
				return nil
			})
			if err != nil || n != 0 {
				t.Errorf("Paginate() = %d, %v, want 0, nil", n, err)
			}
			if api.calls() != before {
				t.Error("unexpected API call")
			}
		})
	}
}

func TestSearchDateFilters(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 1}}
	c := newTestClient(t, api)
	ctx := context.Background()

	day := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)
	if _, err := c.Search(ctx, "q", 0, Options{From: day, To: day}); err != nil {
		t.Fatalf("search by range: %v", err)
	}
	if _, err := c.Search(ctx, "q", 0, Options{DateRestrict: "d1"}); err != nil {
		t.Fatalf("search last day: %v", err)
	}

	if got := api.requests[0]["sort"]; got != "date:r:20240229:20240229" {
		t.Errorf("sort = %q, want date:r:20240229:20240229", got)
	}
	if got := api.requests[1]["dateRestrict"]; got != "d1" {
		t.Errorf("dateRestrict = %q, want d1", got)
	}
}

func TestSearchMapsItems(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 1}}
	c := newTestClient(t, api)

	items, err := c.Search(context.Background(), "q", 0, Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	want := []Item{{
		Link:        "https://example.com/1",
		DisplayLink: "example.com",
		Title:       "title",
		Snippet:     "snippet",
		HTMLSnippet: "<b>snippet</b>",
		Pagemap:     json.RawMessage(`{"metatags":[]}`),
	}}
	if diff := cmp.Diff(want, items); diff != "" {
		t.Errorf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchRetries(t *testing.T) {
	tests := []struct {
		name         string
		failures     []int
		wantCalls    int
		wantErr      bool
		wantUpstream bool
	}{
		{name: "recovers from server errors", failures: []int{500, 503}, wantCalls: 3},
		{name: "recovers from rate limiting", failures: []int{429}, wantCalls: 2},
		{name: "gives up after retries", failures: []int{500, 500, 500, 500}, wantCalls: 4, wantErr: true, wantUpstream: true},
		{name: "client errors are not retried", failures: []int{400}, wantCalls: 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{pages: map[int]int{1: 2}, failures: map[int][]int{1: tt.failures}}
			c := newTestClient(t, api)

			items, err := c.Search(context.Background(), "q", 0, Options{})
			if got := api.calls(); got != tt.wantCalls {
				t.Errorf("calls = %d, want %d", got, tt.wantCalls)
			}
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if got := errors.Is(err, ErrUpstream); got != tt.wantUpstream {
					t.Errorf("errors.Is(err, ErrUpstream) = %v, want %v", got, tt.wantUpstream)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(items) != 2 {
				t.Errorf("items = %d, want 2", len(items))
			}
		})
	}
}

func TestPaginateVisitsFailedPage(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 10}, failures: map[int][]int{11: {403}}}
	c := newTestClient(t, api)

	var visited []Page
	requests, err := c.Paginate(context.Background(), "q", 5, Options{}, func(p Page) error {
		visited = append(visited, p)
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if len(visited) != 2 || visited[1].Err == nil {
		t.Errorf("visited = %+v, want failed second page", visited)
	}
}

func TestPaginateStopsOnVisitError(t *testing.T) {
	api := &fakeAPI{pages: map[int]int{1: 10, 11: 10}}
	c := newTestClient(t, api)
	stop := errors.New("stop")

	requests, err := c.Paginate(context.Background(), "q", 5, Options{}, func(Page) error { return stop })
	if !errors.Is(err, stop) {
		t.Errorf("err = %v, want stop", err)
	}
	if requests != 1 {
		t.Errorf("requests = %d, want 1", requests)
	}
}
