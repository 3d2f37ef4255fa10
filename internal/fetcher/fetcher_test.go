package fetcher

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/mmcdole/gofeed"
)

type mockTransport struct {
	body       string
	statusCode int
	err        error
}

func (m *mockTransport) Do(_ *http.Request) (*http.Response, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &http.Response{
		StatusCode: m.statusCode,
		Body:       io.NopCloser(bytes.NewBufferString(m.body)),
	}, nil
}

func loadFixture(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path) //nolint:gosec // test-only fixture loading
	if err != nil {
		t.Fatalf("read fixture %s: %v", path, err)
	}
	return string(data)
}

func parseFixture(t *testing.T) *gofeed.Feed {
	t.Helper()
	feed, err := gofeed.NewParser().ParseString(loadFixture(t, "../../testdata/trending.xml"))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return feed
}

func TestFetch(t *testing.T) {
	xml := loadFixture(t, "../../testdata/trending.xml")

	tests := []struct {
		name      string
		transport *mockTransport
		wantTitle string
		wantItems int
		wantErr   bool
	}{
		{
			name:      "successful fetch",
			transport: &mockTransport{body: xml, statusCode: 200},
			wantTitle: "Daily Search Trends",
			wantItems: 3,
		},
		{
			name:      "http error status",
			transport: &mockTransport{body: "not found", statusCode: 404},
			wantErr:   true,
		},
		{
			name:      "network error",
			transport: &mockTransport{err: io.ErrUnexpectedEOF},
			wantErr:   true,
		},
		{
			name:      "invalid xml",
			transport: &mockTransport{body: "not xml at all", statusCode: 200},
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(tt.transport)
			feed, err := f.Fetch(context.Background(), "https://trends.example/rss")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if diff := cmp.Diff(tt.wantTitle, feed.Title); diff != "" {
				t.Errorf("title mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantItems, len(feed.Items)); diff != "" {
				t.Errorf("item count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestItemGUID(t *testing.T) {
	published := time.Date(2024, 3, 15, 16, 0, 0, 0, time.UTC)
	later := published.Add(2 * time.Hour)

	withGUID := ItemGUID(&gofeed.Item{GUID: "abc-123"})
	if withGUID != "abc-123" {
		t.Errorf("GUID = %q, want abc-123", withGUID)
	}

	a := ItemGUID(&gofeed.Item{Title: "Acme lançamento", PublishedParsed: &published})
	b := ItemGUID(&gofeed.Item{Title: "acme lançamento", PublishedParsed: &later})
	if !strings.HasPrefix(a, "sha256:") {
		t.Errorf("expected sha256 prefix, got %q", a)
	}
	if a != b {
		t.Errorf("same title on the same day hashed differently: %q vs %q", a, b)
	}

	nextDay := published.AddDate(0, 0, 1)
	if c := ItemGUID(&gofeed.Item{Title: "Acme lançamento", PublishedParsed: &nextDay}); c == a {
		t.Error("same title on another day hashed identically")
	}
}

func TestExtensions(t *testing.T) {
	feed := parseFixture(t)

	var traffic []string
	for _, item := range feed.Items {
		traffic = append(traffic, ApproxTraffic(item))
	}
	if diff := cmp.Diff([]string{"20000+", "500000+", "10000+"}, traffic); diff != "" {
		t.Errorf("traffic mismatch (-want +got):\n%s", diff)
	}

	want := []string{"Frente fria chega ao Sul", "Globex suspende voos por chuva"}
	if diff := cmp.Diff(want, NewsTitles(feed.Items[2])); diff != "" {
		t.Errorf("news titles mismatch (-want +got):\n%s", diff)
	}
}

func TestTrendingSearches(t *testing.T) {
	feed := parseFixture(t)
	now := time.Date(2024, 3, 15, 18, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		terms []string
		want  map[string][]string
	}{
		{
			name:  "no terms matches nothing",
			terms: nil,
			want: map[string][]string{
				"acme lançamento":     {},
				"final do campeonato": {},
				"previsão do tempo":   {},
			},
		},
		{
			name:  "titles and headlines are matched",
			terms: []string{"Acme", "Globex", "São Paulo"},
			want: map[string][]string{
				"acme lançamento":     {"Acme", "São Paulo"},
				"final do campeonato": {},
				"previsão do tempo":   {"Globex"},
			},
		},
		{
			name:  "exclusion vetoes the item",
			terms: []string{"Globex", "-chuva"},
			want: map[string][]string{
				"acme lançamento":     {},
				"final do campeonato": {},
				"previsão do tempo":   {},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make(map[string][]string)
			for _, ts := range TrendingSearches(feed.Items, tt.terms, now) {
				got[ts.Title] = ts.MatchedTerms
				if !ts.FetchedAt.Equal(now) {
					t.Errorf("%s fetched at %v, want %v", ts.Title, ts.FetchedAt, now)
				}
				if ts.PublishedAt == nil || ts.ID == "" {
					t.Errorf("%s missing published date or id", ts.Title)
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("matched terms mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
