// Package fetcher downloads and parses the Google Trends daily trending feed.
package fetcher

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/filter"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// trendsNS is the namespace prefix of the Google Trends RSS extension.
const trendsNS = "ht"

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher downloads and parses RSS feeds.
type Fetcher struct {
	client  HTTPClient
	timeout time.Duration
}

// New creates a Fetcher with the given HTTP client.
func New(client HTTPClient) *Fetcher {
	return &Fetcher{
		client:  client,
		timeout: 30 * time.Second,
	}
}

// Fetch downloads and parses an RSS feed from the given URL.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "MonitoraMarcas/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return feed, nil
}

// ItemGUID returns the GUID for an RSS item.
// If the item has no GUID, a SHA-256 hash of title+publication day is used,
// since the trending feed repeats a title across its hourly refreshes.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	day := ""
	if item.PublishedParsed != nil {
		day = item.PublishedParsed.UTC().Format(model.DateLayout)
	}
	h := sha256.Sum256([]byte(strings.ToLower(item.Title) + "|" + day))
	return fmt.Sprintf("sha256:%x", h[:16])
}

// ApproxTraffic returns the ht:approx_traffic value of item, such as "20000+".
func ApproxTraffic(item *gofeed.Item) string {
	return extensionValue(item.Extensions, "approx_traffic")
}

// NewsTitles returns the titles of the news articles attached to item.
func NewsTitles(item *gofeed.Item) []string {
	var titles []string
	for _, news := range item.Extensions[trendsNS]["news_item"] {
		for _, t := range news.Children["news_item_title"] {
			if v := strings.TrimSpace(t.Value); v != "" {
				titles = append(titles, v)
			}
		}
	}
	return titles
}

func extensionValue(exts ext.Extensions, name string) string {
	for _, e := range exts[trendsNS][name] {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// TrendingSearches converts feed items into trending search records, matching
// each title and its news headlines against terms.
func TrendingSearches(items []*gofeed.Item, terms []string, now time.Time) []model.TrendingSearch {
	out := make([]model.TrendingSearch, 0, len(items))
	for _, item := range items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		matched := filter.MatchedTerms(filter.Item{
			Title:       title,
			Description: strings.Join(NewsTitles(item), "\n"),
		}, terms)
		if matched == nil {
			matched = []string{}
		}
		ts := model.TrendingSearch{
			ID:            ItemGUID(item),
			Title:         title,
			ApproxTraffic: ApproxTraffic(item),
			Link:          item.Link,
			MatchedTerms:  matched,
			FetchedAt:     now.UTC().Truncate(time.Second),
		}
		if item.PublishedParsed != nil {
			p := item.PublishedParsed.UTC()
			ts.PublishedAt = &p
		}
		out = append(out, ts)
	}
	return out
}
