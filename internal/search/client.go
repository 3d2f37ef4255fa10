// Package search wraps the Google Custom Search JSON API.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
	"google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// PageSize is the number of items Google returns per page.
const PageSize = 10

var (
	// ErrNotConfigured is returned when the API key or engine ID is missing.
	ErrNotConfigured = errors.New("search api credentials not configured")
	// ErrUpstream marks failures that persisted after retries.
	ErrUpstream = errors.New("search api unavailable")
)

// Item is a single search hit.
type Item struct {
	Link        string          `json:"link"`
	DisplayLink string          `json:"display_link"`
	Title       string          `json:"title"`
	Snippet     string          `json:"snippet"`
	HTMLSnippet string          `json:"html_snippet"`
	Pagemap     json.RawMessage `json:"pagemap,omitempty"`
}

// Options narrows a query in time. From and To restrict by publication date;
// DateRestrict uses Google's relative syntax ("d1" is the last 24 hours).
type Options struct {
	From         time.Time
	To           time.Time
	DateRestrict string
}

// Page is the outcome of one page request.
type Page struct {
	Number int
	Items  []Item
	Err    error
}

// Client calls the Custom Search API with pacing and retries.
type Client struct {
	svc        *customsearch.Service
	apiKey     string
	engineID   string
	limiter    *rate.Limiter
	backoff    time.Duration
	maxRetries uint64
}

type settings struct {
	httpClient *http.Client
	endpoint   string
	rps        float64
	backoff    time.Duration
	maxRetries uint64
}

// Option configures a Client.
type Option func(*settings)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.httpClient = c }
}

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(s *settings) { s.endpoint = url }
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(s *settings) { s.rps = rps }
}

// WithBackoff sets the initial retry delay and the number of retries for
// rate-limited and server errors.
func WithBackoff(base time.Duration, maxRetries uint64) Option {
	return func(s *settings) {
		s.backoff = base
		s.maxRetries = maxRetries
	}
}

// New creates a client for the given API key and search engine ID.
func New(ctx context.Context, apiKey, engineID string, opts ...Option) (*Client, error) {
	if apiKey == "" || engineID == "" {
		return nil, ErrNotConfigured
	}
	s := settings{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		rps:        2,
		backoff:    time.Second,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(&s)
	}

	clientOpts := []option.ClientOption{option.WithHTTPClient(s.httpClient)}
	if s.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.endpoint))
	}
	svc, err := customsearch.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create customsearch service: %w", err)
	}

	return &Client{
		svc:        svc,
		apiKey:     apiKey,
		engineID:   engineID,
		limiter:    rate.NewLimiter(rate.Limit(s.rps), 1),
		backoff:    s.backoff,
		maxRetries: s.maxRetries,
	}, nil
}

// Search fetches one zero-based page of results for query.
func (c *Client) Search(ctx context.Context, query string, page int, opts Options) ([]Item, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.fetch(ctx, query, page, opts)
}

// Paginate fetches up to maxPages pages of query in order, calling visit with
// every page that was requested, including a failed one. It stops after the
// first page without items, after a failure or when visit returns an error.
// The returned count is the number of requests sent to the API.
func (c *Client) Paginate(ctx context.Context, query string, maxPages int, opts Options, visit func(Page) error) (int, error) {
	if query == "" || maxPages <= 0 {
		return 0, nil
	}
	requests := 0
	for n := 0; n < maxPages; n++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return requests, err
		}
		items, err := c.fetch(ctx, query, n, opts)
		requests++
		if verr := visit(Page{Number: n, Items: items, Err: err}); verr != nil {
			return requests, verr
		}
		if err != nil {
			return requests, err
		}
		if len(items) == 0 {
			break
		}
	}
	return requests, nil
}

func (c *Client) fetch(ctx context.Context, query string, page int, opts Options) ([]Item, error) {
	call := c.svc.Cse.List().
		Cx(c.engineID).
		Q(query).
		Num(PageSize).
		Start(int64(1 + page*PageSize))
	if !opts.From.IsZero() && !opts.To.IsZero() {
		call = call.Sort(fmt.Sprintf("date:r:%s:%s", opts.From.Format("20060102"), opts.To.Format("20060102")))
	}
	if opts.DateRestrict != "" {
		call = call.DateRestrict(opts.DateRestrict)
	}

	var resp *customsearch.Search
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		r, err := call.Context(ctx).Do(googleapi.QueryParameter("key", c.apiKey))
		if err != nil {
			if retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		if retryable(err) {
			return nil, fmt.Errorf("search page %d: %w: %w", page, ErrUpstream, err)
		}
		return nil, fmt.Errorf("search page %d: %w", page, err)
	}

	items := make([]Item, 0, len(resp.Items))
	for _, r := range resp.Items {
		items = append(items, Item{
			Link:        r.Link,
			DisplayLink: r.DisplayLink,
			Title:       r.Title,
			Snippet:     r.Snippet,
			HTMLSnippet: r.HtmlSnippet,
			Pagemap:     json.RawMessage(r.Pagemap),
		})
	}
	return items, nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == http.StatusTooManyRequests || gerr.Code >= http.StatusInternalServerError
	}
	return true
}
