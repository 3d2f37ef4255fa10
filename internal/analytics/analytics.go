// Package analytics aggregates analyzed search results into the dashboard
// views: mention volume against search interest, KPIs, the entity cloud and
// the paged mention table.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// ErrInvalidQuery is returned for out-of-range query parameters.
var ErrInvalidQuery = errors.New("invalid analytics query")

const (
	maxDays          = 365
	maxEntities      = 50
	defaultSentiment = "neutro"
)

// Store is the persistence the analytics views read.
type Store interface {
	ListAnalyzedResults(ctx context.Context, group model.SearchGroup, from, to time.Time) ([]model.Result, error)
	GetSearchTerms(ctx context.Context) (model.SearchTerms, error)
	ListTrendPoints(ctx context.Context, term string, from, to time.Time) ([]model.TrendPoint, error)
}

// DataPoint is one day of a time series.
type DataPoint struct {
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// CombinedView pairs daily mention volume with daily search interest.
type CombinedView struct {
	MentionsOverTime []DataPoint `json:"mentions_over_time"`
	TrendsOverTime   []DataPoint `json:"trends_over_time"`
}

// KPIs are the headline numbers of a period.
type KPIs struct {
	TotalMentions    int     `json:"total_mentions"`
	AverageSentiment float64 `json:"average_sentiment"`
}

// Entity is one word of the entity cloud.
type Entity struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Mention is one row of the mention table.
type Mention struct {
	Link           string     `json:"link"`
	Title          string     `json:"title"`
	Snippet        string     `json:"snippet"`
	PublishDate    *time.Time `json:"publish_date"`
	Sentiment      string     `json:"sentiment"`
	SentimentScore float64    `json:"sentiment_score"`
}

// MentionsPage is a page of the mention table.
type MentionsPage struct {
	TotalPages int       `json:"total_pages"`
	Mentions   []Mention `json:"mentions"`
}

// MentionsQuery selects a page of mentions.
type MentionsQuery struct {
	Group    model.SearchGroup
	Days     int
	Page     int
	PageSize int
	Entity   string
}

// Service computes the analytics views.
type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// New creates a Service.
func New(store Store, log *slog.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// SetClock overrides the time source (useful for testing).
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

func (s *Service) period(group model.SearchGroup, days int) (time.Time, time.Time, error) {
	if !group.Valid() {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown search group %q", ErrInvalidQuery, group)
	}
	if days < 1 || days > maxDays {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidQuery, maxDays)
	}
	end := s.now().UTC()
	return end.AddDate(0, 0, -days), end, nil
}

// CombinedView returns daily mention counts, zero-filled over the period, and
// the search interest of the group's first main term.
func (s *Service) CombinedView(ctx context.Context, group model.SearchGroup, days int) (CombinedView, error) {
	from, to, err := s.period(group, days)
	if err != nil {
		return CombinedView{}, err
	}

	var view CombinedView
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		results, err := s.store.ListAnalyzedResults(gctx, group, from, to)
		if err != nil {
			return err
		}
		view.MentionsOverTime = dailyCounts(results, from, to)
		return nil
	})
	g.Go(func() error {
		points, err := s.trendsOverTime(gctx, group, from, to)
		if err != nil {
			return err
		}
		view.TrendsOverTime = points
		return nil
	})
	if err := g.Wait(); err != nil {
		return CombinedView{}, fmt.Errorf("combined view: %w", err)
	}
	return view, nil
}

func dailyCounts(results []model.Result, from, to time.Time) []DataPoint {
	counts := make(map[string]int)
	for _, r := range results {
		if r.PublishDate != nil {
			counts[r.PublishDate.UTC().Format(model.DateLayout)]++
		}
	}
	var out []DataPoint
	last := model.Day(to, time.UTC)
	for d := model.Day(from, time.UTC); !d.After(last); d = d.AddDate(0, 0, 1) {
		key := d.Format(model.DateLayout)
		out = append(out, DataPoint{Date: key, Value: counts[key]})
	}
	return out
}

func (s *Service) trendsOverTime(ctx context.Context, group model.SearchGroup, from, to time.Time) ([]DataPoint, error) {
	terms, err := s.store.GetSearchTerms(ctx)
	if err != nil {
		return nil, err
	}
	main := terms.Group(group).MainTerms
	if len(main) == 0 {
		s.log.Debug("no main terms for trends view", "group", group)
		return []DataPoint{}, nil
	}
	points, err := s.store.ListTrendPoints(ctx, main[0], from, to)
	if err != nil {
		return nil, err
	}
	out := make([]DataPoint, 0, len(points))
	for _, p := range points {
		out = append(out, DataPoint{Date: p.Date, Value: p.Value})
	}
	return out, nil
}

// KPIs returns the number of analyzed mentions in the period and their
// average sentiment score rounded to two decimals.
func (s *Service) KPIs(ctx context.Context, group model.SearchGroup, days int) (KPIs, error) {
	from, to, err := s.period(group, days)
	if err != nil {
		return KPIs{}, err
	}
	results, err := s.store.ListAnalyzedResults(ctx, group, from, to)
	if err != nil {
		return KPIs{}, fmt.Errorf("kpis: %w", err)
	}
	if len(results) == 0 {
		return KPIs{}, nil
	}
	var sum float64
	for _, r := range results {
		if r.SentimentScore != nil {
			sum += *r.SentimentScore
		}
	}
	return KPIs{
		TotalMentions:    len(results),
		AverageSentiment: round2(sum / float64(len(results))),
	}, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// EntitiesCloud returns the most mentioned entities of the period, most
// frequent first.
func (s *Service) EntitiesCloud(ctx context.Context, group model.SearchGroup, days int) ([]Entity, error) {
	from, to, err := s.period(group, days)
	if err != nil {
		return nil, err
	}
	results, err := s.store.ListAnalyzedResults(ctx, group, from, to)
	if err != nil {
		return nil, fmt.Errorf("entities cloud: %w", err)
	}

	counts := make(map[string]int)
	for _, r := range results {
		for _, e := range r.Entities {
			if e != "" {
				counts[e]++
			}
		}
	}
	out := make([]Entity, 0, len(counts))
	for text, n := range counts {
		out = append(out, Entity{Text: text, Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > maxEntities {
		out = out[:maxEntities]
	}
	return out, nil
}

// Mentions returns a page of analyzed mentions, newest first, optionally
// restricted to results that carry an entity.
func (s *Service) Mentions(ctx context.Context, q MentionsQuery) (MentionsPage, error) {
	from, to, err := s.period(q.Group, q.Days)
	if err != nil {
		return MentionsPage{}, err
	}
	if q.Page < 1 || q.PageSize < 1 || q.PageSize > 100 {
		return MentionsPage{}, fmt.Errorf("%w: page must be positive and page_size between 1 and 100", ErrInvalidQuery)
	}
	results, err := s.store.ListAnalyzedResults(ctx, q.Group, from, to)
	if err != nil {
		return MentionsPage{}, fmt.Errorf("mentions: %w", err)
	}

	if q.Entity != "" {
		filtered := results[:0]
		for _, r := range results {
			if hasEntity(r, q.Entity) {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	page := MentionsPage{
		TotalPages: (len(results) + q.PageSize - 1) / q.PageSize,
		Mentions:   []Mention{},
	}
	start := (q.Page - 1) * q.PageSize
	if start >= len(results) {
		return page, nil
	}
	end := min(start+q.PageSize, len(results))
	for _, r := range results[start:end] {
		page.Mentions = append(page.Mentions, toMention(r))
	}
	return page, nil
}

func hasEntity(r model.Result, entity string) bool {
	for _, e := range r.Entities {
		if e == entity {
			return true
		}
	}
	return false
}

func toMention(r model.Result) Mention {
	m := Mention{
		Link:        r.Link,
		Title:       r.Title,
		Snippet:     r.Snippet,
		PublishDate: r.PublishDate,
		Sentiment:   r.Sentiment,
	}
	if m.Sentiment == "" {
		m.Sentiment = defaultSentiment
	}
	if r.SentimentScore != nil {
		m.SentimentScore = *r.SentimentScore
	}
	return m
}
