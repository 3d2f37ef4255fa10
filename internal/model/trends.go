package model

import "time"

// TrendTerm is a Google Trends term under watch.
type TrendTerm struct {
	ID        string    `json:"id"`
	Term      string    `json:"term"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// TrendPoint is one day of search interest for a term.
type TrendPoint struct {
	Term  string `json:"term"`
	Date  string `json:"date"`
	Value int    `json:"value"`
}

// TrendingSearch is an item of the daily trending searches feed.
type TrendingSearch struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	ApproxTraffic string     `json:"approx_traffic,omitempty"`
	Link          string     `json:"link,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	MatchedTerms  []string   `json:"matched_terms"`
	FetchedAt     time.Time  `json:"fetched_at"`
}
