// Package model defines the domain types shared across the application.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// DateLayout is the wire and storage format of calendar days.
const DateLayout = "2006-01-02"

// SearchGroup identifies one of the two monitored target groups.
type SearchGroup string

// Search groups.
const (
	GroupBrand       SearchGroup = "brand"
	GroupCompetitors SearchGroup = "competitors"
)

// Groups lists the target groups in collection order.
var Groups = []SearchGroup{GroupBrand, GroupCompetitors}

// Valid reports whether g is a known group.
func (g SearchGroup) Valid() bool {
	return g == GroupBrand || g == GroupCompetitors
}

// SearchType is the collection mode that produced a run.
type SearchType string

// Collection modes.
const (
	SearchRelevant   SearchType = "relevant"
	SearchHistorical SearchType = "historical"
	SearchContinuous SearchType = "continuous"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is one execution of a collection cycle for one group and one time unit.
type Run struct {
	ID                     string      `json:"id"`
	SearchTermsQuery       string      `json:"search_terms_query"`
	SearchGroup            SearchGroup `json:"search_group"`
	SearchType             SearchType  `json:"search_type"`
	TotalResultsFound      int         `json:"total_results_found"`
	CollectedAt            time.Time   `json:"collected_at"`
	Status                 RunStatus   `json:"status"`
	RangeStart             *time.Time  `json:"range_start,omitempty"`
	RangeEnd               *time.Time  `json:"range_end,omitempty"`
	LastInterruptionDate   *time.Time  `json:"last_interruption_date,omitempty"`
	HistoricalRunStartDate *time.Time  `json:"historical_run_start_date,omitempty"`
	Message                string      `json:"message,omitempty"`
}

// ResultStatus is the downstream pipeline stage of a result.
type ResultStatus string

// Pipeline stages.
const (
	ResultPending         ResultStatus = "pending"
	ResultReprocess       ResultStatus = "reprocess"
	ResultScraperFailed   ResultStatus = "scraper_failed"
	ResultScraperSkipped  ResultStatus = "scraper_skipped"
	ResultRelevanceFailed ResultStatus = "relevance_failed"
	ResultNLPOK           ResultStatus = "nlp_ok"
)

// OriginGoogleCSE tags results collected from Google Custom Search.
const OriginGoogleCSE = "google_cse"

// Result is one unique discovered URL.
type Result struct {
	ID             string          `json:"id"`
	Link           string          `json:"link"`
	DisplayLink    string          `json:"display_link"`
	Title          string          `json:"title"`
	Snippet        string          `json:"snippet"`
	HTMLSnippet    string          `json:"html_snippet"`
	Pagemap        json.RawMessage `json:"pagemap,omitempty"`
	RunID          string          `json:"run_id"`
	SearchGroup    SearchGroup     `json:"search_group"`
	Status         ResultStatus    `json:"status"`
	Origin         string          `json:"origin"`
	PublishDate    *time.Time      `json:"publish_date,omitempty"`
	Sentiment      string          `json:"sentiment,omitempty"`
	SentimentScore *float64        `json:"sentiment_score,omitempty"`
	Entities       []string        `json:"entities,omitempty"`
	CollectedAt    time.Time       `json:"collected_at"`
}

// ResultID derives the result identifier from its link.
func ResultID(link string) string {
	h := sha256.Sum256([]byte(link))
	return hex.EncodeToString(h[:])
}

// ResultAnalysis is the write-back of the external NLP pipeline.
type ResultAnalysis struct {
	Status         ResultStatus `json:"status" validate:"required,oneof=pending reprocess scraper_failed scraper_skipped relevance_failed nlp_ok"`
	PublishDate    *time.Time   `json:"publish_date"`
	Sentiment      string       `json:"sentiment"`
	SentimentScore *float64     `json:"sentiment_score" validate:"omitempty,gte=-1,lte=1"`
	Entities       []string     `json:"entities"`
}

// RequestLog records a single page fetched from the search API.
type RequestLog struct {
	ID           string      `json:"id"`
	RunID        string      `json:"run_id"`
	SearchGroup  SearchGroup `json:"search_group"`
	SearchType   SearchType  `json:"search_type"`
	Page         int         `json:"page"`
	ResultsCount int         `json:"results_count"`
	NewURLsSaved int         `json:"new_urls_saved"`
	Timestamp    time.Time   `json:"timestamp"`
	RangeStart   *time.Time  `json:"range_start,omitempty"`
	RangeEnd     *time.Time  `json:"range_end,omitempty"`
	Error        string      `json:"error,omitempty"`
}

// SystemStatus is the singleton lock and progress record.
type SystemStatus struct {
	IsMonitoringRunning bool       `json:"is_monitoring_running"`
	CurrentTask         string     `json:"current_task,omitempty"`
	TaskStartTime       *time.Time `json:"task_start_time,omitempty"`
	LastCompletionTime  *time.Time `json:"last_completion_time,omitempty"`
	Message             string     `json:"message,omitempty"`
}

// QuotaRecord is the per-day request counter.
type QuotaRecord struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// SystemLog is one entry of the background task history.
type SystemLog struct {
	ID             string    `json:"id"`
	Task           string    `json:"task"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ProcessedCount int       `json:"processed_count"`
	Status         string    `json:"status"`
}

// HistoricalStatus describes the progress of the historical backfill.
type HistoricalStatus struct {
	StartDate            *time.Time `json:"historical_start_date"`
	LastInterruptionDate *time.Time `json:"last_interruption_date"`
	InterruptedRunID     string     `json:"interrupted_run_id,omitempty"`
	NextDay              *time.Time `json:"next_day"`
	Completed            bool       `json:"completed"`
}

// Day truncates t to its calendar date in loc, returned as midnight UTC.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string into midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
