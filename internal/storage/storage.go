// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a record with the same identity already exists.
	ErrConflict = errors.New("already exists")
)

// RunFilter narrows ListRuns. Zero values match everything.
type RunFilter struct {
	Group model.SearchGroup
	Type  model.SearchType
	Limit int
}

// PostQuery narrows ListPosts. Zero values match everything.
type PostQuery struct {
	Owner   string
	Hashtag string
	From    time.Time
	To      time.Time
	OrderBy string // post_date (default), likes_count or comments_count
	Desc    bool
	Limit   int
}

// CommentQuery narrows ListComments. Zero values match everything.
type CommentQuery struct {
	PostIDs []string
	From    time.Time
	To      time.Time
	Limit   int
}

// MonitorStore persists runs, results, request logs, quotas and the status flag.
type MonitorStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	FinishRun(ctx context.Context, id string, status model.RunStatus, total int, message string) error
	MarkRunInterrupted(ctx context.Context, id string, day time.Time) error
	ClearInterruptions(ctx context.Context) error
	InterruptedRun(ctx context.Context, lineage time.Time) (*model.Run, error)
	LineageRuns(ctx context.Context, lineage time.Time) ([]model.Run, error)
	ListRuns(ctx context.Context, f RunFilter) ([]model.Run, error)

	UpsertResults(ctx context.Context, results []model.Result) (int, error)
	InsertNewResults(ctx context.Context, results []model.Result) (int, error)
	ListResultsByRun(ctx context.Context, runIDs ...string) ([]model.Result, error)
	ListAnalyzedResults(ctx context.Context, group model.SearchGroup, from, to time.Time) ([]model.Result, error)
	UpdateResultAnalysis(ctx context.Context, id string, a model.ResultAnalysis) error

	CreateRequestLog(ctx context.Context, l *model.RequestLog) error
	ListRequestLogs(ctx context.Context, limit int) ([]model.RequestLog, error)
	CountRequestLogs(ctx context.Context) (int, error)

	QuotaCount(ctx context.Context, date string) (int, error)
	IncrementQuota(ctx context.Context, date string, n int) error

	GetSystemStatus(ctx context.Context) (*model.SystemStatus, error)
	TryAcquireStatus(ctx context.Context, task string, at time.Time) (bool, error)
	ForceStatusRunning(ctx context.Context, task string, at time.Time) error
	ReleaseStatus(ctx context.Context, message string, at time.Time) error

	CreateSystemLog(ctx context.Context, l *model.SystemLog) error
	ListSystemLogs(ctx context.Context, limit int) ([]model.SystemLog, error)

	PurgeMonitorData(ctx context.Context) (int64, error)
}

// ConfigStore persists the platform configuration documents.
type ConfigStore interface {
	GetSearchTerms(ctx context.Context) (model.SearchTerms, error)
	SaveSearchTerms(ctx context.Context, terms model.SearchTerms) error
	GetHistoricalStartDate(ctx context.Context) (*time.Time, error)
	SetHistoricalStartDate(ctx context.Context, day time.Time) error
}

// TrendsStore persists trend terms, interest data and trending searches.
type TrendsStore interface {
	CreateTrendTerm(ctx context.Context, t *model.TrendTerm) error
	GetTrendTerm(ctx context.Context, id string) (*model.TrendTerm, error)
	ListTrendTerms(ctx context.Context, activeOnly bool) ([]model.TrendTerm, error)
	SetTrendTermActive(ctx context.Context, id string, active bool) error
	DeleteTrendTerm(ctx context.Context, id string) error

	SaveTrendPoints(ctx context.Context, points []model.TrendPoint) error
	ListTrendPoints(ctx context.Context, term string, from, to time.Time) ([]model.TrendPoint, error)

	SaveTrendingSearch(ctx context.Context, ts *model.TrendingSearch) (bool, error)
	ListTrendingSearches(ctx context.Context, matchedOnly bool, limit int) ([]model.TrendingSearch, error)
}

// InstagramStore persists Instagram targets, accounts and collected content.
type InstagramStore interface {
	CreateProfile(ctx context.Context, p *model.MonitoredProfile) error
	GetProfile(ctx context.Context, username string) (*model.MonitoredProfile, error)
	ListProfiles(ctx context.Context) ([]model.MonitoredProfile, error)
	SetProfileActive(ctx context.Context, username string, active bool) error
	DeleteProfile(ctx context.Context, username string) error

	CreateHashtag(ctx context.Context, h *model.MonitoredHashtag) error
	GetHashtag(ctx context.Context, hashtag string) (*model.MonitoredHashtag, error)
	ListHashtags(ctx context.Context) ([]model.MonitoredHashtag, error)
	SetHashtagActive(ctx context.Context, hashtag string, active bool) error
	DeleteHashtag(ctx context.Context, hashtag string) error

	CreateServiceAccount(ctx context.Context, a *model.ServiceAccount) error
	GetServiceAccount(ctx context.Context, id string) (*model.ServiceAccount, error)
	ListServiceAccounts(ctx context.Context) ([]model.ServiceAccount, error)
	UpdateServiceAccountSession(ctx context.Context, id, secretPath, status string) error
	DeleteServiceAccount(ctx context.Context, id string) error

	UpsertPosts(ctx context.Context, posts []model.InstagramPost) error
	UpsertComments(ctx context.Context, comments []model.InstagramComment) error
	UpsertStories(ctx context.Context, stories []model.InstagramStory) error
	ListPosts(ctx context.Context, q PostQuery) ([]model.InstagramPost, error)
	ListComments(ctx context.Context, q CommentQuery) ([]model.InstagramComment, error)
	ListStories(ctx context.Context, from, to time.Time) ([]model.InstagramStory, error)
}

// UserStore persists the role registry.
type UserStore interface {
	CreateUser(ctx context.Context, u *model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	ListUsers(ctx context.Context) ([]model.User, error)
	DeleteUserByEmail(ctx context.Context, email string) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	MonitorStore
	ConfigStore
	TrendsStore
	InstagramStore
	UserStore

	Close() error
}
