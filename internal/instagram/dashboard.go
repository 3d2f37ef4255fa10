// Package instagram serves the Instagram dashboards over collected posts,
// comments and stories, accepts content from the scraper and manages the
// scraper's service accounts.
package instagram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/storage"
)

// ErrInvalidQuery is returned for unsupported dashboard parameters.
var ErrInvalidQuery = errors.New("invalid dashboard query")

// Comment sentiment thresholds.
const (
	positiveThreshold = 0.25
	negativeThreshold = -0.25
)

// Alert rules.
const (
	opportunityFactor     = 3
	crisisMinComments     = 50
	crisisSentiment       = -0.3
	crisisCommentSample   = 100
	engagementBaseline    = 7 * 24 * time.Hour
	dashboardWindow       = 24 * time.Hour
	maxTopTerms           = 50
	maxDashboardDays      = 365
	maxDashboardListLimit = 100
)

// Alert kinds.
const (
	AlertOpportunity = "opportunity"
	AlertCrisis      = "crisis"
)

// Commenter kinds.
const (
	Supporters = "supporter"
	Detractors = "detractor"
)

// Store is the persistence the dashboards read.
type Store interface {
	ListPosts(ctx context.Context, q storage.PostQuery) ([]model.InstagramPost, error)
	ListComments(ctx context.Context, q storage.CommentQuery) ([]model.InstagramComment, error)
	ListStories(ctx context.Context, from, to time.Time) ([]model.InstagramStory, error)
}

// KPIs are the totals of the last 24 hours.
type KPIs struct {
	TotalPosts    int `json:"total_posts"`
	TotalLikes    int `json:"total_likes"`
	TotalComments int `json:"total_comments"`
}

// SentimentBalance counts comments by sentiment.
type SentimentBalance struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
	Neutral  int `json:"neutral"`
}

// Term is one word of the term cloud.
type Term struct {
	Text  string `json:"text"`
	Value int    `json:"value"`
}

// Alert flags a post that needs attention.
type Alert struct {
	Type    string         `json:"type"`
	PostID  string         `json:"post_id"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

// Evolution is a profile's daily likes and comments.
type Evolution struct {
	Labels         []string `json:"labels"`
	LikesSeries    []int    `json:"likes_series"`
	CommentsSeries []int    `json:"comments_series"`
}

// ContentPerformance summarizes the posts of one content type.
type ContentPerformance struct {
	AvgLikes    float64 `json:"avg_likes"`
	AvgComments float64 `json:"avg_comments"`
	PostCount   int     `json:"post_count"`
}

// Commenter is a user and how many qualifying comments they left.
type Commenter struct {
	Username     string `json:"username"`
	CommentCount int    `json:"comment_count"`
}

// HeadToHead compares the daily engagement of several profiles.
type HeadToHead struct {
	Labels []string         `json:"labels"`
	Series map[string][]int `json:"series"`
}

// Dashboard computes the Instagram dashboard views.
type Dashboard struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
}

// NewDashboard creates a Dashboard.
func NewDashboard(store Store, log *slog.Logger) *Dashboard {
	return &Dashboard{store: store, log: log, now: time.Now}
}

// SetClock overrides the time source (useful for testing).
func (d *Dashboard) SetClock(now func() time.Time) {
	d.now = now
}

func (d *Dashboard) lastDay() (time.Time, time.Time) {
	to := d.now().UTC()
	return to.Add(-dashboardWindow), to
}

// KPIs24h returns post, like and comment totals of the last 24 hours.
func (d *Dashboard) KPIs24h(ctx context.Context) (KPIs, error) {
	from, to := d.lastDay()
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{From: from, To: to})
	if err != nil {
		return KPIs{}, fmt.Errorf("kpis: %w", err)
	}
	k := KPIs{TotalPosts: len(posts)}
	for _, p := range posts {
		k.TotalLikes += p.LikesCount
		k.TotalComments += p.CommentsCount
	}
	return k, nil
}

// Stories24h returns the stories of the last 24 hours, newest first.
func (d *Dashboard) Stories24h(ctx context.Context) ([]model.InstagramStory, error) {
	from, to := d.lastDay()
	stories, err := d.store.ListStories(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("stories: %w", err)
	}
	if stories == nil {
		stories = []model.InstagramStory{}
	}
	return stories, nil
}

// SentimentBalance24h classifies the comments of the last 24 hours. Comments
// without a score count as neutral.
func (d *Dashboard) SentimentBalance24h(ctx context.Context) (SentimentBalance, error) {
	from, to := d.lastDay()
	comments, err := d.store.ListComments(ctx, storage.CommentQuery{From: from, To: to})
	if err != nil {
		return SentimentBalance{}, fmt.Errorf("sentiment balance: %w", err)
	}
	var b SentimentBalance
	for _, c := range comments {
		switch {
		case c.SentimentScore == nil:
			b.Neutral++
		case *c.SentimentScore > positiveThreshold:
			b.Positive++
		case *c.SentimentScore < negativeThreshold:
			b.Negative++
		default:
			b.Neutral++
		}
	}
	return b, nil
}

// TopTerms24h returns the most frequent entities across the posts and
// comments of the last 24 hours.
func (d *Dashboard) TopTerms24h(ctx context.Context) ([]Term, error) {
	from, to := d.lastDay()
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("top terms: %w", err)
	}
	comments, err := d.store.ListComments(ctx, storage.CommentQuery{From: from, To: to})
	if err != nil {
		return nil, fmt.Errorf("top terms: %w", err)
	}

	counts := make(map[string]int)
	for _, p := range posts {
		countEntities(counts, p.Entities)
	}
	for _, c := range comments {
		countEntities(counts, c.Entities)
	}
	return topTerms(counts, maxTopTerms), nil
}

func countEntities(counts map[string]int, entities []string) {
	for _, e := range entities {
		if e = strings.TrimSpace(e); e != "" {
			counts[e]++
		}
	}
}

func topTerms(counts map[string]int, limit int) []Term {
	out := make([]Term, 0, len(counts))
	for text, n := range counts {
		out = append(out, Term{Text: text, Value: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Text < out[j].Text
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Alerts24h flags posts of the last 24 hours whose engagement is well above
// the 7-day average, and heavily commented posts with negative sentiment.
func (d *Dashboard) Alerts24h(ctx context.Context) ([]Alert, error) {
	now := d.now().UTC()
	week, err := d.store.ListPosts(ctx, storage.PostQuery{From: now.Add(-engagementBaseline), To: now})
	if err != nil {
		return nil, fmt.Errorf("alerts: %w", err)
	}
	var avg float64
	if len(week) > 0 {
		total := 0
		for _, p := range week {
			total += p.Engagement()
		}
		avg = float64(total) / float64(len(week))
	}

	alerts := []Alert{}
	from := now.Add(-dashboardWindow)
	for _, p := range week {
		if p.PostDate.Before(from) {
			continue
		}
		if avg > 0 && float64(p.Engagement()) > opportunityFactor*avg {
			alerts = append(alerts, Alert{
				Type:    AlertOpportunity,
				PostID:  p.ID,
				Message: fmt.Sprintf("Post by @%s has engagement %.1fx above the 7-day average.", p.OwnerUsername, float64(p.Engagement())/avg),
				Details: map[string]any{
					"engagement":         p.Engagement(),
					"average_engagement": round2(avg),
				},
			})
		}
		if p.CommentsCount <= crisisMinComments {
			continue
		}
		comments, err := d.store.ListComments(ctx, storage.CommentQuery{PostIDs: []string{p.ID}, Limit: crisisCommentSample})
		if err != nil {
			return nil, fmt.Errorf("alerts: %w", err)
		}
		score, ok := averageSentiment(comments)
		if ok && score < crisisSentiment {
			alerts = append(alerts, Alert{
				Type:    AlertCrisis,
				PostID:  p.ID,
				Message: fmt.Sprintf("Post by @%s has many negative comments.", p.OwnerUsername),
				Details: map[string]any{
					"comments_count":    p.CommentsCount,
					"average_sentiment": round2(score),
				},
			})
		}
	}
	return alerts, nil
}

func averageSentiment(comments []model.InstagramComment) (float64, bool) {
	var (
		sum float64
		n   int
	)
	for _, c := range comments {
		if c.SentimentScore != nil {
			sum += *c.SentimentScore
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (d *Dashboard) days(days int) ([]string, time.Time, time.Time, error) {
	if days < 1 || days > maxDashboardDays {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidQuery, maxDashboardDays)
	}
	to := d.now().UTC()
	first := model.Day(to.AddDate(0, 0, -days), time.UTC)
	labels := make([]string, 0, days+1)
	for day := first; !day.After(to); day = day.AddDate(0, 0, 1) {
		labels = append(labels, day.Format(model.DateLayout))
	}
	return labels, first, to, nil
}

func labelIndex(labels []string) map[string]int {
	idx := make(map[string]int, len(labels))
	for i, l := range labels {
		idx[l] = i
	}
	return idx
}

// EngagementEvolution returns the daily likes and comments of a profile's
// posts over the last days, one entry per calendar day.
func (d *Dashboard) EngagementEvolution(ctx context.Context, username string, days int) (Evolution, error) {
	labels, from, to, err := d.days(days)
	if err != nil {
		return Evolution{}, err
	}
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: username, From: from, To: to})
	if err != nil {
		return Evolution{}, fmt.Errorf("engagement evolution: %w", err)
	}
	ev := Evolution{
		Labels:         labels,
		LikesSeries:    make([]int, len(labels)),
		CommentsSeries: make([]int, len(labels)),
	}
	idx := labelIndex(labels)
	for _, p := range posts {
		if i, ok := idx[p.PostDate.UTC().Format(model.DateLayout)]; ok {
			ev.LikesSeries[i] += p.LikesCount
			ev.CommentsSeries[i] += p.CommentsCount
		}
	}
	return ev, nil
}

// PerformanceByContentType averages likes and comments per content type of a
// profile's posts.
func (d *Dashboard) PerformanceByContentType(ctx context.Context, username string) (map[string]ContentPerformance, error) {
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: username})
	if err != nil {
		return nil, fmt.Errorf("performance by content type: %w", err)
	}
	type totals struct{ likes, comments, n int }
	byType := make(map[string]*totals)
	for _, p := range posts {
		t, ok := byType[p.Typename]
		if !ok {
			t = &totals{}
			byType[p.Typename] = t
		}
		t.likes += p.LikesCount
		t.comments += p.CommentsCount
		t.n++
	}
	out := make(map[string]ContentPerformance, len(byType))
	for typename, t := range byType {
		out[typename] = ContentPerformance{
			AvgLikes:    round2(float64(t.likes) / float64(t.n)),
			AvgComments: round2(float64(t.comments) / float64(t.n)),
			PostCount:   t.n,
		}
	}
	return out, nil
}

var rankingColumns = map[string]bool{
	"likes_count":    true,
	"comments_count": true,
	"post_date":      true,
}

func checkLimit(limit int) error {
	if limit < 1 || limit > maxDashboardListLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", ErrInvalidQuery, maxDashboardListLimit)
	}
	return nil
}

// PostsRanking returns a profile's top posts by sortBy, highest first.
func (d *Dashboard) PostsRanking(ctx context.Context, username, sortBy string, limit int) ([]model.InstagramPost, error) {
	if !rankingColumns[sortBy] {
		return nil, fmt.Errorf("%w: unsupported sort_by %q", ErrInvalidQuery, sortBy)
	}
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: username, OrderBy: sortBy, Desc: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("posts ranking: %w", err)
	}
	return nonNilPosts(posts), nil
}

// TopCommenters returns the users who left the most positive (supporter) or
// negative (detractor) comments on a profile's posts.
func (d *Dashboard) TopCommenters(ctx context.Context, username, kind string, limit int) ([]Commenter, error) {
	var qualifies func(float64) bool
	switch kind {
	case Supporters:
		qualifies = func(s float64) bool { return s > positiveThreshold }
	case Detractors:
		qualifies = func(s float64) bool { return s < negativeThreshold }
	default:
		return nil, fmt.Errorf("%w: analysis_type must be %s or %s", ErrInvalidQuery, Supporters, Detractors)
	}
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: username})
	if err != nil {
		return nil, fmt.Errorf("top commenters: %w", err)
	}
	if len(posts) == 0 {
		return []Commenter{}, nil
	}
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	comments, err := d.store.ListComments(ctx, storage.CommentQuery{PostIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("top commenters: %w", err)
	}

	counts := make(map[string]int)
	for _, c := range comments {
		if c.OwnerUsername != "" && c.SentimentScore != nil && qualifies(*c.SentimentScore) {
			counts[c.OwnerUsername]++
		}
	}
	out := make([]Commenter, 0, len(counts))
	for _, t := range topTerms(counts, limit) {
		out = append(out, Commenter{Username: t.Text, CommentCount: t.Value})
	}
	return out, nil
}

// HeadToHeadEngagement returns the daily engagement of each profile over the
// last days.
func (d *Dashboard) HeadToHeadEngagement(ctx context.Context, profiles []string, days int) (HeadToHead, error) {
	profiles = cleanProfiles(profiles)
	if len(profiles) == 0 {
		return HeadToHead{}, fmt.Errorf("%w: at least one profile is required", ErrInvalidQuery)
	}
	labels, from, to, err := d.days(days)
	if err != nil {
		return HeadToHead{}, err
	}
	idx := labelIndex(labels)
	out := HeadToHead{Labels: labels, Series: make(map[string][]int, len(profiles))}
	for _, profile := range profiles {
		posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: profile, From: from, To: to})
		if err != nil {
			return HeadToHead{}, fmt.Errorf("head to head %s: %w", profile, err)
		}
		series := make([]int, len(labels))
		for _, p := range posts {
			if i, ok := idx[p.PostDate.UTC().Format(model.DateLayout)]; ok {
				series[i] += p.Engagement()
			}
		}
		out.Series[profile] = series
	}
	return out, nil
}

// ContentStrategyComparison counts each profile's posts per content type.
func (d *Dashboard) ContentStrategyComparison(ctx context.Context, profiles []string) (map[string]map[string]int, error) {
	profiles = cleanProfiles(profiles)
	if len(profiles) == 0 {
		return nil, fmt.Errorf("%w: at least one profile is required", ErrInvalidQuery)
	}
	out := make(map[string]map[string]int, len(profiles))
	for _, profile := range profiles {
		posts, err := d.store.ListPosts(ctx, storage.PostQuery{Owner: profile})
		if err != nil {
			return nil, fmt.Errorf("content strategy %s: %w", profile, err)
		}
		counts := make(map[string]int)
		for _, p := range posts {
			counts[p.Typename]++
		}
		out[profile] = counts
	}
	return out, nil
}

func cleanProfiles(profiles []string) []string {
	seen := make(map[string]bool, len(profiles))
	out := make([]string, 0, len(profiles))
	for _, p := range profiles {
		p = strings.TrimPrefix(strings.TrimSpace(p), "@")
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// HashtagFeed returns the newest posts collected for a hashtag.
func (d *Dashboard) HashtagFeed(ctx context.Context, hashtag string, limit int) ([]model.InstagramPost, error) {
	hashtag = strings.TrimPrefix(strings.TrimSpace(hashtag), "#")
	if hashtag == "" {
		return nil, fmt.Errorf("%w: hashtag is required", ErrInvalidQuery)
	}
	if err := checkLimit(limit); err != nil {
		return nil, err
	}
	posts, err := d.store.ListPosts(ctx, storage.PostQuery{Hashtag: hashtag, OrderBy: "post_date", Desc: true, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("hashtag feed: %w", err)
	}
	return nonNilPosts(posts), nil
}

func nonNilPosts(posts []model.InstagramPost) []model.InstagramPost {
	if posts == nil {
		return []model.InstagramPost{}
	}
	return posts
}
