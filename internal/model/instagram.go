package model

import "time"

// ProfileType categorizes a monitored Instagram profile.
type ProfileType string

// Profile types.
const (
	ProfileParliamentarian ProfileType = "parlamentar"
	ProfileCompetitor      ProfileType = "concorrente"
	ProfileMedia           ProfileType = "midia"
)

// MonitoredProfile is an Instagram profile targeted by the scraper.
type MonitoredProfile struct {
	ID            string      `json:"id"`
	Username      string      `json:"username"`
	Type          ProfileType `json:"type"`
	IsActive      bool        `json:"is_active"`
	LastScannedAt *time.Time  `json:"last_scanned_at"`
}

// MonitoredHashtag is an Instagram hashtag targeted by the scraper.
type MonitoredHashtag struct {
	ID            string     `json:"id"`
	Hashtag       string     `json:"hashtag"`
	IsActive      bool       `json:"is_active"`
	LastScannedAt *time.Time `json:"last_scanned_at"`
}

// Service account states.
const (
	AccountActive         = "active"
	AccountSessionExpired = "session_expired"
)

// ServiceAccount is an Instagram login used by the scraper.
type ServiceAccount struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	Status     string     `json:"status"`
	SecretPath string     `json:"secret_path,omitempty"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

// InstagramPost is a collected post.
type InstagramPost struct {
	ID                string    `json:"id" validate:"required"`
	OwnerUsername     string    `json:"owner_username" validate:"required"`
	Caption           string    `json:"caption"`
	Typename          string    `json:"typename"`
	LikesCount        int       `json:"likes_count" validate:"gte=0"`
	CommentsCount     int       `json:"comments_count" validate:"gte=0"`
	PostDate          time.Time `json:"post_date_utc" validate:"required"`
	MonitoredHashtags []string  `json:"monitored_hashtags,omitempty"`
	Entities          []string  `json:"entities,omitempty"`
	SentimentScore    *float64  `json:"sentiment_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
}

// Engagement is likes plus comments.
func (p InstagramPost) Engagement() int {
	return p.LikesCount + p.CommentsCount
}

// InstagramComment is a comment on a collected post.
type InstagramComment struct {
	ID             string    `json:"id" validate:"required"`
	PostID         string    `json:"post_id" validate:"required"`
	OwnerUsername  string    `json:"owner_username"`
	OwnerFollowers *int      `json:"owner_followers,omitempty"`
	Text           string    `json:"text"`
	CommentDate    time.Time `json:"comment_date_utc" validate:"required"`
	SentimentScore *float64  `json:"sentiment_score,omitempty" validate:"omitempty,gte=-1,lte=1"`
	Entities       []string  `json:"entities,omitempty"`
}

// InstagramStory is a collected story.
type InstagramStory struct {
	ID            string    `json:"id" validate:"required"`
	OwnerUsername string    `json:"owner_username" validate:"required"`
	Typename      string    `json:"typename"`
	MediaURL      string    `json:"media_url,omitempty" validate:"omitempty,url"`
	StoryDate     time.Time `json:"story_date_utc" validate:"required"`
}
