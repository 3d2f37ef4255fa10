package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// CreateProfile registers a monitored profile keyed by its username.
func (s *SQLite) CreateProfile(ctx context.Context, p *model.MonitoredProfile) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitored_profiles (username, type, is_active, last_scanned_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(username) DO NOTHING`,
		p.Username, string(p.Type), boolToInt(p.IsActive), nullTime(p.LastScannedAt),
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	if err := conflictIfUnchanged(res, "insert profile"); err != nil {
		return err
	}
	p.ID = p.Username
	return nil
}

// GetProfile returns a monitored profile by username.
func (s *SQLite) GetProfile(ctx context.Context, username string) (*model.MonitoredProfile, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT username, type, is_active, last_scanned_at FROM monitored_profiles WHERE username = ?`, username)
	p, err := scanProfile(row)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProfiles returns every monitored profile ordered by username.
func (s *SQLite) ListProfiles(ctx context.Context) ([]model.MonitoredProfile, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT username, type, is_active, last_scanned_at FROM monitored_profiles ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.MonitoredProfile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetProfileActive toggles monitoring of a profile.
func (s *SQLite) SetProfileActive(ctx context.Context, username string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitored_profiles SET is_active = ? WHERE username = ?`, boolToInt(active), username)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return rowsAffected(res, "update profile")
}

// DeleteProfile removes a monitored profile.
func (s *SQLite) DeleteProfile(ctx context.Context, username string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitored_profiles WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return rowsAffected(res, "delete profile")
}

// CreateHashtag registers a monitored hashtag keyed by its name.
func (s *SQLite) CreateHashtag(ctx context.Context, h *model.MonitoredHashtag) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO monitored_hashtags (hashtag, is_active, last_scanned_at) VALUES (?, ?, ?)
		 ON CONFLICT(hashtag) DO NOTHING`,
		h.Hashtag, boolToInt(h.IsActive), nullTime(h.LastScannedAt),
	)
	if err != nil {
		return fmt.Errorf("insert hashtag: %w", err)
	}
	if err := conflictIfUnchanged(res, "insert hashtag"); err != nil {
		return err
	}
	h.ID = h.Hashtag
	return nil
}

// GetHashtag returns a monitored hashtag by name.
func (s *SQLite) GetHashtag(ctx context.Context, hashtag string) (*model.MonitoredHashtag, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT hashtag, is_active, last_scanned_at FROM monitored_hashtags WHERE hashtag = ?`, hashtag)
	h, err := scanHashtag(row)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// ListHashtags returns every monitored hashtag ordered by name.
func (s *SQLite) ListHashtags(ctx context.Context) ([]model.MonitoredHashtag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hashtag, is_active, last_scanned_at FROM monitored_hashtags ORDER BY hashtag`)
	if err != nil {
		return nil, fmt.Errorf("query hashtags: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.MonitoredHashtag
	for rows.Next() {
		h, err := scanHashtag(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// SetHashtagActive toggles monitoring of a hashtag.
func (s *SQLite) SetHashtagActive(ctx context.Context, hashtag string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE monitored_hashtags SET is_active = ? WHERE hashtag = ?`, boolToInt(active), hashtag)
	if err != nil {
		return fmt.Errorf("update hashtag: %w", err)
	}
	return rowsAffected(res, "update hashtag")
}

// DeleteHashtag removes a monitored hashtag.
func (s *SQLite) DeleteHashtag(ctx context.Context, hashtag string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitored_hashtags WHERE hashtag = ?`, hashtag)
	if err != nil {
		return fmt.Errorf("delete hashtag: %w", err)
	}
	return rowsAffected(res, "delete hashtag")
}

// CreateServiceAccount inserts a service account. Usernames are unique.
func (s *SQLite) CreateServiceAccount(ctx context.Context, a *model.ServiceAccount) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO service_accounts (id, username, status, secret_path, last_used_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(username) DO NOTHING`,
		a.ID, a.Username, a.Status, a.SecretPath, nullTime(a.LastUsedAt), formatTime(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert service account: %w", err)
	}
	return conflictIfUnchanged(res, "insert service account")
}

// GetServiceAccount returns a service account by ID.
func (s *SQLite) GetServiceAccount(ctx context.Context, id string) (*model.ServiceAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, username, status, secret_path, last_used_at, created_at FROM service_accounts WHERE id = ?`, id)
	a, err := scanServiceAccount(row)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListServiceAccounts returns every service account ordered by username.
func (s *SQLite) ListServiceAccounts(ctx context.Context) ([]model.ServiceAccount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, status, secret_path, last_used_at, created_at FROM service_accounts ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("query service accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ServiceAccount
	for rows.Next() {
		a, err := scanServiceAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpdateServiceAccountSession points an account at a new session secret version.
func (s *SQLite) UpdateServiceAccountSession(ctx context.Context, id, secretPath, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE service_accounts SET secret_path = ?, status = ? WHERE id = ?`, secretPath, status, id)
	if err != nil {
		return fmt.Errorf("update service account: %w", err)
	}
	return rowsAffected(res, "update service account")
}

// DeleteServiceAccount removes a service account record.
func (s *SQLite) DeleteServiceAccount(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM service_accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete service account: %w", err)
	}
	return rowsAffected(res, "delete service account")
}

// UpsertPosts writes collected posts, replacing previous versions.
func (s *SQLite) UpsertPosts(ctx context.Context, posts []model.InstagramPost) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range posts {
		tags := make([]string, len(p.MonitoredHashtags))
		for i, t := range p.MonitoredHashtags {
			tags[i] = strings.TrimPrefix(t, "#")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instagram_posts (id, owner_username, caption, typename, likes_count, comments_count,
				post_date, monitored_hashtags, entities, sentiment_score)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET owner_username = excluded.owner_username, caption = excluded.caption,
				typename = excluded.typename, likes_count = excluded.likes_count,
				comments_count = excluded.comments_count, post_date = excluded.post_date,
				monitored_hashtags = excluded.monitored_hashtags, entities = excluded.entities,
				sentiment_score = excluded.sentiment_score`,
			p.ID, p.OwnerUsername, p.Caption, p.Typename, p.LikesCount, p.CommentsCount, formatTime(p.PostDate),
			encodeStrings(tags), encodeStrings(p.Entities), nullFloat(p.SentimentScore),
		); err != nil {
			return fmt.Errorf("upsert post %s: %w", p.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertComments writes collected comments, replacing previous versions.
func (s *SQLite) UpsertComments(ctx context.Context, comments []model.InstagramComment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range comments {
		var followers any
		if c.OwnerFollowers != nil {
			followers = *c.OwnerFollowers
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instagram_comments (id, post_id, owner_username, owner_followers, text, comment_date,
				sentiment_score, entities)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET post_id = excluded.post_id, owner_username = excluded.owner_username,
				owner_followers = excluded.owner_followers, text = excluded.text,
				comment_date = excluded.comment_date, sentiment_score = excluded.sentiment_score,
				entities = excluded.entities`,
			c.ID, c.PostID, c.OwnerUsername, followers, c.Text, formatTime(c.CommentDate),
			nullFloat(c.SentimentScore), encodeStrings(c.Entities),
		); err != nil {
			return fmt.Errorf("upsert comment %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// UpsertStories writes collected stories, replacing previous versions.
func (s *SQLite) UpsertStories(ctx context.Context, stories []model.InstagramStory) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range stories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO instagram_stories (id, owner_username, typename, media_url, story_date)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET owner_username = excluded.owner_username, typename = excluded.typename,
				media_url = excluded.media_url, story_date = excluded.story_date`,
			st.ID, st.OwnerUsername, st.Typename, st.MediaURL, formatTime(st.StoryDate),
		); err != nil {
			return fmt.Errorf("upsert story %s: %w", st.ID, err)
		}
	}
	return tx.Commit()
}

var postOrderColumns = map[string]string{
	"":               "post_date",
	"post_date":      "post_date",
	"likes_count":    "likes_count",
	"comments_count": "comments_count",
}

// ListPosts returns posts matching q.
func (s *SQLite) ListPosts(ctx context.Context, q PostQuery) ([]model.InstagramPost, error) {
	order, ok := postOrderColumns[q.OrderBy]
	if !ok {
		return nil, fmt.Errorf("unsupported order column %q", q.OrderBy)
	}
	var (
		where []string
		args  []any
	)
	if q.Owner != "" {
		where = append(where, "owner_username = ?")
		args = append(args, q.Owner)
	}
	if q.Hashtag != "" {
		where = append(where, "EXISTS (SELECT 1 FROM json_each(monitored_hashtags) WHERE value = ?)")
		args = append(args, strings.TrimPrefix(q.Hashtag, "#"))
	}
	if !q.From.IsZero() {
		where = append(where, "post_date >= ?")
		args = append(args, formatTime(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "post_date <= ?")
		args = append(args, formatTime(q.To))
	}
	query := `SELECT id, owner_username, caption, typename, likes_count, comments_count, post_date,
		monitored_hashtags, entities, sentiment_score FROM instagram_posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + order
	if q.Desc {
		query += " DESC"
	}
	query += ", id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InstagramPost
	for rows.Next() {
		var (
			p                model.InstagramPost
			date, tags, ents string
			score            sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.OwnerUsername, &p.Caption, &p.Typename, &p.LikesCount, &p.CommentsCount,
			&date, &tags, &ents, &score); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.PostDate = parseTime(date)
		p.MonitoredHashtags = decodeStrings(tags)
		p.Entities = decodeStrings(ents)
		p.SentimentScore = parseNullFloat(score)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListComments returns comments matching q ordered by date.
func (s *SQLite) ListComments(ctx context.Context, q CommentQuery) ([]model.InstagramComment, error) {
	var (
		where []string
		args  []any
	)
	if len(q.PostIDs) > 0 {
		where = append(where, "post_id IN ("+placeholders(len(q.PostIDs))+")")
		for _, id := range q.PostIDs {
			args = append(args, id)
		}
	}
	if !q.From.IsZero() {
		where = append(where, "comment_date >= ?")
		args = append(args, formatTime(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, "comment_date <= ?")
		args = append(args, formatTime(q.To))
	}
	query := `SELECT id, post_id, owner_username, owner_followers, text, comment_date, sentiment_score, entities
		FROM instagram_comments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY comment_date, id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InstagramComment
	for rows.Next() {
		var (
			c          model.InstagramComment
			followers  sql.NullInt64
			date, ents string
			score      sql.NullFloat64
		)
		if err := rows.Scan(&c.ID, &c.PostID, &c.OwnerUsername, &followers, &c.Text, &date, &score, &ents); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		if followers.Valid {
			f := int(followers.Int64)
			c.OwnerFollowers = &f
		}
		c.CommentDate = parseTime(date)
		c.SentimentScore = parseNullFloat(score)
		c.Entities = decodeStrings(ents)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListStories returns stories posted in [from, to], newest first.
func (s *SQLite) ListStories(ctx context.Context, from, to time.Time) ([]model.InstagramStory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_username, typename, media_url, story_date FROM instagram_stories
		 WHERE story_date >= ? AND story_date <= ? ORDER BY story_date DESC, id`,
		formatTime(from), formatTime(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query stories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.InstagramStory
	for rows.Next() {
		var (
			st   model.InstagramStory
			date string
		)
		if err := rows.Scan(&st.ID, &st.OwnerUsername, &st.Typename, &st.MediaURL, &date); err != nil {
			return nil, fmt.Errorf("scan story: %w", err)
		}
		st.StoryDate = parseTime(date)
		out = append(out, st)
	}
	return out, rows.Err()
}

func conflictIfUnchanged(res sql.Result, what string) error {
	if err := rowsAffected(res, what); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		return err
	}
	return nil
}

func scanProfile(row scannable) (model.MonitoredProfile, error) {
	var (
		p       model.MonitoredProfile
		typ     string
		active  int
		scanned sql.NullString
	)
	err := row.Scan(&p.Username, &typ, &active, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("scan profile: %w", err)
	}
	p.ID = p.Username
	p.Type = model.ProfileType(typ)
	p.IsActive = active == 1
	p.LastScannedAt = parseNullTime(scanned)
	return p, nil
}

func scanHashtag(row scannable) (model.MonitoredHashtag, error) {
	var (
		h       model.MonitoredHashtag
		active  int
		scanned sql.NullString
	)
	err := row.Scan(&h.Hashtag, &active, &scanned)
	if errors.Is(err, sql.ErrNoRows) {
		return h, ErrNotFound
	}
	if err != nil {
		return h, fmt.Errorf("scan hashtag: %w", err)
	}
	h.ID = h.Hashtag
	h.IsActive = active == 1
	h.LastScannedAt = parseNullTime(scanned)
	return h, nil
}

func scanServiceAccount(row scannable) (model.ServiceAccount, error) {
	var (
		a        model.ServiceAccount
		lastUsed sql.NullString
		created  string
	)
	err := row.Scan(&a.ID, &a.Username, &a.Status, &a.SecretPath, &lastUsed, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return a, ErrNotFound
	}
	if err != nil {
		return a, fmt.Errorf("scan service account: %w", err)
	}
	a.LastUsedAt = parseNullTime(lastUsed)
	a.CreatedAt = parseTime(created)
	return a, nil
}
