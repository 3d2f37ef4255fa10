package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// CreateTrendTerm inserts a trend term. Terms are unique.
func (s *SQLite) CreateTrendTerm(ctx context.Context, t *model.TrendTerm) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC().Truncate(time.Second)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trends_terms (id, term, is_active, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(term) DO NOTHING`,
		t.ID, t.Term, boolToInt(t.IsActive), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert trend term: %w", err)
	}
	if err := rowsAffected(res, "insert trend term"); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrConflict
		}
		return err
	}
	t.CreatedAt = now
	return nil
}

// GetTrendTerm returns a trend term by its ID.
func (s *SQLite) GetTrendTerm(ctx context.Context, id string) (*model.TrendTerm, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, term, is_active, created_at FROM trends_terms WHERE id = ?`, id)
	t, err := scanTrendTerm(row)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTrendTerms returns trend terms ordered alphabetically.
func (s *SQLite) ListTrendTerms(ctx context.Context, activeOnly bool) ([]model.TrendTerm, error) {
	q := `SELECT id, term, is_active, created_at FROM trends_terms`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY term`)
	if err != nil {
		return nil, fmt.Errorf("query trend terms: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var terms []model.TrendTerm
	for rows.Next() {
		t, err := scanTrendTerm(rows)
		if err != nil {
			return nil, err
		}
		terms = append(terms, t)
	}
	return terms, rows.Err()
}

// SetTrendTermActive toggles a trend term.
func (s *SQLite) SetTrendTermActive(ctx context.Context, id string, active bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE trends_terms SET is_active = ? WHERE id = ?`, boolToInt(active), id)
	if err != nil {
		return fmt.Errorf("update trend term: %w", err)
	}
	return rowsAffected(res, "update trend term")
}

// DeleteTrendTerm removes a trend term.
func (s *SQLite) DeleteTrendTerm(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM trends_terms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete trend term: %w", err)
	}
	return rowsAffected(res, "delete trend term")
}

// SaveTrendPoints upserts interest values keyed by term and day.
func (s *SQLite) SaveTrendPoints(ctx context.Context, points []model.TrendPoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range points {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trends_data (term, date, value) VALUES (?, ?, ?)
			 ON CONFLICT(term, date) DO UPDATE SET value = excluded.value`,
			p.Term, p.Date, p.Value,
		); err != nil {
			return fmt.Errorf("insert trend point: %w", err)
		}
	}
	return tx.Commit()
}

// ListTrendPoints returns the interest values of term between from and to, by day.
func (s *SQLite) ListTrendPoints(ctx context.Context, term string, from, to time.Time) ([]model.TrendPoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT term, date, value FROM trends_data WHERE term = ? AND date >= ? AND date <= ? ORDER BY date`,
		term, formatDay(from), formatDay(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query trend points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []model.TrendPoint
	for rows.Next() {
		var p model.TrendPoint
		if err := rows.Scan(&p.Term, &p.Date, &p.Value); err != nil {
			return nil, fmt.Errorf("scan trend point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// SaveTrendingSearch stores a trending search item unless its ID was seen
// before, reporting whether it was new.
func (s *SQLite) SaveTrendingSearch(ctx context.Context, ts *model.TrendingSearch) (bool, error) {
	if ts.FetchedAt.IsZero() {
		ts.FetchedAt = time.Now().UTC().Truncate(time.Second)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO trending_searches (id, title, approx_traffic, link, published_at, matched_terms, fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		ts.ID, ts.Title, ts.ApproxTraffic, ts.Link, nullTime(ts.PublishedAt), encodeStrings(ts.MatchedTerms),
		formatTime(ts.FetchedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert trending search: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("trending search rows affected: %w", err)
	}
	return n == 1, nil
}

// ListTrendingSearches returns the most recently fetched trending searches.
func (s *SQLite) ListTrendingSearches(ctx context.Context, matchedOnly bool, limit int) ([]model.TrendingSearch, error) {
	q := `SELECT id, title, approx_traffic, link, published_at, matched_terms, fetched_at FROM trending_searches`
	if matchedOnly {
		q += ` WHERE matched_terms <> '[]'`
	}
	q += ` ORDER BY fetched_at DESC, rowid DESC LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query trending searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TrendingSearch
	for rows.Next() {
		var (
			ts             model.TrendingSearch
			published      sql.NullString
			matched, fetch string
		)
		if err := rows.Scan(&ts.ID, &ts.Title, &ts.ApproxTraffic, &ts.Link, &published, &matched, &fetch); err != nil {
			return nil, fmt.Errorf("scan trending search: %w", err)
		}
		ts.PublishedAt = parseNullTime(published)
		ts.MatchedTerms = decodeStrings(matched)
		ts.FetchedAt = parseTime(fetch)
		out = append(out, ts)
	}
	return out, rows.Err()
}

func scanTrendTerm(row scannable) (model.TrendTerm, error) {
	var (
		t       model.TrendTerm
		active  int
		created string
	)
	err := row.Scan(&t.ID, &t.Term, &active, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	if err != nil {
		return t, fmt.Errorf("scan trend term: %w", err)
	}
	t.IsActive = active == 1
	t.CreatedAt = parseTime(created)
	return t, nil
}
