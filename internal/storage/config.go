package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

const (
	keySearchTerms         = "search_terms"
	keyHistoricalStartDate = "historical_start_date"
)

func (s *SQLite) getConfig(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM platform_config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read config %s: %w", key, err)
	}
	return v, true, nil
}

func (s *SQLite) setConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO platform_config (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("write config %s: %w", key, err)
	}
	return nil
}

// GetSearchTerms returns the configured search terms, empty when never saved.
func (s *SQLite) GetSearchTerms(ctx context.Context) (model.SearchTerms, error) {
	var terms model.SearchTerms
	raw, ok, err := s.getConfig(ctx, keySearchTerms)
	if err != nil || !ok {
		return terms, err
	}
	if err := json.Unmarshal([]byte(raw), &terms); err != nil {
		return terms, fmt.Errorf("decode search terms: %w", err)
	}
	return terms, nil
}

// SaveSearchTerms replaces the configured search terms.
func (s *SQLite) SaveSearchTerms(ctx context.Context, terms model.SearchTerms) error {
	b, err := json.Marshal(terms)
	if err != nil {
		return fmt.Errorf("encode search terms: %w", err)
	}
	return s.setConfig(ctx, keySearchTerms, string(b))
}

// GetHistoricalStartDate returns the historical backfill boundary, nil when unset.
func (s *SQLite) GetHistoricalStartDate(ctx context.Context) (*time.Time, error) {
	raw, ok, err := s.getConfig(ctx, keyHistoricalStartDate)
	if err != nil || !ok {
		return nil, err
	}
	day, err := model.ParseDay(raw)
	if err != nil {
		return nil, fmt.Errorf("parse historical start date: %w", err)
	}
	return &day, nil
}

// SetHistoricalStartDate stores the historical backfill boundary.
func (s *SQLite) SetHistoricalStartDate(ctx context.Context, day time.Time) error {
	return s.setConfig(ctx, keyHistoricalStartDate, formatDay(day))
}
