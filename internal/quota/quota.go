// Package quota tracks the daily budget of external search requests.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/CarlosSalesNaturalTec/monitora-marcas-backend/internal/model"
)

// Store is the persistence the ledger needs.
type Store interface {
	QuotaCount(ctx context.Context, date string) (int, error)
	IncrementQuota(ctx context.Context, date string, n int) error
}

// Ledger answers how many search requests remain today and records new ones.
// Days roll over at midnight in the configured location.
type Ledger struct {
	store Store
	max   int
	loc   *time.Location
	now   func() time.Time
}

// New creates a ledger allowing limit requests per day in loc.
func New(store Store, limit int, loc *time.Location) *Ledger {
	if loc == nil {
		loc = time.UTC
	}
	return &Ledger{store: store, max: limit, loc: loc, now: time.Now}
}

// SetClock replaces the time source.
func (l *Ledger) SetClock(now func() time.Time) {
	l.now = now
}

// Max returns the daily ceiling.
func (l *Ledger) Max() int {
	return l.max
}

// Today returns the current quota day as midnight UTC.
func (l *Ledger) Today() time.Time {
	return model.Day(l.now(), l.loc)
}

func (l *Ledger) key() string {
	return l.Today().Format(model.DateLayout)
}

// Used returns the number of requests recorded today.
func (l *Ledger) Used(ctx context.Context) (int, error) {
	n, err := l.store.QuotaCount(ctx, l.key())
	if err != nil {
		return 0, fmt.Errorf("read quota: %w", err)
	}
	return n, nil
}

// Remaining returns max minus today's count, never below zero.
func (l *Ledger) Remaining(ctx context.Context) (int, error) {
	used, err := l.Used(ctx)
	if err != nil {
		return 0, err
	}
	return max(0, l.max-used), nil
}

// Increment records n requests against today's counter.
func (l *Ledger) Increment(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}
	if err := l.store.IncrementQuota(ctx, l.key(), n); err != nil {
		return fmt.Errorf("increment quota: %w", err)
	}
	return nil
}

// Snapshot returns today's quota record.
func (l *Ledger) Snapshot(ctx context.Context) (model.QuotaRecord, error) {
	used, err := l.Used(ctx)
	if err != nil {
		return model.QuotaRecord{}, err
	}
	return model.QuotaRecord{Date: l.key(), Count: used}, nil
}
