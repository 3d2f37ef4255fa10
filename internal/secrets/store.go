// Package secrets keeps versioned secret payloads, such as Instagram session
// files, in an embedded Badger database.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// ErrNotFound is returned when a secret has no stored version.
var ErrNotFound = errors.New("secret not found")

// Version is one stored payload of a named secret.
type Version struct {
	Key       string `badgerhold:"key"`
	Name      string `badgerhold:"index"`
	Number    int
	Data      []byte
	CreatedAt time.Time
}

// Store is a versioned secret store.
type Store struct {
	db *badgerhold.Store
	mu sync.Mutex
}

// Open opens or creates the store in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create secrets directory: %w", err)
	}
	opts := badgerhold.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir
	opts.Logger = nil

	db, err := badgerhold.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open secrets store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SessionName is the secret name of an Instagram account session.
func SessionName(username string) string {
	return "instagram-session-" + strings.ToLower(strings.TrimSpace(username))
}

// Key returns the storage key of version n of name.
func Key(name string, n int) string {
	return fmt.Sprintf("%s/%d", name, n)
}

// Add stores data as the next version of name and returns its key.
func (s *Store) Add(_ context.Context, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 1
	latest, err := s.latest(name)
	switch {
	case err == nil:
		next = latest.Number + 1
	case !errors.Is(err, ErrNotFound):
		return "", err
	}

	v := &Version{
		Key:       Key(name, next),
		Name:      name,
		Number:    next,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.Insert(v.Key, v); err != nil {
		return "", fmt.Errorf("insert secret version: %w", err)
	}
	return v.Key, nil
}

// Latest returns the newest version of name.
func (s *Store) Latest(_ context.Context, name string) (*Version, error) {
	return s.latest(name)
}

func (s *Store) latest(name string) (*Version, error) {
	var found []Version
	err := s.db.Find(&found, badgerhold.Where("Name").Eq(name).Index("Name").SortBy("Number").Reverse().Limit(1))
	if err != nil {
		return nil, fmt.Errorf("find secret versions: %w", err)
	}
	if len(found) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return &found[0], nil
}

// Get returns the version stored under key.
func (s *Store) Get(_ context.Context, key string) (*Version, error) {
	var v Version
	err := s.db.Get(key, &v)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get secret version: %w", err)
	}
	return &v, nil
}

// Delete removes every version of name.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.DeleteMatching(&Version{}, badgerhold.Where("Name").Eq(name).Index("Name")); err != nil {
		return fmt.Errorf("delete secret versions: %w", err)
	}
	return nil
}
