package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestAddVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	name := SessionName(" Brand.Official ")

	var keys []string
	for _, payload := range []string{"v1", "v2", "v3"} {
		key, err := s.Add(ctx, name, []byte(payload))
		if err != nil {
			t.Fatalf("add %s: %v", payload, err)
		}
		keys = append(keys, key)
	}
	want := []string{
		"instagram-session-brand.official/1",
		"instagram-session-brand.official/2",
		"instagram-session-brand.official/3",
	}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}

	latest, err := s.Latest(ctx, name)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Number != 3 || string(latest.Data) != "v3" {
		t.Errorf("latest = %d %q, want 3 \"v3\"", latest.Number, latest.Data)
	}

	first, err := s.Get(ctx, keys[0])
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(first.Data) != "v1" {
		t.Errorf("first version data = %q, want v1", first.Data)
	}
}

func TestDeleteRemovesAllVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, b := SessionName("a"), SessionName("b")
	for _, n := range []string{a, a, b} {
		if _, err := s.Add(ctx, n, []byte("x")); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	if err := s.Delete(ctx, a); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Latest(ctx, a); !errors.Is(err, ErrNotFound) {
		t.Errorf("latest after delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(ctx, Key(a, 1)); !errors.Is(err, ErrNotFound) {
		t.Errorf("get after delete err = %v, want ErrNotFound", err)
	}
	if _, err := s.Latest(ctx, b); err != nil {
		t.Errorf("other secret removed: %v", err)
	}

	// Numbering restarts once every version is gone.
	key, err := s.Add(ctx, a, []byte("y"))
	if err != nil {
		t.Fatalf("add after delete: %v", err)
	}
	if key != Key(a, 1) {
		t.Errorf("key = %q, want %q", key, Key(a, 1))
	}
}
