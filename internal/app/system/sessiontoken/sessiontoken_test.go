package sessiontoken

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/dalemusser/stratatrack/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const testKey = "test-session-key-for-testing-1234567890"

var alice = models.Identity{ID: "64b7f0c2a1b2c3d4e5f60718", Email: "alice@example.com"}

func newStore(t *testing.T, cache Cache, key string) *Store {
	t.Helper()
	s, err := New(cache, key, 30*24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestSaveLoad(t *testing.T) {
	ctx := context.Background()
	cache := testutil.NewMemCache()
	s := newStore(t, cache, testKey)

	if err := s.Save(ctx, alice); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, ok, _ := cache.Get(ctx, models.SessionTokenKey)
	if !ok {
		t.Fatal("no token in cache after Save()")
	}
	if strings.Contains(raw, alice.Email) {
		t.Errorf("token %q exposes the email", raw)
	}

	// A new Store with the same key stands in for a restarted daemon.
	got, ok, err := newStore(t, cache, testKey).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || got != alice {
		t.Errorf("Load() = %+v, %v, want %+v, true", got, ok, alice)
	}
}

func TestLoad_Missing(t *testing.T) {
	_, ok, err := newStore(t, testutil.NewMemCache(), testKey).Load(context.Background())
	if err != nil || ok {
		t.Errorf("Load() = %v, %v, want false, nil", ok, err)
	}
}

func TestLoad_RejectsForeignOrTamperedToken(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"other key", func(t *testing.T) string {
			c := testutil.NewMemCache()
			if err := newStore(t, c, "another-session-key-0123456789abcdef").Save(ctx, alice); err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			v, _, _ := c.Get(ctx, models.SessionTokenKey)
			return v
		}},
		{"garbage", func(*testing.T) string { return "not-a-token" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := testutil.NewMemCache()
			_ = cache.Set(ctx, models.SessionTokenKey, tt.token(t))

			_, ok, err := newStore(t, cache, testKey).Load(ctx)
			if err != nil || ok {
				t.Fatalf("Load() = %v, %v, want false, nil", ok, err)
			}
			if _, found, _ := cache.Get(ctx, models.SessionTokenKey); found {
				t.Error("unusable token left in cache")
			}
		})
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	cache := testutil.NewMemCache()
	s := newStore(t, cache, testKey)
	_ = s.Save(ctx, alice)

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Error("Load() found a token after Clear()")
	}
}

func TestSave_CacheError(t *testing.T) {
	cache := testutil.NewMemCache()
	cache.SetErr = errors.New("disk full")
	if err := newStore(t, cache, testKey).Save(context.Background(), alice); err == nil {
		t.Fatal("Save() error = nil, want cache error")
	}
}

func TestNew_Keys(t *testing.T) {
	if _, err := New(testutil.NewMemCache(), "", time.Hour, zap.NewNop()); !errors.Is(err, ErrNoKey) {
		t.Errorf("New(empty key) error = %v, want ErrNoKey", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	if _, err := New(testutil.NewMemCache(), DefaultDevKey, time.Hour, zap.New(core)); err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if logs.Len() != 1 {
		t.Errorf("warnings = %d, want 1 for the default key", logs.Len())
	}
}
