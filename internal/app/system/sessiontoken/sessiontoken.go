// internal/app/system/sessiontoken/sessiontoken.go
//
// Package sessiontoken keeps the signed-in identity in the local cache as
// a signed, encrypted token so a restarted daemon can sign the same user
// back in.
package sessiontoken

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

// DefaultDevKey is the built-in signing key. It is fine on a developer
// machine and weak everywhere else.
const DefaultDevKey = "dev-only-change-me-please-0123456789ABCDEF"

const (
	tokenName    = "stratatrack-session"
	minKeyLength = 32
)

// ErrNoKey is returned by New when the signing key is empty.
var ErrNoKey = errors.New("session key is empty")

// Cache is the key/value cache the token is stored in.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

type payload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Store saves and loads the token under models.SessionTokenKey.
type Store struct {
	cache  Cache
	codec  *securecookie.SecureCookie
	logger *zap.Logger
}

// New creates a Store. Tokens older than maxAge are rejected on Load; a
// zero maxAge never expires them. A key shorter than 32 bytes, or the
// default one, is accepted with a warning.
func New(cache Cache, key string, maxAge time.Duration, logger *zap.Logger) (*Store, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	if len(key) < minKeyLength || key == DefaultDevKey {
		logger.Warn("session key is weak; 32+ random chars recommended",
			zap.Int("length", len(key)),
			zap.Bool("is_default", key == DefaultDevKey))
	}
	block := sha256.Sum256([]byte(key))
	codec := securecookie.New([]byte(key), block[:])
	codec.MaxAge(int(maxAge / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &Store{cache: cache, codec: codec, logger: logger}, nil
}

// Save replaces the stored token with one for id.
func (s *Store) Save(ctx context.Context, id models.Identity) error {
	token, err := s.codec.Encode(tokenName, payload{ID: id.ID, Email: id.Email})
	if err != nil {
		return fmt.Errorf("encode session token: %w", err)
	}
	if err := s.cache.Set(ctx, models.SessionTokenKey, token); err != nil {
		return fmt.Errorf("store session token: %w", err)
	}
	return nil
}

// Load returns the stored identity. A missing token reports false. A
// token that fails verification or has expired is deleted and also
// reports false.
func (s *Store) Load(ctx context.Context) (models.Identity, bool, error) {
	token, ok, err := s.cache.Get(ctx, models.SessionTokenKey)
	if err != nil {
		return models.Identity{}, false, fmt.Errorf("read session token: %w", err)
	}
	if !ok || token == "" {
		return models.Identity{}, false, nil
	}
	var p payload
	if err := s.codec.Decode(tokenName, token, &p); err != nil || p.ID == "" {
		s.logger.Info("discarding unusable session token", zap.Error(err))
		if err := s.Clear(ctx); err != nil {
			return models.Identity{}, false, err
		}
		return models.Identity{}, false, nil
	}
	return models.Identity{ID: p.ID, Email: p.Email}, true, nil
}

// Clear deletes the stored token.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.cache.Delete(ctx, models.SessionTokenKey); err != nil {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}
