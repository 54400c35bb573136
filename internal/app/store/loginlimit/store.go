// internal/app/store/loginlimit/store.go
//
// Package loginlimit counts failed sign-ins per email and locks an email
// out once too many fail inside a window.
package loginlimit

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/normalize"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection holds one attempt record per email.
const Collection = "login_attempts"

// Defaults used by DefaultConfig.
const (
	DefaultMaxAttempts = 5
	DefaultWindow      = 15 * time.Minute
	DefaultLockout     = 15 * time.Minute
)

// Attempt is the failure record for one email.
type Attempt struct {
	Email        string     `bson:"_id"`
	AttemptCount int        `bson:"attempt_count"`
	WindowStart  time.Time  `bson:"window_start"`
	LockedUntil  *time.Time `bson:"locked_until,omitempty"`
	LastAttempt  time.Time  `bson:"last_attempt"` // TTL index
}

// Config sets the limits.
type Config struct {
	MaxAttempts int
	Window      time.Duration
	Lockout     time.Duration
}

// DefaultConfig allows five failures per fifteen minutes.
func DefaultConfig() Config {
	return Config{MaxAttempts: DefaultMaxAttempts, Window: DefaultWindow, Lockout: DefaultLockout}
}

type Store struct {
	c   *mongo.Collection
	cfg Config
	now func() time.Time
}

// New creates a Store. Zero fields in cfg take the defaults.
func New(db *mongo.Database, cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = def.Lockout
	}
	return &Store{c: db.Collection(Collection), cfg: cfg, now: time.Now}
}

// SetClock replaces time.Now.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) get(ctx context.Context, email string) (*Attempt, error) {
	var a Attempt
	err := s.c.FindOne(ctx, bson.M{"_id": email}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Allowed reports whether email may try to sign in. When it may not,
// lockedUntil says until when. Lookup errors allow the attempt.
func (s *Store) Allowed(ctx context.Context, email string) (allowed bool, lockedUntil *time.Time) {
	a, err := s.get(ctx, normalize.Email(email))
	if err != nil || a == nil {
		return true, nil
	}
	now := s.now()
	if a.LockedUntil != nil && now.Before(*a.LockedUntil) {
		return false, a.LockedUntil
	}
	return true, nil
}

// RecordFailure counts one failed attempt and returns the lockout expiry
// when this failure triggered a lockout.
func (s *Store) RecordFailure(ctx context.Context, email string) (*time.Time, error) {
	email = normalize.Email(email)
	now := s.now()

	a, err := s.get(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil || now.After(a.WindowStart.Add(s.cfg.Window)) ||
		(a.LockedUntil != nil && !now.Before(*a.LockedUntil)) {
		a = &Attempt{Email: email, WindowStart: now}
	}
	a.AttemptCount++
	a.LastAttempt = now
	a.LockedUntil = nil
	if a.AttemptCount >= s.cfg.MaxAttempts {
		until := now.Add(s.cfg.Lockout)
		a.LockedUntil = &until
	}

	_, err = s.c.ReplaceOne(ctx, bson.M{"_id": email}, a, options.Replace().SetUpsert(true))
	if err != nil {
		return nil, err
	}
	return a.LockedUntil, nil
}

// Clear forgets the failures for email after a successful sign-in.
func (s *Store) Clear(ctx context.Context, email string) error {
	_, err := s.c.DeleteOne(ctx, bson.M{"_id": normalize.Email(email)})
	return err
}

// Get returns the record for email, or nil when there is none.
func (s *Store) Get(ctx context.Context, email string) (*Attempt, error) {
	return s.get(ctx, normalize.Email(email))
}
