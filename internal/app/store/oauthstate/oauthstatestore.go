// internal/app/store/oauthstate/oauthstatestore.go
package oauthstate

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DefaultTTL is how long a state token stays valid.
const DefaultTTL = 10 * time.Minute

// State is a pending federated sign-in.
type State struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	State     string             `bson:"state"`
	Provider  string             `bson:"provider"`
	ExpiresAt time.Time          `bson:"expires_at"`
	CreatedAt time.Time          `bson:"created_at"`
}

// Store holds state tokens in the oauth_states collection. Expired
// documents are removed by a TTL index; Verify also ignores them.
type Store struct {
	c   *mongo.Collection
	ttl time.Duration
	now func() time.Time
}

// New creates a Store whose tokens live for ttl (DefaultTTL when zero).
func New(db *mongo.Database, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{c: db.Collection("oauth_states"), ttl: ttl, now: time.Now}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Create records state for provider.
func (s *Store) Create(ctx context.Context, state, provider string) error {
	now := s.now().UTC()
	_, err := s.c.InsertOne(ctx, State{
		ID:        primitive.NewObjectID(),
		State:     state,
		Provider:  provider,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	})
	return err
}

// Verify consumes state. It reports true only once per unexpired token
// created for provider.
func (s *Store) Verify(ctx context.Context, state, provider string) (bool, error) {
	if state == "" {
		return false, nil
	}
	err := s.c.FindOneAndDelete(ctx, bson.M{
		"state":      state,
		"provider":   provider,
		"expires_at": bson.M{"$gt": s.now().UTC()},
	}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
