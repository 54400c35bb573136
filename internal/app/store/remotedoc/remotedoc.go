// internal/app/store/remotedoc/remotedoc.go
//
// Package remotedoc holds one envelope document per identity in MongoDB.
// The collection name is chosen per call so callers can keep tracking data
// in the configured collection (users by default).
package remotedoc

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is used when a caller passes an empty collection name.
const DefaultCollection = "users"

// ErrNotFound is returned when no document exists for the identity.
var ErrNotFound = errors.New("remote document not found")

// document is the stored shape: the envelope keyed by identity id.
type document struct {
	ID            string            `bson:"_id"`
	TrackedValues models.Collection `bson:"trackedValues"`
	UpdatedAt     string            `bson:"updatedAt,omitempty"`
}

func (d document) envelope() *models.Envelope {
	tv := d.TrackedValues
	if tv == nil {
		tv = models.Collection{}
	}
	tv.Normalize()
	return &models.Envelope{TrackedValues: tv, UpdatedAt: d.UpdatedAt}
}

// Store reads, writes and watches envelope documents.
type Store struct {
	db *mongo.Database
}

// New creates a remote document store over db.
func New(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) coll(name string) *mongo.Collection {
	if name == "" {
		name = DefaultCollection
	}
	return s.db.Collection(name)
}

// GetDocument returns the envelope stored for id, or ErrNotFound.
func (s *Store) GetDocument(ctx context.Context, collection, id string) (*models.Envelope, error) {
	var doc document
	err := s.coll(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.envelope(), nil
}

// SetDocument replaces the document for id with env, creating it if needed.
func (s *Store) SetDocument(ctx context.Context, collection, id string, env models.Envelope) error {
	doc := document{ID: id, TrackedValues: env.TrackedValues, UpdatedAt: env.UpdatedAt}
	if doc.TrackedValues == nil {
		doc.TrackedValues = models.Collection{}
	}
	opts := options.Replace().SetUpsert(true)
	_, err := s.coll(collection).ReplaceOne(ctx, bson.M{"_id": id}, doc, opts)
	return err
}

// DeleteDocument removes the document for id. Deleting an absent document
// is not an error.
func (s *Store) DeleteDocument(ctx context.Context, collection, id string) error {
	_, err := s.coll(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// changeEvent is the subset of a change stream event we consume.
type changeEvent struct {
	OperationType string    `bson:"operationType"`
	FullDocument  *document `bson:"fullDocument"`
}

// Subscribe opens a standing subscription to the document for id.
//
// onChange is called first with the current document (nil when absent) and
// then after every insert, replace, update or delete. onError is called at
// most once when the stream fails; the subscription is then finished and
// is not reopened. Calling the returned function cancels the subscription.
//
// Change streams require a replica set or sharded cluster.
func (s *Store) Subscribe(
	ctx context.Context,
	collection, id string,
	onChange func(*models.Envelope),
	onError func(error),
) (func(), error) {
	subCtx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": id}}},
	}
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	cs, err := s.coll(collection).Watch(subCtx, pipeline, opts)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s/%s: %w", collection, id, err)
	}

	go func() {
		defer cs.Close(context.Background())

		env, err := s.GetDocument(subCtx, collection, id)
		switch {
		case errors.Is(err, ErrNotFound):
			onChange(nil)
		case err != nil:
			if subCtx.Err() == nil {
				onError(err)
			}
			return
		default:
			onChange(env)
		}

		for cs.Next(subCtx) {
			var ev changeEvent
			if err := cs.Decode(&ev); err != nil {
				onError(fmt.Errorf("decode change event: %w", err))
				return
			}
			switch ev.OperationType {
			case "insert", "replace", "update":
				if ev.FullDocument == nil {
					onChange(nil)
				} else {
					onChange(ev.FullDocument.envelope())
				}
			case "delete":
				onChange(nil)
			case "drop", "dropDatabase", "invalidate":
				onChange(nil)
				return
			}
		}
		if err := cs.Err(); err != nil && subCtx.Err() == nil {
			onError(err)
		}
	}()

	return cancel, nil
}
