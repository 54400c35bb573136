package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"go.uber.org/zap"
)

// Tracking is a tracking store wired to in-memory collaborators.
type Tracking struct {
	Store   *tracking.Store
	Cache   *MemCache
	Docs    *MemDocs
	IDs     *Identities
	Notices *Notices
	Writer  *savewriter.Writer
}

// NewTracking builds a Store attached to a hand-driven identity source.
// Remote writes are debounced for an hour so tests drive them with Flush.
func NewTracking(t *testing.T) *Tracking {
	t.Helper()
	tr := &Tracking{
		Cache:   NewMemCache(),
		Docs:    NewMemDocs(),
		IDs:     NewIdentities(),
		Notices: &Notices{},
	}
	tr.Writer = savewriter.New(tr.Docs, tr.IDs, tr.Notices, zap.NewNop())
	store, err := tracking.New(context.Background(), tracking.Deps{
		Cache:    tr.Cache,
		Remote:   tr.Docs,
		Writer:   tr.Writer,
		Identity: tr.IDs,
		Notifier: tr.Notices,
		Logger:   zap.NewNop(),
	}, tracking.Config{Collection: "users", Debounce: time.Hour})
	if err != nil {
		t.Fatalf("tracking.New() error = %v", err)
	}
	tr.Store = store
	detach := store.Attach(context.Background(), tr.IDs)
	t.Cleanup(func() {
		detach()
		tr.Writer.Reset()
	})
	return tr
}
