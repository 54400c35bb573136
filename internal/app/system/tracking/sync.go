// internal/app/system/tracking/sync.go
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/store/remotedoc"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.uber.org/zap"
)

// Phase is where the Store is in the sign-in lifecycle.
type Phase string

const (
	PhaseAnonymous      Phase = "anonymous"
	PhaseAuthenticating Phase = "authenticating"
	PhaseSyncing        Phase = "authenticated-syncing"
	PhaseIdle           Phase = "authenticated-idle"
)

// SyncState is a read-only view of synchronization progress.
type SyncState struct {
	Phase                  Phase      `json:"phase"`
	IsSavingRemote         bool       `json:"isSavingRemote"`
	PendingWrite           bool       `json:"pendingWrite"`
	LastSavedAt            *time.Time `json:"lastSavedAt"`
	SaveError              string     `json:"saveError,omitempty"`
	IsApplyingRemoteUpdate bool       `json:"isApplyingRemoteUpdate"`
	SubscriptionError      string     `json:"subscriptionError,omitempty"`
	LocalSaveError         string     `json:"localSaveError,omitempty"`
}

// Attach makes the Store follow src: on sign-in it migrates the local
// collection to the remote document and subscribes to it; on sign-out it
// logs out. ctx bounds the lifetime of remote subscriptions opened from
// these events. The returned function detaches.
func (s *Store) Attach(ctx context.Context, src IdentityEvents) func() {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	detach := src.Subscribe(func(id models.Identity, ok bool) {
		if ok {
			s.signedIn(id)
		} else {
			s.Logout()
		}
	})
	if id, ok := src.Current(); ok {
		s.signedIn(id)
	}
	return detach
}

func (s *Store) signedIn(id models.Identity) {
	s.mu.Lock()
	s.authenticating = true
	ctx := s.baseCtx
	s.mu.Unlock()

	if err := s.MigrateLocalToRemote(ctx, id); err != nil {
		s.logger.Error("migrate local data to remote",
			zap.String("user_id", id.ID), zap.Error(err))
		if s.notifier != nil {
			s.notifier.Notify(notify.Error("Sync failed", "Data saved on this device could not be moved to your account."))
		}
	}
	if err := s.LoadFromRemote(ctx, id); err != nil {
		s.logger.Error("subscribe to remote data",
			zap.String("user_id", id.ID), zap.Error(err))
	}

	s.mu.Lock()
	s.authenticating = false
	s.mu.Unlock()
}

// MigrateLocalToRemote moves the locally cached collection into the
// identity's remote document. Remote metrics are kept unless the local
// collection has the same key, in which case the local metric replaces
// the remote one entirely. The merged collection is written with force,
// installed in memory without being echoed, and the local cache entry is
// removed. An empty local cache is a no-op.
func (s *Store) MigrateLocalToRemote(ctx context.Context, id models.Identity) error {
	raw, found, err := s.cache.Get(ctx, models.TrackedValuesKey)
	if err != nil {
		return fmt.Errorf("read local cache: %w", err)
	}
	if !found {
		return nil
	}
	local, err := models.ParseCollection(raw)
	if err != nil {
		return fmt.Errorf("parse local collection: %w", err)
	}
	if len(local) == 0 {
		return nil
	}

	s.mu.Lock()
	s.applying++
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.applying--
		s.mu.Unlock()
	}()

	merged := models.Collection{}
	remote, err := s.remote.GetDocument(ctx, s.cfg.Collection, id.ID)
	switch {
	case errors.Is(err, remotedoc.ErrNotFound):
	case err != nil:
		return &savewriter.RemoteIOError{Op: "read", Collection: s.cfg.Collection, DocumentID: id.ID, Err: err}
	default:
		for k, m := range remote.TrackedValues {
			merged[k] = m
		}
	}
	for k, m := range local {
		merged[k] = m
	}

	ok, err := s.writer.Write(ctx, merged, s.cfg.Collection, id.ID, true)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMigrationDropped
	}

	s.mu.Lock()
	s.values = merged.Clone()
	s.changedLocked()
	s.mu.Unlock()

	if err := s.cache.Delete(ctx, models.TrackedValuesKey); err != nil {
		s.logger.Warn("clear local cache after migration", zap.Error(err))
	}
	s.logger.Info("local data migrated to remote",
		zap.String("user_id", id.ID),
		zap.Int("local_metrics", len(local)),
		zap.Int("merged_metrics", len(merged)))
	return nil
}

// LoadFromRemote opens a standing subscription to the identity's remote
// document, replacing any previous subscription. Every notification
// replaces the collection (an absent document empties it) without routing
// the change back out. A failed subscription is logged and not retried.
// ctx bounds the subscription's lifetime.
func (s *Store) LoadFromRemote(ctx context.Context, id models.Identity) error {
	s.mu.Lock()
	s.cancelSubscriptionLocked()
	s.subGen++
	gen := s.subGen
	s.awaitingSnapshot = true
	s.subscriptionErr = ""
	s.mu.Unlock()

	unsubscribe, err := s.remote.Subscribe(ctx, s.cfg.Collection, id.ID,
		func(env *models.Envelope) { s.applyRemote(gen, env) },
		func(err error) { s.subscriptionFailed(gen, id, err) },
	)
	if err != nil {
		rerr := &savewriter.RemoteIOError{Op: "subscribe", Collection: s.cfg.Collection, DocumentID: id.ID, Err: err}
		s.subscriptionFailed(gen, id, rerr)
		return rerr
	}

	s.mu.Lock()
	if s.subGen != gen {
		// Logged out or resubscribed while Subscribe ran.
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

func (s *Store) applyRemote(gen uint64, env *models.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.subGen {
		return
	}

	s.applying++
	if env == nil {
		s.values = models.Collection{}
	} else {
		s.values = env.TrackedValues.Clone()
		s.values.Normalize()
	}
	s.awaitingSnapshot = false
	s.changedLocked()
	s.applying--
}

func (s *Store) subscriptionFailed(gen uint64, id models.Identity, err error) {
	s.mu.Lock()
	current := gen == s.subGen
	if current {
		s.awaitingSnapshot = false
		s.subscriptionErr = err.Error()
		s.unsubscribe = nil
	}
	s.mu.Unlock()
	if !current {
		return
	}

	s.logger.Error("remote subscription failed",
		zap.String("user_id", id.ID), zap.Error(err))
	if s.notifier != nil {
		s.notifier.Notify(notify.Error("Sync stopped", "Live updates from your account are unavailable."))
	}
}

func (s *Store) cancelSubscriptionLocked() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

// Logout cancels the remote subscription and any scheduled remote write,
// then empties the collection. Emptying is not routed outward, so neither
// the local cache nor the remote document is touched.
func (s *Store) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelSubscriptionLocked()
	s.subGen++
	s.awaitingSnapshot = false
	s.subscriptionErr = ""
	if s.writer != nil {
		s.writer.Reset()
	}

	s.applying++
	s.values = models.Collection{}
	s.changedLocked()
	s.applying--
}

// Flush sends a scheduled remote write immediately.
func (s *Store) Flush(ctx context.Context) error {
	if s.writer == nil {
		return nil
	}
	_, err := s.writer.Flush(ctx)
	return err
}

// Phase reports the sign-in lifecycle phase.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked(s.writerState())
}

func (s *Store) writerState() savewriter.State {
	if s.writer == nil {
		return savewriter.State{}
	}
	return s.writer.State()
}

func (s *Store) phaseLocked(ws savewriter.State) Phase {
	if s.authenticating {
		return PhaseAuthenticating
	}
	if _, ok := s.identity.Current(); !ok {
		return PhaseAnonymous
	}
	if s.awaitingSnapshot || ws.IsSaving || ws.Pending {
		return PhaseSyncing
	}
	return PhaseIdle
}

// SyncState returns the current synchronization state.
func (s *Store) SyncState() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.writerState()
	return SyncState{
		Phase:                  s.phaseLocked(ws),
		IsSavingRemote:         ws.IsSaving,
		PendingWrite:           ws.Pending,
		LastSavedAt:            ws.LastSavedAt,
		SaveError:              ws.SaveError,
		IsApplyingRemoteUpdate: s.applying > 0,
		SubscriptionError:      s.subscriptionErr,
		LocalSaveError:         errString(s.localErr),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
