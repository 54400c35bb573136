// internal/app/system/savewriter/writer.go
//
// Package savewriter writes a metric collection to the remote document
// store only when its content changed. At most one write is in flight per
// Writer; a write requested while another runs is dropped, not queued.
// WriteDebounced coalesces bursts so only the last payload is sent.
package savewriter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/store/remotedoc"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.uber.org/zap"
)

// DefaultDebounce is used by WriteDebounced when delay is not positive.
const DefaultDebounce = 500 * time.Millisecond

// TimestampLayout is the updatedAt format: RFC 3339, UTC, milliseconds.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

const defaultWriteTimeout = 30 * time.Second

// DocumentStore is the remote store the writer reads and replaces.
type DocumentStore interface {
	GetDocument(ctx context.Context, collection, id string) (*models.Envelope, error)
	SetDocument(ctx context.Context, collection, id string, env models.Envelope) error
}

// IdentitySource reports who is signed in.
type IdentitySource interface {
	Current() (models.Identity, bool)
}

// Stopper cancels a scheduled function.
type Stopper interface {
	Stop() bool
}

// AfterFunc schedules f to run after d.
type AfterFunc func(d time.Duration, f func()) Stopper

func realAfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// State is a snapshot of the writer's progress.
type State struct {
	IsSaving    bool       `json:"isSaving"`
	Pending     bool       `json:"pending"`
	LastSavedAt *time.Time `json:"lastSavedAt"`
	SaveError   string     `json:"saveError,omitempty"`
}

type pendingWrite struct {
	data       models.Collection
	collection string
	documentID string
	result     chan bool
	timer      Stopper
}

// Writer is a change-guarded, single-flight, debounced remote writer.
type Writer struct {
	docs       DocumentStore
	identity   IdentitySource
	notifier   notify.Notifier
	logger     *zap.Logger
	collection string
	timeout    time.Duration
	now        func() time.Time
	afterFunc  AfterFunc

	mu          sync.Mutex
	saving      bool
	flight      uint64 // bumped per write and by Reset
	lastSavedAt *time.Time
	saveError   string
	pending     *pendingWrite
}

// Option configures a Writer.
type Option func(*Writer)

// WithCollection sets the collection used when a call passes "".
func WithCollection(name string) Option {
	return func(w *Writer) {
		if name != "" {
			w.collection = name
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithAfterFunc replaces time.AfterFunc for debounce scheduling.
func WithAfterFunc(fn AfterFunc) Option {
	return func(w *Writer) { w.afterFunc = fn }
}

// WithWriteTimeout bounds each debounced write.
func WithWriteTimeout(d time.Duration) Option {
	return func(w *Writer) {
		if d > 0 {
			w.timeout = d
		}
	}
}

// New creates a Writer. notifier may be nil.
func New(docs DocumentStore, identity IdentitySource, notifier notify.Notifier, logger *zap.Logger, opts ...Option) *Writer {
	w := &Writer{
		docs:       docs,
		identity:   identity,
		notifier:   notifier,
		logger:     logger,
		collection: remotedoc.DefaultCollection,
		timeout:    defaultWriteTimeout,
		now:        time.Now,
		afterFunc:  realAfterFunc,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write replaces the remote document with data when its content differs
// from what is stored, or unconditionally when force is true.
//
// It returns false without error when nobody is signed in, when another
// write is in flight, or when the content is unchanged. Failures are
// recorded in State, notified, and returned as *RemoteIOError.
// Empty collectionName and documentID fall back to the configured
// collection and the signed-in identity.
func (w *Writer) Write(ctx context.Context, data models.Collection, collectionName, documentID string, force bool) (bool, error) {
	id, ok := w.identity.Current()
	if !ok {
		return false, nil
	}
	if documentID == "" {
		documentID = id.ID
	}
	if collectionName == "" {
		collectionName = w.collection
	}

	w.mu.Lock()
	if w.saving {
		w.mu.Unlock()
		w.logger.Debug("remote write dropped, another write in flight",
			zap.String("user_id", documentID))
		return false, nil
	}
	w.saving = true
	w.flight++
	token := w.flight
	w.saveError = ""
	w.mu.Unlock()
	defer w.release(token)

	payload := models.Envelope{TrackedValues: data.Clone()}

	current, err := w.docs.GetDocument(ctx, collectionName, documentID)
	if err != nil && !errors.Is(err, remotedoc.ErrNotFound) {
		return false, w.fail(token, "read", collectionName, documentID, err)
	}
	if current != nil && !force && EnvelopesEqual(*current, payload) {
		w.logger.Debug("remote write skipped, content unchanged",
			zap.String("user_id", documentID))
		return false, nil
	}

	payload.UpdatedAt = w.now().UTC().Format(TimestampLayout)
	if err := w.docs.SetDocument(ctx, collectionName, documentID, payload); err != nil {
		return false, w.fail(token, "write", collectionName, documentID, err)
	}

	w.mu.Lock()
	if w.flight == token {
		saved := w.now()
		w.lastSavedAt = &saved
		w.saveError = ""
	}
	w.mu.Unlock()

	w.logger.Debug("remote write done",
		zap.String("collection", collectionName),
		zap.String("user_id", documentID),
		zap.Int("metrics", len(payload.TrackedValues)),
		zap.Bool("forced", force))
	return true, nil
}

func (w *Writer) release(token uint64) {
	w.mu.Lock()
	if w.flight == token {
		w.saving = false
	}
	w.mu.Unlock()
}

func (w *Writer) fail(token uint64, op, collection, id string, err error) error {
	rerr := &RemoteIOError{Op: op, Collection: collection, DocumentID: id, Err: err}

	w.mu.Lock()
	if w.flight == token {
		w.saveError = rerr.Error()
	}
	w.mu.Unlock()

	w.logger.Error("remote save failed",
		zap.String("op", op),
		zap.String("collection", collection),
		zap.String("user_id", id),
		zap.Error(err))
	if w.notifier != nil {
		w.notifier.Notify(notify.Error("Save failed", "Your data could not be saved to the server."))
	}
	return rerr
}

// WriteDebounced schedules a Write of data after delay, replacing any write
// this Writer still has scheduled. The returned channel receives exactly
// one value: the write's result, false when the write failed, or false when
// a later call, Reset, or Flush superseded this one.
func (w *Writer) WriteDebounced(data models.Collection, collectionName, documentID string, delay time.Duration) <-chan bool {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	p := &pendingWrite{
		data:       data.Clone(),
		collection: collectionName,
		documentID: documentID,
		result:     make(chan bool, 1),
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelPendingLocked()
	w.pending = p
	p.timer = w.afterFunc(delay, func() { w.fire(p) })
	return p.result
}

func (w *Writer) fire(p *pendingWrite) {
	w.mu.Lock()
	if w.pending != p {
		// Superseded; its channel was already resolved.
		w.mu.Unlock()
		return
	}
	w.pending = nil
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	ok, err := w.Write(ctx, p.data, p.collection, p.documentID, false)
	p.result <- ok && err == nil
}

func (w *Writer) cancelPendingLocked() {
	if w.pending == nil {
		return
	}
	if w.pending.timer != nil {
		w.pending.timer.Stop()
	}
	w.pending.result <- false
	w.pending = nil
}

// Flush runs the scheduled debounced write now, if there is one.
func (w *Writer) Flush(ctx context.Context) (bool, error) {
	w.mu.Lock()
	p := w.pending
	if p == nil {
		w.mu.Unlock()
		return false, nil
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	w.pending = nil
	w.mu.Unlock()

	ok, err := w.Write(ctx, p.data, p.collection, p.documentID, false)
	p.result <- ok && err == nil
	return ok, err
}

// Reset cancels any scheduled write and clears saving, timestamp and
// error state. A write already in flight finishes in the background
// without touching the cleared state.
func (w *Writer) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.cancelPendingLocked()
	w.saving = false
	w.flight++
	w.lastSavedAt = nil
	w.saveError = ""
}

// State returns a snapshot of the writer's progress.
func (w *Writer) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	st := State{
		IsSaving:  w.saving,
		Pending:   w.pending != nil,
		SaveError: w.saveError,
	}
	if w.lastSavedAt != nil {
		t := *w.lastSavedAt
		st.LastSavedAt = &t
	}
	return st
}
