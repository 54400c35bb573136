// Package syncstatus reports the synchronization state of the tracking
// store and the notifications shown to the user.
package syncstatus

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratatrack/internal/app/system/jsonutil"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/app/system/timeouts"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Syncer is the part of *tracking.Store the handlers use.
type Syncer interface {
	SyncState() tracking.SyncState
	Flush(ctx context.Context) error
}

// Recents lists recent notifications.
type Recents interface {
	Recent() []notify.Notification
}

// Handler serves the sync endpoints.
type Handler struct {
	store  Syncer
	notes  Recents
	logger *zap.Logger
}

// NewHandler creates a sync Handler. notes may be nil.
func NewHandler(store Syncer, notes Recents, logger *zap.Logger) *Handler {
	return &Handler{store: store, notes: notes, logger: logger}
}

// Routes returns a router mounted at /api/sync:
//   - GET  /              current SyncState
//   - POST /flush         send a scheduled remote write now
//   - GET  /notifications recent notifications, oldest first
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.State)
	r.Post("/flush", h.Flush)
	r.Get("/notifications", h.Notifications)
	return r
}

// State handles GET /.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, h.store.SyncState())
}

// Flush handles POST /flush. A failed write is reported in the returned
// state's saveError as well as the status code.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Remote(), h.logger, "sync flush")
	defer cancel()

	if err := h.store.Flush(ctx); err != nil {
		h.logger.Warn("flush failed", zap.Error(err))
		jsonutil.JSON(w, http.StatusBadGateway, h.store.SyncState())
		return
	}
	jsonutil.OK(w, h.store.SyncState())
}

// Notifications handles GET /notifications.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	out := []notify.Notification{}
	if h.notes != nil {
		out = append(out, h.notes.Recent()...)
	}
	jsonutil.OK(w, out)
}
