// internal/app/features/transfer/transfer.go
//
// Package transfer serves the CSV backup format. Export bundles the
// metric collection with every other local cache key; import installs
// the metrics as one change and restores the other keys into the cache.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/csvtransfer"
	"github.com/dalemusser/stratatrack/internal/app/system/jsonutil"
	"github.com/dalemusser/stratatrack/internal/app/system/timeouts"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxUpload = 16 << 20

// Tracker is the part of *tracking.Store the handlers use.
type Tracker interface {
	Collection() models.Collection
	ReplaceAll(c models.Collection)
}

// Handler serves export and import.
type Handler struct {
	store  Tracker
	cache  csvtransfer.Cache
	logger *zap.Logger
	now    func() time.Time
}

// NewHandler creates a transfer Handler.
func NewHandler(store Tracker, cache csvtransfer.Cache, logger *zap.Logger) *Handler {
	return &Handler{store: store, cache: cache, logger: logger, now: time.Now}
}

// ImportResponse is the body of a successful import.
type ImportResponse struct {
	Metrics        int      `json:"metrics"`
	Others         int      `json:"others"`
	SkippedColumns []string `json:"skippedColumns"`
}

// Routes returns a router with the transfer endpoints. Mount it at
// /api/transfer.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
	return r
}

// Export handles GET /export.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Cache())
	defer cancel()

	others, err := csvtransfer.CollectOthers(ctx, h.cache)
	if err != nil {
		h.logger.Error("read cache for export", zap.Error(err))
		jsonutil.InternalError(w, "could not read local data")
		return
	}
	body := csvtransfer.Export(h.store.Collection(), others)
	name := csvtransfer.ExportFilename(h.now().Format(models.DateLayout))

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

// Import handles POST /import. The file is either the raw request body
// or a multipart form field named "file".
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	text, err := readUpload(w, r)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	res, err := csvtransfer.Import(text)
	if errors.Is(err, csvtransfer.ErrImportFormat) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("import failed", zap.Error(err))
		jsonutil.InternalError(w, "import failed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Cache())
	defer cancel()
	if err := csvtransfer.RestoreOthers(ctx, h.cache, res.Others); err != nil {
		h.logger.Error("restore cache keys", zap.Error(err))
		jsonutil.InternalError(w, "could not restore local data")
		return
	}
	h.store.ReplaceAll(res.Collection)

	h.logger.Info("collection imported",
		zap.Int("metrics", len(res.Collection)),
		zap.Int("others", len(res.Others)),
		zap.Strings("skipped_columns", res.SkippedColumns),
	)
	skipped := res.SkippedColumns
	if skipped == nil {
		skipped = []string{}
	}
	jsonutil.OK(w, ImportResponse{
		Metrics:        len(res.Collection),
		Others:         len(res.Others),
		SkippedColumns: skipped,
	})
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("file field is required: %w", err)
		}
		defer f.Close()
		b, err := io.ReadAll(f)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return "", err
	}
	if len(b) == 0 {
		return "", errors.New("request body is empty")
	}
	return string(b), nil
}
