// Package metrics exposes the tracking store's metric operations over
// JSON.
//
// Endpoints (mounted at /api/metrics):
//   - GET    /                      whole collection
//   - POST   /                      create or reset a metric {key,name,color}
//   - POST   /standardize           back-fill key, name and color
//   - GET    /{key}                 one metric
//   - PUT    /{key}                 rename or recolor {name,color}
//   - DELETE /{key}                 remove a metric
//   - GET    /{key}/points          data points, ?order=desc for newest first
//   - POST   /{key}/points          upsert a data point {date,value}
//   - DELETE /{key}/points/{date}   remove a data point
package metrics

import (
	"errors"
	"net/http"
	"strings"

	"github.com/dalemusser/stratatrack/internal/app/system/htmlsanitize"
	"github.com/dalemusser/stratatrack/internal/app/system/jsonutil"
	"github.com/dalemusser/stratatrack/internal/app/system/normalize"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Tracker is the part of *tracking.Store the handlers use.
type Tracker interface {
	Collection() models.Collection
	Metric(key string) (models.Metric, error)
	AddValue(key string) error
	AddDataPoint(key, date string, value any) error
	DeleteValue(key string) error
	DeleteValueData(key, date string) error
	SaveMetric(key, name, color string) error
	GetDataDesc(key string) ([]models.DataPoint, error)
	StandardizeData() int
}

// Handler serves the metric endpoints.
type Handler struct {
	store  Tracker
	logger *zap.Logger
}

// NewHandler creates a metrics Handler.
func NewHandler(store Tracker, logger *zap.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

type metricInput struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

type pointInput struct {
	Date  string `json:"date"`
	Value any    `json:"value"`
}

// PointsResponse is the body of GET /{key}/points.
type PointsResponse struct {
	Key   string             `json:"key"`
	Order string             `json:"order"`
	Data  []models.DataPoint `json:"data"`
}

// List handles GET /.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, h.store.Collection())
}

// Create handles POST /. An existing key is reset to an empty series.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in metricInput
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	key := normalize.MetricKey(in.Key)
	name, color, fields := cleanLabels(in.Name, in.Color)
	if key == "" {
		fields["key"] = "required"
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	if err := h.store.AddValue(key); err != nil {
		h.writeErr(w, "create metric", key, err)
		return
	}
	if name != "" || color != "" {
		if err := h.store.SaveMetric(key, name, color); err != nil {
			h.writeErr(w, "create metric", key, err)
			return
		}
	}
	h.logger.Info("metric created", zap.String("key", key))
	h.respondMetric(w, http.StatusCreated, key)
}

// Get handles GET /{key}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	m, err := h.store.Metric(key)
	if err != nil {
		h.writeErr(w, "get metric", key, err)
		return
	}
	jsonutil.OK(w, m)
}

// Update handles PUT /{key}. Empty fields are left unchanged.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	var in metricInput
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	name, color, fields := cleanLabels(in.Name, in.Color)
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}
	if err := h.store.SaveMetric(key, name, color); err != nil {
		h.writeErr(w, "update metric", key, err)
		return
	}
	h.respondMetric(w, http.StatusOK, key)
}

// Delete handles DELETE /{key}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	if err := h.store.DeleteValue(key); err != nil {
		h.writeErr(w, "delete metric", key, err)
		return
	}
	h.logger.Info("metric deleted", zap.String("key", key))
	jsonutil.NoContent(w)
}

// Points handles GET /{key}/points.
func (h *Handler) Points(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	order := strings.ToLower(normalize.QueryParam(r.URL.Query().Get("order")))

	var (
		data []models.DataPoint
		err  error
	)
	switch order {
	case "desc":
		data, err = h.store.GetDataDesc(key)
	case "", "asc":
		order = "asc"
		var m models.Metric
		m, err = h.store.Metric(key)
		data = m.Data
	default:
		jsonutil.BadRequest(w, "order must be asc or desc")
		return
	}
	if err != nil {
		h.writeErr(w, "list points", key, err)
		return
	}
	if data == nil {
		data = []models.DataPoint{}
	}
	jsonutil.OK(w, PointsResponse{Key: key, Order: order, Data: data})
}

// AddPoint handles POST /{key}/points.
func (h *Handler) AddPoint(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	var in pointInput
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	date, ok := normalize.Date(in.Date)
	if !ok {
		jsonutil.ValidationError(w, map[string]string{"date": "must be YYYY-MM-DD"})
		return
	}
	if s, isText := in.Value.(string); isText {
		in.Value = htmlsanitize.PlainText(s)
	}
	if err := h.store.AddDataPoint(key, date, in.Value); err != nil {
		h.writeErr(w, "add point", key, err)
		return
	}
	h.respondMetric(w, http.StatusOK, key)
}

// DeletePoint handles DELETE /{key}/points/{date}.
func (h *Handler) DeletePoint(w http.ResponseWriter, r *http.Request) {
	key := keyParam(r)
	date := strings.TrimSpace(chi.URLParam(r, "date"))
	if err := h.store.DeleteValueData(key, date); err != nil {
		h.writeErr(w, "delete point", key, err)
		return
	}
	jsonutil.NoContent(w)
}

// Standardize handles POST /standardize.
func (h *Handler) Standardize(w http.ResponseWriter, r *http.Request) {
	n := h.store.StandardizeData()
	if n > 0 {
		h.logger.Info("metrics standardized", zap.Int("changed", n))
	}
	jsonutil.OK(w, map[string]int{"changed": n})
}

func (h *Handler) respondMetric(w http.ResponseWriter, status int, key string) {
	m, err := h.store.Metric(key)
	if err != nil {
		h.writeErr(w, "read metric", key, err)
		return
	}
	jsonutil.JSON(w, status, m)
}

func (h *Handler) writeErr(w http.ResponseWriter, op, key string, err error) {
	switch {
	case errors.Is(err, tracking.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	case errors.Is(err, tracking.ErrInvalidKey),
		errors.Is(err, tracking.ErrInvalidDate),
		errors.Is(err, tracking.ErrInvalidValue):
		jsonutil.BadRequest(w, err.Error())
	default:
		h.logger.Error(op+" failed", zap.String("key", key), zap.Error(err))
		jsonutil.InternalError(w, "internal error")
	}
}

func keyParam(r *http.Request) string {
	return normalize.MetricKey(chi.URLParam(r, "key"))
}

// cleanLabels strips markup from name and validates color. fields
// collects per-field problems.
func cleanLabels(name, color string) (string, string, map[string]string) {
	fields := map[string]string{}
	name = htmlsanitize.PlainText(normalize.Name(name))
	c, ok := normalize.Color(color)
	if !ok {
		fields["color"] = "must be a hex color such as #3b82f6"
	}
	return name, c, fields
}
