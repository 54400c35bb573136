// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratatrack/internal/app/system/jsonutil"
	"github.com/dalemusser/stratatrack/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Pinger is anything that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Check names a dependency. Required dependencies make the service
// unready when they fail; optional ones only degrade it.
type Check struct {
	Name     string
	Pinger   Pinger
	Required bool
}

// Handler provides health check endpoints.
type Handler struct {
	checks []Check
	logger *zap.Logger
}

// NewHandler creates a health Handler over checks.
func NewHandler(logger *zap.Logger, checks ...Check) *Handler {
	return &Handler{checks: checks, logger: logger}
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// MountRootEndpoints adds /health, /ready, /readyz and /livez.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/health", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/livez", h.Live)
}

// run pings every dependency. ok is false when a required one failed.
func (h *Handler) run(ctx context.Context) (Response, bool) {
	resp := Response{Status: "ok", Services: make(map[string]string, len(h.checks))}
	ok := true
	for _, c := range h.checks {
		pctx, cancel := context.WithTimeout(ctx, timeouts.Ping())
		err := c.Pinger.Ping(pctx)
		cancel()
		if err == nil {
			resp.Services[c.Name] = "ok"
			continue
		}
		h.logger.Warn("health check failed", zap.String("service", c.Name), zap.Error(err))
		resp.Services[c.Name] = "unavailable"
		resp.Status = "degraded"
		if c.Required {
			ok = false
		}
	}
	return resp, ok
}

// Check reports every dependency. It answers 503 when any check fails.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp, _ := h.run(r.Context())
	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	jsonutil.JSON(w, status, resp)
}

// Ready answers 503 when a required dependency is down. The remote store
// is optional: the daemon keeps working from the local cache without it.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.run(r.Context()); !ok {
		jsonutil.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	jsonutil.OK(w, map[string]string{"status": "ready"})
}

// Live reports that the process is serving requests.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]string{"status": "alive"})
}
