// internal/app/system/requestlog/requestlog.go
//
// Package requestlog logs one structured line per API request.
package requestlog

import (
	"net"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config configures Middleware.
type Config struct {
	Logger *zap.Logger
	// ExcludePaths are path prefixes that are not logged.
	ExcludePaths []string
	// SlowThreshold promotes requests slower than this to Warn; 0 disables.
	SlowThreshold time.Duration
}

// DefaultConfig logs everything except the health checks and warns on requests
// slower than two seconds.
func DefaultConfig(logger *zap.Logger) Config {
	return Config{
		Logger:        logger,
		ExcludePaths:  []string{"/health", "/ready", "/readyz", "/livez"},
		SlowThreshold: 2 * time.Second,
	}
}

// Middleware logs method, path, status, size and duration once the
// handler returns. 5xx responses log at Error, 4xx and slow requests at
// Warn, the rest at Info.
func Middleware(cfg Config) func(http.Handler) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, prefix := range cfg.ExcludePaths {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}

			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			elapsed := time.Since(start)

			status := ww.Status()
			if status == 0 {
				// Hijacked (websocket) or nothing written.
				status = http.StatusOK
			}

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("remote_ip", clientIP(r)),
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			switch {
			case status >= 500:
				logger.Error("api request", fields...)
			case status >= 400:
				logger.Warn("api request", fields...)
			case cfg.SlowThreshold > 0 && elapsed > cfg.SlowThreshold:
				logger.Warn("slow api request", fields...)
			default:
				logger.Info("api request", fields...)
			}
		})
	}
}

// clientIP prefers the first X-Forwarded-For hop.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
