// Package timeouts holds the deadlines used around remote and cache I/O.
package timeouts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Defaults used until Configure is called.
const (
	DefaultPing     = 2 * time.Second
	DefaultCache    = 5 * time.Second
	DefaultRemote   = 15 * time.Second
	DefaultShutdown = 30 * time.Second
)

// Config holds timeout values. Zero fields leave the current value alone.
type Config struct {
	Ping     time.Duration
	Cache    time.Duration
	Remote   time.Duration
	Shutdown time.Duration
}

var (
	mu      sync.RWMutex
	current = defaults()
)

func defaults() Config {
	return Config{
		Ping:     DefaultPing,
		Cache:    DefaultCache,
		Remote:   DefaultRemote,
		Shutdown: DefaultShutdown,
	}
}

// Ping bounds health checks.
func Ping() time.Duration { return Current().Ping }

// Cache bounds local cache reads and writes.
func Cache() time.Duration { return Current().Cache }

// Remote bounds a single remote document read or write.
func Remote() time.Duration { return Current().Remote }

// Shutdown bounds the final flush on exit.
func Shutdown() time.Duration { return Current().Shutdown }

// Configure overrides the non-zero fields of cfg.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		current.Ping = cfg.Ping
	}
	if cfg.Cache > 0 {
		current.Cache = cfg.Cache
	}
	if cfg.Remote > 0 {
		current.Remote = cfg.Remote
	}
	if cfg.Shutdown > 0 {
		current.Shutdown = cfg.Shutdown
	}
}

// Reset restores the defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	current = defaults()
}

// Current returns the active configuration.
func Current() Config {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// WithTimeout is context.WithTimeout whose cancel func logs when the
// deadline was the reason the operation ended.
func WithTimeout(parent context.Context, timeout time.Duration, log *zap.Logger, operation string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	return ctx, func() {
		if ctx.Err() == context.DeadlineExceeded && log != nil {
			log.Warn("operation timed out",
				zap.String("operation", operation),
				zap.Duration("timeout", timeout),
			)
		}
		cancel()
	}
}
