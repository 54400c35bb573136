// internal/app/bootstrap/shutdown.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratatrack/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Shutdown writes any pending change to the remote document, stops the
// background jobs and closes the backends.
func Shutdown(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	svc := deps.Services
	if svc != nil && svc.Tracker != nil {
		logger.Info("flushing pending remote write")
		flushCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Shutdown(), logger, "shutdown flush")
		if err := svc.Tracker.Flush(flushCtx); err != nil {
			logger.Warn("pending remote write was not saved", zap.Error(err))
			keep(err)
		}
		cancel()
	}

	if svc != nil && svc.Runner != nil {
		logger.Info("stopping background task runner")
		if err := svc.Runner.Stop(ctx); err != nil {
			logger.Warn("background task runner did not stop cleanly", zap.Error(err))
			keep(err)
		}
	}

	if svc != nil {
		for i := len(svc.cleanup) - 1; i >= 0; i-- {
			svc.cleanup[i]()
		}
		svc.cleanup = nil
		if svc.cancel != nil {
			svc.cancel()
		}
		if svc.Writer != nil {
			svc.Writer.Reset()
		}
	}

	if deps.Cache != nil {
		logger.Info("closing local cache")
		if err := deps.Cache.Close(); err != nil {
			logger.Error("local cache close failed", zap.Error(err))
			keep(err)
		}
	}

	if deps.MongoClient != nil {
		logger.Info("disconnecting MongoDB client")
		if err := deps.MongoClient.Disconnect(ctx); err != nil {
			logger.Error("MongoDB disconnect failed", zap.Error(err))
			keep(err)
		}
	}

	return firstErr
}
