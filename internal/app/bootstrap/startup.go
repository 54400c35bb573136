// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	accountstore "github.com/dalemusser/stratatrack/internal/app/store/accounts"
	"github.com/dalemusser/stratatrack/internal/app/store/loginlimit"
	"github.com/dalemusser/stratatrack/internal/app/store/remotedoc"
	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/app/system/sessiontoken"
	"github.com/dalemusser/stratatrack/internal/app/system/stream"
	"github.com/dalemusser/stratatrack/internal/app/system/tasks"
	"github.com/dalemusser/stratatrack/internal/app/system/timeouts"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Startup builds the tracking store and everything around it, attaches
// the store to the identity provider and starts background jobs.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{Remote: appCfg.RemoteTimeout})

	svc := deps.Services
	svc.Notifier = notify.NewHub(logger)
	svc.Identity = identity.New(accountstore.New(deps.MongoDatabase), svc.Notifier, logger)
	if appCfg.LoginMaxAttempts > 0 {
		svc.Identity.SetLimiter(loginlimit.New(deps.MongoDatabase, loginlimit.Config{
			MaxAttempts: appCfg.LoginMaxAttempts,
			Window:      appCfg.LoginWindow,
			Lockout:     appCfg.LoginLockout,
		}))
	}
	if appCfg.SessionMaxAge > 0 {
		sessions, err := sessiontoken.New(deps.Cache, appCfg.SessionKey, appCfg.SessionMaxAge, logger)
		if err != nil {
			logger.Error("session store init failed", zap.Error(err))
			return err
		}
		svc.Identity.SetSessionStore(sessions)
	}

	docs := remotedoc.New(deps.MongoDatabase)
	svc.Writer = savewriter.New(docs, svc.Identity, svc.Notifier, logger,
		savewriter.WithCollection(appCfg.RemoteCollection),
		savewriter.WithWriteTimeout(appCfg.RemoteTimeout),
	)

	store, err := tracking.New(ctx, tracking.Deps{
		Cache:    deps.Cache,
		Remote:   docs,
		Writer:   svc.Writer,
		Identity: svc.Identity,
		Notifier: svc.Notifier,
		Logger:   logger,
	}, tracking.Config{
		Collection:   appCfg.RemoteCollection,
		Debounce:     appCfg.SaveDebounce,
		CacheTimeout: timeouts.Cache(),
	})
	if err != nil {
		logger.Error("tracking store init failed", zap.Error(err))
		return err
	}
	svc.Tracker = store

	if n := store.StandardizeData(); n > 0 {
		logger.Info("standardized cached data points", zap.Int("metrics", n))
	}

	svc.Stream = stream.NewHub(logger, store.Collection)
	if len(appCfg.APIOrigins) == 0 {
		svc.Stream.AllowAnyOrigin()
	}
	svc.cleanup = append(svc.cleanup,
		store.OnChange(svc.Stream.PublishCollection),
		svc.Notifier.Subscribe(svc.Stream.PublishNotification),
	)

	// Restored before Attach so the store starts syncing straight away.
	restoreCtx, cancelRestore := timeouts.WithTimeout(ctx, timeouts.Remote(), logger, "restore sign-in")
	svc.Identity.Restore(restoreCtx)
	cancelRestore()

	// Remote subscriptions outlive Startup's context, so they get their own.
	syncCtx, cancel := context.WithCancel(context.Background())
	svc.cancel = cancel
	svc.cleanup = append(svc.cleanup, store.Attach(syncCtx, svc.Identity))

	startTaskRunner(svc, deps, appCfg, logger)
	return nil
}

func startTaskRunner(svc *Services, deps DBDeps, appCfg AppConfig, logger *zap.Logger) {
	svc.Runner = tasks.New(logger)
	svc.Runner.Register(tasks.BackupJob(tasks.BackupConfig{
		Interval: appCfg.BackupInterval,
		Store:    deps.BackupStorage,
		Source:   svc.Tracker,
		Cache:    deps.Cache,
	}, logger))
	svc.Runner.Start()

	logger.Info("background task runner started", zap.Strings("jobs", svc.Runner.Jobs()))
}
