// internal/app/bootstrap/routes.go
package bootstrap

import (
	"context"
	"net/http"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/features/authgoogle"
	"github.com/dalemusser/stratatrack/internal/app/features/health"
	"github.com/dalemusser/stratatrack/internal/app/features/metrics"
	"github.com/dalemusser/stratatrack/internal/app/features/session"
	"github.com/dalemusser/stratatrack/internal/app/features/syncstatus"
	"github.com/dalemusser/stratatrack/internal/app/features/transfer"
	"github.com/dalemusser/stratatrack/internal/app/store/oauthstate"
	"github.com/dalemusser/stratatrack/internal/app/system/apicors"
	"github.com/dalemusser/stratatrack/internal/app/system/auth"
	"github.com/dalemusser/stratatrack/internal/app/system/requestlog"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// BuildHandler constructs the root router.
//
//	/health, /ready, /readyz, /livez   health checks, no auth
//	/api/metrics                       collection and data points
//	/api/session                       sign in, register, sign out
//	/api/transfer                      CSV export and import
//	/api/sync                          sync state, flush, notifications
//	/api/events                        websocket stream of changes
//	/auth/google                       Google sign-in (when configured)
//
// Everything under /api shares API CORS and the optional bearer key.
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	svc := deps.Services

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	healthHandler := health.NewHandler(logger,
		health.Check{Name: "local_cache", Pinger: deps.Cache, Required: true},
		health.Check{Name: "mongodb", Pinger: health.PingFunc(func(ctx context.Context) error {
			return deps.MongoClient.Ping(ctx, nil)
		})},
	)
	health.MountRootEndpoints(r, healthHandler)

	r.Route("/api", func(api chi.Router) {
		api.Use(requestlog.Middleware(requestlog.DefaultConfig(logger)))
		api.Use(apicors.Middleware(appCfg.APIOrigins...))
		api.Use(auth.APIKeyAuth(appCfg.APIKey, logger))

		// The websocket stays open indefinitely, so it sits outside the
		// request timeout.
		api.Handle("/events", svc.Stream)

		api.Group(func(api chi.Router) {
			api.Use(chimw.Timeout(30 * time.Second))

			api.Mount("/metrics", metrics.Routes(metrics.NewHandler(svc.Tracker, logger)))
			api.Mount("/session", session.Routes(session.NewHandler(svc.Identity, logger)))
			api.Mount("/transfer", transfer.Routes(transfer.NewHandler(svc.Tracker, deps.Cache, logger)))
			api.Mount("/sync", syncstatus.Routes(syncstatus.NewHandler(svc.Tracker, svc.Notifier, logger)))
		})
	})

	if appCfg.GoogleClientID != "" && appCfg.GoogleClientSecret != "" {
		googleHandler := authgoogle.NewHandler(authgoogle.Config{
			ClientID:     appCfg.GoogleClientID,
			ClientSecret: appCfg.GoogleClientSecret,
			BaseURL:      appCfg.BaseURL,
			ReturnURL:    appCfg.GoogleReturnURL,
		}, oauthstate.New(deps.MongoDatabase, oauthstate.DefaultTTL), svc.Identity, logger)

		// Reached by browser navigation, which cannot carry the API key.
		r.Group(func(g chi.Router) {
			g.Use(requestlog.Middleware(requestlog.DefaultConfig(logger)))
			g.Use(chimw.Timeout(30 * time.Second))
			g.Mount("/auth/google", authgoogle.Routes(googleHandler))
		})
		logger.Info("Google sign-in enabled", zap.String("redirect_url", appCfg.BaseURL+"/auth/google/callback"))
	}

	return r, nil
}
