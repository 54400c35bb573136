// internal/app/bootstrap/hooks.go
package bootstrap

import (
	"github.com/dalemusser/waffle/app"
)

// Hooks wires stratatrack into the WAFFLE lifecycle. app.Run calls them
// in order: configuration, backends, indexes, services, the HTTP handler
// and finally graceful shutdown.
var Hooks = app.Hooks[AppConfig, DBDeps]{
	Name:           "stratatrack",
	LoadConfig:     LoadConfig,
	ValidateConfig: ValidateConfig,
	ConnectDB:      ConnectDB,     // MongoDB, SQLite cache, backup storage
	EnsureSchema:   EnsureSchema,  // MongoDB indexes
	Startup:        Startup,       // tracking store, sync, stream hub, backups
	BuildHandler:   BuildHandler,  // chi router + middleware stack
	Shutdown:       Shutdown,      // flush, stop jobs, close backends
}
