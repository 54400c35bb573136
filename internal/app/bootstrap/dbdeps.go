// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/stratatrack/internal/app/store/localcache"
	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/app/system/stream"
	"github.com/dalemusser/stratatrack/internal/app/system/tasks"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds the backends opened in ConnectDB and the services built on
// them in Startup. WAFFLE passes DBDeps by value to each hook, so the
// services live behind a pointer that ConnectDB allocates.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database

	// Cache is the SQLite-backed local cache.
	Cache *localcache.Store

	// BackupStorage receives the periodic CSV backups.
	BackupStorage storage.Store

	Services *Services
}

// Services are the long-lived components shared by the HTTP handlers.
type Services struct {
	Notifier *notify.Hub
	Identity *identity.Provider
	Writer   *savewriter.Writer
	Tracker  *tracking.Store
	Stream   *stream.Hub
	Runner   *tasks.Runner

	cancel  context.CancelFunc
	cleanup []func()
}
