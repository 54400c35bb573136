// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds stratatrack's own settings. WAFFLE's CoreConfig covers
// the HTTP listener, logging, CORS and timeouts.
type AppConfig struct {
	// MongoDB holds the remote documents and the password accounts.
	MongoURI         string
	MongoDatabase    string
	MongoMaxPoolSize uint64
	MongoMinPoolSize uint64

	// LocalCachePath is the SQLite file backing the on-device cache.
	LocalCachePath string

	// RemoteCollection holds one envelope document per identity.
	RemoteCollection string
	// SaveDebounce is the quiet period before a change is written remotely.
	SaveDebounce time.Duration
	// RemoteTimeout bounds each remote read or write.
	RemoteTimeout time.Duration

	// Failed sign-ins allowed per email inside LoginWindow before the email
	// is locked out for LoginLockout. 0 disables the limit.
	LoginMaxAttempts int
	LoginWindow      time.Duration
	LoginLockout     time.Duration

	// SessionKey signs the saved sign-in. SessionMaxAge is how long a saved
	// sign-in is honored after the last sign-in; 0 keeps sign-in in memory
	// only.
	SessionKey    string
	SessionMaxAge time.Duration

	// Google sign-in is enabled when both client settings are set.
	// BaseURL is where the browser reaches the daemon and GoogleReturnURL
	// where it goes when sign-in finishes.
	GoogleClientID     string
	GoogleClientSecret string
	BaseURL            string
	GoogleReturnURL    string

	// APIKey, when set, is required as a bearer token on /api/*.
	APIKey string
	// APIOrigins limits browser origins allowed on /api/*; empty allows any.
	APIOrigins []string

	// Backup storage: "local" or "s3".
	StorageType      string
	StorageLocalPath string
	StorageLocalURL  string
	StorageS3Region  string
	StorageS3Bucket  string
	StorageS3Prefix  string
	// BackupInterval is how often a CSV backup is written; 0 disables it.
	BackupInterval time.Duration
}
