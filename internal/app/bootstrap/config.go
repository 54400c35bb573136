// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/sessiontoken"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables (STRATATRACK_MONGO_URI, ...).
const EnvVarPrefix = "STRATATRACK"

// appConfigKeys are loaded from flags, STRATATRACK_* environment
// variables and config files, in that order of precedence.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI (a replica set is needed for live sync)"},
	{Name: "mongo_database", Default: "stratatrack", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 20, Desc: "MongoDB max connection pool size"},
	{Name: "mongo_min_pool_size", Default: 2, Desc: "MongoDB min connection pool size"},

	{Name: "local_cache_path", Default: "./data/stratatrack.db", Desc: "SQLite file for the local cache"},

	{Name: "remote_collection", Default: "users", Desc: "MongoDB collection holding one tracking document per user"},
	{Name: "save_debounce", Default: "500ms", Desc: "Quiet period before changes are written remotely"},
	{Name: "remote_timeout", Default: "15s", Desc: "Timeout for a single remote read or write"},

	{Name: "login_max_attempts", Default: 5, Desc: "Failed sign-ins per email before lockout (0 disables)"},
	{Name: "login_window", Default: "15m", Desc: "Window for counting failed sign-ins"},
	{Name: "login_lockout", Default: "15m", Desc: "Lockout duration after too many failed sign-ins"},

	{Name: "session_key", Default: sessiontoken.DefaultDevKey, Desc: "Key signing the saved sign-in (32+ random chars outside development)"},
	{Name: "session_max_age", Default: "720h", Desc: "How long a saved sign-in survives restarts (0 disables)"},

	{Name: "google_client_id", Default: "", Desc: "Google OAuth2 client ID"},
	{Name: "google_client_secret", Default: "", Desc: "Google OAuth2 client secret"},
	{Name: "base_url", Default: "http://localhost:8080", Desc: "URL the browser uses to reach the daemon (Google callback base)"},
	{Name: "google_return_url", Default: "/", Desc: "Where the browser goes after Google sign-in"},

	{Name: "api_key", Default: "", Desc: "Bearer token required on /api/* (empty disables the check)"},
	{Name: "api_origins", Default: "", Desc: "Comma-separated browser origins allowed on /api/* (empty allows any)"},

	{Name: "storage_type", Default: "local", Desc: "Backup storage backend: 'local' or 's3'"},
	{Name: "storage_local_path", Default: "./data/files", Desc: "Local directory for backups"},
	{Name: "storage_local_url", Default: "/files", Desc: "URL prefix for local storage"},
	{Name: "storage_s3_region", Default: "", Desc: "AWS region for S3"},
	{Name: "storage_s3_bucket", Default: "", Desc: "S3 bucket name"},
	{Name: "storage_s3_prefix", Default: "stratatrack/", Desc: "S3 key prefix"},
	{Name: "backup_interval", Default: "1h", Desc: "How often to write a CSV backup (0 disables)"},
}

// LoadConfig loads WAFFLE core config and stratatrack's AppConfig.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		LocalCachePath: appValues.String("local_cache_path"),

		RemoteCollection: appValues.String("remote_collection"),
		SaveDebounce:     appValues.Duration("save_debounce", 500*time.Millisecond),
		RemoteTimeout:    appValues.Duration("remote_timeout", 15*time.Second),

		LoginMaxAttempts: appValues.Int("login_max_attempts"),
		LoginWindow:      appValues.Duration("login_window", 15*time.Minute),
		LoginLockout:     appValues.Duration("login_lockout", 15*time.Minute),

		SessionKey:    appValues.String("session_key"),
		SessionMaxAge: appValues.Duration("session_max_age", 720*time.Hour),

		GoogleClientID:     appValues.String("google_client_id"),
		GoogleClientSecret: appValues.String("google_client_secret"),
		BaseURL:            strings.TrimRight(appValues.String("base_url"), "/"),
		GoogleReturnURL:    appValues.String("google_return_url"),

		APIKey:     appValues.String("api_key"),
		APIOrigins: splitList(appValues.String("api_origins")),

		StorageType:      appValues.String("storage_type"),
		StorageLocalPath: appValues.String("storage_local_path"),
		StorageLocalURL:  appValues.String("storage_local_url"),
		StorageS3Region:  appValues.String("storage_s3_region"),
		StorageS3Bucket:  appValues.String("storage_s3_bucket"),
		StorageS3Prefix:  appValues.String("storage_s3_prefix"),
		BackupInterval:   appValues.Duration("backup_interval", time.Hour),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig rejects settings the daemon cannot run with.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}
	return validateApp(appCfg)
}

// validateApp holds the checks that need no logger or network.
func validateApp(appCfg AppConfig) error {
	if strings.TrimSpace(appCfg.LocalCachePath) == "" {
		return fmt.Errorf("local_cache_path is required")
	}
	if strings.TrimSpace(appCfg.RemoteCollection) == "" {
		return fmt.Errorf("remote_collection is required")
	}
	if appCfg.SaveDebounce < 0 {
		return fmt.Errorf("save_debounce must not be negative, got %s", appCfg.SaveDebounce)
	}
	if appCfg.RemoteTimeout <= 0 {
		return fmt.Errorf("remote_timeout must be positive, got %s", appCfg.RemoteTimeout)
	}
	if appCfg.LoginMaxAttempts < 0 {
		return fmt.Errorf("login_max_attempts must not be negative, got %d", appCfg.LoginMaxAttempts)
	}
	if appCfg.SessionMaxAge < 0 {
		return fmt.Errorf("session_max_age must not be negative, got %s", appCfg.SessionMaxAge)
	}
	if appCfg.SessionMaxAge > 0 && appCfg.SessionKey == "" {
		return fmt.Errorf("session_key is required when session_max_age is set")
	}
	if (appCfg.GoogleClientID == "") != (appCfg.GoogleClientSecret == "") {
		return fmt.Errorf("google_client_id and google_client_secret must be set together")
	}
	if appCfg.GoogleClientID != "" && appCfg.BaseURL == "" {
		return fmt.Errorf("base_url is required for Google sign-in")
	}
	if appCfg.BackupInterval < 0 {
		return fmt.Errorf("backup_interval must not be negative, got %s", appCfg.BackupInterval)
	}
	switch appCfg.StorageType {
	case "local", "":
	case "s3":
		if appCfg.StorageS3Bucket == "" {
			return fmt.Errorf("storage_s3_bucket is required when storage_type is s3")
		}
	default:
		return fmt.Errorf("unknown storage_type %q (want local or s3)", appCfg.StorageType)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
