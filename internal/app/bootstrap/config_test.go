package bootstrap

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func validAppConfig() AppConfig {
	return AppConfig{
		LocalCachePath:   "./data/stratatrack.db",
		RemoteCollection: "users",
		SaveDebounce:     500 * time.Millisecond,
		RemoteTimeout:    15 * time.Second,
		StorageType:      "local",
		BackupInterval:   time.Hour,
	}
}

func TestValidateApp(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantErr string
	}{
		{"valid", func(*AppConfig) {}, ""},
		{"zero debounce writes immediately", func(c *AppConfig) { c.SaveDebounce = 0 }, ""},
		{"backups disabled", func(c *AppConfig) { c.BackupInterval = 0 }, ""},
		{"s3 with bucket", func(c *AppConfig) { c.StorageType = "s3"; c.StorageS3Bucket = "b" }, ""},
		{"missing cache path", func(c *AppConfig) { c.LocalCachePath = " " }, "local_cache_path"},
		{"missing collection", func(c *AppConfig) { c.RemoteCollection = "" }, "remote_collection"},
		{"negative debounce", func(c *AppConfig) { c.SaveDebounce = -time.Second }, "save_debounce"},
		{"zero remote timeout", func(c *AppConfig) { c.RemoteTimeout = 0 }, "remote_timeout"},
		{"negative backup interval", func(c *AppConfig) { c.BackupInterval = -time.Minute }, "backup_interval"},
		{"negative login attempts", func(c *AppConfig) { c.LoginMaxAttempts = -1 }, "login_max_attempts"},
		{"s3 without bucket", func(c *AppConfig) { c.StorageType = "s3" }, "storage_s3_bucket"},
		{"unknown storage", func(c *AppConfig) { c.StorageType = "ftp" }, "storage_type"},
		{"saved sign-in", func(c *AppConfig) { c.SessionKey = "k"; c.SessionMaxAge = time.Hour }, ""},
		{"saved sign-in without key", func(c *AppConfig) { c.SessionMaxAge = time.Hour }, "session_key"},
		{"negative session age", func(c *AppConfig) { c.SessionMaxAge = -time.Hour }, "session_max_age"},
		{"google", func(c *AppConfig) { c.GoogleClientID = "id"; c.GoogleClientSecret = "s"; c.BaseURL = "http://localhost:8080" }, ""},
		{"google without secret", func(c *AppConfig) { c.GoogleClientID = "id" }, "google_client_secret"},
		{"google without base url", func(c *AppConfig) { c.GoogleClientID = "id"; c.GoogleClientSecret = "s" }, "base_url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAppConfig()
			tt.mutate(&cfg)
			err := validateApp(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateApp() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("validateApp() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{" , ", nil},
		{"http://localhost:5173", []string{"http://localhost:5173"}},
		{"https://a.example, https://b.example ,", []string{"https://a.example", "https://b.example"}},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
