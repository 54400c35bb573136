package tasks_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/tasks"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/dalemusser/stratatrack/internal/testutil"
	"github.com/dalemusser/waffle/pantry/storage"
	"go.uber.org/zap"
)

type memStore struct {
	mu    sync.Mutex
	files map[string]string
	puts  int
	err   error
}

func (m *memStore) Put(_ context.Context, path string, r io.Reader, _ *storage.PutOptions) error {
	if m.err != nil {
		return m.err
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string]string{}
	}
	m.files[path] = string(b)
	m.puts++
	return nil
}

type fixed models.Collection

func (f fixed) Collection() models.Collection { return models.Collection(f).Clone() }

var day = func() time.Time { return time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC) }

func TestBackupJob_WritesAndSkipsUnchanged(t *testing.T) {
	store := &memStore{}
	src := fixed{"m1": {Key: "m1", Name: "Weight", Data: []models.DataPoint{{Date: "2024-01-01", Value: 70.0}}}}
	cache := testutil.NewMemCache()
	_ = cache.Set(context.Background(), "theme", `"dark"`)

	job := tasks.BackupJob(tasks.BackupConfig{
		Interval: time.Hour, Store: store, Source: src, Cache: cache, Now: day,
	}, zap.NewNop())
	if !job.SkipInitial {
		t.Error("backup job runs at startup, want it to wait one interval")
	}

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1 (second run unchanged)", store.puts)
	}
	body, ok := store.files["backups/tracking-backup-2024-03-09.csv"]
	if !ok {
		t.Fatalf("files = %v, want dated backup", store.files)
	}
	if !strings.Contains(body, `"2024-01-01","70"`) || !strings.Contains(body, `"theme"`) {
		t.Errorf("backup body missing data:\n%s", body)
	}
}

type swappable struct {
	mu sync.Mutex
	c  models.Collection
}

func (s *swappable) Collection() models.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c.Clone()
}

func (s *swappable) set(c models.Collection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.c = c
}

func TestBackupJob_EmptyCollectionKeepsBackup(t *testing.T) {
	store := &memStore{}
	src := &swappable{c: models.Collection{"m1": {Key: "m1", Name: "Weight", Data: []models.DataPoint{{Date: "2024-01-01", Value: 70.0}}}}}
	job := tasks.BackupJob(tasks.BackupConfig{Interval: time.Hour, Store: store, Source: src, Now: day}, zap.NewNop())

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	src.set(models.Collection{})
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if store.puts != 1 {
		t.Errorf("puts = %d, want 1 (empty collection not written)", store.puts)
	}
	if body := store.files["backups/tracking-backup-2024-03-09.csv"]; !strings.Contains(body, `"Weight"`) {
		t.Errorf("backup overwritten:\n%s", body)
	}
}

func TestBackupJob_StoreError(t *testing.T) {
	store := &memStore{err: errors.New("disk full")}
	job := tasks.BackupJob(tasks.BackupConfig{
		Interval: time.Hour, Store: store, Source: fixed{"a": {Key: "a", Data: []models.DataPoint{}}}, Now: day,
	}, zap.NewNop())

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("Run() error = nil, want storage error")
	}
	// A failed write is retried on the next run.
	store.err = nil
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1", store.puts)
	}
}

func TestBackupJob_LocalStorage(t *testing.T) {
	dir := t.TempDir()
	local, err := storage.NewLocal(storage.LocalConfig{BasePath: dir, BaseURL: "/files"})
	if err != nil {
		t.Fatalf("storage.NewLocal() error = %v", err)
	}

	job := tasks.BackupJob(tasks.BackupConfig{
		Interval: time.Hour, Store: local,
		Source: fixed{"a": {Key: "a", Name: "A", Data: []models.DataPoint{}}},
		Now:    day,
	}, zap.NewNop())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "backups", "tracking-backup-2024-03-09.csv"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.HasPrefix(string(b), "=== METADATA DE MÉTRICAS ===\n") {
		t.Errorf("backup = %q, want CSV export", b)
	}
}
