package tracking_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/savewriter"
	"github.com/dalemusser/stratatrack/internal/app/system/tracking"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/dalemusser/stratatrack/internal/testutil"
	"go.uber.org/zap"
)

var alice = models.Identity{ID: "alice", Email: "alice@example.com"}

type harness struct {
	cache   *testutil.MemCache
	docs    *testutil.MemDocs
	ids     *testutil.Identities
	notices *testutil.Notices
	writer  *savewriter.Writer
	store   *tracking.Store
}

// newHarness builds a Store over in-memory collaborators. cached, when
// non-nil, seeds the local cache. Remote writes are debounced for an hour
// so tests drive them with Flush.
func newHarness(t *testing.T, cached models.Collection) *harness {
	t.Helper()
	h := &harness{
		cache:   testutil.NewMemCache(),
		docs:    testutil.NewMemDocs(),
		ids:     testutil.NewIdentities(),
		notices: &testutil.Notices{},
	}
	if cached != nil {
		raw, err := cached.Encode()
		if err != nil {
			t.Fatalf("Encode() error = %v", err)
		}
		if err := h.cache.Set(context.Background(), models.TrackedValuesKey, raw); err != nil {
			t.Fatalf("seed cache: %v", err)
		}
	}
	h.writer = savewriter.New(h.docs, h.ids, h.notices, zap.NewNop())
	store, err := tracking.New(context.Background(), tracking.Deps{
		Cache:    h.cache,
		Remote:   h.docs,
		Writer:   h.writer,
		Identity: h.ids,
		Notifier: h.notices,
		Logger:   zap.NewNop(),
	}, tracking.Config{Collection: "users", Debounce: time.Hour})
	if err != nil {
		t.Fatalf("tracking.New() error = %v", err)
	}
	h.store = store
	detach := store.Attach(context.Background(), h.ids)
	t.Cleanup(detach)
	return h
}

func (h *harness) cached(t *testing.T) (models.Collection, bool) {
	t.Helper()
	raw, ok, err := h.cache.Get(context.Background(), models.TrackedValuesKey)
	if err != nil {
		t.Fatalf("cache Get() error = %v", err)
	}
	if !ok {
		return nil, false
	}
	c, err := models.ParseCollection(raw)
	if err != nil {
		t.Fatalf("ParseCollection() error = %v", err)
	}
	return c, true
}

func dates(data []models.DataPoint) []string {
	out := make([]string, len(data))
	for i, dp := range data {
		out[i] = dp.Date
	}
	return out
}

func TestNew_LoadsLocalCache(t *testing.T) {
	h := newHarness(t, models.Collection{"w": {Key: "w", Data: []models.DataPoint{{Date: "2024-01-01", Value: 70.0}}}})

	m, err := h.store.Metric("w")
	if err != nil {
		t.Fatalf("Metric() error = %v", err)
	}
	if len(m.Data) != 1 || m.Data[0].Value != 70.0 {
		t.Errorf("Metric(w) = %+v, want one point of 70", m)
	}
}

func TestNew_UnreadableCacheStartsEmpty(t *testing.T) {
	cache := testutil.NewMemCache()
	_ = cache.Set(context.Background(), models.TrackedValuesKey, "{broken")
	ids := testutil.NewIdentities()
	store, err := tracking.New(context.Background(), tracking.Deps{
		Cache:    cache,
		Remote:   testutil.NewMemDocs(),
		Writer:   savewriter.New(testutil.NewMemDocs(), ids, nil, zap.NewNop()),
		Identity: ids,
		Logger:   zap.NewNop(),
	}, tracking.Config{})
	if err != nil {
		t.Fatalf("tracking.New() error = %v", err)
	}
	if n := len(store.Collection()); n != 0 {
		t.Errorf("len(Collection()) = %d, want 0", n)
	}
}

func TestAddDataPoint_SortedAndUnique(t *testing.T) {
	h := newHarness(t, nil)
	if err := h.store.AddValue("w"); err != nil {
		t.Fatalf("AddValue() error = %v", err)
	}

	points := []struct {
		date  string
		value any
	}{
		{"2024-03-01", 72},
		{"2024-01-15", 70},
		{"2024-02-01", 71},
		{"2024-01-15", 69.5},
		{"2023-12-31", "n/a"},
	}
	for _, p := range points {
		if err := h.store.AddDataPoint("w", p.date, p.value); err != nil {
			t.Fatalf("AddDataPoint(%s) error = %v", p.date, err)
		}
	}

	m, _ := h.store.Metric("w")
	want := []string{"2023-12-31", "2024-01-15", "2024-02-01", "2024-03-01"}
	got := dates(m.Data)
	if len(got) != len(want) {
		t.Fatalf("dates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("dates[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if v := m.Data[1].Value; v != 69.5 {
		t.Errorf("value for duplicate date = %v, want 69.5 (later call wins)", v)
	}
	if v := m.Data[3].Value; v != 72.0 {
		t.Errorf("integer value = %#v, want float64 72", v)
	}
}

func TestAddDataPoint_Invalid(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")

	if err := h.store.AddDataPoint("w", " ", 1); !errors.Is(err, tracking.ErrInvalidDate) {
		t.Errorf("AddDataPoint(empty date) error = %v, want ErrInvalidDate", err)
	}
	if err := h.store.AddDataPoint("w", "2024-01-01", []int{1}); !errors.Is(err, tracking.ErrInvalidValue) {
		t.Errorf("AddDataPoint(slice) error = %v, want ErrInvalidValue", err)
	}
}

func TestGetDataDesc_DoesNotMutate(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")
	for _, d := range []string{"2024-01-02", "2024-01-01", "2024-01-03"} {
		_ = h.store.AddDataPoint("w", d, 1)
	}

	for i := 0; i < 3; i++ {
		desc, err := h.store.GetDataDesc("w")
		if err != nil {
			t.Fatalf("GetDataDesc() error = %v", err)
		}
		if got := dates(desc); got[0] != "2024-01-03" || got[2] != "2024-01-01" {
			t.Errorf("GetDataDesc() = %v, want newest first", got)
		}
		desc[0].Value = 999.0
	}

	m, _ := h.store.Metric("w")
	if got := dates(m.Data); got[0] != "2024-01-01" || got[2] != "2024-01-03" {
		t.Errorf("stored order = %v, want ascending", got)
	}
	for _, dp := range m.Data {
		if dp.Value == 999.0 {
			t.Error("mutating GetDataDesc result changed stored data")
		}
	}
}

func TestOperations_NotFound(t *testing.T) {
	h := newHarness(t, nil)
	checks := map[string]error{
		"AddDataPoint":    h.store.AddDataPoint("nope", "2024-01-01", 1),
		"DeleteValue":     h.store.DeleteValue("nope"),
		"DeleteValueData": h.store.DeleteValueData("nope", "2024-01-01"),
		"SaveMetric":      h.store.SaveMetric("nope", "N", "#fff"),
	}
	_, err := h.store.GetDataDesc("nope")
	checks["GetDataDesc"] = err
	_, err = h.store.Metric("nope")
	checks["Metric"] = err

	for op, err := range checks {
		if !errors.Is(err, tracking.ErrNotFound) {
			t.Errorf("%s() error = %v, want ErrNotFound", op, err)
		}
		var nf *tracking.NotFoundError
		if !errors.As(err, &nf) || nf.Key != "nope" {
			t.Errorf("%s() error = %v, want NotFoundError for key nope", op, err)
		}
	}
}

func TestAddValue_ResetsExisting(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")
	_ = h.store.AddDataPoint("w", "2024-01-01", 1)
	_ = h.store.AddValue("w")

	m, _ := h.store.Metric("w")
	if len(m.Data) != 0 || m.Key != "w" {
		t.Errorf("Metric(w) after AddValue = %+v, want empty series with key", m)
	}
	if err := h.store.AddValue("  "); !errors.Is(err, tracking.ErrInvalidKey) {
		t.Errorf("AddValue(blank) error = %v, want ErrInvalidKey", err)
	}
}

func TestDeleteValueData(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")
	_ = h.store.AddDataPoint("w", "2024-01-01", 1)
	_ = h.store.AddDataPoint("w", "2024-01-02", 2)

	if err := h.store.DeleteValueData("w", "2024-01-01"); err != nil {
		t.Fatalf("DeleteValueData() error = %v", err)
	}
	if err := h.store.DeleteValueData("w", "1999-01-01"); err != nil {
		t.Fatalf("DeleteValueData(absent date) error = %v", err)
	}
	m, _ := h.store.Metric("w")
	if got := dates(m.Data); len(got) != 1 || got[0] != "2024-01-02" {
		t.Errorf("dates = %v, want [2024-01-02]", got)
	}

	if err := h.store.DeleteValue("w"); err != nil {
		t.Fatalf("DeleteValue() error = %v", err)
	}
	if _, err := h.store.Metric("w"); !errors.Is(err, tracking.ErrNotFound) {
		t.Errorf("Metric() after DeleteValue error = %v, want ErrNotFound", err)
	}
}

func TestSaveMetric(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")
	if err := h.store.SaveMetric("w", "Weight", "#fff"); err != nil {
		t.Fatalf("SaveMetric() error = %v", err)
	}
	if err := h.store.SaveMetric("w", "", "#000"); err != nil {
		t.Fatalf("SaveMetric() error = %v", err)
	}
	m, _ := h.store.Metric("w")
	if m.Name != "Weight" || m.Color != "#000" {
		t.Errorf("Metric(w) = %+v, want name Weight and color #000", m)
	}
}

func TestStandardizeData(t *testing.T) {
	h := newHarness(t, models.Collection{
		"legacy": {Data: []models.DataPoint{{Date: "2024-01-01", Value: 1.0}}},
		"modern": {Key: "modern", Name: "Modern", Color: "#fff", Data: []models.DataPoint{}},
	})

	if n := h.store.StandardizeData(); n != 1 {
		t.Errorf("StandardizeData() = %d, want 1", n)
	}
	m, _ := h.store.Metric("legacy")
	if m.Key != "legacy" || m.Name != "legacy" || m.Color != models.DefaultColor {
		t.Errorf("Metric(legacy) = %+v, want key/name legacy and default color", m)
	}
	if n := h.store.StandardizeData(); n != 0 {
		t.Errorf("second StandardizeData() = %d, want 0", n)
	}
}

func TestAnonymous_MutationsGoToLocalCache(t *testing.T) {
	h := newHarness(t, nil)
	_ = h.store.AddValue("w")
	_ = h.store.AddDataPoint("w", "2024-01-01", 70)

	c, ok := h.cached(t)
	if !ok {
		t.Fatal("local cache has no collection after mutation")
	}
	if got := c["w"].Data[0].Value; got != 70.0 {
		t.Errorf("cached value = %v, want 70", got)
	}
	if h.docs.Writes() != 0 {
		t.Errorf("remote Writes() = %d, want 0 while anonymous", h.docs.Writes())
	}
	if p := h.store.Phase(); p != tracking.PhaseAnonymous {
		t.Errorf("Phase() = %s, want %s", p, tracking.PhaseAnonymous)
	}
}

func TestLocalSaveErr(t *testing.T) {
	h := newHarness(t, nil)
	h.cache.SetErr = errors.New("disk full")

	if err := h.store.AddValue("w"); err != nil {
		t.Fatalf("AddValue() error = %v", err)
	}
	if err := h.store.LocalSaveErr(); err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("LocalSaveErr() = %v, want disk full", err)
	}
	if got := h.store.SyncState().LocalSaveError; got == "" {
		t.Error("SyncState().LocalSaveError is empty after a failed write")
	}
	if len(h.notices.All()) == 0 {
		t.Error("no notification after a failed local write")
	}

	h.cache.SetErr = nil
	if err := h.store.AddDataPoint("w", "2024-01-01", 1); err != nil {
		t.Fatalf("AddDataPoint() error = %v", err)
	}
	if err := h.store.LocalSaveErr(); err != nil {
		t.Errorf("LocalSaveErr() = %v after a successful write, want nil", err)
	}
}

func TestReplaceAll_IsLocalChange(t *testing.T) {
	h := newHarness(t, nil)
	h.store.ReplaceAll(models.Collection{
		"a": {Key: "a", Data: []models.DataPoint{{Date: "2024-01-02", Value: 2.0}, {Date: "2024-01-01", Value: 1.0}}},
	})

	c, ok := h.cached(t)
	if !ok || len(c) != 1 {
		t.Fatalf("cached = %v, want one metric", c)
	}
	if got := dates(c["a"].Data); got[0] != "2024-01-01" {
		t.Errorf("cached dates = %v, want ascending", got)
	}
}

func TestOnChange_ObserversGetCopies(t *testing.T) {
	h := newHarness(t, nil)

	var seen []models.Collection
	unsub := h.store.OnChange(func(c models.Collection) {
		seen = append(seen, c)
		c["injected"] = models.Metric{}
	})

	_ = h.store.AddValue("w")
	unsub()
	_ = h.store.AddValue("x")

	if len(seen) != 1 {
		t.Fatalf("observer calls = %d, want 1", len(seen))
	}
	if _, ok := h.store.Collection()["injected"]; ok {
		t.Error("observer mutation leaked into the store")
	}
}
