package metrics_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dalemusser/stratatrack/internal/app/features/metrics"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/dalemusser/stratatrack/internal/testutil"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*testutil.Tracking, http.Handler) {
	t.Helper()
	tr := testutil.NewTracking(t)
	return tr, metrics.Routes(metrics.NewHandler(tr.Store, zap.NewNop()))
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMetric(t *testing.T, rec *httptest.ResponseRecorder) models.Metric {
	t.Helper()
	var m models.Metric
	if err := json.NewDecoder(rec.Body).Decode(&m); err != nil {
		t.Fatalf("decode metric: %v", err)
	}
	return m
}

func TestCreateAndGet(t *testing.T) {
	tr, h := setup(t)

	rec := do(h, http.MethodPost, "/", `{"key":" weight ","name":"<b>Weight</b>","color":"#FFF"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("Create status = %d, want %d; body %s", rec.Code, http.StatusCreated, rec.Body)
	}
	m := decodeMetric(t, rec)
	if m.Key != "weight" || m.Name != "Weight" || m.Color != "#fff" {
		t.Errorf("Create metric = %+v, want key weight, name Weight, color #fff", m)
	}

	rec = do(h, http.MethodGet, "/weight", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Get status = %d, want 200", rec.Code)
	}
	if got := decodeMetric(t, rec); got.Name != "Weight" {
		t.Errorf("Get name = %q, want Weight", got.Name)
	}

	if _, ok := tr.Store.Collection()["weight"]; !ok {
		t.Error("store is missing the created metric")
	}
}

func TestCreate_Validation(t *testing.T) {
	_, h := setup(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing key", `{"name":"x"}`},
		{"bad color", `{"key":"k","color":"blue"}`},
		{"unknown field", `{"key":"k","size":1}`},
		{"not json", `key=k`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(h, http.MethodPost, "/", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	_, h := setup(t)

	tests := []struct {
		method, target, body string
	}{
		{http.MethodGet, "/nope", ""},
		{http.MethodPut, "/nope", `{"name":"x"}`},
		{http.MethodDelete, "/nope", ""},
		{http.MethodGet, "/nope/points", ""},
		{http.MethodGet, "/nope/points?order=desc", ""},
		{http.MethodPost, "/nope/points", `{"date":"2024-01-01","value":1}`},
		{http.MethodDelete, "/nope/points/2024-01-01", ""},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rec := do(h, tt.method, tt.target, tt.body)
			if rec.Code != http.StatusNotFound {
				t.Errorf("status = %d, want 404", rec.Code)
			}
		})
	}
}

func TestPoints(t *testing.T) {
	tr, h := setup(t)
	if err := tr.Store.AddValue("w"); err != nil {
		t.Fatalf("AddValue() error = %v", err)
	}

	for _, body := range []string{
		`{"date":"2024-01-03","value":71}`,
		`{"date":"2024-01-01","value":70}`,
		`{"date":"2024-01-03","value":72.5}`,
		`{"date":"2024-01-02","value":"skipped <i>gym</i>"}`,
	} {
		if rec := do(h, http.MethodPost, "/w/points", body); rec.Code != http.StatusOK {
			t.Fatalf("AddPoint(%s) status = %d; body %s", body, rec.Code, rec.Body)
		}
	}

	rec := do(h, http.MethodGet, "/w/points?order=desc", "")
	var resp metrics.PointsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	wantDates := []string{"2024-01-03", "2024-01-02", "2024-01-01"}
	if len(resp.Data) != len(wantDates) {
		t.Fatalf("Data = %+v, want %d points", resp.Data, len(wantDates))
	}
	for i, d := range wantDates {
		if resp.Data[i].Date != d {
			t.Errorf("Data[%d].Date = %q, want %q", i, resp.Data[i].Date, d)
		}
	}
	if resp.Data[0].Value != 72.5 {
		t.Errorf("Data[0].Value = %#v, want 72.5", resp.Data[0].Value)
	}
	if resp.Data[1].Value != "skipped gym" {
		t.Errorf("Data[1].Value = %#v, want markup stripped", resp.Data[1].Value)
	}

	stored, _ := tr.Store.Metric("w")
	if stored.Data[0].Date != "2024-01-01" {
		t.Errorf("stored order changed: first date = %q", stored.Data[0].Date)
	}

	if rec := do(h, http.MethodDelete, "/w/points/2024-01-02", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DeletePoint status = %d, want 204", rec.Code)
	}
	stored, _ = tr.Store.Metric("w")
	if len(stored.Data) != 2 {
		t.Errorf("len(Data) after delete = %d, want 2", len(stored.Data))
	}
}

func TestAddPoint_Invalid(t *testing.T) {
	tr, h := setup(t)
	_ = tr.Store.AddValue("w")

	tests := []struct {
		name string
		body string
	}{
		{"bad date", `{"date":"01/02/2024","value":1}`},
		{"missing date", `{"value":1}`},
		{"object value", `{"date":"2024-01-01","value":{"a":1}}`},
		{"null value", `{"date":"2024-01-01","value":null}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(h, http.MethodPost, "/w/points", tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestPoints_BadOrder(t *testing.T) {
	tr, h := setup(t)
	_ = tr.Store.AddValue("w")
	if rec := do(h, http.MethodGet, "/w/points?order=sideways", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestUpdateAndDelete(t *testing.T) {
	tr, h := setup(t)
	_ = tr.Store.AddValue("w")
	_ = tr.Store.SaveMetric("w", "Weight", "#111111")

	rec := do(h, http.MethodPut, "/w", `{"color":"#222222"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Update status = %d; body %s", rec.Code, rec.Body)
	}
	if m := decodeMetric(t, rec); m.Name != "Weight" || m.Color != "#222222" {
		t.Errorf("Update metric = %+v, want name kept and color changed", m)
	}

	if rec := do(h, http.MethodDelete, "/w", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("Delete status = %d, want 204", rec.Code)
	}
	if len(tr.Store.Collection()) != 0 {
		t.Errorf("collection = %v, want empty", tr.Store.Collection())
	}
}

func TestListAndStandardize(t *testing.T) {
	tr, h := setup(t)
	tr.Store.ReplaceAll(models.Collection{"legacy": {Data: []models.DataPoint{}}})

	rec := do(h, http.MethodPost, "/standardize", "")
	var out map[string]int
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["changed"] != 1 {
		t.Errorf("changed = %d, want 1", out["changed"])
	}

	rec = do(h, http.MethodGet, "/", "")
	var c models.Collection
	if err := json.NewDecoder(rec.Body).Decode(&c); err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := c["legacy"]
	if m.Key != "legacy" || m.Name != "legacy" || m.Color != models.DefaultColor {
		t.Errorf("listed metric = %+v, want standardized fields", m)
	}
}
