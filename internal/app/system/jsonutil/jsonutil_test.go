package jsonutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestJSON(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		data       any
		wantStatus int
		wantBody   string
	}{
		{
			name:       "200 OK with data",
			status:     http.StatusOK,
			data:       map[string]string{"message": "hello"},
			wantStatus: http.StatusOK,
			wantBody:   `{"message":"hello"}`,
		},
		{
			name:       "201 Created with data",
			status:     http.StatusCreated,
			data:       map[string]int{"count": 2},
			wantStatus: http.StatusCreated,
			wantBody:   `{"count":2}`,
		},
		{
			name:       "nil data",
			status:     http.StatusOK,
			wantStatus: http.StatusOK,
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			JSON(rec, tt.status, tt.data)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if body := strings.TrimSpace(rec.Body.String()); body != tt.wantBody {
				t.Errorf("body = %q, want %q", body, tt.wantBody)
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
	}{
		{"BadRequest", func(w http.ResponseWriter) { BadRequest(w, "m") }, http.StatusBadRequest},
		{"Unauthorized", func(w http.ResponseWriter) { Unauthorized(w, "m") }, http.StatusUnauthorized},
		{"NotFound", func(w http.ResponseWriter) { NotFound(w, "m") }, http.StatusNotFound},
		{"Conflict", func(w http.ResponseWriter) { Conflict(w, "m") }, http.StatusConflict},
		{"TooManyRequests", func(w http.ResponseWriter) { TooManyRequests(w, "m") }, http.StatusTooManyRequests},
		{"Unavailable", func(w http.ResponseWriter) { Unavailable(w, "m") }, http.StatusServiceUnavailable},
		{"InternalError", func(w http.ResponseWriter) { InternalError(w, "m") }, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var body map[string]string
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if body["error"] != "m" {
				t.Errorf("error = %q, want %q", body["error"], "m")
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	rec := httptest.NewRecorder()
	ValidationError(rec, map[string]string{"color": "invalid"})

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if rec.Code != http.StatusBadRequest || body.Fields["color"] != "invalid" {
		t.Errorf("got %d %+v, want 400 with color field", rec.Code, body)
	}
}

func TestDecode(t *testing.T) {
	type input struct {
		Name  string `json:"name"`
		Value any    `json:"value"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"valid", `{"name":"w","value":70}`, false},
		{"empty", ``, true},
		{"malformed", `{"name":`, true},
		{"unknown field", `{"name":"w","extra":1}`, true},
		{"trailing data", `{"name":"w"} {}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var in input
			err := Decode(httptest.NewRecorder(), req, &in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				if n, ok := in.Value.(json.Number); !ok || n.String() != "70" {
					t.Errorf("Value = %#v, want json.Number 70", in.Value)
				}
			}
		})
	}
}
