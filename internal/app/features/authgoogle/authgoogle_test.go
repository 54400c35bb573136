package authgoogle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/dalemusser/stratatrack/internal/app/system/authutil"
	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/dalemusser/stratatrack/internal/testutil"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
)

func TestMain(m *testing.M) {
	authutil.SetCost(bcrypt.MinCost)
	m.Run()
}

type memStates struct {
	mu     sync.Mutex
	states map[string]string
	err    error
}

func (s *memStates) Create(_ context.Context, state, provider string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.states == nil {
		s.states = map[string]string{}
	}
	s.states[state] = provider
	return nil
}

func (s *memStates) Verify(_ context.Context, state, provider string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	p, ok := s.states[state]
	delete(s.states, state)
	return ok && p == provider, nil
}

// fakeGoogle serves the token and user info endpoints.
func fakeGoogle(t *testing.T, email string, verified bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		v := "false"
		if verified {
			v = "true"
		}
		_, _ = w.Write([]byte(`{"id":"1","email":"` + email + `","verified_email":` + v + `}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setup(t *testing.T, email string, verified bool) (*identity.Provider, *memStates, http.Handler) {
	t.Helper()
	srv := fakeGoogle(t, email, verified)
	ids := identity.New(testutil.NewMemAccounts(), nil, zap.NewNop())
	states := &memStates{}
	h := NewHandler(Config{
		ClientID:     "client",
		ClientSecret: "secret",
		BaseURL:      "http://localhost:8080",
		ReturnURL:    "/app",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"},
		UserInfoURL:  srv.URL + "/userinfo",
	}, states, ids, zap.NewNop())
	return ids, states, Routes(h)
}

func get(h http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

// startFlow runs Start and returns the state it issued.
func startFlow(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := get(h, "/")
	if rec.Code != http.StatusTemporaryRedirect {
		t.Fatalf("Start status = %d, want 307", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("parse Location: %v", err)
	}
	if got := loc.Query().Get("redirect_uri"); got != "http://localhost:8080/auth/google/callback" {
		t.Errorf("redirect_uri = %q", got)
	}
	state := loc.Query().Get("state")
	if state == "" {
		t.Fatal("Start issued no state")
	}
	return state
}

func TestCallback_SignsIn(t *testing.T) {
	ids, _, h := setup(t, "Dana@Example.com", true)
	var events []models.Identity
	ids.Subscribe(func(id models.Identity, ok bool) {
		if ok {
			events = append(events, id)
		}
	})

	state := startFlow(t, h)
	rec := get(h, "/callback?state="+url.QueryEscape(state)+"&code=good-code")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/app" {
		t.Fatalf("Callback = %d %q, want 303 /app", rec.Code, rec.Header().Get("Location"))
	}
	cur, ok := ids.Current()
	if !ok || cur.Email != "dana@example.com" {
		t.Errorf("Current() = %+v, %v; want dana@example.com", cur, ok)
	}
	if len(events) != 1 {
		t.Errorf("sign-in events = %d, want 1", len(events))
	}

	// State is single use.
	rec = get(h, "/callback?state="+url.QueryEscape(state)+"&code=good-code")
	if !strings.Contains(rec.Header().Get("Location"), "error=invalid_state") {
		t.Errorf("replayed Callback Location = %q, want invalid_state", rec.Header().Get("Location"))
	}
}

func TestCallback_Failures(t *testing.T) {
	tests := []struct {
		name     string
		verified bool
		query    func(state string) string
		want     string
	}{
		{"unknown state", true, func(string) string { return "state=forged&code=good-code" }, "invalid_state"},
		{"denied", true, func(s string) string { return "state=" + url.QueryEscape(s) + "&error=access_denied" }, "access_denied"},
		{"bad code", true, func(s string) string { return "state=" + url.QueryEscape(s) + "&code=bad" }, "token_exchange_failed"},
		{"unverified", false, func(s string) string { return "state=" + url.QueryEscape(s) + "&code=good-code" }, "email_unverified"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids, _, h := setup(t, "dana@example.com", tt.verified)
			state := startFlow(t, h)

			rec := get(h, "/callback?"+tt.query(state))
			if rec.Code != http.StatusSeeOther {
				t.Fatalf("status = %d, want 303", rec.Code)
			}
			if loc := rec.Header().Get("Location"); loc != "/app?error="+tt.want {
				t.Errorf("Location = %q, want /app?error=%s", loc, tt.want)
			}
			if _, ok := ids.Current(); ok {
				t.Error("signed in after a failed callback")
			}
		})
	}
}

func TestStart_StateStoreError(t *testing.T) {
	_, states, h := setup(t, "dana@example.com", true)
	states.err = errors.New("mongo down")

	rec := get(h, "/")
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/app?error=oauth_error" {
		t.Errorf("Start = %d %q, want 303 /app?error=oauth_error", rec.Code, rec.Header().Get("Location"))
	}
}

func TestNewHandler_Defaults(t *testing.T) {
	h := NewHandler(Config{ClientID: "id", BaseURL: "http://127.0.0.1:8080"}, &memStates{}, nil, zap.NewNop())
	if h.oauth.Endpoint.AuthURL == "" || !strings.Contains(h.oauth.Endpoint.AuthURL, "google") {
		t.Errorf("Endpoint = %+v, want Google", h.oauth.Endpoint)
	}
	if h.userInfoURL != DefaultUserInfoURL || h.returnURL != "/" {
		t.Errorf("userInfoURL = %q, returnURL = %q", h.userInfoURL, h.returnURL)
	}
}
