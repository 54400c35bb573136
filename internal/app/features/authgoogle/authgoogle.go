// internal/app/features/authgoogle/authgoogle.go
//
// Package authgoogle signs the daemon in with a Google account. The
// browser is sent to Google and comes back to /callback; the verified
// email then signs in through the identity provider, which starts the
// same migration and sync as a password sign-in.
package authgoogle

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// ProviderName labels Google sign-ins in logs, state records and
// notifications.
const ProviderName = "Google"

// DefaultUserInfoURL is Google's OAuth2 user info endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// StateStore issues and consumes single-use state tokens.
// oauthstate.Store implements it.
type StateStore interface {
	Create(ctx context.Context, state, provider string) error
	Verify(ctx context.Context, state, provider string) (bool, error)
}

// SignIn is the part of *identity.Provider the callback uses.
type SignIn interface {
	LoginExternal(ctx context.Context, provider, email string, verified bool) (models.Identity, error)
}

// Config configures the OAuth client.
type Config struct {
	ClientID     string
	ClientSecret string
	// BaseURL is the daemon's externally reachable URL; the callback is
	// BaseURL + "/auth/google/callback".
	BaseURL string
	// ReturnURL receives the browser after the flow, with ?error=<code>
	// on failure. Defaults to "/".
	ReturnURL string

	// Endpoint and UserInfoURL default to Google's.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Handler provides the Google sign-in handlers.
type Handler struct {
	oauth       *oauth2.Config
	states      StateStore
	ids         SignIn
	userInfoURL string
	returnURL   string
	logger      *zap.Logger
}

// NewHandler creates a Handler.
func NewHandler(cfg Config, states StateStore, ids SignIn, logger *zap.Logger) *Handler {
	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" {
		endpoint = google.Endpoint
	}
	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = DefaultUserInfoURL
	}
	ret := cfg.ReturnURL
	if ret == "" {
		ret = "/"
	}
	return &Handler{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.BaseURL + "/auth/google/callback",
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		states:      states,
		ids:         ids,
		userInfoURL: userInfo,
		returnURL:   ret,
		logger:      logger,
	}
}

// Routes returns a router with the sign-in routes. Mount it at
// /auth/google.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Start)
	r.Get("/callback", h.Callback)
	return r
}

// Start redirects the browser to Google's consent page.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		h.logger.Error("generate oauth state", zap.Error(err))
		h.fail(w, r, "oauth_error")
		return
	}
	if err := h.states.Create(r.Context(), state, ProviderName); err != nil {
		h.logger.Error("store oauth state", zap.Error(err))
		h.fail(w, r, "oauth_error")
		return
	}
	http.Redirect(w, r, h.oauth.AuthCodeURL(state), http.StatusTemporaryRedirect)
}

// Callback finishes the flow and signs the Google account in.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ok, err := h.states.Verify(r.Context(), q.Get("state"), ProviderName)
	if err != nil {
		h.logger.Error("verify oauth state", zap.Error(err))
		h.fail(w, r, "oauth_error")
		return
	}
	if !ok {
		h.logger.Warn("invalid oauth state")
		h.fail(w, r, "invalid_state")
		return
	}
	if e := q.Get("error"); e != "" {
		h.logger.Info("oauth error from google", zap.String("error", e))
		h.fail(w, r, e)
		return
	}

	token, err := h.oauth.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		h.logger.Warn("exchange oauth code", zap.Error(err))
		h.fail(w, r, "token_exchange_failed")
		return
	}
	info, err := h.userInfo(r.Context(), token)
	if err != nil {
		h.logger.Warn("fetch google user info", zap.Error(err))
		h.fail(w, r, "userinfo_failed")
		return
	}

	if _, err := h.ids.LoginExternal(r.Context(), ProviderName, info.Email, info.VerifiedEmail); err != nil {
		code := "login_failed"
		if errors.Is(err, identity.ErrUnverifiedEmail) {
			code = "email_unverified"
		}
		h.fail(w, r, code)
		return
	}
	http.Redirect(w, r, h.returnURL, http.StatusSeeOther)
}

// UserInfo is the subset of Google's user info response that is used.
type UserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
}

func (h *Handler) userInfo(ctx context.Context, token *oauth2.Token) (*UserInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info: status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, code string) {
	target := h.returnURL
	u, err := url.Parse(target)
	if err == nil {
		q := u.Query()
		q.Set("error", code)
		u.RawQuery = q.Encode()
		target = u.String()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
