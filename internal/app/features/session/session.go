// internal/app/features/session/session.go
//
// Package session signs the daemon in and out of a password account.
// Signing in starts remote synchronization; signing out stops it and
// clears the in-memory collection.
package session

import (
	"context"
	"errors"
	"net/http"

	"github.com/dalemusser/stratatrack/internal/app/system/authutil"
	"github.com/dalemusser/stratatrack/internal/app/system/identity"
	"github.com/dalemusser/stratatrack/internal/app/system/jsonutil"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Provider is the part of *identity.Provider the handlers use.
type Provider interface {
	Current() (models.Identity, bool)
	Register(ctx context.Context, email, password string) (models.Identity, error)
	Login(ctx context.Context, email, password string) (models.Identity, error)
	Logout(ctx context.Context) error
	ChangePassword(ctx context.Context, current, next string) error
}

// Handler serves the session endpoints.
type Handler struct {
	ids    Provider
	logger *zap.Logger
}

// NewHandler creates a session Handler.
func NewHandler(ids Provider, logger *zap.Logger) *Handler {
	return &Handler{ids: ids, logger: logger}
}

// Status is the body of every session response.
type Status struct {
	Authenticated bool             `json:"authenticated"`
	User          *models.Identity `json:"user,omitempty"`
}

type passwordChange struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Routes returns a router with the session endpoints. Mount it at
// /api/session.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Current)
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.Post("/password", h.ChangePassword)
	return r
}

// Current handles GET /.
func (h *Handler) Current(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, h.status())
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if _, err := h.ids.Register(r.Context(), in.Email, in.Password); err != nil {
		h.writeErr(w, "register", err)
		return
	}
	jsonutil.Created(w, h.status())
}

// Login handles POST /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if _, err := h.ids.Login(r.Context(), in.Email, in.Password); err != nil {
		h.writeErr(w, "login", err)
		return
	}
	jsonutil.OK(w, h.status())
}

// Logout handles POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.ids.Logout(r.Context()); err != nil {
		h.writeErr(w, "logout", err)
		return
	}
	jsonutil.OK(w, h.status())
}

// ChangePassword handles POST /password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var in passwordChange
	if err := jsonutil.Decode(w, r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err := h.ids.ChangePassword(r.Context(), in.Current, in.New); err != nil {
		h.writeErr(w, "change password", err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) status() Status {
	id, ok := h.ids.Current()
	if !ok {
		return Status{}
	}
	return Status{Authenticated: true, User: &id}
}

func (h *Handler) writeErr(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials),
		errors.Is(err, identity.ErrNotSignedIn):
		jsonutil.Unauthorized(w, err.Error())
	case errors.Is(err, identity.ErrTooManyAttempts):
		jsonutil.TooManyRequests(w, err.Error())
	case errors.Is(err, identity.ErrAccountExists):
		jsonutil.Conflict(w, err.Error())
	case errors.Is(err, authutil.ErrEmailRequired),
		errors.Is(err, authutil.ErrInvalidEmail):
		jsonutil.ValidationError(w, map[string]string{"email": err.Error()})
	case errors.Is(err, authutil.ErrPasswordTooShort),
		errors.Is(err, authutil.ErrPasswordTooLong),
		errors.Is(err, authutil.ErrPasswordCommon):
		jsonutil.ValidationError(w, map[string]string{"password": err.Error()})
	default:
		h.logger.Error(op+" failed", zap.Error(err))
		jsonutil.InternalError(w, "internal error")
	}
}
