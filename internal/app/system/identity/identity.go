// internal/app/system/identity/identity.go
//
// Package identity tracks who is signed in to the daemon and announces
// every sign-in and sign-out to subscribers. Accounts are email/password
// pairs stored in MongoDB with bcrypt hashes, or accounts created by a
// federated sign-in that carry no password.
package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	accountstore "github.com/dalemusser/stratatrack/internal/app/store/accounts"
	"github.com/dalemusser/stratatrack/internal/app/system/authutil"
	"github.com/dalemusser/stratatrack/internal/app/system/normalize"
	"github.com/dalemusser/stratatrack/internal/app/system/notify"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrAccountExists is returned when registering a taken email.
	ErrAccountExists = errors.New("an account with this email already exists")
	// ErrNotSignedIn is returned by operations that need an identity.
	ErrNotSignedIn = errors.New("not signed in")
	// ErrTooManyAttempts is returned while an email is locked out.
	ErrTooManyAttempts = errors.New("too many failed sign-in attempts")
	// ErrUnverifiedEmail is returned for a federated sign-in whose email
	// the provider has not verified.
	ErrUnverifiedEmail = errors.New("email is not verified")
)

// Accounts stores password accounts.
type Accounts interface {
	Create(ctx context.Context, email, passwordHash string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	UpdatePassword(ctx context.Context, id, passwordHash string) error
}

// Limiter throttles failed sign-ins per email. loginlimit.Store
// implements it.
type Limiter interface {
	Allowed(ctx context.Context, email string) (bool, *time.Time)
	RecordFailure(ctx context.Context, email string) (*time.Time, error)
	Clear(ctx context.Context, email string) error
}

// SessionStore keeps the signed-in identity across restarts.
// sessiontoken.Store implements it.
type SessionStore interface {
	Save(ctx context.Context, id models.Identity) error
	Load(ctx context.Context) (models.Identity, bool, error)
	Clear(ctx context.Context) error
}

// Provider holds the current identity.
type Provider struct {
	accounts Accounts
	notifier notify.Notifier
	logger   *zap.Logger
	limiter  Limiter
	sessions SessionStore

	// transition serializes sign-in and sign-out so subscribers see
	// events in order.
	transition sync.Mutex

	mu        sync.Mutex
	current   *models.Identity
	listeners map[int]func(models.Identity, bool)
	next      int
}

// New creates a Provider with nobody signed in. notifier may be nil.
func New(accounts Accounts, notifier notify.Notifier, logger *zap.Logger) *Provider {
	return &Provider{
		accounts:  accounts,
		notifier:  notifier,
		logger:    logger,
		listeners: map[int]func(models.Identity, bool){},
	}
}

// SetLimiter enables sign-in throttling. Call it before serving requests.
func (p *Provider) SetLimiter(l Limiter) { p.limiter = l }

// SetSessionStore makes sign-ins survive a restart. Call it before
// Restore and before serving requests.
func (p *Provider) SetSessionStore(s SessionStore) { p.sessions = s }

// Restore signs in the identity saved by an earlier run. The account must
// still exist; when it cannot be checked because the account store is
// unreachable the saved identity is trusted. It reports whether anyone
// was signed in.
func (p *Provider) Restore(ctx context.Context) (models.Identity, bool) {
	if p.sessions == nil {
		return models.Identity{}, false
	}
	id, ok, err := p.sessions.Load(ctx)
	if err != nil {
		p.logger.Warn("load saved sign-in", zap.Error(err))
		return models.Identity{}, false
	}
	if !ok {
		return models.Identity{}, false
	}

	acct, err := p.accounts.GetByID(ctx, id.ID)
	switch {
	case errors.Is(err, accountstore.ErrNotFound):
		p.logger.Info("saved sign-in refers to a missing account", zap.String("user_id", id.ID))
		p.forget(ctx)
		return models.Identity{}, false
	case err != nil:
		p.logger.Warn("verify saved sign-in, restoring without check",
			zap.String("user_id", id.ID), zap.Error(err))
	default:
		id = acct.Identity()
	}

	p.logger.Info("sign-in restored", zap.String("user_id", id.ID))
	p.signIn(ctx, id)
	return id, true
}

// Current returns the signed-in identity.
func (p *Provider) Current() (models.Identity, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return models.Identity{}, false
	}
	return *p.current, true
}

// Subscribe registers fn for transitions: (identity, true) on sign-in and
// (zero, false) on sign-out. fn runs synchronously in the goroutine that
// caused the transition.
func (p *Provider) Subscribe(fn func(models.Identity, bool)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.next++
	id := p.next
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// Register creates an account and signs it in.
func (p *Provider) Register(ctx context.Context, email, password string) (models.Identity, error) {
	email = normalize.Email(email)
	if err := authutil.ValidateCredentials(email, password); err != nil {
		return models.Identity{}, err
	}
	hash, err := authutil.HashPassword(password)
	if err != nil {
		return models.Identity{}, err
	}
	acct, err := p.accounts.Create(ctx, email, hash)
	if errors.Is(err, accountstore.ErrDuplicate) {
		p.notifyErr("Registration failed", "An account with this email already exists.")
		return models.Identity{}, ErrAccountExists
	}
	if err != nil {
		p.logger.Error("create account", zap.String("email", email), zap.Error(err))
		return models.Identity{}, err
	}

	id := acct.Identity()
	p.logger.Info("account registered", zap.String("user_id", id.ID))
	p.signIn(ctx, id)
	if p.notifier != nil {
		p.notifier.Notify(notify.Success("Welcome", "Your account was created."))
	}
	return id, nil
}

// Login checks the password and signs the account in. Signing in as a
// different identity signs the previous one out first.
func (p *Provider) Login(ctx context.Context, email, password string) (models.Identity, error) {
	email = normalize.Email(email)
	if p.limiter != nil {
		if ok, until := p.limiter.Allowed(ctx, email); !ok {
			p.logger.Info("login locked out", zap.String("email", email), zap.Timep("locked_until", until))
			p.notifyErr("Sign-in failed", "Too many failed attempts. Try again later.")
			return models.Identity{}, ErrTooManyAttempts
		}
	}

	acct, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, accountstore.ErrNotFound) {
		return models.Identity{}, p.rejectLogin(ctx, email)
	}
	if err != nil {
		p.logger.Error("look up account", zap.String("email", email), zap.Error(err))
		return models.Identity{}, err
	}
	if !authutil.CheckPassword(password, acct.PasswordHash) {
		p.logger.Info("login rejected", zap.String("user_id", acct.ID.Hex()))
		return models.Identity{}, p.rejectLogin(ctx, email)
	}

	if p.limiter != nil {
		if err := p.limiter.Clear(ctx, email); err != nil {
			p.logger.Warn("clear failed sign-ins", zap.String("email", email), zap.Error(err))
		}
	}
	id := acct.Identity()
	p.logger.Info("login", zap.String("user_id", id.ID))
	p.signIn(ctx, id)
	if p.notifier != nil {
		p.notifier.Notify(notify.Success("Signed in", "Your data is syncing with your account."))
	}
	return id, nil
}

func (p *Provider) rejectLogin(ctx context.Context, email string) error {
	if p.limiter != nil {
		until, err := p.limiter.RecordFailure(ctx, email)
		if err != nil {
			p.logger.Warn("record failed sign-in", zap.String("email", email), zap.Error(err))
		}
		if until != nil {
			p.logger.Info("login locked out", zap.String("email", email), zap.Time("locked_until", *until))
		}
	}
	p.notifyErr("Sign-in failed", "Email or password is incorrect.")
	return ErrInvalidCredentials
}

// LoginExternal signs in the account for an email a federated provider
// has vouched for, creating a password-less account on first use.
func (p *Provider) LoginExternal(ctx context.Context, provider, email string, verified bool) (models.Identity, error) {
	email = normalize.Email(email)
	if !verified {
		p.logger.Info("external login rejected, email not verified",
			zap.String("provider", provider), zap.String("email", email))
		p.notifyErr("Sign-in failed", "Your email address is not verified with "+provider+".")
		return models.Identity{}, ErrUnverifiedEmail
	}
	if err := authutil.ValidateEmail(email); err != nil {
		return models.Identity{}, err
	}

	acct, err := p.accounts.GetByEmail(ctx, email)
	if errors.Is(err, accountstore.ErrNotFound) {
		acct, err = p.accounts.Create(ctx, email, "")
		if errors.Is(err, accountstore.ErrDuplicate) {
			acct, err = p.accounts.GetByEmail(ctx, email)
		} else if err == nil {
			p.logger.Info("account registered", zap.String("user_id", acct.ID.Hex()), zap.String("provider", provider))
		}
	}
	if err != nil {
		p.logger.Error("external login account", zap.String("provider", provider), zap.String("email", email), zap.Error(err))
		p.notifyErr("Sign-in failed", "Could not sign in with "+provider+".")
		return models.Identity{}, err
	}

	id := acct.Identity()
	p.logger.Info("login", zap.String("user_id", id.ID), zap.String("provider", provider))
	p.signIn(ctx, id)
	if p.notifier != nil {
		p.notifier.Notify(notify.Success("Signed in", "Your data is syncing with your account."))
	}
	return id, nil
}

// Logout signs the current identity out. It is a no-op when nobody is
// signed in.
func (p *Provider) Logout(ctx context.Context) error {
	p.transition.Lock()
	defer p.transition.Unlock()

	prev, ok := p.Current()
	if !ok {
		return nil
	}
	p.forget(ctx)
	p.set(nil)
	p.emit(models.Identity{}, false)
	p.logger.Info("logout", zap.String("user_id", prev.ID))
	if p.notifier != nil {
		p.notifier.Notify(notify.Info("Signed out", "Your data stays in your account."))
	}
	return nil
}

// ChangePassword replaces the signed-in account's password after checking
// the current one.
func (p *Provider) ChangePassword(ctx context.Context, current, next string) error {
	id, ok := p.Current()
	if !ok {
		return ErrNotSignedIn
	}
	acct, err := p.accounts.GetByID(ctx, id.ID)
	if errors.Is(err, accountstore.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}
	if !authutil.CheckPassword(current, acct.PasswordHash) {
		return ErrInvalidCredentials
	}
	if err := authutil.ValidatePassword(next); err != nil {
		return err
	}
	hash, err := authutil.HashPassword(next)
	if err != nil {
		return err
	}
	if err := p.accounts.UpdatePassword(ctx, id.ID, hash); err != nil {
		p.logger.Error("update password", zap.String("user_id", id.ID), zap.Error(err))
		return err
	}
	p.logger.Info("password changed", zap.String("user_id", id.ID))
	if p.notifier != nil {
		p.notifier.Notify(notify.Success("Password changed", "Use your new password next time you sign in."))
	}
	return nil
}

func (p *Provider) signIn(ctx context.Context, id models.Identity) {
	p.transition.Lock()
	defer p.transition.Unlock()

	p.remember(ctx, id)
	if prev, ok := p.Current(); ok {
		if prev.ID == id.ID {
			return
		}
		p.set(nil)
		p.emit(models.Identity{}, false)
	}
	p.set(&id)
	p.emit(id, true)
}

// remember and forget only log failures: a sign-in that cannot be saved
// still holds until the daemon stops.
func (p *Provider) remember(ctx context.Context, id models.Identity) {
	if p.sessions == nil {
		return
	}
	if err := p.sessions.Save(ctx, id); err != nil {
		p.logger.Warn("save sign-in", zap.String("user_id", id.ID), zap.Error(err))
	}
}

func (p *Provider) forget(ctx context.Context) {
	if p.sessions == nil {
		return
	}
	if err := p.sessions.Clear(ctx); err != nil {
		p.logger.Warn("clear saved sign-in", zap.Error(err))
	}
}

func (p *Provider) set(id *models.Identity) {
	p.mu.Lock()
	p.current = id
	p.mu.Unlock()
}

func (p *Provider) emit(id models.Identity, ok bool) {
	p.mu.Lock()
	fns := make([]func(models.Identity, bool), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(id, ok)
	}
}

func (p *Provider) notifyErr(title, text string) {
	if p.notifier != nil {
		p.notifier.Notify(notify.Error(title, text))
	}
}

// Anonymous is an identity source on which nobody ever signs in. The
// offline CLI uses it so every change goes to the local cache.
type Anonymous struct{}

// Current always reports nobody.
func (Anonymous) Current() (models.Identity, bool) { return models.Identity{}, false }

// Subscribe never calls fn.
func (Anonymous) Subscribe(func(models.Identity, bool)) func() { return func() {} }
