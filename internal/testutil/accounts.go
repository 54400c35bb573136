package testutil

import (
	"context"
	"sync"
	"time"

	accountstore "github.com/dalemusser/stratatrack/internal/app/store/accounts"
	"github.com/dalemusser/stratatrack/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemAccounts is an in-memory account store keyed by normalized email.
type MemAccounts struct {
	mu      sync.Mutex
	byEmail map[string]models.Account

	// GetErr, when set, is returned by GetByID.
	GetErr error
}

// NewMemAccounts returns an empty account store.
func NewMemAccounts() *MemAccounts {
	return &MemAccounts{byEmail: map[string]models.Account{}}
}

// Create adds an account, failing with accountstore.ErrDuplicate when the
// email is taken.
func (m *MemAccounts) Create(_ context.Context, email, hash string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[email]; ok {
		return nil, accountstore.ErrDuplicate
	}
	a := models.Account{ID: primitive.NewObjectID(), Email: email, EmailCI: email, PasswordHash: hash}
	m.byEmail[email] = a
	return &a, nil
}

// GetByEmail returns the account or accountstore.ErrNotFound.
func (m *MemAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byEmail[email]
	if !ok {
		return nil, accountstore.ErrNotFound
	}
	return &a, nil
}

// GetByID returns the account with the given hex id or
// accountstore.ErrNotFound.
func (m *MemAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	for _, a := range m.byEmail {
		if a.ID.Hex() == id {
			return &a, nil
		}
	}
	return nil, accountstore.ErrNotFound
}

// UpdatePassword replaces the stored hash.
func (m *MemAccounts) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, a := range m.byEmail {
		if a.ID.Hex() == id {
			a.PasswordHash = hash
			a.UpdatedAt = time.Now().UTC()
			m.byEmail[k] = a
			return nil
		}
	}
	return accountstore.ErrNotFound
}
