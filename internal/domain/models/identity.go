// internal/domain/models/identity.go
package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Identity is the authenticated owner of a collection. ID doubles as the
// remote document id.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Account is a password account in the accounts collection.
type Account struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email        string             `bson:"email" json:"email"`
	EmailCI      string             `bson:"email_ci" json:"-"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// Identity returns the identity this account authenticates as.
func (a Account) Identity() Identity {
	return Identity{ID: a.ID.Hex(), Email: a.Email}
}
