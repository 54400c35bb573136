// internal/app/system/authutil/authutil.go
// Package authutil validates and hashes the credentials of password
// accounts.
package authutil

import (
	"errors"
	"strings"
)

// Credential validation errors
var (
	ErrEmailRequired = errors.New("Email is required.")
	ErrInvalidEmail  = errors.New("Please enter a valid email address.")
)

// ValidEmail performs a basic email format check: one @ with a non-empty
// local part and a domain containing a dot that is neither first nor last.
func ValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" {
		return false
	}
	domain := parts[1]
	dot := strings.LastIndex(domain, ".")
	return dot >= 1 && dot < len(domain)-1
}

// ValidateEmail checks an already-normalized email.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrEmailRequired
	}
	if !ValidEmail(email) {
		return ErrInvalidEmail
	}
	return nil
}

// ValidateCredentials checks an already-normalized email and a password
// for registration.
func ValidateCredentials(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidatePassword(password)
}
