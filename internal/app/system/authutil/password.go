// internal/app/system/authutil/password.go
package authutil

import (
	"errors"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength counts characters, not bytes.
	MinPasswordLength = 6
	// MaxPasswordBytes is the most bcrypt will hash.
	MaxPasswordBytes = 72
)

var (
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters.")
	ErrPasswordTooLong  = errors.New("Password must be at most 72 bytes.")
	ErrPasswordCommon   = errors.New("This password is too common. Please choose a different one.")
)

var commonPasswords = func() map[string]struct{} {
	list := []string{
		"123456", "1234567", "12345678", "123456789", "1234567890",
		"111111", "000000", "123123", "654321", "121212",
		"password", "password1", "passw0rd", "qwerty", "qwerty123",
		"abc123", "abcdef", "iloveyou", "letmein", "welcome",
		"monkey", "dragon", "master", "sunshine", "princess",
		"football", "baseball", "trustno1", "tracking", "tracker",
	}
	m := make(map[string]struct{}, len(list))
	for _, p := range list {
		m[p] = struct{}{}
	}
	return m
}()

var bcryptCost atomic.Int64

func init() { bcryptCost.Store(12) }

// SetCost changes the bcrypt cost used by HashPassword and returns the
// previous one. Tests lower it to bcrypt.MinCost.
func SetCost(cost int) int {
	return int(bcryptCost.Swap(int64(cost)))
}

// ValidatePassword returns nil or the first rule the password breaks.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	if len(password) > MaxPasswordBytes {
		return ErrPasswordTooLong
	}
	if _, ok := commonPasswords[strings.ToLower(password)]; ok {
		return ErrPasswordCommon
	}
	return nil
}

// HashPassword returns the bcrypt hash of an already-validated password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), int(bcryptCost.Load()))
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
