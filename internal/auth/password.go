// Package auth provides password credentials, the device-local offline
// authentication cache, and the gateway that orchestrates online and offline
// login for Tailwag.
package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Common authentication errors.
var (
	// ErrBadCredentials covers both unknown users and wrong passwords. The two
	// cases are intentionally indistinguishable to callers.
	ErrBadCredentials = errors.New("invalid email or password")
	// ErrPrimaryUnavailable means the primary identity store could not be
	// reached. It is the only condition that triggers offline fallback.
	ErrPrimaryUnavailable = errors.New("primary identity store unreachable")
)

// HashPassword creates a bcrypt hash of the password. The hash embeds its own
// cost and salt, so records hashed under an older cost setting keep verifying
// after the default changes.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compares a password against a bcrypt hash using the
// parameters embedded in the hash, never the caller's current defaults.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
