package model

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
)

const (
	// MinUsernameLen and MaxUsernameLen bound the username column.
	MinUsernameLen = 3
	MaxUsernameLen = 50

	// MinPasswordLen keeps trivially guessable passwords out of the store.
	MinPasswordLen = 8
)

// User is an account in the transaction service. Passwords are stored only
// as a one-way Argon2id hash; the hash never leaves the storage layer.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary returns the externally visible view of the user.
func (u User) Summary() UserSummary {
	return UserSummary{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
	}
}

// UserSummary is the user shape embedded in auth responses.
type UserSummary struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
}

// ValidateUsername checks the username length bounds.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLen || len(username) > MaxUsernameLen {
		return fmt.Errorf("username must be between %d and %d characters", MinUsernameLen, MaxUsernameLen)
	}
	return nil
}

// ValidateEmail checks that email parses as an RFC 5322 address.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
