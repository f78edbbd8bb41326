package identity

import (
	"errors"
	"time"
)

var (
	ErrUserExists         = errors.New("email already registered")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// User is an account holder. Wallets and transactions reference it by ID.
type User struct {
	ID           string
	Email        string
	PasswordHash []byte
	TokenVersion int
	CreatedAt    time.Time
}

// Credentials request structure.
type Credentials struct {
	Email    string
	Password string
}
