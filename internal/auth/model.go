package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents a row in the users table.
type User struct {
	ID           uuid.UUID
	Name         string
	Bio          string
	Skills       []string
	Interests    []string
	PostalCode   string
	ApiKeyPrefix string
	ApiKeyHash   string
	CreatedAt    time.Time
	RevokedAt    *time.Time
}

// Credential names how a caller proved its identity.
type Credential int

const (
	CredentialAPIKey Credential = iota + 1
	CredentialToken
)

// Identity is stored in the request context after authentication.
type Identity struct {
	UserID     uuid.UUID
	UserName   string
	Credential Credential
}
