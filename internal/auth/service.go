package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix is prepended to every raw API key.
const KeyPrefix = "tmup_"

// lookupLen is the number of leading key characters stored in clear for lookup.
const lookupLen = 8

// ErrInvalidKey is returned when the provided API key does not match any active user.
var ErrInvalidKey = errors.New("invalid or revoked API key")

// ErrInvalidToken is returned when a session token fails verification.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims are the JWT claims carried by a session token.
type Claims struct {
	UserName string `json:"name"`
	jwt.RegisteredClaims
}

// Service provides authentication operations.
type Service struct {
	userRepo   UserRepository
	bcryptCost int
	secret     []byte
	tokenTTL   time.Duration
	now        func() time.Time
}

// NewService creates a new auth Service.
func NewService(userRepo UserRepository, bcryptCost int, secret string, tokenTTL time.Duration) *Service {
	return &Service{
		userRepo:   userRepo,
		bcryptCost: bcryptCost,
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		now:        time.Now,
	}
}

// GenerateKey creates a new API key. Returns the raw key, its lookup prefix
// (first 8 chars), and the bcrypt hash. The raw key is 32 random bytes,
// base64url encoded, with KeyPrefix prepended.
func (s *Service) GenerateKey() (rawKey, prefix, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", fmt.Errorf("generating random bytes: %w", err)
	}

	rawKey = KeyPrefix + base64.RawURLEncoding.EncodeToString(b)
	prefix = rawKey[:lookupLen]

	hashBytes, err := bcrypt.GenerateFromPassword([]byte(rawKey), s.bcryptCost)
	if err != nil {
		return "", "", "", fmt.Errorf("hashing key: %w", err)
	}
	hash = string(hashBytes)

	return rawKey, prefix, hash, nil
}

// Register creates a user with a freshly generated API key. The raw key is
// returned once and never stored.
func (s *Service) Register(ctx context.Context, u *User) (string, error) {
	rawKey, prefix, hash, err := s.GenerateKey()
	if err != nil {
		return "", err
	}
	u.ApiKeyPrefix = prefix
	u.ApiKeyHash = hash

	if err := s.userRepo.Create(ctx, u); err != nil {
		return "", fmt.Errorf("creating user: %w", err)
	}
	return rawKey, nil
}

// Authenticate resolves a raw API key to an Identity. It extracts the prefix,
// looks up candidates, and bcrypt-compares each one.
func (s *Service) Authenticate(ctx context.Context, rawKey string) (*Identity, error) {
	if len(rawKey) < lookupLen {
		return nil, ErrInvalidKey
	}

	candidates, err := s.userRepo.FindByPrefix(ctx, rawKey[:lookupLen])
	if err != nil {
		return nil, fmt.Errorf("finding users by prefix: %w", err)
	}

	for _, u := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(u.ApiKeyHash), []byte(rawKey)) == nil {
			return &Identity{UserID: u.ID, UserName: u.Name, Credential: CredentialAPIKey}, nil
		}
	}

	return nil, ErrInvalidKey
}

// IssueToken signs a short-lived HS256 session token for the identity.
func (s *Service) IssueToken(id *Identity) (string, time.Time, error) {
	now := s.now()
	expires := now.Add(s.tokenTTL)
	claims := Claims{
		UserName: id.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

// VerifyToken validates a session token and resolves its subject to an active
// user. Tokens of revoked or deleted users are rejected as invalid.
func (s *Service) VerifyToken(ctx context.Context, tokenString string) (*Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("resolving token subject: %w", err)
	}
	return &Identity{UserID: u.ID, UserName: u.Name, Credential: CredentialToken}, nil
}
