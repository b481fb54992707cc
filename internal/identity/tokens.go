package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kalambet/pathway/internal/storage"
)

const (
	jwtSecretKey    = "jwt_secret"
	minSecretLength = 32
	tokenIssuer     = "pathway"
)

// Claims are the session token claims. Subject holds the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// User returns the identity the claims were issued for.
func (c *Claims) User() User {
	return User{ID: c.Subject, Email: c.Email}
}

// Tokens issues and verifies HS256 session tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token manager. The secret must be at least 32 bytes.
func NewTokens(secret []byte, ttl time.Duration) (*Tokens, error) {
	if len(secret) < minSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d bytes, got %d", minSecretLength, len(secret))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	return &Tokens{secret: secret, ttl: ttl, now: time.Now}, nil
}

// Issue signs a token for u.
func (t *Tokens) Issue(u User) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := &Claims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses a token and checks its signature, issuer and expiry.
func (t *Tokens) Verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// SecretStore persists the generated signing secret.
type SecretStore interface {
	SetAuthState(ctx context.Context, key, value string) error
	GetAuthState(ctx context.Context, key string) (string, error)
}

// LoadSecret returns configured when set. Otherwise it returns the secret
// persisted in store, generating and saving one on first use.
func LoadSecret(ctx context.Context, store SecretStore, configured string) ([]byte, error) {
	if configured != "" {
		return []byte(configured), nil
	}

	stored, err := store.GetAuthState(ctx, jwtSecretKey)
	if err == nil {
		return []byte(stored), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reading jwt secret: %w", err)
	}

	buf := make([]byte, minSecretLength)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generating jwt secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := store.SetAuthState(ctx, jwtSecretKey, secret); err != nil {
		return nil, fmt.Errorf("saving jwt secret: %w", err)
	}
	return []byte(secret), nil
}
