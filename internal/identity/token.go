// Package identity implements the DecoyVerse credential layer.
//
// It provides:
//   - TokenIssuer  — issues and verifies HS256 user session JWTs
//   - MintNodeKey  — generates per-node ingest credentials
//   - VerifyNodeKey — constant-time check of a presented node credential
//   - RequireUser  — Gin middleware resolving the bearer to a user scope
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// UserTokenTTL is the lifetime of a user session token.
const UserTokenTTL = 7 * 24 * time.Hour

// UserClaims are the JWT claims for a DecoyVerse dashboard session.
type UserClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenIssuer issues and verifies user session JWTs with a shared HMAC key.
// The key is process-wide and immutable after startup.
type TokenIssuer struct {
	key []byte
	ttl time.Duration
}

// NewTokenIssuer creates a TokenIssuer. ttl defaults to 7 days when zero.
func NewTokenIssuer(signingKey []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = UserTokenTTL
	}
	return &TokenIssuer{key: signingKey, ttl: ttl}
}

// Issue creates a signed session token for the given user.
func (t *TokenIssuer) Issue(userID uuid.UUID, email string) (string, error) {
	now := time.Now().UTC()
	claims := UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Email: email,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign user token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token, returning the user identifier.
// Any defect — bad signature, wrong algorithm, expiry — fails verification.
func (t *TokenIssuer) Verify(tokenStr string) (uuid.UUID, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&UserClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.key, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verify user token: %w", err)
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid {
		return uuid.Nil, fmt.Errorf("invalid user token claims")
	}
	uid, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid subject in token: %w", err)
	}
	return uid, nil
}
