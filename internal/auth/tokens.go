// Package auth provides credential storage and bearer-token identity
// resolution. Credentials only select a rate-limit tier; they never gate
// access to any endpoint.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AnonymousIdentity is the shared identity assigned to every request that
// carries no usable bearer token.
const AnonymousIdentity = "anonymous"

// TokenIssuer mints and resolves HS256-signed bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration

	now func() time.Time // injectable for tests
}

// NewTokenIssuer creates a TokenIssuer signing with the given secret.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a signed token whose subject is the given identity.
func (i *TokenIssuer) Issue(subject string) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Resolve maps an Authorization header to an identity. Any failure — missing
// header, wrong scheme, bad signature, expired token, empty subject — resolves
// to AnonymousIdentity rather than an error: an unusable token just means the
// caller is throttled at the anonymous tier.
func (i *TokenIssuer) Resolve(authHeader string) string {
	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return AnonymousIdentity
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return AnonymousIdentity
	}

	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(i.now))
	if err != nil || claims.Subject == "" {
		return AnonymousIdentity
	}
	return claims.Subject
}
