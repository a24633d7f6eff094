package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// GenerateSecureToken returns a base64 URL-safe random string using the specified number of random bytes.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken calculates a SHA-256 hash of the provided value.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// AccessTokenGenerator creates and signs session JWTs with HMAC-SHA256.
type AccessTokenGenerator struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAccessTokenGenerator creates a generator for access tokens.
func NewAccessTokenGenerator(secret, issuer string, ttl time.Duration) (*AccessTokenGenerator, error) {
	if secret == "" {
		return nil, fmt.Errorf("access token secret is required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}

	return &AccessTokenGenerator{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
	}, nil
}

// Generate issues a signed access token for the given account.
func (g *AccessTokenGenerator) Generate(accountID, username string, issuedAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    g.issuer,
		Subject:   accountID,
		ID:        username,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(g.ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}

	return signed, nil
}

// Parse validates a signed access token and returns its claims.
func (g *AccessTokenGenerator) Parse(raw string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return g.secret, nil
	}, jwt.WithIssuer(g.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	return claims, nil
}
