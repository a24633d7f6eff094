package domain

import "time"

// TokenPurpose discriminates the two single-use token flows.
type TokenPurpose string

const (
	TokenPurposeVerification  TokenPurpose = "verification"
	TokenPurposePasswordReset TokenPurpose = "password_reset"
)

// Valid reports whether the purpose is a known discriminator.
func (p TokenPurpose) Valid() bool {
	return p == TokenPurposeVerification || p == TokenPurposePasswordReset
}

// TokenStatus is the outcome of a token check. Expired and invalid are expected,
// frequent results and travel as values rather than errors.
type TokenStatus string

const (
	TokenValid   TokenStatus = "valid"
	TokenExpired TokenStatus = "expired"
	TokenInvalid TokenStatus = "invalid"
)

// AccountToken is a single-use, time-bounded token bound to exactly one account.
// The raw value never touches storage; only its SHA-256 hash is persisted.
// At most one live token exists per (account, purpose).
type AccountToken struct {
	ID        string
	AccountID string
	TokenHash string
	Purpose   TokenPurpose
	CreatedAt time.Time
	ExpiresAt time.Time
}
