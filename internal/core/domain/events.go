package domain

import "time"

// AccountRegisteredEvent announces a newly created, not yet verified account.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Username     string
	Email        string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// AccountVerifiedEvent announces that a verification token was redeemed and the
// account enabled.
type AccountVerifiedEvent struct {
	EventID    string
	AccountID  string
	VerifiedAt time.Time
	Metadata   map[string]any
}

// AccountLockedEvent is published exactly once per lock transition.
type AccountLockedEvent struct {
	EventID        string
	AccountID      string
	FailedAttempts int
	LockedAt       time.Time
	Metadata       map[string]any
}

// AccountUnlockedEvent announces an explicit (admin or reset) unlock.
type AccountUnlockedEvent struct {
	EventID    string
	AccountID  string
	UnlockedAt time.Time
	UnlockedBy string
	Metadata   map[string]any
}

// PasswordResetRequestedEvent hands the reset artifact to the delivery pipeline.
// Destination is the raw contact; MaskedDestination is safe for logs.
type PasswordResetRequestedEvent struct {
	EventID           string
	AccountID         string
	RequestID         string
	RequestedAt       time.Time
	Destination       string
	MaskedDestination string
	ExpiresAt         time.Time
	IPAddress         *string
	Metadata          map[string]any
}

// PasswordChangedEvent announces a completed password reset.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	Metadata  map[string]any
}
