package domain

import "time"

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	PasswordAlgo        string
	Enabled             bool
	Locked              bool
	FailedLoginAttempts int
	LockedAt            *time.Time
	CreatedAt           time.Time
	LastLogin           *time.Time
}

// LoginState is the slice of account state the lockout guard operates on.
type LoginState struct {
	AccountID           string
	FailedLoginAttempts int
	Locked              bool
	LockedAt            *time.Time
}

// FailureOutcome describes the account state after a failed login was recorded.
// Transitioned is true only for the single statement that flipped the lock.
type FailureOutcome struct {
	FailedLoginAttempts int
	Locked              bool
	LockedAt            *time.Time
	Transitioned        bool
}
