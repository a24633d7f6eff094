package port

import (
	"context"
	"time"

	"github.com/arklim/account-guard/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts. The login-state
// mutations are single SQL statements so concurrent reports for the same
// account serialize on the database row.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	// RecordLoginFailure atomically increments the failure counter and flips the
	// lock when the post-increment count reaches threshold. Once locked, the
	// counter is frozen; the call stays a safe no-op. The returned outcome
	// reflects the row state after this statement, and its Transitioned flag
	// is set only for the single call that flipped the lock.
	RecordLoginFailure(ctx context.Context, id string, threshold int, at time.Time) (*domain.FailureOutcome, error)
	// ResetLoginState clears the failure counter, the lock flag, and locked_at.
	ResetLoginState(ctx context.Context, id string) error
	GetLoginState(ctx context.Context, id string) (*domain.LoginState, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
