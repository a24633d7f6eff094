package port

import (
	"context"

	"github.com/arklim/account-guard/internal/core/domain"
)

// EventPublisher publishes account lifecycle events for downstream consumers
// (notification delivery, audit). Publishing is best-effort; callers log and
// continue on failure.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountVerified(ctx context.Context, event domain.AccountVerifiedEvent) error
	PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error
	PublishAccountUnlocked(ctx context.Context, event domain.AccountUnlockedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
}
