package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs guard.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	payload := map[string]any{
		"account_id":    event.AccountID,
		"username":      event.Username,
		"email":         event.Email,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("guard.account.registered", event.AccountID, event.RegisteredAt, payload)
	return nil
}

// PublishAccountVerified logs guard.account.verified events.
func (p *StubPublisher) PublishAccountVerified(_ context.Context, event domain.AccountVerifiedEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"verified_at": event.VerifiedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("guard.account.verified", event.AccountID, event.VerifiedAt, payload)
	return nil
}

// PublishAccountLocked logs guard.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	payload := map[string]any{
		"account_id":      event.AccountID,
		"failed_attempts": event.FailedAttempts,
		"locked_at":       event.LockedAt,
		"metadata":        event.Metadata,
	}
	p.logEvent("guard.account.locked", event.AccountID, event.LockedAt, payload)
	return nil
}

// PublishAccountUnlocked logs guard.account.unlocked events.
func (p *StubPublisher) PublishAccountUnlocked(_ context.Context, event domain.AccountUnlockedEvent) error {
	payload := map[string]any{
		"account_id":  event.AccountID,
		"unlocked_at": event.UnlockedAt,
		"unlocked_by": event.UnlockedBy,
		"metadata":    event.Metadata,
	}
	p.logEvent("guard.account.unlocked", event.AccountID, event.UnlockedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs guard.password.reset_requested events.
// Only the masked destination is logged.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"account_id":         event.AccountID,
		"request_id":         event.RequestID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("guard.password.reset_requested", event.AccountID, event.RequestedAt, payload)
	return nil
}

// PublishPasswordChanged logs guard.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"account_id": event.AccountID,
		"changed_at": event.ChangedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent("guard.password.changed", event.AccountID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
