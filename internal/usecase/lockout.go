package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/infra/config"
	"github.com/arklim/account-guard/internal/repository"
)

const (
	defaultMaxFailedAttempts = 3
	defaultLockoutDuration   = 30 * time.Minute
)

// ErrAccountNotFound indicates the referenced account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// LockoutService guards login attempts: it counts consecutive failures per
// account and locks the account when the configured threshold is reached.
// Counting and locking happen in a single repository statement, so concurrent
// failure reports produce exactly one lock transition.
type LockoutService struct {
	accounts    port.AccountRepository
	events      port.EventPublisher
	logger      *zap.Logger
	now         func() time.Time
	maxAttempts int
	duration    time.Duration
	lockCounter prometheus.Counter
}

// NewLockoutService constructs a LockoutService from configuration.
func NewLockoutService(cfg *config.AppConfig, accounts port.AccountRepository, events port.EventPublisher, logger *zap.Logger) *LockoutService {
	maxAttempts := defaultMaxFailedAttempts
	duration := defaultLockoutDuration
	if cfg != nil {
		if cfg.Lockout.MaxFailedAttempts > 0 {
			maxAttempts = cfg.Lockout.MaxFailedAttempts
		}
		if cfg.Lockout.Duration > 0 {
			duration = cfg.Lockout.Duration
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &LockoutService{
		accounts:    accounts,
		events:      events,
		logger:      logger,
		now:         time.Now,
		maxAttempts: maxAttempts,
		duration:    duration,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *LockoutService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithLockCounter attaches a metric incremented on each lock transition.
func (s *LockoutService) WithLockCounter(counter prometheus.Counter) {
	s.lockCounter = counter
}

// MaxFailedAttempts returns the configured lockout threshold.
func (s *LockoutService) MaxFailedAttempts() int {
	return s.maxAttempts
}

// LockoutDuration returns the configured lock lifetime.
func (s *LockoutService) LockoutDuration() time.Duration {
	return s.duration
}

// ReportLoginFailure records one failed login attempt for the account. When the
// consecutive failure count reaches the threshold the account is locked and an
// AccountLocked event is published once. Reports against an already locked
// account are safe no-ops. Returns whether this call locked the account.
func (s *LockoutService) ReportLoginFailure(ctx context.Context, accountID string) (bool, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return false, fmt.Errorf("account id is required")
	}

	// Postgres stores timestamps at microsecond precision; truncate so the
	// value read back compares equal to the one written.
	at := s.now().UTC().Truncate(time.Microsecond)

	var outcome *domain.FailureOutcome
	err := withRetry(ctx, func() error {
		var opErr error
		outcome, opErr = s.accounts.RecordLoginFailure(ctx, accountID, s.maxAttempts, at)
		if opErr != nil && errors.Is(opErr, repository.ErrNotFound) {
			return nil
		}
		return opErr
	})
	if err != nil {
		return false, fmt.Errorf("record login failure: %w", err)
	}
	if outcome == nil {
		return false, ErrAccountNotFound
	}

	if outcome.Transitioned {
		if s.lockCounter != nil {
			s.lockCounter.Inc()
		}
		s.logger.Warn("account locked after repeated login failures",
			zap.String("account_id", accountID),
			zap.Int("failed_attempts", outcome.FailedLoginAttempts),
		)
		s.publishLocked(ctx, accountID, outcome.FailedLoginAttempts, at)
	}

	return outcome.Transitioned, nil
}

// ReportLoginSuccess clears the failure counter after a successful
// authentication. Counting restarts from zero on the next failure.
func (s *LockoutService) ReportLoginSuccess(ctx context.Context, accountID string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	err := withRetry(ctx, func() error {
		return s.accounts.ResetLoginState(ctx, accountID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("reset login state: %w", err)
	}
	return nil
}

// IsLocked reports whether the account is currently locked. A lock older than
// the configured duration is cleared on the way through, so expiry needs no
// background job.
func (s *LockoutService) IsLocked(ctx context.Context, accountID string) (bool, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return false, fmt.Errorf("account id is required")
	}

	state, err := s.accounts.GetLoginState(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("get login state: %w", err)
	}

	if !state.Locked {
		return false, nil
	}

	if state.LockedAt != nil && !s.now().UTC().Before(state.LockedAt.Add(s.duration)) {
		if err := withRetry(ctx, func() error {
			return s.accounts.ResetLoginState(ctx, accountID)
		}); err != nil {
			return true, fmt.Errorf("clear expired lock: %w", err)
		}
		s.logger.Info("expired account lock cleared", zap.String("account_id", accountID))
		return false, nil
	}

	return true, nil
}

// Unlock clears the lock and failure counter on behalf of an operator and
// publishes an AccountUnlocked event.
func (s *LockoutService) Unlock(ctx context.Context, accountID, actor string) error {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return fmt.Errorf("account id is required")
	}

	err := withRetry(ctx, func() error {
		return s.accounts.ResetLoginState(ctx, accountID)
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("unlock account: %w", err)
	}

	if s.events != nil {
		event := domain.AccountUnlockedEvent{
			EventID:    uuid.NewString(),
			AccountID:  accountID,
			UnlockedAt: s.now().UTC(),
			UnlockedBy: actor,
		}
		if err := s.events.PublishAccountUnlocked(ctx, event); err != nil {
			s.logger.Warn("publish account unlocked failed", zap.String("account_id", accountID), zap.Error(err))
		}
	}

	return nil
}

func (s *LockoutService) publishLocked(ctx context.Context, accountID string, failedAttempts int, at time.Time) {
	if s.events == nil {
		return
	}

	event := domain.AccountLockedEvent{
		EventID:        uuid.NewString(),
		AccountID:      accountID,
		FailedAttempts: failedAttempts,
		LockedAt:       at,
	}
	if err := s.events.PublishAccountLocked(ctx, event); err != nil {
		s.logger.Warn("publish account locked failed", zap.String("account_id", accountID), zap.Error(err))
	}
}
