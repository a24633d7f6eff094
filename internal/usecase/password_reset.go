package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/infra/config"
	"github.com/arklim/account-guard/internal/infra/security"
	"github.com/arklim/account-guard/internal/repository"
)

const passwordResetRateLimitScope = "password_reset"

var (
	// ErrResetTokenInvalid indicates the supplied reset token is unknown, superseded, or already used.
	ErrResetTokenInvalid = errors.New("password reset token invalid")
	// ErrResetTokenExpired indicates the supplied reset token is expired.
	ErrResetTokenExpired = errors.New("password reset token expired")
)

// PasswordResetService coordinates password reset initiation and completion.
// Completing a reset also clears any active lockout, so a locked-out owner can
// always recover through this flow.
type PasswordResetService struct {
	cfg        *config.AppConfig
	accounts   port.AccountRepository
	tokens     *TokenService
	lockout    *LockoutService
	rateLimits port.RateLimitStore
	events     port.EventPublisher
	logger     *zap.Logger
	now        func() time.Time
}

// NewPasswordResetService constructs a PasswordResetService.
func NewPasswordResetService(cfg *config.AppConfig, accounts port.AccountRepository, tokens *TokenService, lockout *LockoutService, rateLimits port.RateLimitStore, events port.EventPublisher, log *zap.Logger) *PasswordResetService {
	if log == nil {
		log = zap.NewNop()
	}

	return &PasswordResetService{
		cfg:        cfg,
		accounts:   accounts,
		tokens:     tokens,
		lockout:    lockout,
		rateLimits: rateLimits,
		events:     events,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *PasswordResetService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// ResetRequestInput captures a password reset request.
type ResetRequestInput struct {
	Identifier string
	IP         string
}

// ResetInitiationResult describes the generated reset artifact handed to delivery.
type ResetInitiationResult struct {
	AccountID   string
	RequestID   string
	Token       string
	Destination string
	ExpiresAt   time.Time
}

// InitiateReset creates a password reset token for the provided identifier.
// An unknown identifier returns ErrAccountNotFound; callers present the same
// response either way so the endpoint does not reveal which identifiers exist.
func (s *PasswordResetService) InitiateReset(ctx context.Context, input ResetRequestInput) (*ResetInitiationResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}

	now := s.now().UTC()
	if err := s.enforceResetRateLimit(ctx, identifier, now); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	raw, token, err := s.tokens.Issue(ctx, account.ID, domain.TokenPurposePasswordReset)
	if err != nil {
		return nil, fmt.Errorf("issue reset token: %w", err)
	}

	requestID := uuid.NewString()
	masked := maskEmail(account.Email)

	s.logger.Info("password reset initiated",
		zap.String("account_id", account.ID),
		zap.String("request_id", requestID),
		zap.String("destination", masked),
	)

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			AccountID:         account.ID,
			RequestID:         requestID,
			RequestedAt:       now,
			Destination:       account.Email,
			MaskedDestination: masked,
			ExpiresAt:         token.ExpiresAt,
			IPAddress:         stringPtrOrNil(input.IP),
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish password reset requested failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return &ResetInitiationResult{
		AccountID:   account.ID,
		RequestID:   requestID,
		Token:       raw,
		Destination: account.Email,
		ExpiresAt:   token.ExpiresAt,
	}, nil
}

// ConfirmReset finalizes a password reset using the raw token. The token is
// consumed exactly once, the new password replaces the old hash, and any
// active lockout on the account is cleared.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, rawToken, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return fmt.Errorf("new password is required")
	}

	// Check the token without consuming it so a rejected password leaves it
	// redeemable.
	status, token, err := s.tokens.Validate(ctx, rawToken, domain.TokenPurposePasswordReset)
	if err != nil {
		return fmt.Errorf("check reset token: %w", err)
	}
	switch status {
	case domain.TokenValid:
	case domain.TokenExpired:
		return ErrResetTokenExpired
	default:
		return ErrResetTokenInvalid
	}

	account, err := s.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return fmt.Errorf("lookup account: %w", err)
	}

	validator := security.NewPasswordValidatorWithContext(account.Username, account.Email)
	if err := validator.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	hash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	status, _, err = s.tokens.Consume(ctx, rawToken, domain.TokenPurposePasswordReset)
	if err != nil {
		return fmt.Errorf("redeem reset token: %w", err)
	}
	switch status {
	case domain.TokenValid:
	case domain.TokenExpired:
		return ErrResetTokenExpired
	default:
		// A concurrent confirmation won the race.
		return ErrResetTokenInvalid
	}

	changedAt := s.now().UTC().Truncate(time.Microsecond)
	if err := withRetry(ctx, func() error {
		return s.accounts.UpdatePassword(ctx, account.ID, hash, passwordAlgoArgon2id, changedAt)
	}); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.lockout != nil {
		if err := s.lockout.ReportLoginSuccess(ctx, account.ID); err != nil {
			s.logger.Warn("clear lockout after reset failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	// Any other live tokens for this account are dead weight now.
	if _, err := s.tokens.RevokeForAccount(ctx, account.ID); err != nil {
		s.logger.Warn("revoke account tokens failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	s.logger.Info("password reset completed", zap.String("account_id", account.ID))

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			EventID:   uuid.NewString(),
			AccountID: account.ID,
			ChangedAt: changedAt,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return nil
}

func (s *PasswordResetService) enforceResetRateLimit(ctx context.Context, identifier string, now time.Time) error {
	if s.rateLimits == nil || s.cfg == nil {
		return nil
	}

	limit := s.cfg.RateLimit.PasswordResetMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := s.cfg.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	identifierKey := normalizeIdentifierKey(identifier)
	if identifierKey == "" {
		return nil
	}

	storageKey := fmt.Sprintf("%s:%s", passwordResetRateLimitScope, identifierKey)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("password reset rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("password reset rate limit count failed", zap.Error(err))
		return nil
	}

	if count >= limit {
		retryAfter := time.Duration(0)
		if oldest, ok, err := s.rateLimits.OldestAttempt(ctx, storageKey, window, now); err == nil && ok {
			reset := oldest.Add(window)
			if reset.After(now) {
				retryAfter = reset.Sub(now)
			}
		} else if err != nil {
			s.logger.Warn("password reset rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: passwordResetRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("password reset rate limit record failed", zap.Error(err))
	}

	return nil
}
