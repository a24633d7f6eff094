package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/infra/logger"
	"github.com/arklim/account-guard/internal/infra/security"
	"github.com/arklim/account-guard/internal/repository"
)

const passwordAlgoArgon2id = "argon2id"

var (
	// ErrAccountExists indicates the username or email is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrVerificationTokenInvalid indicates the verification token is unknown, superseded, or already used.
	ErrVerificationTokenInvalid = errors.New("verification token invalid")
	// ErrVerificationTokenExpired indicates the verification token exists but is expired.
	ErrVerificationTokenExpired = errors.New("verification token expired")
	// ErrPasswordPolicyViolation indicates the password does not satisfy complexity requirements.
	ErrPasswordPolicyViolation = errors.New("password does not meet complexity requirements")
	// ErrAccountAlreadyVerified indicates a verification was requested for an enabled account.
	ErrAccountAlreadyVerified = errors.New("account already verified")
)

// RegistrationService handles new account onboarding. Accounts start disabled
// and flip to enabled when the verification token is redeemed.
type RegistrationService struct {
	accounts port.AccountRepository
	tokens   *TokenService
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewRegistrationService constructs a registration service.
func NewRegistrationService(accounts port.AccountRepository, tokens *TokenService, events port.EventPublisher, log *zap.Logger) *RegistrationService {
	if log == nil {
		log = zap.NewNop()
	}

	return &RegistrationService{
		accounts: accounts,
		tokens:   tokens,
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *RegistrationService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// RegisterInput carries the fields required to create an account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// RegistrationResult describes the newly created account and its verification artifact.
type RegistrationResult struct {
	AccountID         string
	Username          string
	VerificationToken string
	ExpiresAt         time.Time
}

// Register creates a disabled account and issues its verification token.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegistrationResult, error) {
	username := strings.TrimSpace(input.Username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("email is invalid")
	}

	validator := security.NewPasswordValidatorWithContext(username, email)
	if err := validator.Validate(input.Password); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}

	hash, err := security.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	account := domain.Account{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordAlgo: passwordAlgoArgon2id,
		Enabled:      false,
		CreatedAt:    now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrAccountExists
		}
		return nil, fmt.Errorf("create account: %w", err)
	}

	raw, token, err := s.tokens.Issue(ctx, account.ID, domain.TokenPurposeVerification)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}

	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(email)),
	)

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			EventID:      uuid.NewString(),
			AccountID:    account.ID,
			Username:     username,
			Email:        email,
			RegisteredAt: now,
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("publish account registered failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return &RegistrationResult{
		AccountID:         account.ID,
		Username:          username,
		VerificationToken: raw,
		ExpiresAt:         token.ExpiresAt,
	}, nil
}

// Verify redeems a verification token and enables the bound account. The token
// is single use; retrying with the same value fails.
func (s *RegistrationService) Verify(ctx context.Context, rawToken string) (*domain.Account, error) {
	status, account, err := s.tokens.ConsumeAndGetAccount(ctx, rawToken, domain.TokenPurposeVerification)
	if err != nil {
		return nil, fmt.Errorf("redeem verification token: %w", err)
	}

	switch status {
	case domain.TokenValid:
	case domain.TokenExpired:
		return nil, ErrVerificationTokenExpired
	default:
		return nil, ErrVerificationTokenInvalid
	}

	if err := withRetry(ctx, func() error {
		return s.accounts.SetEnabled(ctx, account.ID, true)
	}); err != nil {
		return nil, fmt.Errorf("enable account: %w", err)
	}
	account.Enabled = true

	s.logger.Info("account verified", zap.String("account_id", account.ID))

	if s.events != nil {
		event := domain.AccountVerifiedEvent{
			EventID:    uuid.NewString(),
			AccountID:  account.ID,
			VerifiedAt: s.now().UTC(),
		}
		if err := s.events.PublishAccountVerified(ctx, event); err != nil {
			s.logger.Warn("publish account verified failed", zap.String("account_id", account.ID), zap.Error(err))
		}
	}

	return account, nil
}

// ResendVerification issues a fresh verification token for a not yet enabled
// account, superseding the previous one.
func (s *RegistrationService) ResendVerification(ctx context.Context, identifier string) (*RegistrationResult, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("identifier is required")
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	if account.Enabled {
		return nil, ErrAccountAlreadyVerified
	}

	raw, token, err := s.tokens.Issue(ctx, account.ID, domain.TokenPurposeVerification)
	if err != nil {
		return nil, fmt.Errorf("issue verification token: %w", err)
	}

	return &RegistrationResult{
		AccountID:         account.ID,
		Username:          account.Username,
		VerificationToken: raw,
		ExpiresAt:         token.ExpiresAt,
	}, nil
}
