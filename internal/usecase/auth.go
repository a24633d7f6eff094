package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/infra/config"
	"github.com/arklim/account-guard/internal/infra/logger"
	"github.com/arklim/account-guard/internal/infra/security"
	"github.com/arklim/account-guard/internal/repository"
)

const loginRateLimitScope = "login"

var (
	// ErrInvalidCredentials covers unknown identifiers and wrong passwords alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is locked due to repeated login failures.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled indicates the account has not completed verification.
	ErrAccountDisabled = errors.New("account disabled")
)

// AuthService authenticates accounts and issues access tokens. Every failed
// attempt feeds the lockout guard; a lock is reported identically to the
// caller whether it existed before the attempt or was caused by it.
type AuthService struct {
	accounts   port.AccountRepository
	lockout    *LockoutService
	rateLimits port.RateLimitStore
	cfg        *config.AppConfig
	tokenGen   *security.AccessTokenGenerator
	logger     *zap.Logger
	now        func() time.Time
}

// LoginInput carries the credentials and request context for authentication.
type LoginInput struct {
	Identifier string
	Password   string
	IP         string
}

// LoginResult is returned on successful authentication.
type LoginResult struct {
	AccountID   string
	Username    string
	AccessToken string
	ExpiresIn   time.Duration
}

// NewAuthService constructs an AuthService.
func NewAuthService(cfg *config.AppConfig, accounts port.AccountRepository, lockout *LockoutService, rateLimits port.RateLimitStore, tokenGen *security.AccessTokenGenerator, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AuthService{
		accounts:   accounts,
		lockout:    lockout,
		rateLimits: rateLimits,
		cfg:        cfg,
		tokenGen:   tokenGen,
		logger:     log,
		now:        time.Now,
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Authenticate verifies the credentials and returns a signed access token.
func (s *AuthService) Authenticate(ctx context.Context, input LoginInput) (*LoginResult, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	now := s.now().UTC()
	if err := s.enforceLoginRateLimit(ctx, identifier, now); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	locked, err := s.lockout.IsLocked(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("check lock state: %w", err)
	}
	if locked {
		return nil, ErrAccountLocked
	}

	if !account.Enabled {
		return nil, ErrAccountDisabled
	}

	ok, err := security.VerifyPassword(input.Password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		lockedNow, reportErr := s.lockout.ReportLoginFailure(ctx, account.ID)
		if reportErr != nil {
			s.logger.Error("report login failure failed",
				zap.String("account_id", account.ID),
				zap.Error(reportErr),
			)
		}
		if lockedNow {
			return nil, ErrAccountLocked
		}
		return nil, ErrInvalidCredentials
	}

	if err := s.lockout.ReportLoginSuccess(ctx, account.ID); err != nil {
		s.logger.Error("report login success failed",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
	}

	if err := s.accounts.UpdateLastLogin(ctx, account.ID, now); err != nil {
		s.logger.Warn("update last login failed", zap.String("account_id", account.ID), zap.Error(err))
	}

	accessToken, err := s.tokenGen.Generate(account.ID, account.Username, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	s.logger.Info("account authenticated",
		zap.String("account_id", account.ID),
		zap.String("identifier", logger.MaskString(identifier)),
	)

	return &LoginResult{
		AccountID:   account.ID,
		Username:    account.Username,
		AccessToken: accessToken,
		ExpiresIn:   s.cfg.JWT.AccessTokenTTL,
	}, nil
}

func (s *AuthService) enforceLoginRateLimit(ctx context.Context, identifier string, now time.Time) error {
	if s.rateLimits == nil || s.cfg == nil {
		return nil
	}

	limit := s.cfg.RateLimit.LoginMaxAttempts
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

	storageKey := fmt.Sprintf("%s:%s", loginRateLimitScope, identifierKey)

	if err := s.rateLimits.TrimWindow(ctx, storageKey, window, now); err != nil {
		s.logger.Warn("login rate limit trim failed", zap.Error(err))
		return nil
	}

	count, err := s.rateLimits.CountAttempts(ctx, storageKey, window, now)
	if err != nil {
		s.logger.Warn("login rate limit count failed", zap.Error(err))
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
			s.logger.Warn("login rate limit oldest lookup failed", zap.Error(err))
		}
		return &RateLimitExceededError{Scope: loginRateLimitScope, RetryAfter: retryAfter}
	}

	if err := s.rateLimits.RecordAttempt(ctx, storageKey, now); err != nil {
		s.logger.Warn("login rate limit record failed", zap.Error(err))
	}

	return nil
}
