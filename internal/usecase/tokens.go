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
	"github.com/arklim/account-guard/internal/infra/security"
	"github.com/arklim/account-guard/internal/repository"
)

const (
	defaultVerificationTTL  = 24 * time.Hour
	defaultPasswordResetTTL = 24 * time.Hour

	tokenByteLength = 32
)

// ErrUnknownTokenPurpose indicates an unrecognized purpose discriminator.
var ErrUnknownTokenPurpose = errors.New("unknown token purpose")

// TokenCounterFunc resolves a metric counter for a validation outcome.
type TokenCounterFunc func(status string) prometheus.Counter

// TokenService manages single-use account tokens. Raw token values exist only
// in flight; storage holds SHA-256 digests, and issuing a new token for an
// (account, purpose) pair silently invalidates the previous one.
type TokenService struct {
	tokens       port.TokenRepository
	accounts     port.AccountRepository
	logger       *zap.Logger
	now          func() time.Time
	ttls         map[domain.TokenPurpose]time.Duration
	statusMetric TokenCounterFunc
}

// NewTokenService constructs a TokenService from configuration.
func NewTokenService(cfg *config.AppConfig, tokens port.TokenRepository, accounts port.AccountRepository, logger *zap.Logger) *TokenService {
	verificationTTL := defaultVerificationTTL
	resetTTL := defaultPasswordResetTTL
	if cfg != nil {
		if cfg.Tokens.VerificationTTL > 0 {
			verificationTTL = cfg.Tokens.VerificationTTL
		}
		if cfg.Tokens.PasswordResetTTL > 0 {
			resetTTL = cfg.Tokens.PasswordResetTTL
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenService{
		tokens:   tokens,
		accounts: accounts,
		logger:   logger,
		now:      time.Now,
		ttls: map[domain.TokenPurpose]time.Duration{
			domain.TokenPurposeVerification:  verificationTTL,
			domain.TokenPurposePasswordReset: resetTTL,
		},
	}
}

// WithClock allows tests to override the clock used by the service.
func (s *TokenService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL overrides the lifetime for a purpose.
func (s *TokenService) WithTTL(purpose domain.TokenPurpose, ttl time.Duration) {
	if ttl > 0 {
		s.ttls[purpose] = ttl
	}
}

// WithStatusMetric attaches a metric incremented per validation outcome.
func (s *TokenService) WithStatusMetric(metric TokenCounterFunc) {
	s.statusMetric = metric
}

// TTL returns the configured lifetime for a purpose.
func (s *TokenService) TTL(purpose domain.TokenPurpose) time.Duration {
	return s.ttls[purpose]
}

// Issue mints a fresh token for the account and purpose, replacing any live
// token for the same pair, and returns the raw value for delivery.
func (s *TokenService) Issue(ctx context.Context, accountID string, purpose domain.TokenPurpose) (string, *domain.AccountToken, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", nil, fmt.Errorf("account id is required")
	}
	if !purpose.Valid() {
		return "", nil, ErrUnknownTokenPurpose
	}

	raw, err := security.GenerateSecureToken(tokenByteLength)
	if err != nil {
		return "", nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	token := domain.AccountToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		TokenHash: security.HashToken(raw),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttls[purpose]),
	}

	err = withRetry(ctx, func() error {
		return s.tokens.Replace(ctx, token)
	})
	if err != nil {
		return "", nil, fmt.Errorf("store token: %w", err)
	}

	return raw, &token, nil
}

// Validate checks a raw token without consuming it. An unknown, superseded,
// consumed, or wrong-purpose value uniformly yields TokenInvalid; nothing in
// the result distinguishes a token that never existed. An expired token is
// removed on discovery, so a second check reports TokenInvalid.
func (s *TokenService) Validate(ctx context.Context, raw string, purpose domain.TokenPurpose) (domain.TokenStatus, *domain.AccountToken, error) {
	status, token, err := s.lookup(ctx, raw, purpose)
	if err != nil {
		return status, nil, err
	}
	s.countStatus(status)
	if status != domain.TokenValid {
		return status, nil, nil
	}
	return status, token, nil
}

// Consume atomically redeems a valid token, returning its record. Concurrent
// redemptions of the same value succeed for exactly one caller; the rest see
// TokenInvalid.
func (s *TokenService) Consume(ctx context.Context, raw string, purpose domain.TokenPurpose) (domain.TokenStatus, *domain.AccountToken, error) {
	status, token, err := s.lookup(ctx, raw, purpose)
	if err != nil {
		return status, nil, err
	}
	if status != domain.TokenValid {
		s.countStatus(status)
		return status, nil, nil
	}

	deleted, err := s.tokens.DeleteByHash(ctx, token.TokenHash)
	if err != nil {
		return domain.TokenInvalid, nil, fmt.Errorf("consume token: %w", err)
	}
	if !deleted {
		// Lost the race to a concurrent consumer.
		s.countStatus(domain.TokenInvalid)
		return domain.TokenInvalid, nil, nil
	}

	s.countStatus(domain.TokenValid)
	return domain.TokenValid, token, nil
}

// ConsumeAndGetAccount redeems a token and loads the account it is bound to.
func (s *TokenService) ConsumeAndGetAccount(ctx context.Context, raw string, purpose domain.TokenPurpose) (domain.TokenStatus, *domain.Account, error) {
	status, token, err := s.Consume(ctx, raw, purpose)
	if err != nil || status != domain.TokenValid {
		return status, nil, err
	}

	account, err := s.accounts.GetByID(ctx, token.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Account deleted between issue and redemption.
			return domain.TokenInvalid, nil, nil
		}
		return domain.TokenInvalid, nil, fmt.Errorf("load token account: %w", err)
	}

	return domain.TokenValid, account, nil
}

// PurgeExpired removes all tokens whose expiry has passed. Redemption paths
// already clean up lazily; this exists for operational housekeeping.
func (s *TokenService) PurgeExpired(ctx context.Context) (int, error) {
	removed, err := s.tokens.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return removed, nil
}

// RevokeForAccount drops every live token bound to the account.
func (s *TokenService) RevokeForAccount(ctx context.Context, accountID string) (int, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}

	removed, err := s.tokens.DeleteForAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("revoke account tokens: %w", err)
	}
	return removed, nil
}

func (s *TokenService) lookup(ctx context.Context, raw string, purpose domain.TokenPurpose) (domain.TokenStatus, *domain.AccountToken, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.TokenInvalid, nil, nil
	}
	if !purpose.Valid() {
		return domain.TokenInvalid, nil, ErrUnknownTokenPurpose
	}

	hash := security.HashToken(raw)
	token, err := s.tokens.GetByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.TokenInvalid, nil, nil
		}
		return domain.TokenInvalid, nil, fmt.Errorf("lookup token: %w", err)
	}

	if token.Purpose != purpose {
		return domain.TokenInvalid, nil, nil
	}

	if !s.now().UTC().Before(token.ExpiresAt) {
		if _, err := s.tokens.DeleteByHash(ctx, hash); err != nil {
			s.logger.Warn("delete expired token failed", zap.String("token_id", token.ID), zap.Error(err))
		}
		return domain.TokenExpired, nil, nil
	}

	return domain.TokenValid, token, nil
}

func (s *TokenService) countStatus(status domain.TokenStatus) {
	if s.statusMetric == nil {
		return
	}
	if counter := s.statusMetric(string(status)); counter != nil {
		counter.Inc()
	}
}
