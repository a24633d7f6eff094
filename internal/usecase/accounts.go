package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/repository"
)

// AccountService exposes administrative account operations.
type AccountService struct {
	accounts port.AccountRepository
	tokens   *TokenService
	lockout  *LockoutService
	logger   *zap.Logger
}

// NewAccountService constructs an AccountService.
func NewAccountService(accounts port.AccountRepository, tokens *TokenService, lockout *LockoutService, log *zap.Logger) *AccountService {
	if log == nil {
		log = zap.NewNop()
	}

	return &AccountService{
		accounts: accounts,
		tokens:   tokens,
		lockout:  lockout,
		logger:   log,
	}
}

// GetByID loads an account with its password hash blanked.
func (s *AccountService) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("account id is required")
	}

	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	sanitized := *account
	sanitized.PasswordHash = ""
	return &sanitized, nil
}

// Unlock clears the lockout state on behalf of an operator.
func (s *AccountService) Unlock(ctx context.Context, id, actor string) error {
	return s.lockout.Unlock(ctx, id, actor)
}

// Delete removes the account and every token bound to it. Tokens go first so
// a concurrent redemption cannot resolve a token whose account is gone.
func (s *AccountService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("account id is required")
	}

	removed, err := s.tokens.RevokeForAccount(ctx, id)
	if err != nil {
		return fmt.Errorf("cascade token delete: %w", err)
	}

	if err := s.accounts.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}

	s.logger.Info("account deleted",
		zap.String("account_id", id),
		zap.Int("tokens_removed", removed),
	)

	return nil
}
