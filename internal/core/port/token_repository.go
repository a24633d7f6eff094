package port

import (
	"context"
	"time"

	"github.com/arklim/account-guard/internal/core/domain"
)

// TokenRepository manages single-use account token records.
type TokenRepository interface {
	// Replace deletes any existing token for (account, purpose) and inserts the
	// new one in a single transaction, so a superseded value can never be
	// observed alongside its replacement.
	Replace(ctx context.Context, token domain.AccountToken) error
	GetByHash(ctx context.Context, hash string) (*domain.AccountToken, error)
	// DeleteByHash removes the token and reports whether this call deleted it.
	// Under concurrent redemption exactly one caller sees true.
	DeleteByHash(ctx context.Context, hash string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
	// DeleteForAccount cascades token removal when an account is deleted.
	DeleteForAccount(ctx context.Context, accountID string) (int, error)
}
