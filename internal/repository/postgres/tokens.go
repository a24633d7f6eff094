package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/repository"
)

// TokenRepository implements port.TokenRepository using PostgreSQL. The
// guard.account_tokens table carries unique indexes on token_hash and on
// (account_id, purpose); the latter backs the one-live-token-per-purpose
// invariant at the storage layer.
type TokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewTokenRepository(exec pgExecutor) *TokenRepository {
	return &TokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Replace supersedes any live token for (account, purpose) and inserts the new
// record inside one transaction. The old value is deleted, not flagged: a later
// lookup by its hash reports not-found, indistinguishable from never-issued.
func (r *TokenRepository) Replace(ctx context.Context, token domain.AccountToken) error {
	starter, ok := r.exec.(txStarter)
	if !ok {
		return fmt.Errorf("replace token: executor does not support transactions")
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace token tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	delStmt, delArgs, err := r.builder.Delete("guard.account_tokens").
		Where(squirrel.Eq{"account_id": token.AccountID, "purpose": token.Purpose}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete superseded token sql: %w", err)
	}

	if _, err := tx.Exec(ctx, delStmt, delArgs...); err != nil {
		return fmt.Errorf("delete superseded token: %w", err)
	}

	insStmt, insArgs, err := r.builder.Insert("guard.account_tokens").
		Columns("id", "account_id", "token_hash", "purpose", "created_at", "expires_at").
		Values(token.ID, token.AccountID, token.TokenHash, token.Purpose, token.CreatedAt, token.ExpiresAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert token sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insStmt, insArgs...); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace token tx: %w", err)
	}

	return nil
}

// GetByHash retrieves a token by its hashed value.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*domain.AccountToken, error) {
	stmt, args, err := r.builder.
		Select("id", "account_id", "token_hash", "purpose", "created_at", "expires_at").
		From("guard.account_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	var token domain.AccountToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.ID,
		&token.AccountID,
		&token.TokenHash,
		&token.Purpose,
		&token.CreatedAt,
		&token.ExpiresAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}

	return &token, nil
}

// DeleteByHash removes the token and reports whether this statement deleted it.
// The rows-affected check is what makes consumption exactly-once: of N
// concurrent deletes for the same hash, only one observes an affected row.
func (r *TokenRepository) DeleteByHash(ctx context.Context, hash string) (bool, error) {
	stmt, args, err := r.builder.Delete("guard.account_tokens").
		Where(squirrel.Eq{"token_hash": hash}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// DeleteExpired removes tokens whose expiry is at or before the cutoff.
func (r *TokenRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("guard.account_tokens").
		Where(squirrel.LtOrEq{"expires_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

// DeleteForAccount removes every token owned by the account.
func (r *TokenRepository) DeleteForAccount(ctx context.Context, accountID string) (int, error) {
	stmt, args, err := r.builder.Delete("guard.account_tokens").
		Where(squirrel.Eq{"account_id": accountID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete account tokens sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete account tokens: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.TokenRepository = (*TokenRepository)(nil)
