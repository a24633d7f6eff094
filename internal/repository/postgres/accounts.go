package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/repository"
)

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	stmt, args, err := r.builder.Insert("guard.accounts").
		Columns(
			"id",
			"username",
			"email",
			"password_hash",
			"password_algo",
			"enabled",
			"locked",
			"failed_login_attempts",
			"locked_at",
			"created_at",
			"last_login",
		).
		Values(
			account.ID,
			account.Username,
			account.Email,
			account.PasswordHash,
			account.PasswordAlgo,
			account.Enabled,
			account.Locked,
			account.FailedLoginAttempts,
			account.LockedAt,
			account.CreatedAt,
			account.LastLogin,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if isUniqueViolation(err) {
			return repository.ErrConflict
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves an account by username or email.
func (r *AccountRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	stmt, args, err := r.selectAccounts().
		Where(squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": identifier},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return r.scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordLoginFailure folds a failed attempt into the account row. The row is
// read FOR UPDATE so concurrent reports serialize on the row lock and each
// report derives its outcome from the pre-image it observed while holding the
// lock; only the report that finds the account unlocked and pushes it over the
// threshold gets Transitioned. A report that finds the row already locked
// leaves it untouched.
func (r *AccountRepository) RecordLoginFailure(ctx context.Context, id string, threshold int, at time.Time) (*domain.FailureOutcome, error) {
	starter, ok := r.exec.(txStarter)
	if !ok {
		return nil, fmt.Errorf("record login failure: executor does not support transactions")
	}

	tx, err := starter.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin record login failure tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	selStmt, selArgs, err := r.builder.
		Select("failed_login_attempts", "locked", "locked_at").
		From("guard.accounts").
		Where(squirrel.Eq{"id": id}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account for update sql: %w", err)
	}

	var (
		outcome  domain.FailureOutcome
		lockedAt sql.NullTime
	)
	if err := tx.QueryRow(ctx, selStmt, selArgs...).Scan(
		&outcome.FailedLoginAttempts,
		&outcome.Locked,
		&lockedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("lock account row: %w", err)
	}

	if lockedAt.Valid {
		t := lockedAt.Time
		outcome.LockedAt = &t
	}

	if !outcome.Locked {
		outcome.FailedLoginAttempts++
		if outcome.FailedLoginAttempts >= threshold {
			outcome.Locked = true
			outcome.Transitioned = true
			stamp := at.UTC()
			outcome.LockedAt = &stamp
		}

		updStmt, updArgs, err := r.builder.Update("guard.accounts").
			Set("failed_login_attempts", outcome.FailedLoginAttempts).
			Set("locked", outcome.Locked).
			Set("locked_at", outcome.LockedAt).
			Where(squirrel.Eq{"id": id}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build record login failure sql: %w", err)
		}

		if _, err := tx.Exec(ctx, updStmt, updArgs...); err != nil {
			return nil, fmt.Errorf("record login failure: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit record login failure tx: %w", err)
	}

	return &outcome, nil
}

// ResetLoginState clears the failure counter and lock state.
func (r *AccountRepository) ResetLoginState(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("guard.accounts").
		Set("failed_login_attempts", 0).
		Set("locked", false).
		Set("locked_at", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reset login state sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reset login state: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// GetLoginState fetches the lockout-relevant account fields.
func (r *AccountRepository) GetLoginState(ctx context.Context, id string) (*domain.LoginState, error) {
	stmt, args, err := r.builder.
		Select("id", "failed_login_attempts", "locked", "locked_at").
		From("guard.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select login state sql: %w", err)
	}

	var (
		state    domain.LoginState
		lockedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&state.AccountID,
		&state.FailedLoginAttempts,
		&state.Locked,
		&lockedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan login state: %w", err)
	}

	if lockedAt.Valid {
		t := lockedAt.Time
		state.LockedAt = &t
	}

	return &state, nil
}

// SetEnabled toggles the enabled flag.
func (r *AccountRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	stmt, args, err := r.builder.Update("guard.accounts").
		Set("enabled", enabled).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set enabled sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set enabled: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdatePassword overwrites the stored password hash.
func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, passwordAlgo string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("guard.accounts").
		Set("password_hash", passwordHash).
		Set("password_algo", passwordAlgo).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLastLogin stamps the most recent successful login.
func (r *AccountRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("guard.accounts").
		Set("last_login", at.UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	return nil
}

// Delete removes the account row. Token cleanup is an explicit cascade handled
// by the account service, not a database trigger.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("guard.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) selectAccounts() squirrel.SelectBuilder {
	return r.builder.Select(
		"id",
		"username",
		"email",
		"password_hash",
		"password_algo",
		"enabled",
		"locked",
		"failed_login_attempts",
		"locked_at",
		"created_at",
		"last_login",
	).From("guard.accounts")
}

func (r *AccountRepository) scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account   domain.Account
		lockedAt  sql.NullTime
		lastLogin sql.NullTime
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.PasswordAlgo,
		&account.Enabled,
		&account.Locked,
		&account.FailedLoginAttempts,
		&lockedAt,
		&account.CreatedAt,
		&lastLogin,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	if lockedAt.Valid {
		t := lockedAt.Time
		account.LockedAt = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}

	return &account, nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
