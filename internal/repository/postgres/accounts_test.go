package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/repository"
)

func TestAccountRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	account := domain.Account{
		ID:           "acct-1",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "argon2id$v=19$m=65536,t=3,p=4$salt$hash",
		PasswordAlgo: "argon2id",
		Enabled:      false,
		CreatedAt:    createdAt,
	}

	mock.ExpectExec(`INSERT INTO guard\.accounts`).
		WithArgs(
			account.ID,
			account.Username,
			account.Email,
			account.PasswordHash,
			account.PasswordAlgo,
			account.Enabled,
			account.Locked,
			account.FailedLoginAttempts,
			(*time.Time)(nil),
			account.CreatedAt,
			(*time.Time)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), account); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_CreateDuplicateReportsConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`INSERT INTO guard\.accounts`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: uniqueViolation, ConstraintName: "accounts_username_key"})

	err = repo.Create(context.Background(), domain.Account{
		ID:        "acct-1",
		Username:  "alice",
		Email:     "alice@example.com",
		CreatedAt: time.Now().UTC(),
	})
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIdentifier(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	createdAt := time.Now().UTC().Truncate(time.Microsecond)
	lastLogin := createdAt.Add(time.Hour)

	rows := pgxmock.NewRows([]string{
		"id", "username", "email", "password_hash", "password_algo", "enabled", "locked", "failed_login_attempts", "locked_at", "created_at", "last_login",
	}).AddRow(
		"acct-1", "alice", "alice@example.com", "hash", "argon2id", true, false, 0, nil, createdAt, lastLogin,
	)

	mock.ExpectQuery(`SELECT .*FROM guard\.accounts`).
		WithArgs("alice", "alice").
		WillReturnRows(rows)

	account, err := repo.GetByIdentifier(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetByIdentifier returned error: %v", err)
	}
	if account.ID != "acct-1" {
		t.Fatalf("expected account id acct-1, got %s", account.ID)
	}
	if account.LastLogin == nil || !account.LastLogin.Equal(lastLogin) {
		t.Fatalf("expected last login pointer populated")
	}
	if account.LockedAt != nil {
		t.Fatalf("expected nil locked_at")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_GetByIDNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectQuery(`SELECT .*FROM guard\.accounts`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetByID(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordLoginFailureBelowThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	at := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts, locked, locked_at FROM guard\.accounts .*FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "locked", "locked_at"}).AddRow(0, false, nil))
	mock.ExpectExec(`UPDATE guard\.accounts`).
		WithArgs(1, false, (*time.Time)(nil), "acct-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := repo.RecordLoginFailure(context.Background(), "acct-1", 3, at)
	if err != nil {
		t.Fatalf("RecordLoginFailure returned error: %v", err)
	}
	if outcome.FailedLoginAttempts != 1 || outcome.Locked || outcome.Transitioned {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordLoginFailureLocksAtThreshold(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	at := time.Now().UTC().Truncate(time.Microsecond)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts, locked, locked_at FROM guard\.accounts .*FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "locked", "locked_at"}).AddRow(2, false, nil))
	mock.ExpectExec(`UPDATE guard\.accounts`).
		WithArgs(3, true, pgxmock.AnyArg(), "acct-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	outcome, err := repo.RecordLoginFailure(context.Background(), "acct-1", 3, at)
	if err != nil {
		t.Fatalf("RecordLoginFailure returned error: %v", err)
	}
	if !outcome.Locked || !outcome.Transitioned {
		t.Fatalf("expected lock transition, got %+v", outcome)
	}
	if outcome.LockedAt == nil || !outcome.LockedAt.Equal(at) {
		t.Fatalf("expected locked_at %v, got %v", at, outcome.LockedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordLoginFailureAlreadyLockedDoesNotTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	lockedAt := time.Now().UTC().Truncate(time.Microsecond)

	// A report that finds the row already locked, such as the loser of a
	// concurrent race serialized behind the row lock, must not write anything
	// and must not claim the transition.
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts, locked, locked_at FROM guard\.accounts .*FOR UPDATE`).
		WithArgs("acct-1").
		WillReturnRows(pgxmock.NewRows([]string{"failed_login_attempts", "locked", "locked_at"}).AddRow(3, true, lockedAt))
	mock.ExpectCommit()

	outcome, err := repo.RecordLoginFailure(context.Background(), "acct-1", 3, lockedAt.Add(time.Second))
	if err != nil {
		t.Fatalf("RecordLoginFailure returned error: %v", err)
	}
	if outcome.Transitioned {
		t.Fatal("expected no transition on an already locked account")
	}
	if outcome.FailedLoginAttempts != 3 || !outcome.Locked {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.LockedAt == nil || !outcome.LockedAt.Equal(lockedAt) {
		t.Fatalf("expected original locked_at %v, got %v", lockedAt, outcome.LockedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_RecordLoginFailureUnknownAccount(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT failed_login_attempts, locked, locked_at FROM guard\.accounts .*FOR UPDATE`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	if _, err := repo.RecordLoginFailure(context.Background(), "missing", 3, time.Now()); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_ResetLoginStateNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`UPDATE guard\.accounts`).
		WithArgs(0, false, nil, "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.ResetLoginState(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAccountRepository_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewAccountRepository(mock)

	mock.ExpectExec(`DELETE FROM guard\.accounts`).
		WithArgs("acct-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	if err := repo.Delete(context.Background(), "acct-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	mock.ExpectExec(`DELETE FROM guard\.accounts`).
		WithArgs("acct-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	if err := repo.Delete(context.Background(), "acct-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
