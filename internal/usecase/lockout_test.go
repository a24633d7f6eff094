package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/infra/config"
)

var errTransient = errors.New("transient failure")

func testLockoutConfig() *config.AppConfig {
	return &config.AppConfig{
		Lockout: config.LockoutSettings{
			MaxFailedAttempts: 3,
			Duration:          30 * time.Minute,
		},
	}
}

func seedAccount(repo *memAccountRepository, id string) {
	repo.put(domain.Account{
		ID:       id,
		Username: "user-" + id,
		Email:    "user-" + id + "@example.com",
		Enabled:  true,
	})
}

func TestReportLoginFailureLocksAtThreshold(t *testing.T) {
	repo := newMemAccountRepository()
	events := &recordingPublisher{}
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, events, nil)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		locked, err := svc.ReportLoginFailure(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
		if locked {
			t.Fatalf("account locked after %d failures", i+1)
		}
	}

	locked, err := svc.ReportLoginFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ReportLoginFailure returned error: %v", err)
	}
	if !locked {
		t.Fatal("expected third failure to lock the account")
	}

	account := repo.get("acct-1")
	if !account.Locked || account.FailedLoginAttempts != 3 {
		t.Fatalf("unexpected account state: locked=%v attempts=%d", account.Locked, account.FailedLoginAttempts)
	}
	if account.LockedAt == nil {
		t.Fatal("locked_at not stamped")
	}

	if got := len(events.lockedEvents()); got != 1 {
		t.Fatalf("expected exactly one lock event, got %d", got)
	}
}

func TestReportLoginFailureAfterLockIsNoOp(t *testing.T) {
	repo := newMemAccountRepository()
	events := &recordingPublisher{}
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, events, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.ReportLoginFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
	}

	locked, err := svc.ReportLoginFailure(ctx, "acct-1")
	if err != nil {
		t.Fatalf("ReportLoginFailure returned error: %v", err)
	}
	if locked {
		t.Fatal("failure on an already locked account reported a new transition")
	}

	account := repo.get("acct-1")
	if account.FailedLoginAttempts != 3 {
		t.Fatalf("counter advanced on locked account: %d", account.FailedLoginAttempts)
	}
	if got := len(events.lockedEvents()); got != 1 {
		t.Fatalf("expected exactly one lock event, got %d", got)
	}
}

func TestReportLoginSuccessResetsCounter(t *testing.T) {
	repo := newMemAccountRepository()
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, &recordingPublisher{}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.ReportLoginFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
	}

	if err := svc.ReportLoginSuccess(ctx, "acct-1"); err != nil {
		t.Fatalf("ReportLoginSuccess returned error: %v", err)
	}

	if account := repo.get("acct-1"); account.FailedLoginAttempts != 0 {
		t.Fatalf("counter not cleared: %d", account.FailedLoginAttempts)
	}

	// Counting restarts from zero; two more failures stay below the threshold.
	for i := 0; i < 2; i++ {
		locked, err := svc.ReportLoginFailure(ctx, "acct-1")
		if err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
		if locked {
			t.Fatal("account locked before threshold after reset")
		}
	}
}

func TestIsLockedLazyUnlockAfterDuration(t *testing.T) {
	repo := newMemAccountRepository()
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, &recordingPublisher{}, nil)

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.WithClock(func() time.Time { return current })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := svc.ReportLoginFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
	}

	locked, err := svc.IsLocked(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IsLocked returned error: %v", err)
	}
	if !locked {
		t.Fatal("expected account to be locked")
	}

	// One minute before expiry the lock still holds.
	current = current.Add(29 * time.Minute)
	if locked, err = svc.IsLocked(ctx, "acct-1"); err != nil || !locked {
		t.Fatalf("expected lock to hold before expiry: locked=%v err=%v", locked, err)
	}

	current = current.Add(time.Minute)
	locked, err = svc.IsLocked(ctx, "acct-1")
	if err != nil {
		t.Fatalf("IsLocked returned error: %v", err)
	}
	if locked {
		t.Fatal("expected lock to expire after the configured duration")
	}

	account := repo.get("acct-1")
	if account.Locked || account.FailedLoginAttempts != 0 || account.LockedAt != nil {
		t.Fatalf("expired lock not cleared: %+v", account)
	}
}

func TestConcurrentFailuresLockExactlyOnce(t *testing.T) {
	repo := newMemAccountRepository()
	events := &recordingPublisher{}
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, events, nil)
	ctx := context.Background()

	const goroutines = 10
	var wg sync.WaitGroup
	results := make([]bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			locked, err := svc.ReportLoginFailure(ctx, "acct-1")
			if err != nil {
				t.Errorf("ReportLoginFailure returned error: %v", err)
				return
			}
			results[idx] = locked
		}(i)
	}
	wg.Wait()

	transitions := 0
	for _, locked := range results {
		if locked {
			transitions++
		}
	}
	if transitions != 1 {
		t.Fatalf("expected exactly one reporter to observe the lock transition, got %d", transitions)
	}
	if got := len(events.lockedEvents()); got != 1 {
		t.Fatalf("expected exactly one lock event, got %d", got)
	}
}

func TestReportLoginFailureRetriesTransientErrors(t *testing.T) {
	repo := newMemAccountRepository()
	seedAccount(repo, "acct-1")
	repo.failRecordFailure = 2

	svc := NewLockoutService(testLockoutConfig(), repo, &recordingPublisher{}, nil)

	if _, err := svc.ReportLoginFailure(context.Background(), "acct-1"); err != nil {
		t.Fatalf("expected retry to absorb transient failures, got %v", err)
	}

	if account := repo.get("acct-1"); account.FailedLoginAttempts != 1 {
		t.Fatalf("unexpected attempts after retry: %d", account.FailedLoginAttempts)
	}
}

func TestReportLoginSuccessUnknownAccountFailsFast(t *testing.T) {
	repo := newMemAccountRepository()
	svc := NewLockoutService(testLockoutConfig(), repo, &recordingPublisher{}, nil)

	if err := svc.ReportLoginSuccess(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}

	// A missing row cannot become present by retrying; the repository must be
	// hit exactly once.
	if repo.resetStateCalls != 1 {
		t.Fatalf("expected a single repository call, got %d", repo.resetStateCalls)
	}
}

func TestLockoutUnknownAccount(t *testing.T) {
	svc := NewLockoutService(testLockoutConfig(), newMemAccountRepository(), &recordingPublisher{}, nil)
	ctx := context.Background()

	if _, err := svc.ReportLoginFailure(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if err := svc.ReportLoginSuccess(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := svc.IsLocked(ctx, "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestUnlockClearsStateAndPublishes(t *testing.T) {
	repo := newMemAccountRepository()
	events := &recordingPublisher{}
	seedAccount(repo, "acct-1")

	svc := NewLockoutService(testLockoutConfig(), repo, events, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.ReportLoginFailure(ctx, "acct-1"); err != nil {
			t.Fatalf("ReportLoginFailure returned error: %v", err)
		}
	}

	if err := svc.Unlock(ctx, "acct-1", "admin"); err != nil {
		t.Fatalf("Unlock returned error: %v", err)
	}

	account := repo.get("acct-1")
	if account.Locked || account.FailedLoginAttempts != 0 {
		t.Fatalf("unlock did not clear state: %+v", account)
	}

	events.mu.Lock()
	unlocked := len(events.unlocked)
	actor := ""
	if unlocked > 0 {
		actor = events.unlocked[0].UnlockedBy
	}
	events.mu.Unlock()

	if unlocked != 1 || actor != "admin" {
		t.Fatalf("expected one unlock event by admin, got count=%d actor=%q", unlocked, actor)
	}
}

func TestMaxFailedAttemptsDefaults(t *testing.T) {
	svc := NewLockoutService(nil, newMemAccountRepository(), nil, nil)
	if got := svc.MaxFailedAttempts(); got != defaultMaxFailedAttempts {
		t.Fatalf("expected default threshold %d, got %d", defaultMaxFailedAttempts, got)
	}
	if got := svc.LockoutDuration(); got != defaultLockoutDuration {
		t.Fatalf("expected default duration %s, got %s", defaultLockoutDuration, got)
	}
}
