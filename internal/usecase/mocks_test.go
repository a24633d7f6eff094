package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/account-guard/internal/core/domain"
	"github.com/arklim/account-guard/internal/core/port"
	"github.com/arklim/account-guard/internal/repository"
)

// memAccountRepository is an in-memory AccountRepository with the same
// serialization guarantees the SQL implementation gets from row locks.
type memAccountRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account

	failRecordFailure int
	failResetState    int
	resetStateCalls   int
}

func newMemAccountRepository() *memAccountRepository {
	return &memAccountRepository{accounts: make(map[string]*domain.Account)}
}

func (m *memAccountRepository) put(account domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := account
	m.accounts[account.ID] = &copied
}

func (m *memAccountRepository) get(id string) *domain.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		copied := *account
		return &copied
	}
	return nil
}

func (m *memAccountRepository) Create(_ context.Context, account domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == account.Username || existing.Email == account.Email {
			return repository.ErrConflict
		}
	}
	copied := account
	m.accounts[account.ID] = &copied
	return nil
}

func (m *memAccountRepository) GetByID(_ context.Context, id string) (*domain.Account, error) {
	account := m.get(id)
	if account == nil {
		return nil, repository.ErrNotFound
	}
	return account, nil
}

func (m *memAccountRepository) GetByIdentifier(_ context.Context, identifier string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if account.Username == identifier || account.Email == identifier {
			copied := *account
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *memAccountRepository) RecordLoginFailure(_ context.Context, id string, threshold int, at time.Time) (*domain.FailureOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failRecordFailure > 0 {
		m.failRecordFailure--
		return nil, errTransient
	}

	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	transitioned := false
	if !account.Locked {
		account.FailedLoginAttempts++
		if account.FailedLoginAttempts >= threshold {
			account.Locked = true
			transitioned = true
			stamped := at
			account.LockedAt = &stamped
		}
	}

	outcome := domain.FailureOutcome{
		FailedLoginAttempts: account.FailedLoginAttempts,
		Locked:              account.Locked,
		Transitioned:        transitioned,
	}
	if account.LockedAt != nil {
		stamped := *account.LockedAt
		outcome.LockedAt = &stamped
	}
	return &outcome, nil
}

func (m *memAccountRepository) ResetLoginState(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resetStateCalls++
	if m.failResetState > 0 {
		m.failResetState--
		return errTransient
	}

	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedLoginAttempts = 0
	account.Locked = false
	account.LockedAt = nil
	return nil
}

func (m *memAccountRepository) GetLoginState(_ context.Context, id string) (*domain.LoginState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}

	state := domain.LoginState{
		AccountID:           account.ID,
		FailedLoginAttempts: account.FailedLoginAttempts,
		Locked:              account.Locked,
	}
	if account.LockedAt != nil {
		stamped := *account.LockedAt
		state.LockedAt = &stamped
	}
	return &state, nil
}

func (m *memAccountRepository) SetEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.Enabled = enabled
	return nil
}

func (m *memAccountRepository) UpdatePassword(_ context.Context, id string, passwordHash string, passwordAlgo string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.PasswordHash = passwordHash
	account.PasswordAlgo = passwordAlgo
	return nil
}

func (m *memAccountRepository) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	stamped := at
	account.LastLogin = &stamped
	return nil
}

func (m *memAccountRepository) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.accounts, id)
	return nil
}

var _ port.AccountRepository = (*memAccountRepository)(nil)

// memTokenRepository is an in-memory TokenRepository keyed by token hash.
type memTokenRepository struct {
	mu     sync.Mutex
	tokens map[string]domain.AccountToken

	failReplace int
}

func newMemTokenRepository() *memTokenRepository {
	return &memTokenRepository{tokens: make(map[string]domain.AccountToken)}
}

func (m *memTokenRepository) Replace(_ context.Context, token domain.AccountToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReplace > 0 {
		m.failReplace--
		return errTransient
	}

	for hash, existing := range m.tokens {
		if existing.AccountID == token.AccountID && existing.Purpose == token.Purpose {
			delete(m.tokens, hash)
		}
	}
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *memTokenRepository) GetByHash(_ context.Context, hash string) (*domain.AccountToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := token
	return &copied, nil
}

func (m *memTokenRepository) DeleteByHash(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[hash]; !ok {
		return false, nil
	}
	delete(m.tokens, hash)
	return true, nil
}

func (m *memTokenRepository) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for hash, token := range m.tokens {
		if !token.ExpiresAt.After(before) {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (m *memTokenRepository) DeleteForAccount(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for hash, token := range m.tokens {
		if token.AccountID == accountID {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

func (m *memTokenRepository) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tokens)
}

var _ port.TokenRepository = (*memTokenRepository)(nil)

// recordingPublisher captures published events for assertions.
type recordingPublisher struct {
	mu         sync.Mutex
	registered []domain.AccountRegisteredEvent
	verified   []domain.AccountVerifiedEvent
	locked     []domain.AccountLockedEvent
	unlocked   []domain.AccountUnlockedEvent
	resets     []domain.PasswordResetRequestedEvent
	changed    []domain.PasswordChangedEvent
}

func (p *recordingPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = append(p.registered, event)
	return nil
}

func (p *recordingPublisher) PublishAccountVerified(_ context.Context, event domain.AccountVerifiedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verified = append(p.verified, event)
	return nil
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, event)
	return nil
}

func (p *recordingPublisher) PublishAccountUnlocked(_ context.Context, event domain.AccountUnlockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unlocked = append(p.unlocked, event)
	return nil
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets = append(p.resets, event)
	return nil
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changed = append(p.changed, event)
	return nil
}

func (p *recordingPublisher) lockedEvents() []domain.AccountLockedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.AccountLockedEvent, len(p.locked))
	copy(out, p.locked)
	return out
}

var _ port.EventPublisher = (*recordingPublisher)(nil)

// memRateLimitStore is a sliding-window store backed by per-key slices.
type memRateLimitStore struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
}

func newMemRateLimitStore() *memRateLimitStore {
	return &memRateLimitStore{attempts: make(map[string][]time.Time)}
}

func (m *memRateLimitStore) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[identifier] = append(m.attempts[identifier], at)
	return nil
}

func (m *memRateLimitStore) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := reference.Add(-window)
	count := 0
	for _, at := range m.attempts[identifier] {
		if at.After(cutoff) {
			count++
		}
	}
	return count, nil
}

func (m *memRateLimitStore) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := reference.Add(-window)
	kept := m.attempts[identifier][:0]
	for _, at := range m.attempts[identifier] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	m.attempts[identifier] = kept
	return nil
}

func (m *memRateLimitStore) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range m.attempts[identifier] {
		if at.After(cutoff) && (!found || at.Before(oldest)) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

var _ port.RateLimitStore = (*memRateLimitStore)(nil)
