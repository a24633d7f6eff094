package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arklim/account-guard/internal/repository"
)

const (
	persistenceRetryAttempts = 3
	persistenceRetryBackoff  = 25 * time.Millisecond
)

// RateLimitExceededError signals that a caller exhausted the allowed attempts for a scope.
type RateLimitExceededError struct {
	Scope      string
	RetryAfter time.Duration
}

// Error implements error for RateLimitExceededError.
func (e *RateLimitExceededError) Error() string {
	if e == nil {
		return ""
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded for %s, retry after %s", e.Scope, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded for %s", e.Scope)
}

// withRetry runs op up to persistenceRetryAttempts times with a short backoff.
// Sentinel errors (missing row, conflict) are returned immediately: retrying
// them cannot succeed and only delays the caller. Context cancellation aborts
// immediately; the last error is returned when all attempts fail.
func withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	for attempt := 0; attempt < persistenceRetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(persistenceRetryBackoff << uint(attempt-1)):
			}
		}

		if lastErr = op(); lastErr == nil {
			return nil
		}
		if errors.Is(lastErr, repository.ErrNotFound) || errors.Is(lastErr, repository.ErrConflict) {
			return lastErr
		}
	}
	return lastErr
}

func normalizeIdentifierKey(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

func stringPtr(value string) *string {
	return &value
}

func stringPtrOrNil(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return stringPtr(trimmed)
}

func maskEmail(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}

	if idx := strings.Index(trimmed, "@"); idx > 0 {
		local := trimmed[:idx]
		domainPart := trimmed[idx:]
		if len(local) <= 3 {
			return "***" + domainPart
		}
		return local[:3] + "***" + domainPart
	}

	if len(trimmed) <= 3 {
		return "***"
	}
	return trimmed[:3] + "***"
}
