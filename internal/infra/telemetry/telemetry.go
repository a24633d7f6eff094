package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arklim/account-guard/internal/infra/config"
)

// Provider represents a telemetry provider handle. Per-request HTTP metrics
// live in the transport middleware; this carries the domain-level counters.
type Provider struct {
	lockCounter  prometheus.Counter
	tokenCounter *prometheus.CounterVec
}

// Attach configures telemetry exporters and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	lockCounter := promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "guard",
		Name:      "account_locks_total",
		Help:      "Total number of accounts locked after repeated login failures",
	})

	tokenCounter := promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "guard",
		Name:      "token_validations_total",
		Help:      "Total number of token validations by outcome",
	}, []string{"status"})

	return &Provider{
		lockCounter:  lockCounter,
		tokenCounter: tokenCounter,
	}, nil
}

// AccountLockCounter exposes the account lockout metric.
func (p *Provider) AccountLockCounter() prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.lockCounter
}

// TokenValidationCounter exposes the token validation metric labelled by outcome.
func (p *Provider) TokenValidationCounter(status string) prometheus.Counter {
	if p == nil {
		return prometheus.NewCounter(prometheus.CounterOpts{})
	}
	return p.tokenCounter.WithLabelValues(status)
}
