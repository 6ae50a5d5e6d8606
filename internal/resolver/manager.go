package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"equitrend/internal/domain"
	"equitrend/internal/ports"
)

const defaultAttemptTimeout = 5 * time.Second

// Manager resolves a symbol against an ordered chain of quote providers.
// Providers are tried sequentially by ascending priority, registration order
// breaking ties. The first success wins: later providers are never consulted
// and results from different providers are never merged. A failed provider is
// not retried; retry policy belongs to callers.
type Manager struct {
	providers      []ports.QuoteProvider
	attemptTimeout time.Duration
	logger         ports.Logger
}

// Config holds configuration for the resolution manager.
type Config struct {
	Logger         ports.Logger
	AttemptTimeout time.Duration // per-provider budget, defaults to 5s
}

// New creates an empty manager. Register providers before fetching.
func New(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for resolution manager")
	}
	timeout := cfg.AttemptTimeout
	if timeout <= 0 {
		timeout = defaultAttemptTimeout
	}
	return &Manager{attemptTimeout: timeout, logger: cfg.Logger}, nil
}

// Register appends a provider to the chain.
func (m *Manager) Register(p ports.QuoteProvider) {
	m.providers = append(m.providers, p)
}

// Providers lists the registered descriptors in resolution order.
func (m *Manager) Providers() []domain.SourceDescriptor {
	chain := m.ordered()
	out := make([]domain.SourceDescriptor, len(chain))
	for i, p := range chain {
		out[i] = p.Descriptor()
	}
	return out
}

// ordered returns the chain sorted by ascending priority, preserving
// registration order between equal priorities.
func (m *Manager) ordered() []ports.QuoteProvider {
	chain := make([]ports.QuoteProvider, len(m.providers))
	copy(chain, m.providers)
	sort.SliceStable(chain, func(i, j int) bool {
		return chain[i].Descriptor().Priority < chain[j].Descriptor().Priority
	})
	return chain
}

// FetchDaily walks the chain until one provider returns a valid series.
// Each attempt runs under its own timeout; a provider failure of any kind is
// recorded and the next provider is tried. When the caller's own context ends
// the walk aborts immediately without starting another attempt. When every
// provider has failed the returned error is a *ports.ExhaustionError listing
// the attempts in the order they were made.
func (m *Manager) FetchDaily(ctx context.Context, symbol string, days int) (*domain.FetchOutcome, error) {
	op := "FetchDaily"
	var attempts []ports.Attempt

	for _, p := range m.ordered() {
		desc := p.Descriptor()
		if !desc.SupportsDaily {
			continue
		}
		if ctx.Err() != nil {
			return nil, m.canceled(ctx, op, symbol)
		}

		bars, err := m.attemptDaily(ctx, p, symbol, days)
		if err == nil {
			m.logger.Info(ctx, "symbol resolved", map[string]interface{}{
				"symbol": symbol, "source": desc.Name, "bars": len(bars), "failedAttempts": len(attempts),
			})
			return &domain.FetchOutcome{
				Symbol:    symbol,
				Bars:      bars,
				Source:    desc.Name,
				FetchedAt: time.Now(),
			}, nil
		}
		if ctx.Err() != nil {
			return nil, m.canceled(ctx, op, symbol)
		}

		attempt := ports.Attempt{Provider: desc.Name, Err: classify(err)}
		attempts = append(attempts, attempt)
		m.logger.Warn(ctx, "provider attempt failed", map[string]interface{}{
			"symbol": symbol, "provider": desc.Name, "error": attempt.Err.Error(),
		})
	}

	exhausted := &ports.ExhaustionError{Symbol: symbol, Attempts: attempts}
	m.logger.Error(ctx, exhausted, "resolution exhausted", map[string]interface{}{
		"symbol": symbol, "attempts": len(attempts),
	})
	return nil, exhausted
}

// FetchLatestPrice walks the chain over realtime-capable providers and
// returns the first price obtained together with the provider that served it.
func (m *Manager) FetchLatestPrice(ctx context.Context, symbol string) (float64, string, error) {
	op := "FetchLatestPrice"
	var attempts []ports.Attempt

	for _, p := range m.ordered() {
		desc := p.Descriptor()
		if !desc.SupportsRealtime {
			continue
		}
		if ctx.Err() != nil {
			return 0, "", m.canceled(ctx, op, symbol)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
		price, err := p.FetchLatestPrice(attemptCtx, symbol)
		cancel()
		if err == nil {
			m.logger.Debug(ctx, "latest price resolved", map[string]interface{}{
				"symbol": symbol, "source": desc.Name, "price": price,
			})
			return price, desc.Name, nil
		}
		if ctx.Err() != nil {
			return 0, "", m.canceled(ctx, op, symbol)
		}

		attempt := ports.Attempt{Provider: desc.Name, Err: classify(err)}
		attempts = append(attempts, attempt)
		m.logger.Warn(ctx, "provider attempt failed", map[string]interface{}{
			"symbol": symbol, "provider": desc.Name, "error": attempt.Err.Error(),
		})
	}

	return 0, "", &ports.ExhaustionError{Symbol: symbol, Attempts: attempts}
}

// attemptDaily runs a single provider call under the attempt timeout and
// validates whatever comes back. An invalid or empty series is a failure of
// this provider, not of the resolution.
func (m *Manager) attemptDaily(ctx context.Context, p ports.QuoteProvider, symbol string, days int) ([]domain.PriceBar, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.attemptTimeout)
	defer cancel()

	bars, err := p.FetchDaily(attemptCtx, symbol, days)
	if err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: provider returned an empty series", ports.ErrMalformedResponse)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err)
	}
	return bars, nil
}

func (m *Manager) canceled(ctx context.Context, op, symbol string) error {
	err := fmt.Errorf("%s canceled for %s: %w: %w", op, symbol, ports.ErrContextCanceled, ctx.Err())
	m.logger.Warn(ctx, "resolution canceled", map[string]interface{}{"symbol": symbol})
	return err
}

// classify normalizes an attempt error so that every recorded attempt wraps
// exactly one provider failure kind, whatever the provider actually returned.
func classify(err error) error {
	switch {
	case errors.Is(err, ports.ErrTimeout),
		errors.Is(err, ports.ErrRateLimited),
		errors.Is(err, ports.ErrInvalidSymbol),
		errors.Is(err, ports.ErrMalformedResponse),
		errors.Is(err, ports.ErrProviderUnavailable),
		errors.Is(err, ports.ErrUnsupported):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ports.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", ports.ErrProviderUnavailable, err)
	}
}
