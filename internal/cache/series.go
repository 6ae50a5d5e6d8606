package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"equitrend/internal/domain"
	"equitrend/internal/ports"
)

// Series memoizes successful resolutions for a fixed TTL, keyed by symbol and
// requested depth. Failures are never cached and everything lives in process
// memory only. Outcomes are shared between callers and must be treated as
// read-only.
type Series struct {
	next   ports.BarResolver
	logger ports.Logger
	ttl    time.Duration

	mu    sync.RWMutex
	items map[string]entry
}

type entry struct {
	outcome   *domain.FetchOutcome
	expiresAt time.Time
}

// NewSeries wraps a resolver with a TTL cache. A non-positive TTL disables
// caching and passes every call through.
func NewSeries(next ports.BarResolver, ttl time.Duration, logger ports.Logger) (*Series, error) {
	if next == nil {
		return nil, fmt.Errorf("resolver is required for series cache")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for series cache")
	}
	return &Series{
		next:   next,
		logger: logger,
		ttl:    ttl,
		items:  make(map[string]entry),
	}, nil
}

// FetchDaily serves a live cached outcome when one exists, otherwise
// delegates and stores the result.
func (s *Series) FetchDaily(ctx context.Context, symbol string, days int) (*domain.FetchOutcome, error) {
	if s.ttl <= 0 {
		return s.next.FetchDaily(ctx, symbol, days)
	}

	key := fmt.Sprintf("%s:%d", symbol, days)
	s.mu.RLock()
	it, ok := s.items[key]
	s.mu.RUnlock()
	if ok && time.Now().Before(it.expiresAt) {
		s.logger.Debug(ctx, "series cache hit", map[string]interface{}{
			"symbol": symbol, "days": days, "source": it.outcome.Source,
		})
		return it.outcome, nil
	}

	outcome, err := s.next.FetchDaily(ctx, symbol, days)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.items[key] = entry{outcome: outcome, expiresAt: time.Now().Add(s.ttl)}
	s.mu.Unlock()
	return outcome, nil
}

// Purge drops expired entries and reports how many were removed.
func (s *Series) Purge() int {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, it := range s.items {
		if now.After(it.expiresAt) {
			delete(s.items, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached entries, expired or not.
func (s *Series) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
