package ports

import (
	"context"

	"equitrend/internal/domain"
)

// QuoteProvider is the interface to one vendor quote API.
// This abstraction decouples resolution and analysis from any specific
// vendor implementation.
type QuoteProvider interface {
	// Descriptor identifies the provider and its place in the chain.
	Descriptor() domain.SourceDescriptor

	// FetchDaily retrieves the most recent daily bars for a symbol, ascending
	// by date. A valid series shorter than requested is still a success (e.g.
	// a recently listed symbol). Failures are classified with the provider
	// failure kinds in this package.
	FetchDaily(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error)

	// FetchLatestPrice retrieves the current traded price for a symbol.
	// Providers without realtime support return ErrUnsupported.
	FetchLatestPrice(ctx context.Context, symbol string) (float64, error)
}

// BarResolver resolves a symbol to a daily series through whatever chain or
// cache sits behind it. Implemented by the resolution manager and by the
// series cache that decorates it.
type BarResolver interface {
	FetchDaily(ctx context.Context, symbol string, days int) (*domain.FetchOutcome, error)
}
