package ports

import (
	"errors"
	"fmt"
	"strings"
)

// Standard application-level errors.
// Adapters wrap underlying vendor and transport errors with these so callers
// can classify failures with errors.Is without knowing the vendor.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Provider Failure Kinds (one fetch attempt against one vendor)
	ErrProviderUnavailable = errors.New("provider API is unavailable")
	ErrRateLimited         = errors.New("provider rate limit exceeded")
	ErrInvalidSymbol       = errors.New("symbol not recognized by provider")
	ErrMalformedResponse   = errors.New("provider returned a malformed response")
	ErrUnsupported         = errors.New("operation not supported by provider")

	// Resolution Errors
	ErrAllProvidersExhausted = errors.New("all providers exhausted")

	// Analysis Errors
	ErrInsufficientHistory = errors.New("not enough history for analysis")
	ErrMalformedSeries     = errors.New("series violates bar invariants")
)

// Attempt records one failed try against one provider during resolution.
// Err wraps exactly one of the provider failure kinds above.
type Attempt struct {
	Provider string
	Err      error
}

// ExhaustionError reports that every provider in the chain failed for a
// symbol. Attempts are ordered as tried, one entry per provider consulted.
// errors.Is matches it against ErrAllProvidersExhausted.
type ExhaustionError struct {
	Symbol   string
	Attempts []Attempt
}

func (e *ExhaustionError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("no providers available for %s", e.Symbol)
	}
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s: %v", a.Provider, a.Err)
	}
	return fmt.Sprintf("all providers failed for %s [%s]", e.Symbol, strings.Join(parts, "; "))
}

func (e *ExhaustionError) Unwrap() error { return ErrAllProvidersExhausted }

// InsufficientHistoryError reports how many bars an analysis required versus
// how many the series supplied. errors.Is matches it against
// ErrInsufficientHistory.
type InsufficientHistoryError struct {
	Required int
	Got      int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: need %d bars, got %d", e.Required, e.Got)
}

func (e *InsufficientHistoryError) Unwrap() error { return ErrInsufficientHistory }
