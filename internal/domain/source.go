package domain

import "time"

// SourceDescriptor identifies a quote provider and its place in the
// resolution chain. Lower Priority values are tried first; providers that
// share a priority keep their registration order.
type SourceDescriptor struct {
	Name             string // Stable provider name (e.g. "sina")
	Priority         int    // Chain position, ascending
	SupportsDaily    bool   // Can serve daily kline history
	SupportsRealtime bool   // Can serve a latest-price quote
}

// FetchOutcome is the result of a successful resolution for one symbol.
// Source names the single provider that produced the bars; outcomes are
// never merged across providers.
type FetchOutcome struct {
	Symbol    string
	Bars      []PriceBar
	Source    string
	FetchedAt time.Time
}
