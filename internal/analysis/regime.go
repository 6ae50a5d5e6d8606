package analysis

import (
	"fmt"

	"equitrend/internal/domain"
	"equitrend/internal/ports"

	talib "github.com/markcheno/go-talib"
)

// RegimeConfig holds the thresholds for classifying the overall market from
// a benchmark index series.
type RegimeConfig struct {
	BearReturnPct float64 // trailing return below this (percent) with ma5 < ma20 marks a bear market
	BullReturnPct float64 // trailing return above this (percent) with ma5 > ma20 marks a bull market
	ReturnDays    int     // trailing return window
}

// DefaultRegimeConfig returns the regime thresholds.
func DefaultRegimeConfig() RegimeConfig {
	return RegimeConfig{
		BearReturnPct: -2.0,
		BullReturnPct: 1.0,
		ReturnDays:    5,
	}
}

// ClassifyMarket reads the market regime off a benchmark index series.
// It needs enough bars for the 20-day average and the trailing return; the
// series must satisfy the usual bar invariants.
func ClassifyMarket(bars []domain.PriceBar, cfg RegimeConfig) (domain.MarketRegime, error) {
	if cfg.ReturnDays < 1 {
		return "", fmt.Errorf("%w: regime return window must be at least 1 day", ports.ErrConfigurationError)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return "", fmt.Errorf("%w: %w", ports.ErrMalformedSeries, err)
	}
	required := 20
	if cfg.ReturnDays+1 > required {
		required = cfg.ReturnDays + 1
	}
	if len(bars) < required {
		return "", &ports.InsufficientHistoryError{Required: required, Got: len(bars)}
	}

	closes := domain.Closes(bars)
	last := len(closes) - 1
	ma5 := talib.Sma(closes, 5)[last]
	ma20 := talib.Sma(closes, 20)[last]

	ref := closes[last-cfg.ReturnDays]
	trailingPct := (closes[last] - ref) / ref * 100

	switch {
	case ma5 < ma20 && trailingPct < cfg.BearReturnPct:
		return domain.RegimeBear, nil
	case ma5 > ma20 && trailingPct > cfg.BullReturnPct:
		return domain.RegimeBull, nil
	default:
		return domain.RegimeRange, nil
	}
}
