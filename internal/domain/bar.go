package domain

import (
	"fmt"
	"time"
)

// PriceBar represents a single daily OHLCV bar for an equity symbol.
type PriceBar struct {
	Date   time.Time // Trading day (time component is not significant)
	Open   float64   // Opening price
	High   float64   // Highest price
	Low    float64   // Lowest price
	Close  float64   // Closing price
	Volume float64   // Traded volume (shares)
}

// Validate checks the internal consistency of a single bar.
func (b PriceBar) Validate() error {
	if b.Date.IsZero() {
		return fmt.Errorf("bar has zero date")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("bar %s has non-positive price (o=%v h=%v l=%v c=%v)",
			b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close)
	}
	if b.Volume < 0 {
		return fmt.Errorf("bar %s has negative volume %v", b.Date.Format("2006-01-02"), b.Volume)
	}
	if b.High < b.Open || b.High < b.Close || b.High < b.Low {
		return fmt.Errorf("bar %s high %v below open/close/low", b.Date.Format("2006-01-02"), b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("bar %s low %v above open/close", b.Date.Format("2006-01-02"), b.Low)
	}
	return nil
}

// ValidateSeries checks every bar and the date ordering of the whole series.
// Bars must be ascending by date with no duplicates. The first violation is
// returned with its index; the series is never reordered or repaired.
func ValidateSeries(bars []PriceBar) error {
	for i, b := range bars {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("bar %d: %w", i, err)
		}
		if i > 0 && !bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("bar %d: date %s not after previous %s",
				i, b.Date.Format("2006-01-02"), bars[i-1].Date.Format("2006-01-02"))
		}
	}
	return nil
}

// Closes extracts the close prices of a series in order.
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Highs extracts the high prices of a series in order.
func Highs(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.High
	}
	return out
}

// Lows extracts the low prices of a series in order.
func Lows(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Low
	}
	return out
}

// Volumes extracts the volumes of a series in order.
func Volumes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Volume
	}
	return out
}
