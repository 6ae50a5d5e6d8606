package analysis

import "equitrend/internal/domain"

// ScanSummary aggregates the results of one watchlist scan.
type ScanSummary struct {
	Total     int
	StrongBuy int
	Buy       int
	Hold      int
	Sell      int
	AvgScore  float64
	Best      *domain.TrendAnalysisResult // highest raw score, nil when empty
}

// Summarize folds a result set into counts per signal band and the average
// raw score.
func Summarize(results []*domain.TrendAnalysisResult) ScanSummary {
	s := ScanSummary{Total: len(results)}
	if len(results) == 0 {
		return s
	}

	sum := 0.0
	for _, r := range results {
		sum += r.Score
		switch r.Signal {
		case domain.SignalStrongBuy:
			s.StrongBuy++
		case domain.SignalBuy:
			s.Buy++
		case domain.SignalHold:
			s.Hold++
		default:
			s.Sell++
		}
		if s.Best == nil || r.Score > s.Best.Score {
			s.Best = r
		}
	}
	s.AvgScore = sum / float64(len(results))
	return s
}
