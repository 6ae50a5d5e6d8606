package analysis

import (
	"fmt"
	"math"

	"equitrend/internal/domain"
	"equitrend/internal/ports"

	talib "github.com/markcheno/go-talib"
)

// Indicator parameters follow the conventions A-share tooling uses everywhere:
// MACD 12/26/9, KDJ 9 with 3-period smoothing, RSI 14, BOLL 20 at 2 sigma.
const (
	macdFast    = 12
	macdSlow    = 26
	macdSignal  = 9
	kdjLookback = 9
	kdjSmooth   = 3
	rsiPeriod   = 14
	bollPeriod  = 20
	bollWidth   = 2.0

	// The 60-day average is the longest warmup of any indicator used here.
	minBars = 60

	// Histogram magnitudes below this are float noise, not a cross.
	histEps = 1e-9
)

// Weights distribute the signal score across the indicator families.
// The defaults sum to 100 so each weight reads as points on the final scale.
type Weights struct {
	MA     float64
	MACD   float64
	KDJ    float64
	RSI    float64
	Volume float64
	Bias   float64
}

// Config holds the tunable scoring weights and thresholds.
type Config struct {
	Weights Weights

	MAGapMinPct      float64 // minimum adjacent-average separation (percent) for strong alignment
	HeavyVolumeRatio float64 // volume ratio above which a day counts as heavy
	VolumeAvgDays    int     // window for the volume ratio denominator
	MaxBiasPct       float64 // |biasMA5| beyond this is flagged as a risk

	StrongBuyScore float64
	BuyScore       float64
	HoldScore      float64
}

// DefaultConfig returns the scoring defaults.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			MA:     30,
			MACD:   25,
			KDJ:    15,
			RSI:    10,
			Volume: 12,
			Bias:   8,
		},
		MAGapMinPct:      0.5,
		HeavyVolumeRatio: 2.0,
		VolumeAvgDays:    5,
		MaxBiasPct:       5.0,
		StrongBuyScore:   80,
		BuyScore:         60,
		HoldScore:        40,
	}
}

// Engine computes trend analyses. It is deterministic: the same series and
// configuration always produce the identical result.
type Engine struct {
	cfg Config
}

// New validates the configuration and creates an engine.
func New(cfg Config) (*Engine, error) {
	var errs []string
	for name, w := range map[string]float64{
		"ma": cfg.Weights.MA, "macd": cfg.Weights.MACD, "kdj": cfg.Weights.KDJ,
		"rsi": cfg.Weights.RSI, "volume": cfg.Weights.Volume, "bias": cfg.Weights.Bias,
	} {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("%s weight must not be negative (got %v)", name, w))
		}
	}
	if cfg.MAGapMinPct < 0 {
		errs = append(errs, "ma gap minimum must not be negative")
	}
	if cfg.HeavyVolumeRatio <= 0 {
		errs = append(errs, "heavy volume ratio must be positive")
	}
	if cfg.VolumeAvgDays < 1 {
		errs = append(errs, "volume average window must be at least 1 day")
	}
	if cfg.MaxBiasPct <= 0 {
		errs = append(errs, "max bias must be positive")
	}
	if !(cfg.StrongBuyScore > cfg.BuyScore && cfg.BuyScore > cfg.HoldScore) {
		errs = append(errs, fmt.Sprintf("signal bands must descend (strong_buy %v > buy %v > hold %v)",
			cfg.StrongBuyScore, cfg.BuyScore, cfg.HoldScore))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %v", ports.ErrConfigurationError, errs)
	}
	return &Engine{cfg: cfg}, nil
}

// MinimumBars is the shortest series Analyze accepts.
func (e *Engine) MinimumBars() int { return minBars }

// Analyze evaluates the series at its last bar.
func (e *Engine) Analyze(symbol string, bars []domain.PriceBar) (*domain.TrendAnalysisResult, error) {
	return e.AnalyzeAt(symbol, bars, len(bars)-1)
}

// AnalyzeAt evaluates the series as of the given bar index. Bars after the
// index are ignored by every indicator, so walking asOf backwards replays
// how the signal evolved.
func (e *Engine) AnalyzeAt(symbol string, bars []domain.PriceBar, asOf int) (*domain.TrendAnalysisResult, error) {
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrMalformedSeries, err)
	}
	if asOf < 0 || asOf >= len(bars) {
		return nil, fmt.Errorf("%w: index %d outside series of %d bars", ports.ErrMalformedSeries, asOf, len(bars))
	}
	if got := asOf + 1; got < minBars {
		return nil, &ports.InsufficientHistoryError{Required: minBars, Got: got}
	}

	closes := domain.Closes(bars)
	highs := domain.Highs(bars)
	lows := domain.Lows(bars)
	volumes := domain.Volumes(bars)

	ma5 := talib.Sma(closes, 5)
	ma10 := talib.Sma(closes, 10)
	ma20 := talib.Sma(closes, 20)
	ma60 := talib.Sma(closes, 60)
	dif, dea, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	k, d := talib.Stoch(highs, lows, closes, kdjLookback, kdjSmooth, talib.SMA, kdjSmooth, talib.SMA)
	rsi := talib.Rsi(closes, rsiPeriod)
	upper, middle, lower := talib.BBands(closes, bollPeriod, bollWidth, bollWidth, talib.SMA)

	snap := domain.IndicatorSnapshot{
		MA5:  ma5[asOf],
		MA10: ma10[asOf],
		MA20: ma20[asOf],
		MA60: ma60[asOf],

		MACDDif:  dif[asOf],
		MACDDea:  dea[asOf],
		MACDHist: hist[asOf],

		K: k[asOf],
		D: d[asOf],
		J: 3*k[asOf] - 2*d[asOf],

		RSI14: rsi[asOf],

		BollUpper:  upper[asOf],
		BollMiddle: middle[asOf],
		BollLower:  lower[asOf],

		VolumeRatio: volumeRatio(volumes, asOf, e.cfg.VolumeAvgDays),
		BiasMA5:     biasPct(closes[asOf], ma5[asOf]),
		BiasMA10:    biasPct(closes[asOf], ma10[asOf]),
	}

	maStatus := classifyMA(snap, e.cfg.MAGapMinPct)
	macdStatus := classifyMACD(snap)
	kdjStatus := classifyKDJ(snap.K, snap.D, k[asOf-1], d[asOf-1])
	volumeStatus := classifyVolume(snap.VolumeRatio, closes[asOf], closes[asOf-1], e.cfg.HeavyVolumeRatio)
	trend := deriveTrend(maStatus, macdStatus)

	score := e.score(maStatus, macdStatus, kdjStatus, volumeStatus, snap.RSI14, snap.BiasMA5)

	return &domain.TrendAnalysisResult{
		Symbol:       symbol,
		AsOf:         bars[asOf].Date,
		Close:        closes[asOf],
		Snapshot:     snap,
		MAStatus:     maStatus,
		MACDStatus:   macdStatus,
		KDJStatus:    kdjStatus,
		VolumeStatus: volumeStatus,
		TrendStatus:  trend,
		Score:        score,
		Signal:       e.signalFor(score),
		Reasons:      buildReasons(maStatus, macdStatus, kdjStatus, volumeStatus),
		RiskFactors:  buildRiskFactors(snap, volumeStatus, closes[asOf], e.cfg.MaxBiasPct),
	}, nil
}

// volumeRatio relates the bar's volume to the average of the preceding
// window. A zero average (suspended stretch) yields 0.
func volumeRatio(volumes []float64, asOf, window int) float64 {
	if asOf < window {
		return 0
	}
	sum := 0.0
	for _, v := range volumes[asOf-window : asOf] {
		sum += v
	}
	avg := sum / float64(window)
	if avg == 0 {
		return 0
	}
	return volumes[asOf] / avg
}

// biasPct is the close's deviation from an average in percent of the average.
func biasPct(closePrice, ma float64) float64 {
	if ma == 0 {
		return 0
	}
	return (closePrice - ma) / ma * 100
}

// gapPct is the separation of two adjacent averages in percent of the lower one.
func gapPct(upperMA, lowerMA float64) float64 {
	if lowerMA == 0 {
		return 0
	}
	return (upperMA - lowerMA) / lowerMA * 100
}

func classifyMA(s domain.IndicatorSnapshot, gapMinPct float64) domain.MAStatus {
	switch {
	case s.MA5 > s.MA10 && s.MA10 > s.MA20 && s.MA20 > s.MA60 &&
		gapPct(s.MA5, s.MA10) >= gapMinPct &&
		gapPct(s.MA10, s.MA20) >= gapMinPct &&
		gapPct(s.MA20, s.MA60) >= gapMinPct:
		return domain.MAStrongBull
	case s.MA5 > s.MA10 && s.MA10 > s.MA20:
		return domain.MABullish
	case s.MA5 < s.MA10 && s.MA10 < s.MA20:
		return domain.MABearish
	default:
		return domain.MAChoppy
	}
}

func classifyMACD(s domain.IndicatorSnapshot) domain.MACDStatus {
	switch {
	case s.MACDHist > histEps && s.MACDDif >= 0:
		return domain.MACDGoldenCrossAboveZero
	case s.MACDHist > histEps:
		return domain.MACDGoldenCrossBelowZero
	case s.MACDHist < -histEps && s.MACDDif >= 0:
		return domain.MACDDeadCrossAboveZero
	case s.MACDHist < -histEps:
		return domain.MACDDeadCrossBelowZero
	default:
		return domain.MACDNeutral
	}
}

// classifyKDJ checks the risk zones first; a cross inside the overbought or
// oversold zone reads as the zone, not the cross.
func classifyKDJ(k, d, prevK, prevD float64) domain.KDJStatus {
	switch {
	case k > 80 && d > 80:
		return domain.KDJOverbought
	case k < 20 && d < 20:
		return domain.KDJOversold
	case prevK <= prevD && k > d:
		return domain.KDJGoldenCross
	case prevK >= prevD && k < d:
		return domain.KDJDeadCross
	default:
		return domain.KDJNeutral
	}
}

func classifyVolume(ratio, closePrice, prevClose, threshold float64) domain.VolumeStatus {
	if ratio > threshold {
		if closePrice > prevClose {
			return domain.VolumeHeavyInflow
		}
		if closePrice < prevClose {
			return domain.VolumeHeavyOutflow
		}
	}
	return domain.VolumeNormal
}

// deriveTrend synthesizes the trend from the MA alignment, demoted or
// promoted one notch when MACD disagrees or confirms.
func deriveTrend(ma domain.MAStatus, macd domain.MACDStatus) domain.TrendStatus {
	golden := macd == domain.MACDGoldenCrossAboveZero || macd == domain.MACDGoldenCrossBelowZero
	dead := macd == domain.MACDDeadCrossAboveZero || macd == domain.MACDDeadCrossBelowZero

	switch ma {
	case domain.MAStrongBull:
		if golden {
			return domain.TrendStrongBull
		}
		return domain.TrendBull
	case domain.MABullish:
		if dead {
			return domain.TrendRange
		}
		return domain.TrendBull
	case domain.MABearish:
		if golden {
			return domain.TrendRange
		}
		return domain.TrendBear
	default:
		return domain.TrendRange
	}
}

func (e *Engine) score(ma domain.MAStatus, macd domain.MACDStatus, kdj domain.KDJStatus,
	vol domain.VolumeStatus, rsi, bias float64) float64 {
	w := e.cfg.Weights
	total := w.MA*maSubscore(ma) +
		w.MACD*macdSubscore(macd) +
		w.KDJ*kdjSubscore(kdj) +
		w.RSI*rsiSubscore(rsi) +
		w.Volume*volumeSubscore(vol) +
		w.Bias*biasSubscore(bias, e.cfg.MaxBiasPct)
	return clamp(total, 0, 100)
}

func (e *Engine) signalFor(score float64) domain.BuySignal {
	switch {
	case score >= e.cfg.StrongBuyScore:
		return domain.SignalStrongBuy
	case score >= e.cfg.BuyScore:
		return domain.SignalBuy
	case score >= e.cfg.HoldScore:
		return domain.SignalHold
	default:
		return domain.SignalSell
	}
}

func maSubscore(s domain.MAStatus) float64 {
	switch s {
	case domain.MAStrongBull:
		return 1.0
	case domain.MABullish:
		return 0.75
	case domain.MAChoppy:
		return 0.35
	default:
		return 0
	}
}

func macdSubscore(s domain.MACDStatus) float64 {
	switch s {
	case domain.MACDGoldenCrossAboveZero:
		return 1.0
	case domain.MACDGoldenCrossBelowZero:
		return 0.7
	case domain.MACDNeutral:
		return 0.45
	case domain.MACDDeadCrossAboveZero:
		return 0.2
	default:
		return 0
	}
}

func kdjSubscore(s domain.KDJStatus) float64 {
	switch s {
	case domain.KDJGoldenCross:
		return 1.0
	case domain.KDJOversold:
		return 0.7
	case domain.KDJNeutral:
		return 0.5
	case domain.KDJOverbought:
		return 0.25
	default:
		return 0
	}
}

// rsiSubscore favors steady momentum over exhaustion: the 45-70 band scores
// full, oversold readings keep some rebound credit, extremes score low.
func rsiSubscore(rsi float64) float64 {
	switch {
	case rsi >= 45 && rsi <= 70:
		return 1.0
	case rsi >= 30 && rsi < 45:
		return 0.6
	case rsi < 30:
		return 0.5
	case rsi > 70 && rsi <= 80:
		return 0.4
	default:
		return 0.1
	}
}

func volumeSubscore(s domain.VolumeStatus) float64 {
	switch s {
	case domain.VolumeHeavyInflow:
		return 1.0
	case domain.VolumeNormal:
		return 0.55
	default:
		return 0
	}
}

func biasSubscore(bias, maxBias float64) float64 {
	a := math.Abs(bias)
	switch {
	case a <= maxBias:
		return 1.0
	case a <= 2*maxBias:
		return 0.45
	default:
		return 0
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func buildReasons(ma domain.MAStatus, macd domain.MACDStatus, kdj domain.KDJStatus, vol domain.VolumeStatus) []string {
	var reasons []string
	switch ma {
	case domain.MAStrongBull:
		reasons = append(reasons, "moving averages in strong bull alignment")
	case domain.MABullish:
		reasons = append(reasons, "moving averages aligned bullish")
	}
	switch macd {
	case domain.MACDGoldenCrossAboveZero:
		reasons = append(reasons, "macd golden cross above zero")
	case domain.MACDGoldenCrossBelowZero:
		reasons = append(reasons, "macd golden cross below zero")
	}
	switch kdj {
	case domain.KDJGoldenCross:
		reasons = append(reasons, "kdj golden cross")
	case domain.KDJOversold:
		reasons = append(reasons, "kdj oversold, rebound setup")
	}
	if vol == domain.VolumeHeavyInflow {
		reasons = append(reasons, "heavy volume on a rising close")
	}
	return reasons
}

func buildRiskFactors(snap domain.IndicatorSnapshot, vol domain.VolumeStatus, closePrice, maxBias float64) []string {
	var risks []string
	if snap.RSI14 > 80 {
		risks = append(risks, fmt.Sprintf("rsi overbought at %.1f", snap.RSI14))
	}
	if math.Abs(snap.BiasMA5) > maxBias {
		risks = append(risks, fmt.Sprintf("bias to ma5 stretched to %.1f%%", snap.BiasMA5))
	}
	if snap.BollUpper > 0 && closePrice > snap.BollUpper {
		risks = append(risks, "close above upper bollinger band")
	}
	if vol == domain.VolumeHeavyOutflow {
		risks = append(risks, "heavy volume on a falling close")
	}
	return risks
}
