package domain

import "time"

// MAStatus classifies the moving-average alignment of a series.
type MAStatus string

const (
	MAStrongBull MAStatus = "strong_bull" // ma5 > ma10 > ma20 > ma60 with clear separation
	MABullish    MAStatus = "bullish"     // ma5 > ma10 > ma20
	MABearish    MAStatus = "bearish"     // ma5 < ma10 < ma20
	MAChoppy     MAStatus = "choppy"
)

// MACDStatus classifies the MACD histogram state at the evaluation point.
type MACDStatus string

const (
	MACDGoldenCrossAboveZero MACDStatus = "golden_cross_above_zero"
	MACDGoldenCrossBelowZero MACDStatus = "golden_cross_below_zero"
	MACDDeadCrossAboveZero   MACDStatus = "dead_cross_above_zero"
	MACDDeadCrossBelowZero   MACDStatus = "dead_cross_below_zero"
	MACDNeutral              MACDStatus = "neutral"
)

// KDJStatus classifies the stochastic K/D/J state at the evaluation point.
type KDJStatus string

const (
	KDJOverbought  KDJStatus = "overbought" // K and D both above 80
	KDJOversold    KDJStatus = "oversold"   // K and D both below 20
	KDJGoldenCross KDJStatus = "golden_cross"
	KDJDeadCross   KDJStatus = "dead_cross"
	KDJNeutral     KDJStatus = "neutral"
)

// VolumeStatus classifies the volume ratio against the recent average.
type VolumeStatus string

const (
	VolumeHeavyInflow  VolumeStatus = "heavy_inflow"  // heavy volume on a rising close
	VolumeHeavyOutflow VolumeStatus = "heavy_outflow" // heavy volume on a falling close
	VolumeNormal       VolumeStatus = "normal"
)

// TrendStatus is the synthesized trend reading for one symbol.
type TrendStatus string

const (
	TrendStrongBull TrendStatus = "strong_bull"
	TrendBull       TrendStatus = "bull"
	TrendBear       TrendStatus = "bear"
	TrendRange      TrendStatus = "range"
)

// BuySignal is the banded recommendation derived from the signal score.
type BuySignal string

const (
	SignalStrongBuy BuySignal = "strong_buy"
	SignalBuy       BuySignal = "buy"
	SignalHold      BuySignal = "hold"
	SignalSell      BuySignal = "sell"
)

// MarketRegime classifies the overall market from a benchmark index series.
type MarketRegime string

const (
	RegimeBull  MarketRegime = "bull"
	RegimeBear  MarketRegime = "bear"
	RegimeRange MarketRegime = "range"
)

// IndicatorSnapshot holds the raw indicator values computed for one series
// at one evaluation index.
type IndicatorSnapshot struct {
	MA5  float64
	MA10 float64
	MA20 float64
	MA60 float64

	MACDDif  float64 // fast line (DIF)
	MACDDea  float64 // signal line (DEA)
	MACDHist float64 // DIF - DEA

	K float64
	D float64
	J float64 // 3K - 2D, not clamped

	RSI14 float64

	BollUpper  float64
	BollMiddle float64
	BollLower  float64

	VolumeRatio float64 // last volume / recent average volume
	BiasMA5     float64 // (close - ma5) / ma5 * 100
	BiasMA10    float64 // (close - ma10) / ma10 * 100
}

// TrendAnalysisResult is the full analysis of one symbol at one trading day.
type TrendAnalysisResult struct {
	Symbol   string
	AsOf     time.Time // date of the evaluated bar
	Close    float64
	Snapshot IndicatorSnapshot

	MAStatus     MAStatus
	MACDStatus   MACDStatus
	KDJStatus    KDJStatus
	VolumeStatus VolumeStatus
	TrendStatus  TrendStatus

	Score  float64 // weighted signal score, clamped to [0, 100]
	Signal BuySignal

	Reasons     []string // conditions that contributed to the score
	RiskFactors []string // warnings that argue against acting on the signal
}
