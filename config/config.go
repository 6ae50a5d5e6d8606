package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"equitrend/internal/adapters/logger"
	"equitrend/internal/analysis"
)

// knownProviders are the quote adapters the resolver can be wired with.
var knownProviders = map[string]bool{
	"sina":      true,
	"eastmoney": true,
	"tencent":   true,
}

// Config holds all application configuration.
type Config struct {
	// Data sources
	ProviderPriority []string      // failover order, first entry tried first
	FetchTimeout     time.Duration // per-provider attempt budget
	LookbackDays     int           // daily bars requested per symbol
	CacheTTL         time.Duration // series cache lifetime, 0 disables caching

	// Watchlist scanning
	Watchlist       []string
	BenchmarkSymbol string
	ScanCron        string // cron spec with a seconds field
	ScanOnStart     bool
	ScanConcurrency int
	MinReportScore  float64
	GateOnBear      bool
	BearPenalty     float64
	BullBonus       float64

	// Scoring
	WeightMA         float64
	WeightMACD       float64
	WeightKDJ        float64
	WeightRSI        float64
	WeightVolume     float64
	WeightBias       float64
	MAGapMinPct      float64
	HeavyVolumeRatio float64
	VolumeAvgDays    int
	MaxBiasPct       float64
	StrongBuyScore   float64
	BuyScore         float64
	HoldScore        float64

	// Market regime
	BearReturnPct    float64
	BullReturnPct    float64
	RegimeReturnDays int

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Data sources
	cfg.ProviderPriority = getEnvAsList("PROVIDER_PRIORITY", []string{"sina", "eastmoney", "tencent"})
	seen := make(map[string]bool, len(cfg.ProviderPriority))
	for _, name := range cfg.ProviderPriority {
		if !knownProviders[name] {
			errs = append(errs, fmt.Sprintf("PROVIDER_PRIORITY names unknown provider %q", name))
			continue
		}
		if seen[name] {
			errs = append(errs, fmt.Sprintf("PROVIDER_PRIORITY lists %q twice", name))
		}
		seen[name] = true
	}
	if len(cfg.ProviderPriority) == 0 {
		errs = append(errs, "PROVIDER_PRIORITY must name at least one provider")
	}

	fetchTimeoutSeconds, err := getEnvAsInt("FETCH_TIMEOUT_SECONDS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid FETCH_TIMEOUT_SECONDS: %v", err))
	} else if fetchTimeoutSeconds <= 0 {
		errs = append(errs, "FETCH_TIMEOUT_SECONDS must be positive")
	}
	cfg.FetchTimeout = time.Duration(fetchTimeoutSeconds) * time.Second

	cfg.LookbackDays, err = getEnvAsInt("LOOKBACK_DAYS", 120)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid LOOKBACK_DAYS: %v", err))
	} else if cfg.LookbackDays <= 0 {
		errs = append(errs, "LOOKBACK_DAYS must be positive")
	}

	cacheTTLMinutes, err := getEnvAsInt("CACHE_TTL_MINUTES", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid CACHE_TTL_MINUTES: %v", err))
	} else if cacheTTLMinutes < 0 {
		errs = append(errs, "CACHE_TTL_MINUTES cannot be negative")
	}
	cfg.CacheTTL = time.Duration(cacheTTLMinutes) * time.Minute

	// Watchlist scanning. An empty watchlist is allowed here; commands that
	// scan enforce their own requirement so single-symbol tools still run.
	cfg.Watchlist = getEnvAsList("WATCHLIST", nil)
	cfg.BenchmarkSymbol = getEnv("BENCHMARK_SYMBOL", "sh000001")
	if cfg.BenchmarkSymbol == "" {
		errs = append(errs, "BENCHMARK_SYMBOL must be set")
	}
	cfg.ScanCron = getEnv("SCAN_CRON", "0 10 15 * * 1-5")
	cfg.ScanOnStart = getEnvAsBool("SCAN_ON_START", true)

	cfg.ScanConcurrency, err = getEnvAsInt("SCAN_CONCURRENCY", 4)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SCAN_CONCURRENCY: %v", err))
	} else if cfg.ScanConcurrency <= 0 {
		errs = append(errs, "SCAN_CONCURRENCY must be positive")
	}

	cfg.MinReportScore, err = getEnvAsFloat("MIN_REPORT_SCORE", 60.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MIN_REPORT_SCORE: %v", err))
	} else if cfg.MinReportScore < 0 || cfg.MinReportScore > 100 {
		errs = append(errs, "MIN_REPORT_SCORE must be between 0 and 100")
	}

	cfg.GateOnBear = getEnvAsBool("GATE_ON_BEAR", false)

	cfg.BearPenalty, err = getEnvAsFloat("BEAR_PENALTY", 10.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BEAR_PENALTY: %v", err))
	} else if cfg.BearPenalty < 0 {
		errs = append(errs, "BEAR_PENALTY cannot be negative")
	}

	cfg.BullBonus, err = getEnvAsFloat("BULL_BONUS", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BULL_BONUS: %v", err))
	} else if cfg.BullBonus < 0 {
		errs = append(errs, "BULL_BONUS cannot be negative")
	}

	// Scoring weights
	weights := []struct {
		key   string
		def   float64
		field *float64
	}{
		{"WEIGHT_MA", 30.0, &cfg.WeightMA},
		{"WEIGHT_MACD", 25.0, &cfg.WeightMACD},
		{"WEIGHT_KDJ", 15.0, &cfg.WeightKDJ},
		{"WEIGHT_RSI", 10.0, &cfg.WeightRSI},
		{"WEIGHT_VOLUME", 12.0, &cfg.WeightVolume},
		{"WEIGHT_BIAS", 8.0, &cfg.WeightBias},
	}
	for _, w := range weights {
		v, werr := getEnvAsFloat(w.key, w.def)
		if werr != nil {
			errs = append(errs, fmt.Sprintf("invalid %s: %v", w.key, werr))
			continue
		}
		if v < 0 {
			errs = append(errs, fmt.Sprintf("%s cannot be negative", w.key))
			continue
		}
		*w.field = v
	}

	cfg.MAGapMinPct, err = getEnvAsFloat("MA_GAP_MIN_PCT", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MA_GAP_MIN_PCT: %v", err))
	} else if cfg.MAGapMinPct < 0 {
		errs = append(errs, "MA_GAP_MIN_PCT cannot be negative")
	}

	cfg.HeavyVolumeRatio, err = getEnvAsFloat("HEAVY_VOLUME_RATIO", 2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HEAVY_VOLUME_RATIO: %v", err))
	} else if cfg.HeavyVolumeRatio <= 0 {
		errs = append(errs, "HEAVY_VOLUME_RATIO must be positive")
	}

	cfg.VolumeAvgDays, err = getEnvAsInt("VOLUME_AVG_DAYS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid VOLUME_AVG_DAYS: %v", err))
	} else if cfg.VolumeAvgDays < 1 {
		errs = append(errs, "VOLUME_AVG_DAYS must be at least 1")
	}

	cfg.MaxBiasPct, err = getEnvAsFloat("MAX_BIAS_PCT", 5.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_BIAS_PCT: %v", err))
	} else if cfg.MaxBiasPct <= 0 {
		errs = append(errs, "MAX_BIAS_PCT must be positive")
	}

	cfg.StrongBuyScore, err = getEnvAsFloat("STRONG_BUY_SCORE", 80.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STRONG_BUY_SCORE: %v", err))
	}
	cfg.BuyScore, err = getEnvAsFloat("BUY_SCORE", 60.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BUY_SCORE: %v", err))
	}
	cfg.HoldScore, err = getEnvAsFloat("HOLD_SCORE", 40.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HOLD_SCORE: %v", err))
	}
	if !(cfg.StrongBuyScore > cfg.BuyScore && cfg.BuyScore > cfg.HoldScore && cfg.HoldScore > 0) {
		errs = append(errs, "signal bands must be descending (STRONG_BUY_SCORE > BUY_SCORE > HOLD_SCORE > 0)")
	}

	// Market regime
	cfg.BearReturnPct, err = getEnvAsFloat("BEAR_RETURN_PCT", -2.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BEAR_RETURN_PCT: %v", err))
	}
	cfg.BullReturnPct, err = getEnvAsFloat("BULL_RETURN_PCT", 1.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid BULL_RETURN_PCT: %v", err))
	}
	if cfg.BearReturnPct >= cfg.BullReturnPct {
		errs = append(errs, "BEAR_RETURN_PCT must be less than BULL_RETURN_PCT")
	}
	cfg.RegimeReturnDays, err = getEnvAsInt("REGIME_RETURN_DAYS", 5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid REGIME_RETURN_DAYS: %v", err))
	} else if cfg.RegimeReturnDays < 1 {
		errs = append(errs, "REGIME_RETURN_DAYS must be at least 1")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "info"))

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// EngineConfig maps the scoring settings onto an analysis engine configuration.
func (c *Config) EngineConfig() analysis.Config {
	return analysis.Config{
		Weights: analysis.Weights{
			MA:     c.WeightMA,
			MACD:   c.WeightMACD,
			KDJ:    c.WeightKDJ,
			RSI:    c.WeightRSI,
			Volume: c.WeightVolume,
			Bias:   c.WeightBias,
		},
		MAGapMinPct:      c.MAGapMinPct,
		HeavyVolumeRatio: c.HeavyVolumeRatio,
		VolumeAvgDays:    c.VolumeAvgDays,
		MaxBiasPct:       c.MaxBiasPct,
		StrongBuyScore:   c.StrongBuyScore,
		BuyScore:         c.BuyScore,
		HoldScore:        c.HoldScore,
	}
}

// RegimeConfig maps the market regime settings onto the classifier config.
func (c *Config) RegimeConfig() analysis.RegimeConfig {
	return analysis.RegimeConfig{
		BearReturnPct: c.BearReturnPct,
		BullReturnPct: c.BullReturnPct,
		ReturnDays:    c.RegimeReturnDays,
	}
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated variable, trimming blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
