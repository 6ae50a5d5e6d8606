package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"equitrend/config"
	"equitrend/internal/adapters/logger"
	"equitrend/internal/analysis"
	"equitrend/internal/cache"
	"equitrend/internal/resolver"
)

var (
	symbol  = flag.String("symbol", "", "symbol to analyze, e.g. sh600519 or 600519")
	history = flag.Int("history", 5, "how many recent trading days to score")
)

func main() {
	flag.Parse()
	if *symbol == "" {
		log.Fatalf("FATAL: -symbol is required")
	}

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Build the fetch and analysis stack
	manager, err := resolver.BuildChain(resolver.ChainConfig{
		Logger:         appLogger,
		Providers:      cfg.ProviderPriority,
		AttemptTimeout: cfg.FetchTimeout,
		HTTPClient:     &http.Client{Timeout: cfg.FetchTimeout},
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize quote providers: %v", err)
	}
	series, err := cache.NewSeries(manager, cfg.CacheTTL, appLogger)
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize series cache: %v", err)
	}
	engine, err := analysis.New(cfg.EngineConfig())
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize analysis engine: %v", err)
	}

	ctx := context.Background()

	// 4. Resolve the series and analyze the latest bar
	outcome, err := series.FetchDaily(ctx, *symbol, cfg.LookbackDays)
	if err != nil {
		log.Fatalf("FATAL: Failed to fetch daily bars for %s: %v", *symbol, err)
	}
	res, err := engine.Analyze(*symbol, outcome.Bars)
	if err != nil {
		log.Fatalf("FATAL: Analysis failed for %s: %v", *symbol, err)
	}

	fmt.Printf("%s  (%d bars via %s)\n", res.Symbol, len(outcome.Bars), outcome.Source)
	fmt.Printf("as of %s  close %.2f\n", res.AsOf.Format("2006-01-02"), res.Close)
	if price, src, perr := manager.FetchLatestPrice(ctx, *symbol); perr == nil {
		fmt.Printf("latest price %.2f (via %s)\n", price, src)
	}
	fmt.Println()

	snap := res.Snapshot
	fmt.Printf("MA     5/10/20/60: %.2f / %.2f / %.2f / %.2f  [%s]\n",
		snap.MA5, snap.MA10, snap.MA20, snap.MA60, res.MAStatus)
	fmt.Printf("MACD   dif %.3f  dea %.3f  hist %.3f  [%s]\n",
		snap.MACDDif, snap.MACDDea, snap.MACDHist, res.MACDStatus)
	fmt.Printf("KDJ    k %.1f  d %.1f  j %.1f  [%s]\n", snap.K, snap.D, snap.J, res.KDJStatus)
	fmt.Printf("RSI14  %.1f\n", snap.RSI14)
	fmt.Printf("BOLL   %.2f / %.2f / %.2f\n", snap.BollUpper, snap.BollMiddle, snap.BollLower)
	fmt.Printf("VOL    ratio %.2f  [%s]\n", snap.VolumeRatio, res.VolumeStatus)
	fmt.Printf("BIAS   ma5 %+.2f%%  ma10 %+.2f%%\n", snap.BiasMA5, snap.BiasMA10)
	fmt.Println()

	fmt.Printf("trend %s | score %.1f | signal %s\n", res.TrendStatus, res.Score, res.Signal)
	if len(res.Reasons) > 0 {
		fmt.Printf("reasons: %s\n", strings.Join(res.Reasons, "; "))
	}
	if len(res.RiskFactors) > 0 {
		fmt.Printf("risks:   %s\n", strings.Join(res.RiskFactors, "; "))
	}

	// 5. Short signal history over the most recent sessions
	if *history > 1 {
		fmt.Printf("\nlast %d sessions:\n", *history)
		start := len(outcome.Bars) - *history
		if start < engine.MinimumBars()-1 {
			start = engine.MinimumBars() - 1
		}
		for i := start; i < len(outcome.Bars); i++ {
			day, derr := engine.AnalyzeAt(*symbol, outcome.Bars, i)
			if derr != nil {
				continue
			}
			fmt.Printf("  %s  close %8.2f  score %5.1f  %s\n",
				day.AsOf.Format("2006-01-02"), day.Close, day.Score, day.Signal)
		}
	}
}
