package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"

	"equitrend/config"
	"equitrend/internal/adapters/logger"
	"equitrend/internal/resolver"
	"equitrend/internal/utils"
)

var (
	symbol = flag.String("symbol", "", "symbol to export, e.g. sh600519 or 600519")
	days   = flag.Int("days", 0, "bars to request, defaults to LOOKBACK_DAYS")
	out    = flag.String("out", "", "output file, defaults to data/<symbol>_daily.csv")
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
	if *days <= 0 {
		*days = cfg.LookbackDays
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)

	// 3. Initialize Quote Providers
	manager, err := resolver.BuildChain(resolver.ChainConfig{
		Logger:         appLogger,
		Providers:      cfg.ProviderPriority,
		AttemptTimeout: cfg.FetchTimeout,
		HTTPClient:     &http.Client{Timeout: cfg.FetchTimeout},
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize quote providers: %v", err)
	}

	fmt.Printf("Fetching %d daily bars for %s...\n", *days, *symbol)
	outcome, err := manager.FetchDaily(context.Background(), *symbol, *days)
	if err != nil {
		appLogger.Error(context.Background(), err, "Error fetching daily bars")
		log.Fatalf("Error fetching daily bars: %v", err)
	}
	appLogger.Info(context.Background(), "Fetched daily bars", map[string]interface{}{
		"symbol": *symbol, "count": len(outcome.Bars), "source": outcome.Source,
	})

	filename := *out
	if filename == "" {
		filename = fmt.Sprintf("data/%s_daily.csv", *symbol)
	}
	if err := utils.WritePriceBarsToCSV(outcome.Bars, filename); err != nil {
		appLogger.Error(context.Background(), err, "Error writing CSV")
		log.Fatalf("Error writing CSV: %v", err)
	}
	appLogger.Info(context.Background(), "Saved to", map[string]interface{}{"filename": filename})
}
