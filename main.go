package main

import (
	"context"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"strings"

	"equitrend/config"
	"equitrend/internal/adapters/logger"
	"equitrend/internal/analysis"
	"equitrend/internal/app"
	"equitrend/internal/cache"
	"equitrend/internal/resolver"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.NewStdLogger(cfg.LogLevel)
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Quote Providers and the Resolution Manager
	manager, err := resolver.BuildChain(resolver.ChainConfig{
		Logger:         appLogger,
		Providers:      cfg.ProviderPriority,
		AttemptTimeout: cfg.FetchTimeout,
		HTTPClient:     &http.Client{Timeout: cfg.FetchTimeout},
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize quote providers")
		log.Fatalf("FATAL: Failed to initialize quote providers: %v", err)
	}
	appLogger.Info(context.Background(), "Quote providers initialized", map[string]interface{}{
		"chain": strings.Join(cfg.ProviderPriority, " -> "),
	})

	// 4. Wrap the Manager with the Series Cache
	series, err := cache.NewSeries(manager, cfg.CacheTTL, appLogger)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize series cache")
		log.Fatalf("FATAL: Failed to initialize series cache: %v", err)
	}
	appLogger.Info(context.Background(), "Series cache initialized", map[string]interface{}{"ttl": cfg.CacheTTL.String()})

	// 5. Initialize Analysis Engine
	engine, err := analysis.New(cfg.EngineConfig())
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize analysis engine")
		log.Fatalf("FATAL: Failed to initialize analysis engine: %v", err)
	}
	appLogger.Info(context.Background(), "Analysis engine initialized")

	// 6. Initialize Scan Service
	scanService, err := app.NewService(app.Config{
		Logger:          appLogger,
		Resolver:        series,
		Engine:          engine,
		Watchlist:       cfg.Watchlist,
		BenchmarkSymbol: cfg.BenchmarkSymbol,
		LookbackDays:    cfg.LookbackDays,
		Concurrency:     cfg.ScanConcurrency,
		MinReportScore:  cfg.MinReportScore,
		MaxBiasPct:      cfg.MaxBiasPct,
		GateOnBear:      cfg.GateOnBear,
		BearPenalty:     cfg.BearPenalty,
		BullBonus:       cfg.BullBonus,
		Regime:          cfg.RegimeConfig(),
		ScanCron:        cfg.ScanCron,
		ScanOnStart:     cfg.ScanOnStart,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize scan service")
		log.Fatalf("FATAL: Failed to initialize scan service: %v", err)
	}
	appLogger.Info(context.Background(), "Scan service initialized")

	// 7. Start the Service
	// Use context.Background() as the base context for the application run
	if err := scanService.Start(context.Background()); err != nil {
		appLogger.Error(context.Background(), err, "Scan service exited with error")
		log.Fatalf("FATAL: Scan service exited with error: %v", err)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
