package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"equitrend/config"
	"equitrend/internal/adapters/logger"
	"equitrend/internal/analysis"
	"equitrend/internal/app"
	"equitrend/internal/cache"
	"equitrend/internal/domain"
	"equitrend/internal/resolver"
)

var (
	symbols   = flag.String("symbols", "", "comma separated symbols, overrides WATCHLIST")
	picksOnly = flag.Bool("picks", false, "print only the symbols that passed the selection gates")
)

func main() {
	flag.Parse()

	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}
	if *symbols != "" {
		cfg.Watchlist = splitSymbols(*symbols)
	}
	if len(cfg.Watchlist) == 0 {
		log.Fatalf("FATAL: no watchlist configured; set WATCHLIST or pass -symbols")
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
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to initialize scan service: %v", err)
	}

	// 4. Run one scan and render it
	report, err := scanService.RunScan(context.Background())
	if err != nil {
		log.Fatalf("FATAL: Scan failed: %v", err)
	}

	fmt.Printf("Scan %s | regime: %s | %d symbols in %s\n\n",
		report.RunID, report.Regime, len(cfg.Watchlist), report.Elapsed.Round(10*time.Millisecond))

	if report.Vetoed {
		fmt.Println("Bear market regime: scan vetoed, no symbols analyzed.")
		return
	}

	rows := report.Results
	if *picksOnly {
		rows = report.Picks
	}
	renderTable(rows)

	s := report.Summary
	fmt.Printf("\nanalyzed %d | strong buy %d, buy %d, hold %d, sell %d | avg score %.1f\n",
		s.Total, s.StrongBuy, s.Buy, s.Hold, s.Sell, s.AvgScore)
	if s.Best != nil {
		fmt.Printf("best: %s (%.1f, %s)\n", s.Best.Symbol, s.Best.Score, s.Best.Signal)
	}
	if len(report.Failures) > 0 {
		fmt.Printf("failed: %d symbol(s)\n", len(report.Failures))
		for sym, ferr := range report.Failures {
			fmt.Printf("  %s: %v\n", sym, ferr)
		}
	}
}

func renderTable(rows []*app.ScanResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Symbol", "Date", "Close", "Score", "Adj", "Trend", "Signal", "Bias5%", "Pick"})
	for i, r := range rows {
		pick := ""
		if r.Pick {
			pick = "*"
		}
		t.AppendRow(table.Row{
			i + 1,
			r.Symbol,
			r.AsOf.Format("2006-01-02"),
			fmt.Sprintf("%.2f", r.Close),
			fmt.Sprintf("%.1f", r.Score),
			fmt.Sprintf("%.1f", r.AdjustedScore),
			shortTrend(r.TrendStatus),
			string(r.Signal),
			fmt.Sprintf("%+.2f", r.Snapshot.BiasMA5),
			pick,
		})
	}
	t.Render()
}

func shortTrend(ts domain.TrendStatus) string {
	return strings.ReplaceAll(string(ts), "_", " ")
}

func splitSymbols(list string) []string {
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
