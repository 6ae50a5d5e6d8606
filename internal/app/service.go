package app

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"equitrend/internal/analysis"
	"equitrend/internal/domain"
	"equitrend/internal/ports"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 4

// ScanResult pairs one symbol's analysis with scan-level bookkeeping.
type ScanResult struct {
	*domain.TrendAnalysisResult
	Source        string  // provider that served the series
	AdjustedScore float64 // score after the regime adjustment
	Pick          bool    // passed the selection gates
}

// ScanReport is the outcome of one watchlist scan.
type ScanReport struct {
	RunID     string
	StartedAt time.Time
	Elapsed   time.Duration
	Regime    domain.MarketRegime
	Vetoed    bool // a bear regime stopped the scan before any symbol ran

	Results  []*ScanResult // sorted by adjusted score, descending
	Picks    []*ScanResult // subset of Results that passed the gates
	Failures map[string]error

	Summary analysis.ScanSummary
}

// Config wires the scan service.
type Config struct {
	Logger   ports.Logger
	Resolver ports.BarResolver
	Engine   *analysis.Engine

	Watchlist       []string
	BenchmarkSymbol string
	LookbackDays    int
	Concurrency     int

	MinReportScore float64 // adjusted-score gate for picks
	MaxBiasPct     float64 // bias gate for picks

	GateOnBear  bool // veto the whole scan in a bear regime
	BearPenalty float64
	BullBonus   float64
	Regime      analysis.RegimeConfig

	ScanCron    string // daemon schedule, cron with a seconds field
	ScanOnStart bool
}

// Service orchestrates watchlist scans: benchmark regime first, then
// concurrent per-symbol resolution and analysis.
type Service struct {
	cfg    Config
	logger ports.Logger

	mu       sync.Mutex
	cron     *cron.Cron
	lastScan *ScanReport
}

// NewService validates the dependencies and creates a scan service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Logger == nil || cfg.Resolver == nil || cfg.Engine == nil {
		return nil, fmt.Errorf("missing required dependencies for scan service")
	}
	if len(cfg.Watchlist) == 0 {
		return nil, fmt.Errorf("watchlist must not be empty")
	}
	if cfg.BenchmarkSymbol == "" {
		return nil, fmt.Errorf("benchmark symbol is required")
	}
	if cfg.LookbackDays < cfg.Engine.MinimumBars() {
		return nil, fmt.Errorf("lookback of %d days cannot satisfy the %d-bar analysis minimum",
			cfg.LookbackDays, cfg.Engine.MinimumBars())
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Service{cfg: cfg, logger: cfg.Logger}, nil
}

// RunScan performs one full watchlist scan. Individual symbol failures are
// recorded and skipped; only caller cancellation aborts the scan.
func (s *Service) RunScan(ctx context.Context) (*ScanReport, error) {
	runID := uuid.NewString()
	started := time.Now()
	s.logger.Info(ctx, "scan started", map[string]interface{}{
		"run": runID, "symbols": len(s.cfg.Watchlist), "benchmark": s.cfg.BenchmarkSymbol,
	})

	report := &ScanReport{
		RunID:     runID,
		StartedAt: started,
		Regime:    s.classifyBenchmark(ctx, runID),
		Failures:  make(map[string]error),
	}

	if report.Regime == domain.RegimeBear && s.cfg.GateOnBear {
		s.logger.Warn(ctx, "scan vetoed by bear regime", map[string]interface{}{"run": runID})
		report.Vetoed = true
		report.Elapsed = time.Since(started)
		s.setLastScan(report)
		return report, nil
	}

	var (
		mu      sync.Mutex
		results []*ScanResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)
	for _, symbol := range s.cfg.Watchlist {
		symbol := symbol
		g.Go(func() error {
			res, err := s.scanSymbol(gctx, symbol)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// A bad symbol never aborts the scan.
				report.Failures[symbol] = err
				s.logger.Warn(gctx, "symbol skipped", map[string]interface{}{
					"run": runID, "symbol": symbol, "error": err.Error(),
				})
				return nil
			}
			results = append(results, res)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return nil, fmt.Errorf("scan canceled: %w: %w", ports.ErrContextCanceled, ctx.Err())
	}

	raw := make([]*domain.TrendAnalysisResult, len(results))
	for i, r := range results {
		r.AdjustedScore = s.adjustScore(r.Score, report.Regime)
		raw[i] = r.TrendAnalysisResult
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].AdjustedScore > results[j].AdjustedScore
	})
	for _, r := range results {
		r.Pick = s.isPick(r)
		if r.Pick {
			report.Picks = append(report.Picks, r)
		}
	}
	report.Results = results
	report.Summary = analysis.Summarize(raw)
	report.Elapsed = time.Since(started)

	s.logger.Info(ctx, "scan finished", map[string]interface{}{
		"run": runID, "regime": string(report.Regime), "analyzed": len(results),
		"failed": len(report.Failures), "picks": len(report.Picks),
		"avgScore": fmt.Sprintf("%.1f", report.Summary.AvgScore), "elapsed": report.Elapsed.String(),
	})
	s.setLastScan(report)
	return report, nil
}

// Start runs the service as a daemon: an optional immediate scan, then scans
// on the configured schedule until a shutdown signal or context cancellation.
func (s *Service) Start(ctx context.Context) error {
	if s.cfg.ScanCron == "" {
		return fmt.Errorf("%w: a scan schedule is required in daemon mode", ports.ErrConfigurationError)
	}
	s.logger.Info(ctx, "Starting scan service...", map[string]interface{}{
		"watchlist": len(s.cfg.Watchlist), "schedule": s.cfg.ScanCron,
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(s.cfg.ScanCron, func() {
		if _, err := s.RunScan(ctx); err != nil {
			s.logger.Error(ctx, err, "scheduled scan failed")
		}
	}); err != nil {
		return fmt.Errorf("register scan schedule: %w", err)
	}
	s.mu.Lock()
	s.cron = c
	s.mu.Unlock()
	c.Start()

	if s.cfg.ScanOnStart {
		if _, err := s.RunScan(ctx); err != nil {
			s.logger.Error(ctx, err, "initial scan failed")
		}
	}

	<-ctx.Done()
	s.Stop()
	return nil
}

// Stop halts the schedule and waits for a running scan to finish. Safe to
// call more than once.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
	s.logger.Info(context.Background(), "scan service stopped")
}

// LastScan returns the most recent report, nil before the first scan.
func (s *Service) LastScan() *ScanReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastScan
}

func (s *Service) setLastScan(r *ScanReport) {
	s.mu.Lock()
	s.lastScan = r
	s.mu.Unlock()
}

func (s *Service) scanSymbol(ctx context.Context, symbol string) (*ScanResult, error) {
	outcome, err := s.cfg.Resolver.FetchDaily(ctx, symbol, s.cfg.LookbackDays)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", symbol, err)
	}
	res, err := s.cfg.Engine.Analyze(symbol, outcome.Bars)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", symbol, err)
	}
	return &ScanResult{TrendAnalysisResult: res, Source: outcome.Source}, nil
}

// classifyBenchmark reads the market regime off the benchmark index. The
// regime is advisory, so any failure degrades to range rather than aborting
// the scan.
func (s *Service) classifyBenchmark(ctx context.Context, runID string) domain.MarketRegime {
	outcome, err := s.cfg.Resolver.FetchDaily(ctx, s.cfg.BenchmarkSymbol, s.cfg.LookbackDays)
	if err != nil {
		s.logger.Warn(ctx, "benchmark fetch failed, assuming range regime", map[string]interface{}{
			"run": runID, "benchmark": s.cfg.BenchmarkSymbol, "error": err.Error(),
		})
		return domain.RegimeRange
	}
	regime, err := analysis.ClassifyMarket(outcome.Bars, s.cfg.Regime)
	if err != nil {
		s.logger.Warn(ctx, "benchmark classification failed, assuming range regime", map[string]interface{}{
			"run": runID, "benchmark": s.cfg.BenchmarkSymbol, "error": err.Error(),
		})
		return domain.RegimeRange
	}
	s.logger.Info(ctx, "market regime classified", map[string]interface{}{
		"run": runID, "regime": string(regime), "source": outcome.Source,
	})
	return regime
}

func (s *Service) adjustScore(score float64, regime domain.MarketRegime) float64 {
	switch regime {
	case domain.RegimeBear:
		score -= s.cfg.BearPenalty
	case domain.RegimeBull:
		score += s.cfg.BullBonus
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// isPick applies the selection gates: adjusted score over the report
// threshold, bullish alignment, and a close still near its 5-day average.
func (s *Service) isPick(r *ScanResult) bool {
	if r.AdjustedScore < s.cfg.MinReportScore {
		return false
	}
	if r.MAStatus != domain.MAStrongBull && r.MAStatus != domain.MABullish {
		return false
	}
	return math.Abs(r.Snapshot.BiasMA5) <= s.cfg.MaxBiasPct
}
