package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"equitrend/internal/analysis"
	"equitrend/internal/domain"
	"equitrend/internal/ports"
)

// Mock implementations
type mockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// stubResolver serves canned outcomes or errors per symbol and counts calls.
type stubResolver struct {
	outcomes map[string]*domain.FetchOutcome
	errs     map[string]error
	calls    map[string]int
}

func newStubResolver() *stubResolver {
	return &stubResolver{
		outcomes: make(map[string]*domain.FetchOutcome),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (s *stubResolver) serve(symbol, source string, bars []domain.PriceBar) {
	s.outcomes[symbol] = &domain.FetchOutcome{
		Symbol: symbol, Bars: bars, Source: source, FetchedAt: time.Now(),
	}
}

func (s *stubResolver) FetchDaily(ctx context.Context, symbol string, days int) (*domain.FetchOutcome, error) {
	s.calls[symbol]++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := s.errs[symbol]; ok {
		return nil, err
	}
	if outcome, ok := s.outcomes[symbol]; ok {
		return outcome, nil
	}
	return nil, &ports.ExhaustionError{Symbol: symbol}
}

// rampSeries builds n daily bars whose close drifts by step per day.
func rampSeries(n int, base, step float64) []domain.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, n)
	for i := 0; i < n; i++ {
		c := base + step*float64(i)
		bars[i] = domain.PriceBar{
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.05,
			High:   c + 0.05,
			Low:    c - 0.1,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func risingSeries(n int) []domain.PriceBar  { return rampSeries(n, 10, 0.1) }
func fallingSeries(n int) []domain.PriceBar { return rampSeries(n, 20, -0.1) }

func testConfig(t *testing.T, log *mockLogger, resolver ports.BarResolver) Config {
	t.Helper()
	engine, err := analysis.New(analysis.DefaultConfig())
	require.NoError(t, err)
	return Config{
		Logger:          log,
		Resolver:        resolver,
		Engine:          engine,
		Watchlist:       []string{"sh600519", "sz000858"},
		BenchmarkSymbol: "sh000001",
		LookbackDays:    90,
		Concurrency:     2,
		MinReportScore:  60,
		MaxBiasPct:      5,
		BearPenalty:     10,
		BullBonus:       5,
		Regime:          analysis.DefaultRegimeConfig(),
	}
}

func TestNewService(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(*Config) {}},
		{name: "missing logger", mutate: func(c *Config) { c.Logger = nil }, wantErr: true},
		{name: "missing resolver", mutate: func(c *Config) { c.Resolver = nil }, wantErr: true},
		{name: "missing engine", mutate: func(c *Config) { c.Engine = nil }, wantErr: true},
		{name: "empty watchlist", mutate: func(c *Config) { c.Watchlist = nil }, wantErr: true},
		{name: "missing benchmark", mutate: func(c *Config) { c.BenchmarkSymbol = "" }, wantErr: true},
		{name: "lookback below analysis minimum", mutate: func(c *Config) { c.LookbackDays = 59 }, wantErr: true},
		{name: "zero concurrency falls back to default", mutate: func(c *Config) { c.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, log, resolver)
			tt.mutate(&cfg)
			svc, err := NewService(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			assert.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestRunScanBullMarket(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", fallingSeries(60))

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RegimeBull, report.Regime)
	assert.False(t, report.Vetoed)
	assert.NotEmpty(t, report.RunID)
	require.Len(t, report.Results, 2)

	// Sorted by adjusted score, the rising symbol first.
	best := report.Results[0]
	assert.Equal(t, "sh600519", best.Symbol)
	assert.Equal(t, "sina", best.Source)
	assert.InDelta(t, best.Score+5, best.AdjustedScore, 1e-9, "bull regime adds the bonus")

	worst := report.Results[1]
	assert.Equal(t, "sz000858", worst.Symbol)
	assert.Equal(t, domain.SignalSell, worst.Signal)

	// Only the rising symbol clears the pick gates.
	require.Len(t, report.Picks, 1)
	assert.Equal(t, "sh600519", report.Picks[0].Symbol)
	assert.True(t, report.Picks[0].Pick)
	assert.False(t, worst.Pick)

	assert.Empty(t, report.Failures)
	assert.Equal(t, 2, report.Summary.Total)
	require.NotNil(t, report.Summary.Best)
	assert.Equal(t, "sh600519", report.Summary.Best.Symbol)

	assert.Same(t, report, svc.LastScan())
}

func TestRunScanBearPenalty(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", fallingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", fallingSeries(60))

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RegimeBear, report.Regime)
	assert.False(t, report.Vetoed, "without the gate a bear market only penalizes")
	require.Len(t, report.Results, 2)
	for _, r := range report.Results {
		assert.InDelta(t, maxFloat(r.Score-10, 0), r.AdjustedScore, 1e-9)
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func TestRunScanBearVeto(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", fallingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))

	cfg := testConfig(t, log, resolver)
	cfg.GateOnBear = true
	svc, err := NewService(cfg)
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Vetoed)
	assert.Equal(t, domain.RegimeBear, report.Regime)
	assert.Empty(t, report.Results)
	assert.Empty(t, report.Picks)
	assert.Equal(t, 0, resolver.calls["sh600519"], "vetoed scan must not touch the watchlist")
	assert.Contains(t, log.warnMsgs, "scan vetoed by bear regime")
}

func TestRunScanAdjustedScoreClamps(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", risingSeries(60))

	cfg := testConfig(t, log, resolver)
	cfg.BullBonus = 50
	svc, err := NewService(cfg)
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Results)
	for _, r := range report.Results {
		assert.LessOrEqual(t, r.AdjustedScore, 100.0)
	}
}

func TestRunScanSkipsFailedSymbols(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.errs["sz000858"] = &ports.ExhaustionError{
		Symbol:   "sz000858",
		Attempts: []ports.Attempt{{Provider: "sina", Err: ports.ErrProviderUnavailable}},
	}

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.Equal(t, "sh600519", report.Results[0].Symbol)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures["sz000858"], ports.ErrAllProvidersExhausted)
	assert.Contains(t, log.warnMsgs, "symbol skipped")
}

func TestRunScanShortHistoryIsSkipped(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", risingSeries(59)) // newly listed

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Failures["sz000858"], ports.ErrInsufficientHistory)
}

func TestRunScanBenchmarkFailureDegradesToRange(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.errs["sh000001"] = &ports.ExhaustionError{Symbol: "sh000001"}
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", risingSeries(60))

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	report, err := svc.RunScan(context.Background())
	require.NoError(t, err)

	assert.Equal(t, domain.RegimeRange, report.Regime)
	assert.Len(t, report.Results, 2, "the scan itself proceeds")
	assert.Contains(t, log.warnMsgs, "benchmark fetch failed, assuming range regime")
	for _, r := range report.Results {
		assert.InDelta(t, r.Score, r.AdjustedScore, 1e-9, "range regime leaves scores untouched")
	}
}

func TestRunScanCancellation(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))

	svc, err := NewService(testConfig(t, log, resolver))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.RunScan(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrContextCanceled)
	assert.Nil(t, report)
}

func TestStartRequiresSchedule(t *testing.T) {
	resolver := newStubResolver()
	svc, err := NewService(testConfig(t, &mockLogger{}, resolver))
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestStartRunsImmediateScanAndStopsOnCancel(t *testing.T) {
	log := &mockLogger{}
	resolver := newStubResolver()
	resolver.serve("sh000001", "sina", risingSeries(60))
	resolver.serve("sh600519", "sina", risingSeries(60))
	resolver.serve("sz000858", "eastmoney", risingSeries(60))

	cfg := testConfig(t, log, resolver)
	cfg.ScanCron = "0 0 3 * * *" // far away, only the immediate scan runs
	cfg.ScanOnStart = true
	svc, err := NewService(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error)
	go func() {
		errCh <- svc.Start(ctx)
	}()

	// Allow the immediate scan to complete, then shut down.
	require.Eventually(t, func() bool { return svc.LastScan() != nil },
		2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop after cancellation")
	}
	assert.Contains(t, log.infoMsgs, "scan service stopped")
}

func TestStopIsIdempotent(t *testing.T) {
	resolver := newStubResolver()
	svc, err := NewService(testConfig(t, &mockLogger{}, resolver))
	require.NoError(t, err)

	svc.Stop()
	svc.Stop()
}
