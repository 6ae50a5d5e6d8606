package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"equitrend/internal/domain"
	"equitrend/internal/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Mock implementations
type mockLogger struct {
	debugMsgs  []string
	infoMsgs   []string
	warnMsgs   []string
	errorMsgs  []string
	warnFields []map[string]interface{}
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
	if len(fields) > 0 {
		m.warnFields = append(m.warnFields, fields[0])
	}
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

// stubProvider serves canned bars or a canned failure.
type stubProvider struct {
	desc             domain.SourceDescriptor
	bars             []domain.PriceBar
	dailyErr         error
	price            float64
	priceErr         error
	blockUntilCancel bool // FetchDaily waits for the attempt context to end
	dailyCalls       int
	priceCalls       int
}

func (s *stubProvider) Descriptor() domain.SourceDescriptor { return s.desc }

func (s *stubProvider) FetchDaily(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	s.dailyCalls++
	if s.blockUntilCancel {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.dailyErr != nil {
		return nil, s.dailyErr
	}
	return s.bars, nil
}

func (s *stubProvider) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	s.priceCalls++
	if s.priceErr != nil {
		return 0, s.priceErr
	}
	return s.price, nil
}

// cancellingProvider cancels the caller's context from inside its own attempt
// and then fails, simulating a shutdown racing a fetch.
type cancellingProvider struct {
	stubProvider
	cancel context.CancelFunc
}

func (p *cancellingProvider) FetchDaily(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	p.dailyCalls++
	p.cancel()
	return nil, ports.ErrProviderUnavailable
}

func dailyDesc(name string, priority int) domain.SourceDescriptor {
	return domain.SourceDescriptor{Name: name, Priority: priority, SupportsDaily: true}
}

func validSeries(n int) []domain.PriceBar {
	start := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, n)
	for i := 0; i < n; i++ {
		c := 10 + 0.05*float64(i)
		bars[i] = domain.PriceBar{
			Date: start.AddDate(0, 0, i), Open: c - 0.02, High: c + 0.03, Low: c - 0.04, Close: c, Volume: 1000,
		}
	}
	return bars
}

func newTestManager(t *testing.T, log *mockLogger, providers ...ports.QuoteProvider) *Manager {
	t.Helper()
	m, err := New(Config{Logger: log, AttemptTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	for _, p := range providers {
		m.Register(p)
	}
	return m
}

func TestNewManager(t *testing.T) {
	t.Run("requires a logger", func(t *testing.T) {
		_, err := New(Config{})
		assert.Error(t, err)
	})

	t.Run("defaults the attempt timeout", func(t *testing.T) {
		m, err := New(Config{Logger: &mockLogger{}})
		require.NoError(t, err)
		assert.Equal(t, defaultAttemptTimeout, m.attemptTimeout)
	})
}

func TestFetchDailyFirstSuccessWins(t *testing.T) {
	a := &stubProvider{desc: dailyDesc("sina", 0), bars: validSeries(5)}
	b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
	m := newTestManager(t, &mockLogger{}, a, b)

	outcome, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.NoError(t, err)

	assert.Equal(t, "sina", outcome.Source)
	assert.Equal(t, "sh600519", outcome.Symbol)
	assert.Len(t, outcome.Bars, 5)
	assert.False(t, outcome.FetchedAt.IsZero())
	assert.Equal(t, 1, a.dailyCalls)
	assert.Equal(t, 0, b.dailyCalls, "later providers must not be consulted after a success")
}

func TestFetchDailyFailsOver(t *testing.T) {
	log := &mockLogger{}
	a := &stubProvider{desc: dailyDesc("sina", 0), dailyErr: ports.ErrProviderUnavailable}
	b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
	m := newTestManager(t, log, a, b)

	outcome, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.NoError(t, err)

	assert.Equal(t, "eastmoney", outcome.Source)
	assert.Equal(t, 1, a.dailyCalls)
	assert.Equal(t, 1, b.dailyCalls)
	require.Len(t, log.warnFields, 1)
	assert.Equal(t, "sina", log.warnFields[0]["provider"])
}

func TestFetchDailyPriorityOrder(t *testing.T) {
	t.Run("ascending priority regardless of registration", func(t *testing.T) {
		second := &stubProvider{desc: dailyDesc("eastmoney", 1), dailyErr: ports.ErrProviderUnavailable}
		first := &stubProvider{desc: dailyDesc("sina", 0), dailyErr: ports.ErrProviderUnavailable}
		m := newTestManager(t, &mockLogger{}, second, first) // registered out of order

		_, err := m.FetchDaily(context.Background(), "sh600519", 120)
		var exhausted *ports.ExhaustionError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Attempts, 2)
		assert.Equal(t, "sina", exhausted.Attempts[0].Provider)
		assert.Equal(t, "eastmoney", exhausted.Attempts[1].Provider)
	})

	t.Run("equal priorities keep registration order", func(t *testing.T) {
		x := &stubProvider{desc: dailyDesc("x", 0), dailyErr: ports.ErrProviderUnavailable}
		y := &stubProvider{desc: dailyDesc("y", 0), dailyErr: ports.ErrProviderUnavailable}
		m := newTestManager(t, &mockLogger{}, x, y)

		_, err := m.FetchDaily(context.Background(), "sh600519", 120)
		var exhausted *ports.ExhaustionError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Attempts, 2)
		assert.Equal(t, "x", exhausted.Attempts[0].Provider)
		assert.Equal(t, "y", exhausted.Attempts[1].Provider)
	})
}

func TestFetchDailyExhaustion(t *testing.T) {
	a := &stubProvider{desc: dailyDesc("sina", 0), dailyErr: ports.ErrRateLimited}
	b := &stubProvider{desc: dailyDesc("eastmoney", 1), dailyErr: ports.ErrInvalidSymbol}
	c := &stubProvider{desc: dailyDesc("tencent", 2), dailyErr: ports.ErrProviderUnavailable}
	log := &mockLogger{}
	m := newTestManager(t, log, a, b, c)

	_, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAllProvidersExhausted)

	var exhausted *ports.ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, "sh600519", exhausted.Symbol)
	require.Len(t, exhausted.Attempts, 3)
	assert.ErrorIs(t, exhausted.Attempts[0].Err, ports.ErrRateLimited)
	assert.ErrorIs(t, exhausted.Attempts[1].Err, ports.ErrInvalidSymbol)
	assert.ErrorIs(t, exhausted.Attempts[2].Err, ports.ErrProviderUnavailable)

	msg := err.Error()
	assert.Contains(t, msg, "sina:")
	assert.Contains(t, msg, "eastmoney:")
	assert.Contains(t, msg, "tencent:")
	assert.Len(t, log.errorMsgs, 1)
}

func TestFetchDailyEmptyChain(t *testing.T) {
	m := newTestManager(t, &mockLogger{})

	_, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAllProvidersExhausted)

	var exhausted *ports.ExhaustionError
	require.ErrorAs(t, err, &exhausted)
	assert.Empty(t, exhausted.Attempts)
	assert.Contains(t, err.Error(), "no providers available")
}

func TestFetchDailySkipsNonDailyProviders(t *testing.T) {
	quoteOnly := &stubProvider{desc: domain.SourceDescriptor{Name: "ticker", Priority: 0, SupportsRealtime: true}}
	b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
	m := newTestManager(t, &mockLogger{}, quoteOnly, b)

	outcome, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.NoError(t, err)
	assert.Equal(t, "eastmoney", outcome.Source)
	assert.Equal(t, 0, quoteOnly.dailyCalls)
}

func TestFetchDailyTimeoutFailsOver(t *testing.T) {
	log := &mockLogger{}
	slow := &stubProvider{desc: dailyDesc("sina", 0), blockUntilCancel: true}
	b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
	m := newTestManager(t, log, slow, b)

	outcome, err := m.FetchDaily(context.Background(), "sh600519", 120)
	require.NoError(t, err)

	assert.Equal(t, "eastmoney", outcome.Source)
	require.Len(t, log.warnFields, 1)
	assert.Equal(t, "sina", log.warnFields[0]["provider"])
	assert.Contains(t, log.warnFields[0]["error"], "timed out")
}

func TestFetchDailyRejectsBadSeries(t *testing.T) {
	t.Run("empty series counts as malformed", func(t *testing.T) {
		empty := &stubProvider{desc: dailyDesc("sina", 0)}
		m := newTestManager(t, &mockLogger{}, empty)

		_, err := m.FetchDaily(context.Background(), "sh600519", 120)
		var exhausted *ports.ExhaustionError
		require.ErrorAs(t, err, &exhausted)
		require.Len(t, exhausted.Attempts, 1)
		assert.ErrorIs(t, exhausted.Attempts[0].Err, ports.ErrMalformedResponse)
	})

	t.Run("unordered series counts as malformed and fails over", func(t *testing.T) {
		bad := validSeries(5)
		bad[1].Date, bad[2].Date = bad[2].Date, bad[1].Date
		a := &stubProvider{desc: dailyDesc("sina", 0), bars: bad}
		b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
		log := &mockLogger{}
		m := newTestManager(t, log, a, b)

		outcome, err := m.FetchDaily(context.Background(), "sh600519", 120)
		require.NoError(t, err)
		assert.Equal(t, "eastmoney", outcome.Source)
		require.Len(t, log.warnFields, 1)
		assert.Contains(t, log.warnFields[0]["error"], "malformed")
	})
}

func TestFetchDailyCancellation(t *testing.T) {
	t.Run("pre-canceled context consults nobody", func(t *testing.T) {
		a := &stubProvider{desc: dailyDesc("sina", 0), bars: validSeries(5)}
		m := newTestManager(t, &mockLogger{}, a)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := m.FetchDaily(ctx, "sh600519", 120)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrContextCanceled)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, a.dailyCalls)
	})

	t.Run("cancellation mid-chain stops before the next provider", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		first := &cancellingProvider{cancel: cancel}
		first.desc = dailyDesc("sina", 0)
		b := &stubProvider{desc: dailyDesc("eastmoney", 1), bars: validSeries(5)}
		m := newTestManager(t, &mockLogger{}, first, b)

		_, err := m.FetchDaily(ctx, "sh600519", 120)
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrContextCanceled)
		assert.Equal(t, 1, first.dailyCalls)
		assert.Equal(t, 0, b.dailyCalls)
	})
}

func TestFetchLatestPrice(t *testing.T) {
	t.Run("skips providers without realtime support", func(t *testing.T) {
		dailyOnly := &stubProvider{desc: dailyDesc("eastmoney", 0), price: 1}
		quoter := &stubProvider{
			desc:  domain.SourceDescriptor{Name: "tencent", Priority: 1, SupportsDaily: true, SupportsRealtime: true},
			price: 12.34,
		}
		m := newTestManager(t, &mockLogger{}, dailyOnly, quoter)

		price, source, err := m.FetchLatestPrice(context.Background(), "sh600519")
		require.NoError(t, err)
		assert.Equal(t, 12.34, price)
		assert.Equal(t, "tencent", source)
		assert.Equal(t, 0, dailyOnly.priceCalls)
	})

	t.Run("exhaustion when every quoter fails", func(t *testing.T) {
		quoter := &stubProvider{
			desc:     domain.SourceDescriptor{Name: "sina", Priority: 0, SupportsDaily: true, SupportsRealtime: true},
			priceErr: ports.ErrProviderUnavailable,
		}
		m := newTestManager(t, &mockLogger{}, quoter)

		_, _, err := m.FetchLatestPrice(context.Background(), "sh600519")
		require.Error(t, err)
		assert.ErrorIs(t, err, ports.ErrAllProvidersExhausted)
	})
}

func TestProvidersListing(t *testing.T) {
	a := &stubProvider{desc: dailyDesc("tencent", 2)}
	b := &stubProvider{desc: dailyDesc("sina", 0)}
	c := &stubProvider{desc: dailyDesc("eastmoney", 1)}
	m := newTestManager(t, &mockLogger{}, a, b, c)

	descs := m.Providers()
	require.Len(t, descs, 3)
	assert.Equal(t, "sina", descs[0].Name)
	assert.Equal(t, "eastmoney", descs[1].Name)
	assert.Equal(t, "tencent", descs[2].Name)
}

func TestClassify(t *testing.T) {
	t.Run("known kinds pass through", func(t *testing.T) {
		err := classify(ports.ErrRateLimited)
		assert.ErrorIs(t, err, ports.ErrRateLimited)
	})

	t.Run("deadline maps to timeout", func(t *testing.T) {
		err := classify(context.DeadlineExceeded)
		assert.ErrorIs(t, err, ports.ErrTimeout)
	})

	t.Run("anything else maps to unavailable", func(t *testing.T) {
		err := classify(errors.New("connection reset"))
		assert.ErrorIs(t, err, ports.ErrProviderUnavailable)
	})
}
