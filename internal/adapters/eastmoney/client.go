package eastmoney

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"equitrend/internal/domain"
	"equitrend/internal/ports"
)

const (
	providerName = "eastmoney"

	defaultBaseURL  = "https://push2his.eastmoney.com"
	defaultLookback = 250

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	referer   = "https://quote.eastmoney.com"

	// klt 101 = daily bars, fqt 1 = forward adjusted prices.
	klinePath = "/api/qt/stock/kline/get?secid=%s&fields1=f1,f2,f3,f4,f5,f6&fields2=f51,f52,f53,f54,f55,f56,f57&klt=101&fqt=1&end=20500101&lmt=%d"
)

// Client implements ports.QuoteProvider against the EastMoney push2his kline
// API. The vendor serves history only, so the adapter has no realtime
// capability.
type Client struct {
	httpClient *http.Client
	logger     ports.Logger
	baseURL    string
	priority   int
}

// Config holds configuration specific to the EastMoney adapter.
type Config struct {
	Logger     ports.Logger
	HTTPClient *http.Client // optional, defaults to a 10s timeout client
	BaseURL    string       // optional override, used by tests
	Priority   int          // chain position
}

// New creates a new EastMoney quote adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for eastmoney client")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     cfg.Logger,
		baseURL:    baseURL,
		priority:   cfg.Priority,
	}, nil
}

// Descriptor identifies the provider and its place in the chain.
func (c *Client) Descriptor() domain.SourceDescriptor {
	return domain.SourceDescriptor{
		Name:             providerName,
		Priority:         c.priority,
		SupportsDaily:    true,
		SupportsRealtime: false,
	}
}

// FetchDaily retrieves the most recent daily bars for a symbol.
func (c *Client) FetchDaily(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	op := "FetchDaily"
	secid, err := secIDFor(symbol)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidSymbol, err), op)
	}
	if days <= 0 {
		days = defaultLookback
	}

	body, err := c.get(ctx, c.baseURL+fmt.Sprintf(klinePath, secid, days))
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars, err := parseKlineResponse(body)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
	}

	c.logger.Debug(ctx, "eastmoney klines fetched", map[string]interface{}{
		"symbol": symbol, "secid": secid, "requested": days, "bars": len(bars),
	})
	return bars, nil
}

// FetchLatestPrice is not available on this vendor.
func (c *Client) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	return 0, fmt.Errorf("FetchLatestPrice failed: %w: eastmoney adapter serves daily klines only", ports.ErrUnsupported)
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, &statusError{Code: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

// statusError reports a non-2xx HTTP response.
type statusError struct {
	Code int
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected HTTP status %d", e.Code) }

// handleError translates transport and payload errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}
	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var statusErr *statusError
	var finalErr error
	switch {
	case errors.As(err, &statusErr):
		fields["statusCode"] = statusErr.Code
		mapped := ports.ErrProviderUnavailable
		if statusErr.Code == http.StatusTooManyRequests {
			mapped = ports.ErrRateLimited
		}
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, mapped, err)
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case errors.Is(err, ports.ErrInvalidSymbol), errors.Is(err, ports.ErrMalformedResponse):
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrProviderUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// klineResponse mirrors the push2his envelope. A null data object means the
// vendor does not know the symbol.
type klineResponse struct {
	Data *struct {
		Code   string   `json:"code"`
		Name   string   `json:"name"`
		Klines []string `json:"klines"`
	} `json:"data"`
}

// parseKlineResponse translates the push2his payload. Each kline is a CSV
// line "date,open,close,high,low,volume,amount" (fields2 f51..f57 order).
func parseKlineResponse(body []byte) ([]domain.PriceBar, error) {
	var decoded klineResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding kline response: %w", ports.ErrMalformedResponse, err)
	}
	if decoded.Data == nil {
		return nil, fmt.Errorf("%w: provider reports no data for symbol", ports.ErrInvalidSymbol)
	}
	if len(decoded.Data.Klines) == 0 {
		return nil, fmt.Errorf("%w: empty kline payload", ports.ErrMalformedResponse)
	}

	bars := make([]domain.PriceBar, 0, len(decoded.Data.Klines))
	for i, line := range decoded.Data.Klines {
		bar, err := translateKline(line)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d: %w", ports.ErrMalformedResponse, i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func translateKline(line string) (domain.PriceBar, error) {
	parts := strings.Split(line, ",")
	if len(parts) < 6 {
		return domain.PriceBar{}, fmt.Errorf("kline %q has only %d fields", line, len(parts))
	}
	date, err := time.Parse("2006-01-02", parts[0])
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing date %q: %w", parts[0], err)
	}
	open, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing open price %q: %w", parts[1], err)
	}
	closePrice, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing close price %q: %w", parts[2], err)
	}
	high, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing high price %q: %w", parts[3], err)
	}
	low, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing low price %q: %w", parts[4], err)
	}
	volume, err := strconv.ParseFloat(parts[5], 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing volume %q: %w", parts[5], err)
	}
	return domain.PriceBar{Date: date, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}, nil
}

// secIDFor maps a symbol to the vendor's market-qualified id: "1." for
// Shanghai, "0." for Shenzhen. Bare 6-digit codes starting with 6 map to
// Shanghai, the rest to Shenzhen; index codes must arrive prefixed.
func secIDFor(symbol string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	switch {
	case len(s) == 8 && strings.HasPrefix(s, "sh") && isDigits(s[2:]):
		return "1." + s[2:], nil
	case len(s) == 8 && strings.HasPrefix(s, "sz") && isDigits(s[2:]):
		return "0." + s[2:], nil
	case len(s) == 6 && isDigits(s):
		if s[0] == '6' {
			return "1." + s, nil
		}
		return "0." + s, nil
	}
	return "", fmt.Errorf("unrecognized symbol %q", symbol)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
