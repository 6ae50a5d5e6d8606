package tencent

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
	providerName = "tencent"

	defaultKlineBaseURL = "https://web.ifzq.gtimg.cn"
	defaultQuoteBaseURL = "https://qt.gtimg.cn"
	defaultLookback     = 250

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	referer   = "https://gu.qq.com"
)

// Client implements ports.QuoteProvider against the Tencent quote APIs.
// Daily klines come from the fqkline service (forward adjusted); latest
// prices from the qt quote endpoint.
type Client struct {
	httpClient *http.Client
	logger     ports.Logger
	klineURL   string
	quoteURL   string
	priority   int
}

// Config holds configuration specific to the Tencent adapter.
type Config struct {
	Logger       ports.Logger
	HTTPClient   *http.Client // optional, defaults to a 10s timeout client
	KlineBaseURL string       // optional override, used by tests
	QuoteBaseURL string       // optional override, used by tests
	Priority     int          // chain position
}

// New creates a new Tencent quote adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for tencent client")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	klineURL := cfg.KlineBaseURL
	if klineURL == "" {
		klineURL = defaultKlineBaseURL
	}
	quoteURL := cfg.QuoteBaseURL
	if quoteURL == "" {
		quoteURL = defaultQuoteBaseURL
	}
	return &Client{
		httpClient: httpClient,
		logger:     cfg.Logger,
		klineURL:   klineURL,
		quoteURL:   quoteURL,
		priority:   cfg.Priority,
	}, nil
}

// Descriptor identifies the provider and its place in the chain.
func (c *Client) Descriptor() domain.SourceDescriptor {
	return domain.SourceDescriptor{
		Name:             providerName,
		Priority:         c.priority,
		SupportsDaily:    true,
		SupportsRealtime: true,
	}
}

// FetchDaily retrieves the most recent daily bars for a symbol.
func (c *Client) FetchDaily(ctx context.Context, symbol string, days int) ([]domain.PriceBar, error) {
	op := "FetchDaily"
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidSymbol, err), op)
	}
	if days <= 0 {
		days = defaultLookback
	}

	url := fmt.Sprintf("%s/appstock/app/fqkline/get?param=%s,day,,,%d,qfq", c.klineURL, sym, days)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars, err := parseKlineResponse(body, sym)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
	}

	c.logger.Debug(ctx, "tencent klines fetched", map[string]interface{}{
		"symbol": sym, "requested": days, "bars": len(bars),
	})
	return bars, nil
}

// FetchLatestPrice retrieves the current traded price for a symbol.
func (c *Client) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	op := "FetchLatestPrice"
	sym, err := normalizeSymbol(symbol)
	if err != nil {
		return 0, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrInvalidSymbol, err), op)
	}

	body, err := c.get(ctx, fmt.Sprintf("%s/q=%s", c.quoteURL, sym))
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	price, err := parseQuotePayload(string(body))
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	c.logger.Debug(ctx, "tencent quote fetched", map[string]interface{}{"symbol": sym, "price": price})
	return price, nil
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

// klineEnvelope mirrors the fqkline response. Bars live under
// data.<symbol>.qfqday for adjusted series, or data.<symbol>.day for series
// without adjustments (indexes).
type klineEnvelope struct {
	Code int                        `json:"code"`
	Msg  string                     `json:"msg"`
	Data map[string]json.RawMessage `json:"data"`
}

type klineSeries struct {
	QfqDay [][]json.RawMessage `json:"qfqday"`
	Day    [][]json.RawMessage `json:"day"`
}

// parseKlineResponse translates a fqkline payload for one symbol. Each row is
// [date, open, close, high, low, volume, ...]; the vendor emits values either
// quoted or bare, and appends bookkeeping elements on dividend days.
func parseKlineResponse(body []byte, symbol string) ([]domain.PriceBar, error) {
	var envelope klineEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: decoding kline response: %w", ports.ErrMalformedResponse, err)
	}
	if envelope.Code != 0 {
		return nil, fmt.Errorf("%w: provider code %d (%s)", ports.ErrInvalidSymbol, envelope.Code, envelope.Msg)
	}
	raw, ok := envelope.Data[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: provider reports no data for symbol", ports.ErrInvalidSymbol)
	}

	var series klineSeries
	if err := json.Unmarshal(raw, &series); err != nil {
		return nil, fmt.Errorf("%w: decoding kline series: %w", ports.ErrMalformedResponse, err)
	}
	rows := series.QfqDay
	if len(rows) == 0 {
		rows = series.Day
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty kline payload", ports.ErrMalformedResponse)
	}

	bars := make([]domain.PriceBar, 0, len(rows))
	for i, row := range rows {
		bar, err := translateRow(row)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d: %w", ports.ErrMalformedResponse, i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func translateRow(row []json.RawMessage) (domain.PriceBar, error) {
	if len(row) < 6 {
		return domain.PriceBar{}, fmt.Errorf("row has only %d fields", len(row))
	}
	date, err := time.Parse("2006-01-02", scalar(row[0]))
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing date %q: %w", scalar(row[0]), err)
	}
	open, err := strconv.ParseFloat(scalar(row[1]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing open price %q: %w", scalar(row[1]), err)
	}
	closePrice, err := strconv.ParseFloat(scalar(row[2]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing close price %q: %w", scalar(row[2]), err)
	}
	high, err := strconv.ParseFloat(scalar(row[3]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing high price %q: %w", scalar(row[3]), err)
	}
	low, err := strconv.ParseFloat(scalar(row[4]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing low price %q: %w", scalar(row[4]), err)
	}
	volume, err := strconv.ParseFloat(scalar(row[5]), 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing volume %q: %w", scalar(row[5]), err)
	}
	return domain.PriceBar{Date: date, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}, nil
}

// scalar returns the value of a JSON element the vendor emits either quoted
// or bare.
func scalar(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseQuotePayload extracts the current price from a qt quote response,
// e.g. `v_sh600000="1~Name~600000~10.50~...";` (price at index 3).
func parseQuotePayload(text string) (float64, error) {
	first := strings.Index(text, `"`)
	last := strings.LastIndex(text, `"`)
	if first < 0 || last <= first {
		return 0, fmt.Errorf("%w: quote payload has no quoted body", ports.ErrMalformedResponse)
	}
	parts := strings.Split(text[first+1:last], "~")
	if len(parts) < 4 {
		return 0, fmt.Errorf("%w: provider reports no quote for symbol", ports.ErrInvalidSymbol)
	}
	price, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parsing current price %q: %w", ports.ErrMalformedResponse, parts[3], err)
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive current price %v", ports.ErrMalformedResponse, price)
	}
	return price, nil
}

// normalizeSymbol accepts "sh600000", "sz000001" or a bare 6-digit code and
// returns the prefixed lowercase form. Bare codes starting with 6 map to
// Shanghai, the rest to Shenzhen; index codes must arrive prefixed.
func normalizeSymbol(symbol string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(symbol))
	if len(s) == 8 && (strings.HasPrefix(s, "sh") || strings.HasPrefix(s, "sz")) && isDigits(s[2:]) {
		return s, nil
	}
	if len(s) == 6 && isDigits(s) {
		if s[0] == '6' {
			return "sh" + s, nil
		}
		return "sz" + s, nil
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
