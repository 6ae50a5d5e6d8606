package sina

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
	providerName = "sina"

	defaultKlineBaseURL = "https://quotes.sina.cn/cn/api/jsonp_v2.php"
	defaultQuoteBaseURL = "https://hq.sinajs.cn"
	defaultLookback     = 250

	// Sina rejects requests without browser-like headers.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	referer   = "https://finance.sina.com.cn"
)

// Client implements ports.QuoteProvider against the Sina quote APIs.
// Daily klines come from the JSONP kline service (scale 240 = one bar per
// day); latest prices come from the hq list endpoint.
type Client struct {
	httpClient *http.Client
	logger     ports.Logger
	klineURL   string
	quoteURL   string
	priority   int
}

// Config holds configuration specific to the Sina adapter.
type Config struct {
	Logger       ports.Logger
	HTTPClient   *http.Client // optional, defaults to a 10s timeout client
	KlineBaseURL string       // optional override, used by tests
	QuoteBaseURL string       // optional override, used by tests
	Priority     int          // chain position
}

// New creates a new Sina quote adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for sina client")
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

	url := fmt.Sprintf("%s/var__%s_240/CN_MarketDataService.getKLineData?symbol=%s&scale=240&ma=no&datalen=%d",
		c.klineURL, sym, sym, days)
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	bars, err := parseKlinePayload(body)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, c.handleError(ctx, fmt.Errorf("%w: %w", ports.ErrMalformedResponse, err), op)
	}

	c.logger.Debug(ctx, "sina klines fetched", map[string]interface{}{
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

	body, err := c.get(ctx, fmt.Sprintf("%s/list=%s", c.quoteURL, sym))
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}
	price, err := parseQuotePayload(string(body))
	if err != nil {
		return 0, c.handleError(ctx, err, op)
	}

	c.logger.Debug(ctx, "sina quote fetched", map[string]interface{}{"symbol": sym, "price": price})
	return price, nil
}

// get performs a GET with the headers Sina requires and returns the body.
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
		// Already classified during parsing.
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrProviderUnavailable, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// sinaBar is one entry of the kline payload. All values arrive as strings.
type sinaBar struct {
	Day    string `json:"day"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}

// parseKlinePayload strips the JSONP wrapper (everything between the first
// "(" and the last ")") and translates each entry into a domain bar.
func parseKlinePayload(body []byte) ([]domain.PriceBar, error) {
	text := string(body)
	start := strings.Index(text, "(")
	end := strings.LastIndex(text, ")")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: response is not a JSONP payload", ports.ErrMalformedResponse)
	}

	var raw []sinaBar
	if err := json.Unmarshal([]byte(text[start+1:end]), &raw); err != nil {
		return nil, fmt.Errorf("%w: decoding kline payload: %w", ports.ErrMalformedResponse, err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty kline payload", ports.ErrMalformedResponse)
	}

	bars := make([]domain.PriceBar, 0, len(raw))
	for i, rb := range raw {
		bar, err := translateBar(rb)
		if err != nil {
			return nil, fmt.Errorf("%w: kline %d: %w", ports.ErrMalformedResponse, i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func translateBar(rb sinaBar) (domain.PriceBar, error) {
	date, err := time.Parse("2006-01-02", rb.Day)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing day %q: %w", rb.Day, err)
	}
	open, err := strconv.ParseFloat(rb.Open, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing open price %q: %w", rb.Open, err)
	}
	high, err := strconv.ParseFloat(rb.High, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing high price %q: %w", rb.High, err)
	}
	low, err := strconv.ParseFloat(rb.Low, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing low price %q: %w", rb.Low, err)
	}
	closePrice, err := strconv.ParseFloat(rb.Close, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing close price %q: %w", rb.Close, err)
	}
	volume, err := strconv.ParseFloat(rb.Volume, 64)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("parsing volume %q: %w", rb.Volume, err)
	}
	return domain.PriceBar{Date: date, Open: open, High: high, Low: low, Close: closePrice, Volume: volume}, nil
}

// parseQuotePayload extracts the current price from an hq list response,
// e.g. `var hq_str_sh600000="Name,open,prevClose,current,...";`.
func parseQuotePayload(text string) (float64, error) {
	first := strings.Index(text, `"`)
	last := strings.LastIndex(text, `"`)
	if first < 0 || last <= first {
		return 0, fmt.Errorf("%w: quote payload has no quoted body", ports.ErrMalformedResponse)
	}
	inner := text[first+1 : last]
	if inner == "" {
		return 0, fmt.Errorf("%w: provider reports no quote for symbol", ports.ErrInvalidSymbol)
	}
	parts := strings.Split(inner, ",")
	if len(parts) < 4 {
		return 0, fmt.Errorf("%w: quote body has only %d fields", ports.ErrMalformedResponse, len(parts))
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
