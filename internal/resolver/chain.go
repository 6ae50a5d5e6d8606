package resolver

import (
	"fmt"
	"net/http"
	"time"

	"equitrend/internal/adapters/eastmoney"
	"equitrend/internal/adapters/sina"
	"equitrend/internal/adapters/tencent"
	"equitrend/internal/ports"
)

// ChainConfig assembles a provider chain by adapter name.
type ChainConfig struct {
	Logger         ports.Logger
	Providers      []string // adapter names in failover order
	AttemptTimeout time.Duration
	HTTPClient     *http.Client // optional, shared by all adapters
}

// BuildChain constructs the named quote adapters, assigns priorities by
// chain position, and registers them on a new manager.
func BuildChain(cfg ChainConfig) (*Manager, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("provider chain must name at least one adapter")
	}
	m, err := New(Config{Logger: cfg.Logger, AttemptTimeout: cfg.AttemptTimeout})
	if err != nil {
		return nil, err
	}
	for i, name := range cfg.Providers {
		var (
			p    ports.QuoteProvider
			perr error
		)
		switch name {
		case "sina":
			p, perr = sina.New(sina.Config{Logger: cfg.Logger, HTTPClient: cfg.HTTPClient, Priority: i})
		case "eastmoney":
			p, perr = eastmoney.New(eastmoney.Config{Logger: cfg.Logger, HTTPClient: cfg.HTTPClient, Priority: i})
		case "tencent":
			p, perr = tencent.New(tencent.Config{Logger: cfg.Logger, HTTPClient: cfg.HTTPClient, Priority: i})
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
		if perr != nil {
			return nil, fmt.Errorf("building %s provider: %w", name, perr)
		}
		m.Register(p)
	}
	return m, nil
}
