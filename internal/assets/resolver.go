// Package assets resolves company display names for tickers entered
// without one.
package assets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"

	"findash/internal/backend"
)

// CompanyChecker is the backend company check used as the first lookup.
type CompanyChecker interface {
	CheckCompany(ctx context.Context, ticker string) (*backend.CompanyInfo, error)
}

// AssetGetter is the Alpaca trading API subset used as the fallback lookup.
type AssetGetter interface {
	GetAsset(symbol string) (*alpaca.Asset, error)
}

// Resolver looks names up in the analytics API, then Alpaca, and caches
// every hit. Either source may be nil.
type Resolver struct {
	backend CompanyChecker
	alpaca  AssetGetter
	log     *slog.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver.
func NewResolver(b CompanyChecker, a AssetGetter, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{backend: b, alpaca: a, log: log, cache: make(map[string]string)}
}

// NewAlpacaClient builds the trading API client used for asset lookups.
func NewAlpacaClient(apiKey, apiSecret, baseURL string) *alpaca.Client {
	return alpaca.NewClient(alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
		BaseURL:   baseURL,
	})
}

// CompanyName returns the display name for ticker.
func (r *Resolver) CompanyName(ctx context.Context, ticker string) (string, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))

	r.mu.Lock()
	name, ok := r.cache[ticker]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	if r.backend != nil {
		info, err := r.backend.CheckCompany(ctx, ticker)
		if err == nil && info.Name != "" {
			return r.store(ticker, info.Name), nil
		}
		if err != nil {
			r.log.Debug("backend name lookup failed", "ticker", ticker, "error", err)
		}
	}
	if r.alpaca != nil {
		asset, err := r.alpaca.GetAsset(ticker)
		if err == nil && asset.Name != "" {
			return r.store(ticker, asset.Name), nil
		}
		if err != nil {
			r.log.Debug("alpaca asset lookup failed", "ticker", ticker, "error", err)
		}
	}
	return "", fmt.Errorf("no name found for %s", ticker)
}

func (r *Resolver) store(ticker, name string) string {
	r.mu.Lock()
	r.cache[ticker] = name
	r.mu.Unlock()
	return name
}
