package service

import (
	"context"
	"sync"

	"github.com/coachpo/orderdesk/internal/model"
	"github.com/coachpo/orderdesk/internal/observability"
)

// InfoCache caches the trading rules for the configured symbol. Rules change
// rarely, so one fetch per process is enough; Refresh forces a reload.
type InfoCache struct {
	mu       sync.Mutex
	exchange Exchange
	symbol   string
	info     *model.SymbolInfo
}

// NewInfoCache returns an empty cache for symbol.
func NewInfoCache(exchange Exchange, symbol string) *InfoCache {
	return &InfoCache{exchange: exchange, symbol: symbol}
}

// Get returns the cached rules, fetching them on first use.
func (c *InfoCache) Get(ctx context.Context) (model.SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info != nil {
		return *c.info, nil
	}
	return c.refreshLocked(ctx)
}

// Refresh drops the cached rules and fetches them again.
func (c *InfoCache) Refresh(ctx context.Context) (model.SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

func (c *InfoCache) refreshLocked(ctx context.Context) (model.SymbolInfo, error) {
	info, err := c.exchange.SymbolInfo(ctx, c.symbol)
	if err != nil {
		return model.SymbolInfo{}, err
	}
	c.info = &info
	observability.Log().Debug("symbol rules loaded",
		observability.F("symbol", info.Symbol),
		observability.F("status", info.Status))
	return info, nil
}
