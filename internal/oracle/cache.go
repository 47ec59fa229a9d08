package oracle

import (
	"context"
	"sync"
	"time"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// CachedOracle wraps a provider with an in-process TTL cache on quotes
// and instrument info. Historical series pass through uncached; they
// are chart-page reads, not hot-path valuation reads.
type CachedOracle struct {
	next Oracle
	ttl  time.Duration

	mu     sync.RWMutex
	quotes map[string]cachedQuote
	infos  map[string]cachedInfo
}

type cachedQuote struct {
	quote   model.Quote
	fetched time.Time
}

type cachedInfo struct {
	info    model.InstrumentInfo
	fetched time.Time
}

// NewCachedOracle wraps next with a TTL quote cache.
func NewCachedOracle(next Oracle, ttl time.Duration) *CachedOracle {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedOracle{
		next:   next,
		ttl:    ttl,
		quotes: make(map[string]cachedQuote),
		infos:  make(map[string]cachedInfo),
	}
}

func (c *CachedOracle) CurrentPrice(ctx context.Context, symbol string) (model.Quote, error) {
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return model.Quote{}, err
	}

	c.mu.RLock()
	if cq, ok := c.quotes[symbol]; ok && time.Since(cq.fetched) < c.ttl {
		c.mu.RUnlock()
		return cq.quote, nil
	}
	c.mu.RUnlock()

	quote, err := c.next.CurrentPrice(ctx, symbol)
	if err != nil {
		return model.Quote{}, err
	}

	c.mu.Lock()
	c.quotes[symbol] = cachedQuote{quote: quote, fetched: time.Now()}
	c.mu.Unlock()

	return quote, nil
}

func (c *CachedOracle) HistoricalSeries(ctx context.Context, symbol, period string) ([]model.Candle, error) {
	return c.next.HistoricalSeries(ctx, symbol, period)
}

func (c *CachedOracle) InstrumentInfo(ctx context.Context, symbol string) (model.InstrumentInfo, error) {
	symbol, err := model.NormalizeSymbol(symbol)
	if err != nil {
		return model.InstrumentInfo{}, err
	}

	c.mu.RLock()
	if ci, ok := c.infos[symbol]; ok && time.Since(ci.fetched) < c.ttl {
		c.mu.RUnlock()
		return ci.info, nil
	}
	c.mu.RUnlock()

	info, err := c.next.InstrumentInfo(ctx, symbol)
	if err != nil {
		return model.InstrumentInfo{}, err
	}

	c.mu.Lock()
	c.infos[symbol] = cachedInfo{info: info, fetched: time.Now()}
	c.mu.Unlock()

	return info, nil
}
