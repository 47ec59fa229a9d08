package oracle

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// StaticOracle serves prices from a fixed in-memory table. Used for
// tests and offline development; symbols without an entry behave like
// a feed outage.
type StaticOracle struct {
	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
	series map[string][]model.Candle
	infos  map[string]model.InstrumentInfo
	// Err, when set, makes every call fail. Simulates a provider outage.
	Err error
}

// NewStaticOracle creates an empty static oracle.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{
		quotes: make(map[string]decimal.Decimal),
		series: make(map[string][]model.Candle),
		infos:  make(map[string]model.InstrumentInfo),
	}
}

// SetPrice sets or replaces the quote for a symbol.
func (o *StaticOracle) SetPrice(symbol string, price decimal.Decimal) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.quotes[symbol] = price
}

// RemovePrice deletes a symbol, simulating missing feed data.
func (o *StaticOracle) RemovePrice(symbol string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.quotes, symbol)
}

// SetSeries sets the historical series for a symbol.
func (o *StaticOracle) SetSeries(symbol string, candles []model.Candle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.series[symbol] = candles
}

// SetInfo sets the instrument metadata for a symbol.
func (o *StaticOracle) SetInfo(symbol string, info model.InstrumentInfo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.infos[symbol] = info
}

func (o *StaticOracle) CurrentPrice(_ context.Context, symbol string) (model.Quote, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.Err != nil {
		return model.Quote{}, o.Err
	}
	price, ok := o.quotes[symbol]
	if !ok {
		return model.Quote{}, ErrPriceNotFound
	}
	return model.Quote{Symbol: symbol, Price: price}, nil
}

func (o *StaticOracle) HistoricalSeries(_ context.Context, symbol, _ string) ([]model.Candle, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.Err != nil {
		return nil, o.Err
	}
	return o.series[symbol], nil
}

func (o *StaticOracle) InstrumentInfo(_ context.Context, symbol string) (model.InstrumentInfo, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.Err != nil {
		return model.InstrumentInfo{}, o.Err
	}
	info, ok := o.infos[symbol]
	if !ok {
		return model.InstrumentInfo{}, ErrNoData
	}
	return info, nil
}
