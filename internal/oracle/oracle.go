// Package oracle provides read-only market data: current quotes,
// historical OHLCV series, and instrument metadata. Providers are
// external and unreliable; every call can fail and callers are expected
// to degrade rather than crash. All requests carry a bounded timeout.
package oracle

import (
	"context"
	"errors"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

var (
	// ErrPriceNotFound means the provider responded but had no usable
	// price for the symbol.
	ErrPriceNotFound = errors.New("oracle: price not found")

	// ErrNoData means the provider had no series or metadata for the
	// symbol.
	ErrNoData = errors.New("oracle: no data")

	// ErrRateLimited means the provider is throttling us. Treated the
	// same as any other fetch failure by the engine.
	ErrRateLimited = errors.New("oracle: rate limited")
)

// Oracle is the market data interface consumed by the portfolio engine.
type Oracle interface {
	// CurrentPrice returns the latest quote for a symbol.
	CurrentPrice(ctx context.Context, symbol string) (model.Quote, error)

	// HistoricalSeries returns OHLCV bars for the period (e.g. "1mo",
	// "1y"). An empty slice with a nil error is a valid degraded result.
	HistoricalSeries(ctx context.Context, symbol, period string) ([]model.Candle, error)

	// InstrumentInfo returns display metadata. Missing fields are left
	// zero rather than reported as errors.
	InstrumentInfo(ctx context.Context, symbol string) (model.InstrumentInfo, error)
}
