// Package model defines the core domain types shared across the velasa
// trading service. All monetary values use shopspring/decimal, never
// float64 for money. Share quantities are whole numbers (no fractional
// shares, no shorts).
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Order kinds accepted by the trade endpoint.
const (
	KindMarket    = "market"
	KindLimit     = "limit"
	KindStop      = "stop"
	KindStopLimit = "stop_limit"
)

// Order validity policies.
const (
	ValidityDay = "day"
	ValidityGTC = "gtc"
)

// Transaction is an immutable record of a filled trade.
// Once created, these are never modified or deleted.
type Transaction struct {
	ID       string          `json:"id" db:"id"`
	Username string          `json:"username" db:"username"`
	Symbol   string          `json:"symbol" db:"symbol"`
	Side     string          `json:"side" db:"side"` // "buy" or "sell"
	Quantity int64           `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"` // fill price
	// EntryPrice is the blended average cost basis at fill time. For a
	// buy it equals the fill price; for a sell it is the volume-weighted
	// average price of all prior buys of the same symbol.
	EntryPrice decimal.Decimal `json:"entry_price" db:"entry_price"`
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
}

// PendingOrder is a conditional order awaiting trigger, cancellation, or
// expiry. Never mutated after creation, only removed.
type PendingOrder struct {
	ID           string           `json:"id" db:"id"`
	Username     string           `json:"username" db:"username"`
	Symbol       string           `json:"symbol" db:"symbol"`
	Side         string           `json:"side" db:"side"`
	Kind         string           `json:"kind" db:"kind"` // "limit", "stop", "stop_limit"
	Quantity     int64            `json:"quantity" db:"quantity"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty" db:"limit_price"`
	TriggerPrice *decimal.Decimal `json:"trigger_price,omitempty" db:"trigger_price"`
	Validity     string           `json:"validity" db:"validity"` // "day" or "gtc"
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	ExpiresAt    *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
}

// Expired reports whether the order has passed its expiry. GTC orders
// never expire.
func (o *PendingOrder) Expired(now time.Time) bool {
	return o.ExpiresAt != nil && !now.Before(*o.ExpiresAt)
}

// EndOfDay returns the first instant after t's calendar day, which is
// the expiry assigned to "day" validity orders.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, t.Location())
}

// Position is a mark-to-market view of one holding. Quantity is always
// positive; a symbol with zero shares has no Position at all.
type Position struct {
	Symbol        string          `json:"symbol"`
	Quantity      int64           `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	CurrentPrice  decimal.Decimal `json:"current_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// PortfolioMetrics aggregates valuation and performance figures for one
// account. Valuation can transiently understate true worth when the
// price feed is degraded (failed symbols contribute zero).
type PortfolioMetrics struct {
	TotalValue        decimal.Decimal `json:"total_value"`
	Cash              decimal.Decimal `json:"cash"`
	InvestedValue     decimal.Decimal `json:"invested_value"`
	TotalReturnPct    decimal.Decimal `json:"total_return_pct"`
	DailyReturnPct    decimal.Decimal `json:"daily_return_pct"`
	PositionCount     int             `json:"position_count"`
	PendingOrderCount int             `json:"pending_order_count"`
}

// Quote is a point-in-time price observation from the oracle.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	AsOf   time.Time       `json:"as_of"`
}

// Candle is one OHLCV bar of a historical series.
type Candle struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// InstrumentInfo carries display metadata for a symbol. Fields may be
// empty when the provider has no data; callers must tolerate that.
type InstrumentInfo struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name"`
	Sector    string          `json:"sector"`
	Price     decimal.Decimal `json:"price"`
	ChangePct decimal.Decimal `json:"change_pct"`
	Volume    int64           `json:"volume"`
}
