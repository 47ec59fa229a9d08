// Package risk enforces share-exposure limits on trade admission. Paper
// accounts get generous caps; the point is stopping fat-finger orders
// and runaway conditional fills, not margin math.
package risk

import "errors"

var (
	// ErrPerSymbolLimitExceeded is returned when a trade would push one
	// symbol's position beyond the per-symbol maximum.
	ErrPerSymbolLimitExceeded = errors.New("risk: per-symbol position limit exceeded")

	// ErrTotalLimitExceeded is returned when a trade would push the
	// aggregate share count across all positions beyond the account
	// maximum.
	ErrTotalLimitExceeded = errors.New("risk: total exposure limit exceeded")
)

// Limiter enforces per-symbol and aggregate position limits. The zero
// value disables all checks.
type Limiter struct {
	// MaxPerSymbol is the maximum shares held in any single symbol.
	// Zero disables the check.
	MaxPerSymbol int64

	// MaxTotal is the maximum aggregate share count across every
	// position. Zero disables the check.
	MaxTotal int64
}

// NewLimiter creates a limiter with the given caps.
func NewLimiter(maxPerSymbol, maxTotal int64) *Limiter {
	return &Limiter{MaxPerSymbol: maxPerSymbol, MaxTotal: maxTotal}
}

// CheckLimit validates whether a quantity delta for symbol respects the
// limits, given the account's current positions. Sells (negative delta)
// always pass; positions can only shrink.
func (l *Limiter) CheckLimit(symbol string, qtyDelta int64, positions map[string]int64) error {
	if l == nil || qtyDelta <= 0 {
		return nil
	}

	newQty := positions[symbol] + qtyDelta
	if l.MaxPerSymbol > 0 && newQty > l.MaxPerSymbol {
		return ErrPerSymbolLimitExceeded
	}

	if l.MaxTotal > 0 {
		total := newQty
		for sym, qty := range positions {
			if sym == symbol {
				continue // already counted via newQty above
			}
			total += qty
		}
		if total > l.MaxTotal {
			return ErrTotalLimitExceeded
		}
	}
	return nil
}
