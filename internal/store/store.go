// Package store defines the durable per-account ledger storage for the
// velasa trading service. Implementations include PostgreSQL (source of
// truth), SQLite (single-node durable option), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// ErrAccountNotFound is returned for operations on an account whose
// ledger was never created.
var ErrAccountNotFound = errors.New("store: account not found")

// ErrOrderNotFound is returned when a pending order id does not exist
// for the account.
var ErrOrderNotFound = errors.New("store: pending order not found")

// Store is the ledger persistence interface. The portfolio engine holds
// a per-account lock around every mutation; the store's only atomicity
// obligation is that ApplyFill commits its triple as a unit.
type Store interface {
	// --- Account lifecycle ---

	// EnsureAccount creates the ledger with the starting cash deposit if
	// it does not exist yet. Idempotent.
	EnsureAccount(ctx context.Context, username string, startingCash decimal.Decimal) error

	// AccountCreatedAt returns the ledger creation time.
	AccountCreatedAt(ctx context.Context, username string) (time.Time, error)

	// DeleteAccount erases the whole ledger: cash, positions,
	// transactions, and pending orders.
	DeleteAccount(ctx context.Context, username string) error

	// ListAccounts returns every username with a ledger. Used by the
	// pending-order sweeper.
	ListAccounts(ctx context.Context) ([]string, error)

	// --- Ledger reads ---

	// GetCash returns the current cash balance.
	GetCash(ctx context.Context, username string) (decimal.Decimal, error)

	// GetPositions returns symbol to held quantity. Entries are always
	// positive; a flat symbol is absent.
	GetPositions(ctx context.Context, username string) (map[string]int64, error)

	// Transactions returns the full transaction log in insertion order.
	Transactions(ctx context.Context, username string) ([]model.Transaction, error)

	// --- Ledger mutation ---

	// ApplyFill atomically applies a market fill: sets cash to newCash,
	// sets the position for tx.Symbol to newQty (removing it at zero),
	// and appends tx. Either all three commit or none do.
	ApplyFill(ctx context.Context, username string, tx model.Transaction, newCash decimal.Decimal, newQty int64) error

	// --- Pending orders ---

	// InsertPendingOrder appends a conditional order.
	InsertPendingOrder(ctx context.Context, order *model.PendingOrder) error

	// PendingOrders returns every stored order for the account,
	// including expired ones, in creation order. Expiry filtering is
	// engine policy, not storage policy.
	PendingOrders(ctx context.Context, username string) ([]model.PendingOrder, error)

	// RemovePendingOrder deletes one order by id.
	RemovePendingOrder(ctx context.Context, username, orderID string) error
}
