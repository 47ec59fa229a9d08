package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// CachedStore wraps a primary Store with a Redis read-through cache for
// the hot valuation reads (cash and positions). Writes go to the
// primary and invalidate the cache. Transaction and pending-order reads
// pass through; they are history pages, not valuation hot paths.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{primary: primary, rdb: rdb, ttl: ttl}
}

// --- Writes (primary first, then invalidate) ---

func (s *CachedStore) EnsureAccount(ctx context.Context, username string, startingCash decimal.Decimal) error {
	if err := s.primary.EnsureAccount(ctx, username, startingCash); err != nil {
		return err
	}
	s.invalidate(ctx, username)
	return nil
}

func (s *CachedStore) DeleteAccount(ctx context.Context, username string) error {
	if err := s.primary.DeleteAccount(ctx, username); err != nil {
		return err
	}
	s.invalidate(ctx, username)
	return nil
}

func (s *CachedStore) ApplyFill(ctx context.Context, username string, tx model.Transaction, newCash decimal.Decimal, newQty int64) error {
	if err := s.primary.ApplyFill(ctx, username, tx, newCash, newQty); err != nil {
		return err
	}
	s.invalidate(ctx, username)
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCash(ctx context.Context, username string) (decimal.Decimal, error) {
	if v, err := s.rdb.Get(ctx, cashKey(username)).Result(); err == nil {
		if cash, err := decimal.NewFromString(v); err == nil {
			return cash, nil
		}
	}

	cash, err := s.primary.GetCash(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	s.rdb.Set(ctx, cashKey(username), cash.String(), s.ttl)
	return cash, nil
}

func (s *CachedStore) GetPositions(ctx context.Context, username string) (map[string]int64, error) {
	if data, err := s.rdb.Get(ctx, positionsKey(username)).Bytes(); err == nil {
		var positions map[string]int64
		if json.Unmarshal(data, &positions) == nil {
			return positions, nil
		}
	}

	positions, err := s.primary.GetPositions(ctx, username)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(positions); err == nil {
		s.rdb.Set(ctx, positionsKey(username), data, s.ttl)
	}
	return positions, nil
}

// --- Passthrough ---

func (s *CachedStore) AccountCreatedAt(ctx context.Context, username string) (time.Time, error) {
	return s.primary.AccountCreatedAt(ctx, username)
}

func (s *CachedStore) ListAccounts(ctx context.Context) ([]string, error) {
	return s.primary.ListAccounts(ctx)
}

func (s *CachedStore) Transactions(ctx context.Context, username string) ([]model.Transaction, error) {
	return s.primary.Transactions(ctx, username)
}

func (s *CachedStore) InsertPendingOrder(ctx context.Context, order *model.PendingOrder) error {
	return s.primary.InsertPendingOrder(ctx, order)
}

func (s *CachedStore) PendingOrders(ctx context.Context, username string) ([]model.PendingOrder, error) {
	return s.primary.PendingOrders(ctx, username)
}

func (s *CachedStore) RemovePendingOrder(ctx context.Context, username, orderID string) error {
	return s.primary.RemovePendingOrder(ctx, username, orderID)
}

// --- Cache helpers ---

func (s *CachedStore) invalidate(ctx context.Context, username string) {
	s.rdb.Del(ctx, cashKey(username), positionsKey(username))
}

func cashKey(username string) string      { return fmt.Sprintf("cash:%s", username) }
func positionsKey(username string) string { return fmt.Sprintf("positions:%s", username) }
