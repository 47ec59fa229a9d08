package store

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]*memLedger
}

type memLedger struct {
	cash      decimal.Decimal
	createdAt time.Time
	positions map[string]int64
	txs       []model.Transaction
	orders    []model.PendingOrder
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]*memLedger)}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, username string, startingCash decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; ok {
		return nil
	}
	s.accounts[username] = &memLedger{
		cash:      startingCash,
		createdAt: time.Now().UTC(),
		positions: make(map[string]int64),
	}
	return nil
}

func (s *MemoryStore) AccountCreatedAt(_ context.Context, username string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.accounts[username]
	if !ok {
		return time.Time{}, ErrAccountNotFound
	}
	return l.createdAt, nil
}

func (s *MemoryStore) DeleteAccount(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[username]; !ok {
		return ErrAccountNotFound
	}
	delete(s.accounts, username)
	return nil
}

func (s *MemoryStore) ListAccounts(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.accounts))
	for name := range s.accounts {
		names = append(names, name)
	}
	return names, nil
}

func (s *MemoryStore) GetCash(_ context.Context, username string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.accounts[username]
	if !ok {
		return decimal.Zero, ErrAccountNotFound
	}
	return l.cash, nil
}

func (s *MemoryStore) GetPositions(_ context.Context, username string) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	// Copy to avoid external mutation.
	positions := make(map[string]int64, len(l.positions))
	for sym, qty := range l.positions {
		positions[sym] = qty
	}
	return positions, nil
}

func (s *MemoryStore) Transactions(_ context.Context, username string) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	txs := make([]model.Transaction, len(l.txs))
	copy(txs, l.txs)
	return txs, nil
}

func (s *MemoryStore) ApplyFill(_ context.Context, username string, tx model.Transaction, newCash decimal.Decimal, newQty int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	l.cash = newCash
	if newQty == 0 {
		delete(l.positions, tx.Symbol)
	} else {
		l.positions[tx.Symbol] = newQty
	}
	l.txs = append(l.txs, tx)
	return nil
}

func (s *MemoryStore) InsertPendingOrder(_ context.Context, order *model.PendingOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.accounts[order.Username]
	if !ok {
		return ErrAccountNotFound
	}
	l.orders = append(l.orders, *order)
	return nil
}

func (s *MemoryStore) PendingOrders(_ context.Context, username string) ([]model.PendingOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.accounts[username]
	if !ok {
		return nil, ErrAccountNotFound
	}
	orders := make([]model.PendingOrder, len(l.orders))
	copy(orders, l.orders)
	return orders, nil
}

func (s *MemoryStore) RemovePendingOrder(_ context.Context, username, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.accounts[username]
	if !ok {
		return ErrAccountNotFound
	}
	for i, o := range l.orders {
		if o.ID == orderID {
			l.orders = append(l.orders[:i], l.orders[i+1:]...)
			return nil
		}
	}
	return ErrOrderNotFound
}
