package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// pgSchema is executed at startup. Monetary columns are NUMERIC for
// exact decimal arithmetic.
const pgSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	username   TEXT PRIMARY KEY,
	cash       NUMERIC NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	username TEXT NOT NULL REFERENCES accounts(username) ON DELETE CASCADE,
	symbol   TEXT NOT NULL,
	quantity BIGINT NOT NULL,
	PRIMARY KEY (username, symbol)
);
CREATE TABLE IF NOT EXISTS transactions (
	seq         BIGSERIAL PRIMARY KEY,
	id          TEXT NOT NULL UNIQUE,
	username    TEXT NOT NULL REFERENCES accounts(username) ON DELETE CASCADE,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    BIGINT NOT NULL,
	price       NUMERIC NOT NULL,
	entry_price NUMERIC NOT NULL,
	timestamp   TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_orders (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL REFERENCES accounts(username) ON DELETE CASCADE,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	quantity      BIGINT NOT NULL,
	limit_price   NUMERIC,
	trigger_price NUMERIC,
	validity      TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	expires_at    TIMESTAMPTZ
);
`

// PostgresStore implements Store using PostgreSQL as the source of truth.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed store and ensures the
// schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, username string, startingCash decimal.Decimal) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (username, cash, created_at)
		 VALUES ($1, $2::NUMERIC, $3)
		 ON CONFLICT (username) DO NOTHING`,
		username, startingCash.String(), time.Now().UTC(),
	)
	return err
}

func (s *PostgresStore) AccountCreatedAt(ctx context.Context, username string) (time.Time, error) {
	var createdAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT created_at FROM accounts WHERE username = $1`, username).
		Scan(&createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrAccountNotFound
	}
	return createdAt, err
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, username string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM accounts WHERE username = $1`, username)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT username FROM accounts ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) GetCash(ctx context.Context, username string) (decimal.Decimal, error) {
	var cashS string
	err := s.pool.QueryRow(ctx,
		`SELECT cash::TEXT FROM accounts WHERE username = $1`, username).
		Scan(&cashS)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	cash, err := decimal.NewFromString(cashS)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse cash for %s: %w", username, err)
	}
	return cash, nil
}

func (s *PostgresStore) GetPositions(ctx context.Context, username string) (map[string]int64, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT symbol, quantity FROM positions WHERE username = $1`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	positions := make(map[string]int64)
	for rows.Next() {
		var symbol string
		var qty int64
		if err := rows.Scan(&symbol, &qty); err != nil {
			return nil, err
		}
		positions[symbol] = qty
	}
	return positions, rows.Err()
}

func (s *PostgresStore) Transactions(ctx context.Context, username string) ([]model.Transaction, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, symbol, side, quantity,
		        price::TEXT, entry_price::TEXT, timestamp
		 FROM transactions WHERE username = $1 ORDER BY seq`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var tx model.Transaction
		var priceS, entryS string
		if err := rows.Scan(&tx.ID, &tx.Username, &tx.Symbol, &tx.Side,
			&tx.Quantity, &priceS, &entryS, &tx.Timestamp); err != nil {
			return nil, err
		}
		tx.Price, _ = decimal.NewFromString(priceS)
		tx.EntryPrice, _ = decimal.NewFromString(entryS)
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// ApplyFill commits the cash/position/transaction triple in one
// database transaction.
func (s *PostgresStore) ApplyFill(ctx context.Context, username string, tx model.Transaction, newCash decimal.Decimal, newQty int64) error {
	return pgx.BeginFunc(ctx, s.pool, func(dbtx pgx.Tx) error {
		tag, err := dbtx.Exec(ctx,
			`UPDATE accounts SET cash = $2::NUMERIC WHERE username = $1`,
			username, newCash.String())
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAccountNotFound
		}

		if newQty == 0 {
			_, err = dbtx.Exec(ctx,
				`DELETE FROM positions WHERE username = $1 AND symbol = $2`,
				username, tx.Symbol)
		} else {
			_, err = dbtx.Exec(ctx,
				`INSERT INTO positions (username, symbol, quantity)
				 VALUES ($1, $2, $3)
				 ON CONFLICT (username, symbol) DO UPDATE SET quantity = $3`,
				username, tx.Symbol, newQty)
		}
		if err != nil {
			return err
		}

		_, err = dbtx.Exec(ctx,
			`INSERT INTO transactions (id, username, symbol, side, quantity, price, entry_price, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8)`,
			tx.ID, tx.Username, tx.Symbol, tx.Side, tx.Quantity,
			tx.Price.String(), tx.EntryPrice.String(), tx.Timestamp)
		return err
	})
}

func (s *PostgresStore) InsertPendingOrder(ctx context.Context, order *model.PendingOrder) error {
	var limitS, triggerS *string
	if order.LimitPrice != nil {
		v := order.LimitPrice.String()
		limitS = &v
	}
	if order.TriggerPrice != nil {
		v := order.TriggerPrice.String()
		triggerS = &v
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_orders
		 (id, username, symbol, side, kind, quantity, limit_price, trigger_price, validity, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, $8::NUMERIC, $9, $10, $11)`,
		order.ID, order.Username, order.Symbol, order.Side, order.Kind,
		order.Quantity, limitS, triggerS, order.Validity,
		order.CreatedAt, order.ExpiresAt)
	return err
}

func (s *PostgresStore) PendingOrders(ctx context.Context, username string) ([]model.PendingOrder, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, username, symbol, side, kind, quantity,
		        limit_price::TEXT, trigger_price::TEXT, validity, created_at, expires_at
		 FROM pending_orders WHERE username = $1 ORDER BY created_at, id`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.PendingOrder
	for rows.Next() {
		var o model.PendingOrder
		var limitS, triggerS *string
		if err := rows.Scan(&o.ID, &o.Username, &o.Symbol, &o.Side, &o.Kind,
			&o.Quantity, &limitS, &triggerS, &o.Validity,
			&o.CreatedAt, &o.ExpiresAt); err != nil {
			return nil, err
		}
		if limitS != nil {
			if v, err := decimal.NewFromString(*limitS); err == nil {
				o.LimitPrice = &v
			}
		}
		if triggerS != nil {
			if v, err := decimal.NewFromString(*triggerS); err == nil {
				o.TriggerPrice = &v
			}
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) RemovePendingOrder(ctx context.Context, username, orderID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM pending_orders WHERE username = $1 AND id = $2`,
		username, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *PostgresStore) accountExists(ctx context.Context, username string) error {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username).
		Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrAccountNotFound
	}
	return nil
}
