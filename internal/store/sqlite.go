package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/pranavpartapsingh/velasa/internal/model"
)

// sqliteSchema mirrors the PostgreSQL schema. Decimals are stored as
// TEXT so no precision is lost through SQLite's numeric affinity.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	username   TEXT PRIMARY KEY,
	cash       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS positions (
	username TEXT NOT NULL,
	symbol   TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	PRIMARY KEY (username, symbol)
);
CREATE TABLE IF NOT EXISTS transactions (
	seq         INTEGER PRIMARY KEY AUTOINCREMENT,
	id          TEXT NOT NULL UNIQUE,
	username    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL,
	quantity    INTEGER NOT NULL,
	price       TEXT NOT NULL,
	entry_price TEXT NOT NULL,
	timestamp   TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_orders (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL,
	symbol        TEXT NOT NULL,
	side          TEXT NOT NULL,
	kind          TEXT NOT NULL,
	quantity      INTEGER NOT NULL,
	limit_price   TEXT,
	trigger_price TEXT,
	validity      TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL,
	expires_at    TIMESTAMP
);
`

// SQLiteStore implements Store on a local SQLite file. Suitable for
// single-node deployments and development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and ensures
// the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) EnsureAccount(ctx context.Context, username string, startingCash decimal.Decimal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO accounts (username, cash, created_at) VALUES (?, ?, ?)`,
		username, startingCash.String(), time.Now().UTC())
	return err
}

func (s *SQLiteStore) AccountCreatedAt(ctx context.Context, username string) (time.Time, error) {
	var createdAt time.Time
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM accounts WHERE username = ?`, username).
		Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrAccountNotFound
	}
	return createdAt, err
}

func (s *SQLiteStore) DeleteAccount(ctx context.Context, username string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE username = ?`, username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}
	for _, table := range []string{"positions", "transactions", "pending_orders"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE username = ?`, username); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username FROM accounts ORDER BY username`)
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

func (s *SQLiteStore) GetCash(ctx context.Context, username string) (decimal.Decimal, error) {
	var cashS string
	err := s.db.QueryRowContext(ctx,
		`SELECT cash FROM accounts WHERE username = ?`, username).
		Scan(&cashS)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrAccountNotFound
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(cashS)
}

func (s *SQLiteStore) GetPositions(ctx context.Context, username string) (map[string]int64, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT symbol, quantity FROM positions WHERE username = ?`, username)
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

func (s *SQLiteStore) Transactions(ctx context.Context, username string) ([]model.Transaction, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, symbol, side, quantity, price, entry_price, timestamp
		 FROM transactions WHERE username = ? ORDER BY seq`, username)
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

func (s *SQLiteStore) ApplyFill(ctx context.Context, username string, ftx model.Transaction, newCash decimal.Decimal, newQty int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET cash = ? WHERE username = ?`,
		newCash.String(), username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrAccountNotFound
	}

	if newQty == 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM positions WHERE username = ? AND symbol = ?`,
			username, ftx.Symbol)
	} else {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO positions (username, symbol, quantity) VALUES (?, ?, ?)
			 ON CONFLICT (username, symbol) DO UPDATE SET quantity = excluded.quantity`,
			username, ftx.Symbol, newQty)
	}
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO transactions (id, username, symbol, side, quantity, price, entry_price, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ftx.ID, ftx.Username, ftx.Symbol, ftx.Side, ftx.Quantity,
		ftx.Price.String(), ftx.EntryPrice.String(), ftx.Timestamp)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) InsertPendingOrder(ctx context.Context, order *model.PendingOrder) error {
	var limitS, triggerS *string
	if order.LimitPrice != nil {
		v := order.LimitPrice.String()
		limitS = &v
	}
	if order.TriggerPrice != nil {
		v := order.TriggerPrice.String()
		triggerS = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_orders
		 (id, username, symbol, side, kind, quantity, limit_price, trigger_price, validity, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.Username, order.Symbol, order.Side, order.Kind,
		order.Quantity, limitS, triggerS, order.Validity,
		order.CreatedAt, order.ExpiresAt)
	return err
}

func (s *SQLiteStore) PendingOrders(ctx context.Context, username string) ([]model.PendingOrder, error) {
	if err := s.accountExists(ctx, username); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, username, symbol, side, kind, quantity,
		        limit_price, trigger_price, validity, created_at, expires_at
		 FROM pending_orders WHERE username = ? ORDER BY created_at, id`, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []model.PendingOrder
	for rows.Next() {
		var o model.PendingOrder
		var limitS, triggerS *string
		var expiresAt sql.NullTime
		if err := rows.Scan(&o.ID, &o.Username, &o.Symbol, &o.Side, &o.Kind,
			&o.Quantity, &limitS, &triggerS, &o.Validity,
			&o.CreatedAt, &expiresAt); err != nil {
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
		if expiresAt.Valid {
			t := expiresAt.Time
			o.ExpiresAt = &t
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (s *SQLiteStore) RemovePendingOrder(ctx context.Context, username, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_orders WHERE username = ? AND id = ?`,
		username, orderID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (s *SQLiteStore) accountExists(ctx context.Context, username string) error {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM accounts WHERE username = ?`, username).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	return err
}
