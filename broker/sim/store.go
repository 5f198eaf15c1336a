package sim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/carry/broker"
	"github.com/shopspring/decimal"
)

// Store keeps a paper account in a SQLite file so that successive paper
// runs trade against the same balance and open trades.
type Store struct {
	db *sql.DB
}

func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load reads the saved account. ok is false when nothing has been saved
// yet.
func (s *Store) Load(ctx context.Context) (st State, ok bool, err error) {
	var balance string
	row := s.db.QueryRowContext(ctx, `SELECT id, home, balance FROM account LIMIT 1`)
	if err := row.Scan(&st.AccountID, &st.Home, &balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{}, false, nil
		}
		return State{}, false, err
	}
	if st.Balance, err = decimal.NewFromString(balance); err != nil {
		return State{}, false, fmt.Errorf("balance %q: %w", balance, err)
	}

	if st.Trades, err = s.loadTrades(ctx); err != nil {
		return State{}, false, err
	}
	if st.Transactions, err = s.loadTransactions(ctx); err != nil {
		return State{}, false, err
	}
	return st, true, nil
}

func (s *Store) loadTrades(ctx context.Context) ([]broker.OpenTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT trade_id, instrument, units, price, open_time, margin_used, financing
		FROM trades
		ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.OpenTrade
	for rows.Next() {
		var (
			t                      broker.OpenTrade
			price, used, financing string
		)
		if err := rows.Scan(&t.ID, &t.Instrument, &t.CurrentUnits, &price, &t.OpenTime, &used, &financing); err != nil {
			return nil, err
		}
		if t.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("trade %s price %q: %w", t.ID, price, err)
		}
		if t.MarginUsed, err = decimal.NewFromString(used); err != nil {
			return nil, fmt.Errorf("trade %s margin_used %q: %w", t.ID, used, err)
		}
		if t.Financing, err = decimal.NewFromString(financing); err != nil {
			return nil, fmt.Errorf("trade %s financing %q: %w", t.ID, financing, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) loadTransactions(ctx context.Context) ([]broker.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tx_id, type, instrument, time, financing
		FROM transactions
		ORDER BY seq ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []broker.Transaction
	for rows.Next() {
		var (
			tx        broker.Transaction
			financing string
		)
		if err := rows.Scan(&tx.ID, &tx.Type, &tx.Instrument, &tx.Time, &financing); err != nil {
			return nil, err
		}
		if tx.Financing, err = decimal.NewFromString(financing); err != nil {
			return nil, fmt.Errorf("transaction %s financing %q: %w", tx.ID, financing, err)
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// Save replaces whatever was stored with st in a single transaction.
// runID names the run that left the account in this state.
func (s *Store) Save(ctx context.Context, st State, runID string) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"account", "trades", "transactions"} {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO account (id, home, balance, saved_at, run_id)
		VALUES (?, ?, ?, ?, ?)`,
		st.AccountID, st.Home, st.Balance.String(), time.Now().UTC(), runID,
	)
	if err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	for i, t := range st.Trades {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO trades
			(seq, trade_id, instrument, units, price, open_time, margin_used, financing)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			i, t.ID, t.Instrument, t.CurrentUnits, t.Price.String(), t.OpenTime.UTC(),
			t.MarginUsed.String(), t.Financing.String(),
		)
		if err != nil {
			return fmt.Errorf("save trade %s: %w", t.ID, err)
		}
	}

	for i, x := range st.Transactions {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions
			(seq, tx_id, type, instrument, time, financing)
			VALUES (?, ?, ?, ?, ?, ?)`,
			i, x.ID, x.Type, x.Instrument, x.Time.UTC(), x.Financing.String(),
		)
		if err != nil {
			return fmt.Errorf("save transaction %s: %w", x.ID, err)
		}
	}

	return tx.Commit()
}

// LastRun returns the run id and time of the last Save.
func (s *Store) LastRun(ctx context.Context) (runID string, at time.Time, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT run_id, saved_at FROM account LIMIT 1`)
	if err := row.Scan(&runID, &at); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, fmt.Errorf("no paper account saved")
		}
		return "", time.Time{}, err
	}
	return runID, at, nil
}
