package storage

// sqlite.go: durable trading ledger.
//
// Layout:
//   - `positions`: one row per position, updated on every mark, closed once.
//   - `trades`: append-only execution records. Never updated or deleted.
//   - `allocations`: one row per strategy budget.
//   - `snapshot`: single row holding cash balance and peak portfolio value.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS positions (
    id            TEXT PRIMARY KEY,
    market_id     TEXT NOT NULL,
    token_id      TEXT NOT NULL,
    outcome_index INTEGER NOT NULL DEFAULT 0,
    question      TEXT,
    category      TEXT,
    strategy      TEXT NOT NULL,
    side          TEXT NOT NULL,
    entry_price   REAL NOT NULL,
    current_price REAL NOT NULL,
    size          REAL NOT NULL,
    cost          REAL NOT NULL,
    shares        REAL NOT NULL,
    opened_at     DATETIME NOT NULL,
    closed_at     DATETIME,
    status        TEXT NOT NULL DEFAULT 'open'
);

CREATE TABLE IF NOT EXISTS trades (
    id           TEXT PRIMARY KEY,
    position_id  TEXT NOT NULL,
    market_id    TEXT NOT NULL,
    token_id     TEXT NOT NULL,
    type         TEXT NOT NULL,
    strategy     TEXT NOT NULL,
    side         TEXT NOT NULL,
    price        REAL NOT NULL,
    size         REAL NOT NULL,
    shares       REAL NOT NULL,
    fees         REAL NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    executed_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS allocations (
    strategy   TEXT PRIMARY KEY,
    weight     REAL NOT NULL,
    min_weight REAL NOT NULL DEFAULT 0,
    max_weight REAL NOT NULL DEFAULT 1,
    score      REAL NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS snapshot (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    balance    REAL NOT NULL,
    peak_value REAL NOT NULL,
    updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_pos_status   ON positions(status);
CREATE INDEX IF NOT EXISTS idx_pos_market   ON positions(market_id, side);
CREATE INDEX IF NOT EXISTS idx_pos_strategy ON positions(strategy, status);
CREATE INDEX IF NOT EXISTS idx_trades_pos   ON trades(position_id);
CREATE INDEX IF NOT EXISTS idx_trades_at    ON trades(executed_at DESC);
`

// SQLiteLedger implements ports.Ledger on SQLite (pure Go, no CGo).
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger opens (or creates) the database at path and applies the
// schema. Use ":memory:" for tests.
func NewSQLiteLedger(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteLedger: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteLedger: apply schema: %w", err)
	}
	return &SQLiteLedger{db: db}, nil
}

// execer is satisfied by both *sql.DB and *sql.Tx so the write helpers
// serve standalone calls and the atomic settle operations alike.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreatePosition persists a newly opened position.
func (s *SQLiteLedger) CreatePosition(ctx context.Context, pos domain.Position) error {
	return insertPosition(ctx, s.db, pos)
}

func insertPosition(ctx context.Context, ex execer, pos domain.Position) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO positions
			(id, market_id, token_id, outcome_index, question, category,
			 strategy, side, entry_price, current_price, size, cost, shares,
			 opened_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		pos.ID, pos.MarketID, pos.TokenID, pos.OutcomeIndex, pos.Question,
		pos.Category, pos.Strategy.String(), string(pos.Side), pos.EntryPrice,
		pos.CurrentPrice, pos.Size, pos.Cost, pos.Shares,
		pos.OpenedAt.UTC().Format(time.RFC3339Nano), string(pos.Status),
	)
	if err != nil {
		return fmt.Errorf("storage.insertPosition: %s: %w", pos.ID, err)
	}
	return nil
}

// UpdatePositionPrice refreshes the mark price of an open position.
// Closed positions are left untouched.
func (s *SQLiteLedger) UpdatePositionPrice(ctx context.Context, positionID string, price float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE positions SET current_price = ? WHERE id = ? AND status = 'open'`,
		price, positionID,
	)
	if err != nil {
		return fmt.Errorf("storage.UpdatePositionPrice: %s: %w", positionID, err)
	}
	return nil
}

// ClosePosition transitions a position to closed exactly once.
func (s *SQLiteLedger) ClosePosition(ctx context.Context, positionID string, exitPrice, _ float64, closedAt time.Time) error {
	return closePosition(ctx, s.db, positionID, exitPrice, closedAt)
}

func closePosition(ctx context.Context, ex execer, positionID string, exitPrice float64, closedAt time.Time) error {
	res, err := ex.ExecContext(ctx, `
		UPDATE positions
		SET current_price = ?, closed_at = ?, status = 'closed'
		WHERE id = ? AND status = 'open'
	`, exitPrice, closedAt.UTC().Format(time.RFC3339Nano), positionID)
	if err != nil {
		return fmt.Errorf("storage.closePosition: %s: %w", positionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.closePosition: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.closePosition: %s: %w", positionID, domain.ErrPositionClosed)
	}
	return nil
}

// OpenPositions returns all open positions, oldest first.
func (s *SQLiteLedger) OpenPositions(ctx context.Context) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'open' ORDER BY opened_at`)
}

// OpenPositionsByStrategy returns open positions for one strategy.
func (s *SQLiteLedger) OpenPositionsByStrategy(ctx context.Context, tag domain.StrategyTag) ([]domain.Position, error) {
	return s.queryPositions(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE status = 'open' AND strategy = ? ORDER BY opened_at`,
		tag.String())
}

const positionColumns = `id, market_id, token_id, outcome_index, question, category,
	strategy, side, entry_price, current_price, size, cost, shares,
	opened_at, closed_at, status`

func (s *SQLiteLedger) queryPositions(ctx context.Context, query string, args ...any) ([]domain.Position, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.queryPositions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var pos domain.Position
		var strategy, side, status, openedAt string
		var closedAt sql.NullString

		if err := rows.Scan(
			&pos.ID, &pos.MarketID, &pos.TokenID, &pos.OutcomeIndex,
			&pos.Question, &pos.Category, &strategy, &side,
			&pos.EntryPrice, &pos.CurrentPrice, &pos.Size, &pos.Cost,
			&pos.Shares, &openedAt, &closedAt, &status,
		); err != nil {
			return nil, fmt.Errorf("storage.queryPositions: scan row: %w", err)
		}

		if tag, ok := domain.ParseStrategyTag(strategy); ok {
			pos.Strategy = tag
		}
		pos.Side = domain.Side(side)
		pos.Status = domain.PositionStatus(status)
		pos.OpenedAt, _ = time.Parse(time.RFC3339Nano, openedAt)
		if closedAt.Valid {
			if t, err := time.Parse(time.RFC3339Nano, closedAt.String); err == nil {
				pos.ClosedAt = &t
			}
		}
		positions = append(positions, pos)
	}
	return positions, rows.Err()
}

// SaveTrade appends an immutable execution record.
func (s *SQLiteLedger) SaveTrade(ctx context.Context, trade domain.Trade) error {
	return insertTrade(ctx, s.db, trade)
}

func insertTrade(ctx context.Context, ex execer, trade domain.Trade) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO trades
			(id, position_id, market_id, token_id, type, strategy, side,
			 price, size, shares, fees, realized_pnl, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		trade.ID, trade.PositionID, trade.MarketID, trade.TokenID,
		string(trade.Type), trade.Strategy.String(), string(trade.Side),
		trade.Price, trade.Size, trade.Shares, trade.Fees, trade.RealizedPnL,
		trade.ExecutedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("storage.insertTrade: %s: %w", trade.ID, err)
	}
	return nil
}

// SettleBuy writes positions, trades and the balance debit in a single
// transaction. A mid-sequence failure rolls everything back so the buy
// can be retried.
func (s *SQLiteLedger) SettleBuy(ctx context.Context, positions []domain.Position, trades []domain.Trade, totalCost float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SettleBuy: begin: %w", err)
	}
	defer tx.Rollback()

	for _, pos := range positions {
		if err := insertPosition(ctx, tx, pos); err != nil {
			return fmt.Errorf("storage.SettleBuy: %w", err)
		}
	}
	for _, trade := range trades {
		if err := insertTrade(ctx, tx, trade); err != nil {
			return fmt.Errorf("storage.SettleBuy: %w", err)
		}
	}
	if err := adjustBalance(ctx, tx, -totalCost); err != nil {
		return fmt.Errorf("storage.SettleBuy: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SettleBuy: commit: %w", err)
	}
	return nil
}

// SettleSell closes the position, records the exit trade and credits the
// proceeds in a single transaction. An already-closed position aborts
// the whole settle with domain.ErrPositionClosed.
func (s *SQLiteLedger) SettleSell(ctx context.Context, trade domain.Trade, proceeds float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.SettleSell: begin: %w", err)
	}
	defer tx.Rollback()

	if err := closePosition(ctx, tx, trade.PositionID, trade.Price, trade.ExecutedAt); err != nil {
		return fmt.Errorf("storage.SettleSell: %w", err)
	}
	if err := insertTrade(ctx, tx, trade); err != nil {
		return fmt.Errorf("storage.SettleSell: %w", err)
	}
	if err := adjustBalance(ctx, tx, proceeds); err != nil {
		return fmt.Errorf("storage.SettleSell: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.SettleSell: commit: %w", err)
	}
	return nil
}

// adjustBalance applies a delta to the persisted cash balance. Requires
// an existing snapshot row when the delta is non-zero.
func adjustBalance(ctx context.Context, ex execer, delta float64) error {
	if delta == 0 {
		return nil
	}
	res, err := ex.ExecContext(ctx, `
		UPDATE snapshot SET balance = balance + ?, updated_at = ? WHERE id = 1
	`, delta, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage.adjustBalance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage.adjustBalance: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("storage.adjustBalance: no balance snapshot")
	}
	return nil
}

// Allocations returns the configured strategy budget allocations.
func (s *SQLiteLedger) Allocations(ctx context.Context) ([]domain.StrategyAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT strategy, weight, min_weight, max_weight, score FROM allocations`)
	if err != nil {
		return nil, fmt.Errorf("storage.Allocations: %w", err)
	}
	defer rows.Close()

	var allocs []domain.StrategyAllocation
	for rows.Next() {
		var alloc domain.StrategyAllocation
		var strategy string
		if err := rows.Scan(&strategy, &alloc.Weight, &alloc.MinWeight,
			&alloc.MaxWeight, &alloc.Score); err != nil {
			return nil, fmt.Errorf("storage.Allocations: scan row: %w", err)
		}
		tag, ok := domain.ParseStrategyTag(strategy)
		if !ok {
			continue
		}
		alloc.Strategy = tag
		allocs = append(allocs, alloc)
	}
	return allocs, rows.Err()
}

// UpdateAllocation upserts one strategy allocation.
func (s *SQLiteLedger) UpdateAllocation(ctx context.Context, alloc domain.StrategyAllocation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO allocations (strategy, weight, min_weight, max_weight, score)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(strategy) DO UPDATE SET
			weight     = excluded.weight,
			min_weight = excluded.min_weight,
			max_weight = excluded.max_weight,
			score      = excluded.score
	`, alloc.Strategy.String(), alloc.Weight, alloc.MinWeight, alloc.MaxWeight, alloc.Score)
	if err != nil {
		return fmt.Errorf("storage.UpdateAllocation: %s: %w", alloc.Strategy.String(), err)
	}
	return nil
}

// SaveSnapshot persists the cash balance and peak portfolio value.
func (s *SQLiteLedger) SaveSnapshot(ctx context.Context, balance, peakValue float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, balance, peak_value, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			balance    = excluded.balance,
			peak_value = excluded.peak_value,
			updated_at = excluded.updated_at
	`, balance, peakValue, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("storage.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the last persisted balance and peak value.
func (s *SQLiteLedger) LoadSnapshot(ctx context.Context) (balance, peakValue float64, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT balance, peak_value FROM snapshot WHERE id = 1`)
	if err := row.Scan(&balance, &peakValue); err != nil {
		if err == sql.ErrNoRows {
			return 0, 0, false, nil
		}
		return 0, 0, false, fmt.Errorf("storage.LoadSnapshot: %w", err)
	}
	return balance, peakValue, true, nil
}

// Stats aggregates trade count, total realized P&L and win rate.
func (s *SQLiteLedger) Stats(ctx context.Context) (domain.LedgerStats, error) {
	var stats domain.LedgerStats

	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`)
	if err := row.Scan(&stats.Trades); err != nil {
		return stats, fmt.Errorf("storage.Stats: count trades: %w", err)
	}

	row = s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized_pnl), 0),
		       COALESCE(SUM(CASE WHEN realized_pnl > 0 THEN 1 ELSE 0 END), 0),
		       COUNT(*)
		FROM trades WHERE type = 'SELL'
	`)
	var wins, sells int
	if err := row.Scan(&stats.TotalPnL, &wins, &sells); err != nil {
		return stats, fmt.Errorf("storage.Stats: aggregate sells: %w", err)
	}
	if sells > 0 {
		stats.WinRate = float64(wins) / float64(sells)
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}
