package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Ledger is the durable position/trade/portfolio store.
type Ledger interface {
	// CreatePosition persists a newly opened position.
	CreatePosition(ctx context.Context, pos domain.Position) error

	// UpdatePositionPrice refreshes the mark price of an open position.
	UpdatePositionPrice(ctx context.Context, positionID string, price float64) error

	// ClosePosition transitions a position to closed at exitPrice.
	// Closing an already-closed position is an error.
	ClosePosition(ctx context.Context, positionID string, exitPrice, pnl float64, closedAt time.Time) error

	// OpenPositions returns all open positions.
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	// OpenPositionsByStrategy returns open positions for one strategy.
	OpenPositionsByStrategy(ctx context.Context, tag domain.StrategyTag) ([]domain.Position, error)

	// SaveTrade appends an immutable execution record.
	SaveTrade(ctx context.Context, trade domain.Trade) error

	// SettleBuy atomically persists newly opened positions with their
	// entry trades and debits totalCost from the balance snapshot.
	// Either everything is recorded or nothing is, so a failed settle
	// can be retried without stranding money or orphaning positions.
	SettleBuy(ctx context.Context, positions []domain.Position, trades []domain.Trade, totalCost float64) error

	// SettleSell atomically closes the trade's position, records the
	// exit trade and credits proceeds to the balance snapshot. Exit
	// price, pnl and close time come from the trade itself. Settling an
	// already-closed position is an error and records nothing.
	SettleSell(ctx context.Context, trade domain.Trade, proceeds float64) error

	// Allocations returns the configured strategy budget allocations.
	Allocations(ctx context.Context) ([]domain.StrategyAllocation, error)

	// UpdateAllocation upserts one strategy allocation.
	UpdateAllocation(ctx context.Context, alloc domain.StrategyAllocation) error

	// SaveSnapshot persists the current cash balance and peak value.
	SaveSnapshot(ctx context.Context, balance, peakValue float64) error

	// LoadSnapshot returns the last persisted balance and peak value.
	// ok is false when no snapshot has ever been saved.
	LoadSnapshot(ctx context.Context) (balance, peakValue float64, ok bool, err error)

	// Stats returns aggregate totals: trade count, total P&L, win rate.
	Stats(ctx context.Context) (domain.LedgerStats, error)

	// Close releases the underlying store.
	Close() error
}
