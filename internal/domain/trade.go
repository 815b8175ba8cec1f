package domain

import "time"

// TradeType distinguishes entries from exits.
type TradeType string

const (
	TradeBuy  TradeType = "BUY"
	TradeSell TradeType = "SELL"
)

// Trade is an immutable execution record linked to a position.
// Append-only: trades are never updated or deleted.
type Trade struct {
	ID         string
	PositionID string
	MarketID   string
	TokenID    string
	Type       TradeType
	Strategy   StrategyTag
	Side       Side
	Price      float64 // actual fill price
	Size       float64 // net USDC invested or received
	Shares     float64
	Fees       float64
	// RealizedPnL is set on SELL trades only: exitPrice*shares - cost.
	RealizedPnL float64
	ExecutedAt  time.Time
}

// LedgerStats are aggregate totals computed by the ledger.
type LedgerStats struct {
	Trades   int
	TotalPnL float64
	WinRate  float64 // fraction of closed sells with positive pnl
}
