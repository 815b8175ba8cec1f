package domain

import (
	"errors"
	"time"
)

// PositionStatus is the lifecycle state of a position. closed is terminal.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// ErrPositionClosed is returned when mutating a position that has already
// been closed.
var ErrPositionClosed = errors.New("position already closed")

// Position is the unit of portfolio state. Created by a successful buy,
// marked on every price refresh, closed exactly once by a sell.
//
// Size is the amount actually invested net of fees; Cost is the gross
// amount deducted from the balance including fees. P&L is always computed
// against Cost so fees are never silently forgotten.
type Position struct {
	ID           string
	MarketID     string
	TokenID      string
	OutcomeIndex int
	Question     string
	Category     string
	Strategy     StrategyTag
	Side         Side
	EntryPrice   float64
	CurrentPrice float64
	Size         float64
	Cost         float64
	Shares       float64
	OpenedAt     time.Time
	ClosedAt     *time.Time
	Status       PositionStatus
}

// CurrentValue is the mark-to-market value of the position.
func (p Position) CurrentValue() float64 {
	return p.Shares * p.CurrentPrice
}

// PnL is unrealized (or, once closed, realized) profit: currentValue - cost.
func (p Position) PnL() float64 {
	return p.CurrentValue() - p.Cost
}

// PnLPercent is PnL relative to cost, in percent.
func (p Position) PnLPercent() float64 {
	if p.Cost <= 0 {
		return 0
	}
	return p.PnL() / p.Cost * 100
}

// IsOpen reports whether the position is still open.
func (p Position) IsOpen() bool {
	return p.Status == PositionOpen
}

// MarkPrice updates the current price of an open position.
// Closed positions keep their exit price forever.
func (p *Position) MarkPrice(price float64) {
	if p.Status == PositionClosed {
		return
	}
	if price > 0 {
		p.CurrentPrice = price
	}
}

// Close transitions the position to its terminal state at exitPrice.
// Returns ErrPositionClosed if called twice; a position never reopens.
func (p *Position) Close(exitPrice float64, at time.Time) error {
	if p.Status == PositionClosed {
		return ErrPositionClosed
	}
	p.CurrentPrice = exitPrice
	p.Status = PositionClosed
	t := at
	p.ClosedAt = &t
	return nil
}
