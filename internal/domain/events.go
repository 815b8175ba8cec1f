package domain

import "time"

// FeedEvent is a typed notification pushed by the market-data feed onto the
// reactor's queue. Events are processed one at a time in arrival order.
type FeedEvent interface {
	feedEvent()
}

// PriceEvent is a price update for a single tradable asset.
type PriceEvent struct {
	AssetID   string
	Price     float64
	Timestamp time.Time
}

func (PriceEvent) feedEvent() {}

// TradeEvent is an executed trade observed on the feed. Size is the USDC
// notional of the trade; Side is the taker side.
type TradeEvent struct {
	AssetID   string
	Price     float64
	Size      float64
	Side      TradeType
	Timestamp time.Time
}

func (TradeEvent) feedEvent() {}

// NotificationKind labels events emitted by the execution gateway for
// observability consumers (console, logs, dashboards).
type NotificationKind string

const (
	NotifyTradeExecuted  NotificationKind = "trade-executed"
	NotifyPositionExited NotificationKind = "position-exited"
)

// Notification is published after every successful execution.
type Notification struct {
	Kind     NotificationKind
	Position Position
	Trade    Trade
	Reason   string
	At       time.Time
}
