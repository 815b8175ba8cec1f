package execution

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/application/risk"
	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Executor is the unified execution contract consumed by the scan engine
// and the reactor. Gating rejections (halted trading, duplicate keys,
// zero size) are nil results, not errors: they are expected outcomes.
type Executor interface {
	// CanTrade reports whether new buys are currently permitted.
	// Sells are never gated.
	CanTrade(ctx context.Context) (risk.Decision, error)

	// PositionSize returns the risk-adjusted size for an opportunity
	// without executing it.
	PositionSize(ctx context.Context, opp domain.Opportunity) (float64, error)

	// ExecuteBuy gates, sizes and executes a single-outcome buy.
	// Returns nil when no action was taken.
	ExecuteBuy(ctx context.Context, opp domain.Opportunity) (*domain.Position, error)

	// ExecuteSell closes an open position. Returns nil when a sell for
	// the same position is already in flight or the position is closed.
	ExecuteSell(ctx context.Context, pos domain.Position, reason string) (*domain.Trade, error)

	// ExecuteArbitrageBuy buys every outcome of an arbitrage basket,
	// returning the created positions (one per outcome).
	ExecuteArbitrageBuy(ctx context.Context, opp domain.Opportunity) ([]domain.Position, error)
}

// venue is the mode-specific execution backend behind the gateway:
// the paper simulator or the real broker adapter. A nil position/trade
// with nil error means the attempt failed cleanly (e.g. unfilled order).
type venue interface {
	buy(ctx context.Context, opp domain.Opportunity, size float64) (*domain.Position, *domain.Trade, error)
	sell(ctx context.Context, pos domain.Position, reason string) (*domain.Trade, error)
	arbitrageBuy(ctx context.Context, opp domain.Opportunity, size float64) ([]domain.Position, []domain.Trade, error)
}
