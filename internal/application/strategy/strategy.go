package strategy

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Strategy is the two-operation contract every signal generator implements.
// Scan is pure over its market inputs aside from each strategy's own private
// bookkeeping; it never touches reactor or gateway state.
type Strategy interface {
	// Tag identifies the strategy variant.
	Tag() domain.StrategyTag

	// Scan produces candidate opportunities from the current snapshot.
	// Malformed markets are skipped, never fatal.
	Scan(ctx context.Context, markets []domain.Market) []domain.Opportunity

	// ShouldExit decides whether an open position should be closed now.
	// The second return is a human-readable reason for the exit.
	ShouldExit(pos domain.Position) (bool, string)
}

// Default exit thresholds, used by strategies without a specific exit rule.
const (
	defaultTakeProfitPct = 20.0
	defaultStopLossPct   = -15.0
)

// DefaultShouldExit is the inherited exit rule: take profit at +20%,
// stop loss at -15%.
func DefaultShouldExit(pos domain.Position) (bool, string) {
	pnl := pos.PnLPercent()
	if pnl >= defaultTakeProfitPct {
		return true, "take profit (default +20%)"
	}
	if pnl <= defaultStopLossPct {
		return true, "stop loss (default -15%)"
	}
	return false, ""
}
