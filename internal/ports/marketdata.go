package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// MarketProvider returns the current market snapshot with nested outcomes.
type MarketProvider interface {
	// FetchMarkets returns all active markets with current prices,
	// liquidity, volume and resolution dates.
	FetchMarkets(ctx context.Context) ([]domain.Market, error)
}

// PriceSource is a synchronous last-known-price lookup by asset id.
// The second return is false when no price has been observed yet; callers
// skip the asset for the current step rather than guessing.
type PriceSource interface {
	LastPrice(assetID string) (float64, bool)
}
