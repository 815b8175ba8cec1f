package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// OrderRequest is a market order for one tradable asset.
// Buys are sized in USDC notional; sells in shares.
type OrderRequest struct {
	TokenID string
	Side    domain.TradeType
	SizeUSD float64
	Shares  float64
}

// OrderResult reports what actually happened at the exchange.
// FilledSize is USDC for buys and shares for sells; AvgPrice is the real
// average fill price, which may differ from the quoted price.
type OrderResult struct {
	Filled     bool
	FilledSize float64
	AvgPrice   float64
}

// Broker places real orders and reports balances. Signing and auth live
// behind this interface and are out of core scope.
type Broker interface {
	// PlaceMarketOrder submits a fill-or-kill market order.
	// An unfilled order returns Filled=false with a nil error.
	PlaceMarketOrder(ctx context.Context, req OrderRequest) (OrderResult, error)

	// Balance returns the available cash balance in USDC.
	Balance(ctx context.Context) (float64, error)

	// Positions returns shares held at the broker, keyed by token id.
	Positions(ctx context.Context) (map[string]float64, error)
}
