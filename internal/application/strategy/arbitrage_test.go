package strategy

import (
	"context"
	"testing"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func arbMarket(prices ...float64) domain.Market {
	m := domain.Market{
		ID:        "mkt-arb",
		Question:  "Who wins?",
		Liquidity: 50_000,
		Active:    true,
	}
	for i, p := range prices {
		m.Outcomes = append(m.Outcomes, domain.Outcome{
			Name:    string(rune('A' + i)),
			TokenID: "tok-" + string(rune('a'+i)),
			Price:   p,
		})
	}
	return m
}

func TestArbitrage_EmitsOneOpportunityCoveringAllOutcomes(t *testing.T) {
	a := NewArbitrage(ArbitrageConfig{})
	opps := a.Scan(context.Background(), []domain.Market{arbMarket(0.40, 0.55)})

	require.Len(t, opps, 1)
	opp := opps[0]
	assert.Equal(t, domain.StrategyArbitrage, opp.Strategy)
	assert.True(t, opp.IsArbitrage())
	assert.InDelta(t, 0.95, opp.TotalCost, 1e-9)
	assert.InDelta(t, 0.05, opp.GuaranteedProfit, 1e-9)
	assert.Equal(t, domain.ConfidenceArbitrage, opp.Confidence)
}

func TestArbitrage_ProfitBandBounds(t *testing.T) {
	a := NewArbitrage(ArbitrageConfig{})
	ctx := context.Background()

	// total 0.99 → profit 1.01%, below the 2% floor
	assert.Empty(t, a.Scan(ctx, []domain.Market{arbMarket(0.44, 0.55)}))

	// total 0.80 → profit 25%, above the 15% ceiling: stale data, rejected
	assert.Empty(t, a.Scan(ctx, []domain.Market{arbMarket(0.40, 0.40)}))

	// total 0.90 → profit 11.1%, inside the band
	opps := a.Scan(ctx, []domain.Market{arbMarket(0.45, 0.45)})
	require.Len(t, opps, 1)
	assert.InDelta(t, 0.10, opps[0].GuaranteedProfit, 1e-9)
}

func TestArbitrage_ThreeOutcomeMarket(t *testing.T) {
	a := NewArbitrage(ArbitrageConfig{})
	opps := a.Scan(context.Background(), []domain.Market{arbMarket(0.30, 0.30, 0.34)})

	require.Len(t, opps, 1)
	assert.InDelta(t, 0.94, opps[0].TotalCost, 1e-9)
	assert.InDelta(t, 0.06, opps[0].GuaranteedProfit, 1e-9)
}

func TestArbitrage_SkipsBadInputs(t *testing.T) {
	a := NewArbitrage(ArbitrageConfig{})
	ctx := context.Background()

	// total >= 1: fairly priced
	assert.Empty(t, a.Scan(ctx, []domain.Market{arbMarket(0.50, 0.52)}))

	// unpopulated price
	assert.Empty(t, a.Scan(ctx, []domain.Market{arbMarket(0, 0.55)}))

	// single outcome
	assert.Empty(t, a.Scan(ctx, []domain.Market{arbMarket(0.55)}))

	// below the liquidity floor
	thin := arbMarket(0.40, 0.55)
	thin.Liquidity = 100
	assert.Empty(t, a.Scan(ctx, []domain.Market{thin}))
}

func TestArbitrage_NeverExits(t *testing.T) {
	a := NewArbitrage(ArbitrageConfig{})
	exit, _ := a.ShouldExit(domain.Position{
		Cost: 10, Shares: 100, CurrentPrice: 0.99, Status: domain.PositionOpen,
	})
	assert.False(t, exit, "arbitrage baskets are held to resolution")
}
