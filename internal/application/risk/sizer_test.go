package risk

import (
	"testing"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
)

func basePortfolio() domain.Portfolio {
	return domain.Portfolio{
		Balance:    1000,
		TotalValue: 1000,
		PeakValue:  1000,
	}
}

func valueOpp(edge, entry float64) domain.Opportunity {
	return domain.Opportunity{
		Market:        domain.Market{ID: "m1", Category: "politics"},
		Strategy:      domain.StrategyValue,
		EntryPrice:    entry,
		EstimatedProb: entry + edge,
		Edge:          edge,
		Confidence:    domain.ConfidenceStandard,
	}
}

func TestSize_RejectsNonPositiveEdge(t *testing.T) {
	s := New(Config{}, domain.ModePaper)
	assert.Equal(t, 0.0, s.Size(valueOpp(0, 0.50), basePortfolio()))
	assert.Equal(t, 0.0, s.Size(valueOpp(-0.05, 0.50), basePortfolio()))
}

func TestSize_MonotonicInEdge(t *testing.T) {
	// generous caps so the raw Kelly output is visible
	s := New(Config{MaxPositionPct: 0.9, MaxSizeUSD: 10_000, CashReservePct: 0.0001}, domain.ModePaper)
	p := basePortfolio()

	small := s.Size(valueOpp(0.04, 0.50), p)
	big := s.Size(valueOpp(0.08, 0.50), p)
	assert.Greater(t, small, 0.0)
	assert.GreaterOrEqual(t, big, small, "doubling edge never decreases size")

	// inversely related to entry price at fixed edge: higher entry → larger
	// kelly denominator shrink → bigger fraction
	cheap := s.Size(valueOpp(0.05, 0.30), p)
	rich := s.Size(valueOpp(0.05, 0.70), p)
	assert.Greater(t, rich, cheap)
}

func TestSize_GlobalPositionCap(t *testing.T) {
	s := New(Config{MaxPositionPct: 0.10, MaxSizeUSD: 10_000}, domain.ModePaper)
	// huge edge: raw kelly would dwarf the portfolio
	size := s.Size(valueOpp(0.40, 0.50), basePortfolio())
	assert.InDelta(t, 100, size, 0.001, "capped at 10% of total value")
}

func TestSize_StrategyAllocationBudget(t *testing.T) {
	s := New(Config{MaxPositionPct: 0.50, MaxSizeUSD: 10_000}, domain.ModePaper)
	p := basePortfolio()
	p.Allocations = []domain.StrategyAllocation{
		{Strategy: domain.StrategyValue, Weight: 0.10},
	}
	p.OpenPositions = []domain.Position{
		{Strategy: domain.StrategyValue, Cost: 70, Status: domain.PositionOpen},
	}

	// remaining budget: 0.10*1000 - 70 = 30
	size := s.Size(valueOpp(0.40, 0.50), p)
	assert.InDelta(t, 30, size, 0.001)
}

func TestSize_CategoryBudget(t *testing.T) {
	s := New(Config{MaxPositionPct: 0.50, CategoryCapPct: 0.20, MaxSizeUSD: 10_000}, domain.ModePaper)
	p := basePortfolio()
	p.OpenPositions = []domain.Position{
		{Strategy: domain.StrategyWhale, Category: "politics", Cost: 150, Status: domain.PositionOpen},
	}

	// category remaining: 0.20*1000 - 150 = 50
	size := s.Size(valueOpp(0.40, 0.50), p)
	assert.InDelta(t, 50, size, 0.001)
}

func TestSize_ExhaustedBudgetsYieldZero(t *testing.T) {
	s := New(Config{CategoryCapPct: 0.10}, domain.ModePaper)
	p := basePortfolio()
	p.OpenPositions = []domain.Position{
		{Category: "politics", Cost: 200, Status: domain.PositionOpen},
	}
	assert.Equal(t, 0.0, s.Size(valueOpp(0.10, 0.50), p))
}

func TestSize_DrawdownWarningHalves(t *testing.T) {
	s := New(Config{MaxPositionPct: 0.10, MaxSizeUSD: 10_000}, domain.ModePaper)

	healthy := basePortfolio()
	full := s.Size(valueOpp(0.40, 0.50), healthy)

	// 20% drawdown: above the 15% warning, below the 25% halt
	warned := domain.Portfolio{Balance: 800, TotalValue: 800, PeakValue: 1000}
	half := s.Size(valueOpp(0.40, 0.50), warned)

	// unthrottled size at 800 total would be 80 (10% cap) → exactly half
	assert.InDelta(t, 40, half, 0.001)
	assert.InDelta(t, full*0.8/2, half, 0.001)
}

func TestSize_CashReserveClamp(t *testing.T) {
	s := New(Config{MaxPositionPct: 0.50, MaxSizeUSD: 10_000, CashReservePct: 0.10}, domain.ModePaper)
	p := domain.Portfolio{Balance: 50, TotalValue: 1000, PeakValue: 1000}

	size := s.Size(valueOpp(0.40, 0.50), p)
	assert.InDelta(t, 45, size, 0.001, "clamped to 90% of available cash")
}

func TestSize_RealModeIsMoreConservative(t *testing.T) {
	cfg := Config{MaxPositionPct: 0.9, MaxSizeUSD: 10_000, CashReservePct: 0.0001}
	paper := New(cfg, domain.ModePaper)
	real := New(cfg, domain.ModeReal)
	p := basePortfolio()

	opp := valueOpp(0.04, 0.50)
	assert.Less(t, real.Size(opp, p), paper.Size(opp, p))
}

func TestCanTrade_DrawdownHalt(t *testing.T) {
	s := New(Config{DrawdownHaltPct: 0.25}, domain.ModePaper)

	// 26% drawdown → halted
	d := s.CanTrade(domain.Portfolio{Balance: 740, TotalValue: 740, PeakValue: 1000})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "drawdown halt")

	// 20% drawdown → allowed (warning affects sizing, not the gate)
	d = s.CanTrade(domain.Portfolio{Balance: 800, TotalValue: 800, PeakValue: 1000})
	assert.True(t, d.Allowed)
}

func TestCanTrade_PaperCashBuffer(t *testing.T) {
	s := New(Config{MinBufferPct: 0.05}, domain.ModePaper)

	d := s.CanTrade(domain.Portfolio{Balance: 30, TotalValue: 1000, PeakValue: 1000})
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "cash buffer")
}

func TestCanTrade_RealBalanceFloor(t *testing.T) {
	s := New(Config{MinBalanceUSD: 10}, domain.ModeReal)

	d := s.CanTrade(domain.Portfolio{Balance: 4, TotalValue: 1000, PeakValue: 1000})
	assert.False(t, d.Allowed)

	d = s.CanTrade(domain.Portfolio{Balance: 50, TotalValue: 1000, PeakValue: 1000})
	assert.True(t, d.Allowed)
}
