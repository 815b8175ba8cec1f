package domain

// StrategyAllocation is the capital budget assigned to one strategy.
// Weight is the target fraction of total portfolio value; Min/Max bound
// how far the allocator may drift it; Score tracks realized performance.
type StrategyAllocation struct {
	Strategy  StrategyTag
	Weight    float64
	MinWeight float64
	MaxWeight float64
	Score     float64
}

// Portfolio is the derived view of current capital state. It is never
// stored directly: the ledger persists balance and peak value, everything
// else is recomputed from open positions at current prices.
type Portfolio struct {
	Balance        float64
	PositionsValue float64
	TotalValue     float64
	TotalPnL       float64
	PeakValue      float64
	OpenPositions  []Position
	Allocations    []StrategyAllocation
}

// Drawdown is the absolute distance from the peak value ever observed.
func (p Portfolio) Drawdown() float64 {
	d := p.PeakValue - p.TotalValue
	if d < 0 {
		return 0
	}
	return d
}

// DrawdownFraction is the drawdown as a fraction of peak value (0.26 = 26%).
func (p Portfolio) DrawdownFraction() float64 {
	if p.PeakValue <= 0 {
		return 0
	}
	return p.Drawdown() / p.PeakValue
}

// InvestedInStrategy sums the cost of open positions tagged with the strategy.
func (p Portfolio) InvestedInStrategy(tag StrategyTag) float64 {
	total := 0.0
	for _, pos := range p.OpenPositions {
		if pos.Strategy == tag {
			total += pos.Cost
		}
	}
	return total
}

// InvestedInCategory sums the cost of open positions in a market category.
func (p Portfolio) InvestedInCategory(category string) float64 {
	total := 0.0
	for _, pos := range p.OpenPositions {
		if pos.Category == category {
			total += pos.Cost
		}
	}
	return total
}

// AllocationFor returns the allocation for a strategy, if configured.
func (p Portfolio) AllocationFor(tag StrategyTag) (StrategyAllocation, bool) {
	for _, a := range p.Allocations {
		if a.Strategy == tag {
			return a, true
		}
	}
	return StrategyAllocation{}, false
}

// HasOpenPosition reports whether an open position exists for the
// (marketID, side) pair. At most one may ever exist.
func (p Portfolio) HasOpenPosition(marketID string, side Side) bool {
	for _, pos := range p.OpenPositions {
		if pos.MarketID == marketID && pos.Side == side && pos.IsOpen() {
			return true
		}
	}
	return false
}
