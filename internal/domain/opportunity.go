package domain

import "time"

// StrategyTag identifies which signal generator produced a decision.
// It is a closed set: every switch over it at the engine/gateway boundary
// must handle all three values.
type StrategyTag int

const (
	StrategyArbitrage StrategyTag = iota
	StrategyValue
	StrategyWhale
)

func (s StrategyTag) String() string {
	switch s {
	case StrategyArbitrage:
		return "arbitrage"
	case StrategyValue:
		return "value"
	case StrategyWhale:
		return "whale"
	default:
		return "unknown"
	}
}

// ParseStrategyTag maps a stored tag string back to its StrategyTag.
func ParseStrategyTag(s string) (StrategyTag, bool) {
	switch s {
	case "arbitrage":
		return StrategyArbitrage, true
	case "value":
		return StrategyValue, true
	case "whale":
		return StrategyWhale, true
	default:
		return 0, false
	}
}

// Side is the direction of a position on an outcome.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// TradingMode selects paper simulation or real order placement.
// Resolved once at startup by cmd/bot; the core never prompts.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeReal  TradingMode = "real"
)

// Opportunity is a candidate trade emitted by a strategy scan or by the
// reactor. Ephemeral: it is consumed exactly once by the execution gateway
// and never persisted.
type Opportunity struct {
	Market        Market
	Strategy      StrategyTag
	Side          Side
	OutcomeIndex  int // -1 for arbitrage baskets covering all outcomes
	EntryPrice    float64
	EstimatedProb float64
	Edge          float64 // EstimatedProb - EntryPrice
	Confidence    ConfidenceLevel
	Rationale     string

	// Arbitrage basket fields, zero for single-leg opportunities.
	TotalCost        float64 // sum of all outcome prices
	GuaranteedProfit float64 // 1.0 - TotalCost per outcome set

	ScannedAt time.Time
}

// IsArbitrage reports whether this opportunity is a full-basket arbitrage.
func (o Opportunity) IsArbitrage() bool {
	return o.Strategy == StrategyArbitrage && o.OutcomeIndex < 0
}

// Score ranks opportunities for execution order within a cycle:
// edge weighted by confidence tier.
func (o Opportunity) Score() float64 {
	return o.Edge * o.Confidence.Weight()
}

// Outcome returns the outcome this opportunity targets, or the first
// outcome for arbitrage baskets.
func (o Opportunity) Outcome() Outcome {
	if o.OutcomeIndex >= 0 && o.OutcomeIndex < len(o.Market.Outcomes) {
		return o.Market.Outcomes[o.OutcomeIndex]
	}
	if len(o.Market.Outcomes) > 0 {
		return o.Market.Outcomes[0]
	}
	return Outcome{}
}
