package risk

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Config holds the sizing and gating policy.
// Drawdown thresholds and percents are fractions (0.15 = 15%).
type Config struct {
	MaxPositionPct   float64 // cap per position as fraction of total value, default 0.10
	MinSizeUSD       float64 // smallest order worth placing, default 5
	MaxSizeUSD       float64 // absolute per-order ceiling, default 500
	CashReservePct   float64 // fraction of balance never deployed, default 0.10
	CategoryCapPct   float64 // cap per market category, default 0.25
	DrawdownWarnPct  float64 // halve sizes beyond this drawdown, default 0.15
	DrawdownHaltPct  float64 // block new buys beyond this drawdown, default 0.25
	MinBufferPct     float64 // paper mode: minimum balance as fraction of total, default 0.05
	MinBalanceUSD    float64 // real mode: absolute minimum balance floor, default 10
}

func (c *Config) setDefaults() {
	if c.MaxPositionPct <= 0 {
		c.MaxPositionPct = 0.10
	}
	if c.MinSizeUSD <= 0 {
		c.MinSizeUSD = 5
	}
	if c.MaxSizeUSD <= 0 {
		c.MaxSizeUSD = 500
	}
	if c.CashReservePct <= 0 {
		c.CashReservePct = 0.10
	}
	if c.CategoryCapPct <= 0 {
		c.CategoryCapPct = 0.25
	}
	if c.DrawdownWarnPct <= 0 {
		c.DrawdownWarnPct = 0.15
	}
	if c.DrawdownHaltPct <= 0 {
		c.DrawdownHaltPct = 0.25
	}
	if c.MinBufferPct <= 0 {
		c.MinBufferPct = 0.05
	}
	if c.MinBalanceUSD <= 0 {
		c.MinBalanceUSD = 10
	}
}

// Decision is the outcome of the trading gate. A blocked gate only stops
// new buys; exits remain permitted at all times.
type Decision struct {
	Allowed bool
	Reason  string
}

// Sizer turns opportunities into risk-capped position sizes.
type Sizer struct {
	cfg  Config
	mode domain.TradingMode
}

// New creates a Sizer for the given trading mode with defaults applied.
func New(cfg Config, mode domain.TradingMode) *Sizer {
	cfg.setDefaults()
	return &Sizer{cfg: cfg, mode: mode}
}

// CanTrade is the global buy gate, checked before any sizing.
func (s *Sizer) CanTrade(p domain.Portfolio) Decision {
	if dd := p.DrawdownFraction(); dd >= s.cfg.DrawdownHaltPct {
		return Decision{Reason: fmt.Sprintf(
			"drawdown halt: %.1f%% >= %.1f%%, sell-only mode",
			dd*100, s.cfg.DrawdownHaltPct*100)}
	}

	if s.mode == domain.ModeReal {
		if p.Balance < s.cfg.MinBalanceUSD {
			return Decision{Reason: fmt.Sprintf(
				"balance $%.2f below minimum $%.2f", p.Balance, s.cfg.MinBalanceUSD)}
		}
	} else if p.Balance < s.cfg.MinBufferPct*p.TotalValue {
		return Decision{Reason: fmt.Sprintf(
			"cash buffer $%.2f below %.0f%% of portfolio",
			p.Balance, s.cfg.MinBufferPct*100)}
	}

	return Decision{Allowed: true}
}

// Size computes the risk-adjusted USDC size for an opportunity.
//
// Pipeline: Kelly fraction → confidence multiplier → global position cap →
// strategy allocation budget → category budget → [min,max] clamp → cash
// reserve clamp → drawdown halving. Returns 0 whenever the opportunity
// doesn't survive the gauntlet.
func (s *Sizer) Size(opp domain.Opportunity, p domain.Portfolio) float64 {
	if opp.Edge <= 0 || opp.EntryPrice >= 1 {
		return 0
	}

	kelly := opp.Edge / (1 - opp.EntryPrice)
	size := kelly * opp.Confidence.Multiplier(s.mode) * p.TotalValue

	if maxPos := s.cfg.MaxPositionPct * p.TotalValue; size > maxPos {
		size = maxPos
	}

	if alloc, ok := p.AllocationFor(opp.Strategy); ok {
		remaining := alloc.Weight*p.TotalValue - p.InvestedInStrategy(opp.Strategy)
		if size > remaining {
			size = remaining
		}
	}

	catRemaining := s.cfg.CategoryCapPct*p.TotalValue - p.InvestedInCategory(opp.Market.Category)
	if size > catRemaining {
		size = catRemaining
	}

	if size <= 0 {
		return 0
	}
	size = math.Max(s.cfg.MinSizeUSD, math.Min(size, s.cfg.MaxSizeUSD))

	if deployable := p.Balance * (1 - s.cfg.CashReservePct); size > deployable {
		size = deployable
	}

	if p.DrawdownFraction() >= s.cfg.DrawdownWarnPct {
		size /= 2
	}

	if size < 0 {
		return 0
	}
	return size
}
