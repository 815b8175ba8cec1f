package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// ValueConfig tunes the mispricing model.
type ValueConfig struct {
	MinEdge              float64            // minimum estimatedProb - price, default 0.05
	MinLiquidity         float64            // USDC floor, default 5000
	MinHoursToResolution float64            // skip markets resolving sooner, default 1
	CategoryBias         map[string]float64 // additive prob adjustment per category
}

func (c *ValueConfig) setDefaults() {
	if c.MinEdge <= 0 {
		c.MinEdge = 0.05
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 5000
	}
	if c.MinHoursToResolution <= 0 {
		c.MinHoursToResolution = 1
	}
}

// Value exit thresholds.
const (
	valueTakeProfitPct   = 15.0
	valueStopLossPct     = -20.0
	valueExtremeHigh     = 0.95
	valueExtremeLow      = 0.05
	trailingArmPct       = 10.0 // peak pnl that arms the trailing stop
	trailingTriggerPct   = 3.0  // current pnl below this fires it
	priceHistoryPerToken = 10
)

// Value estimates a "true" probability per outcome by summing independent
// adjustments on top of the market price, and buys the single best-edge
// outcome per market when the edge clears the configured minimum.
type Value struct {
	cfg ValueConfig

	// Rolling per-token price history recorded at scan time, for the
	// short-horizon mean-reversion term. Private to this strategy.
	history map[string][]float64

	// Peak unrealized pnl per position, for the trailing stop.
	peakPnL map[string]float64
}

// NewValue creates the value strategy with defaults applied.
func NewValue(cfg ValueConfig) *Value {
	cfg.setDefaults()
	return &Value{
		cfg:     cfg,
		history: make(map[string][]float64),
		peakPnL: make(map[string]float64),
	}
}

func (v *Value) Tag() domain.StrategyTag {
	return domain.StrategyValue
}

// Scan keeps only the single best-edge outcome per market.
func (v *Value) Scan(_ context.Context, markets []domain.Market) []domain.Opportunity {
	var opps []domain.Opportunity
	now := time.Now().UTC()

	for _, m := range markets {
		if !m.PricesPopulated() || m.Liquidity < v.cfg.MinLiquidity {
			continue
		}
		if h := m.HoursToResolution(); h > 0 && h < v.cfg.MinHoursToResolution {
			continue
		}

		var best *domain.Opportunity
		for i, o := range m.Outcomes {
			v.recordPrice(o.TokenID, o.Price)

			est, signals := v.estimateProbability(m, o)
			edge := est - o.Price
			if edge < v.cfg.MinEdge {
				continue
			}

			opp := domain.Opportunity{
				Market:        m,
				Strategy:      domain.StrategyValue,
				Side:          domain.SideYes,
				OutcomeIndex:  i,
				EntryPrice:    o.Price,
				EstimatedProb: est,
				Edge:          edge,
				Confidence:    v.confidence(m, edge, signals),
				Rationale: fmt.Sprintf("%s priced %.3f, model %.3f (+%.1f%% edge, %d signals)",
					o.Name, o.Price, est, edge*100, signals),
				ScannedAt: now,
			}
			if best == nil || opp.Edge > best.Edge {
				best = &opp
			}
		}
		if best != nil {
			opps = append(opps, *best)
		}
	}

	return opps
}

// estimateProbability sums independent adjustments on top of the market
// price. Returns the clamped estimate and how many adjustments pushed in
// the buy direction (corroborating signals).
func (v *Value) estimateProbability(m domain.Market, o domain.Outcome) (float64, int) {
	p := o.Price
	adj := 0.0
	signals := 0

	// Favorite-longshot bias: extreme longshots trade rich, near-certain
	// outcomes trade cheap.
	if p < 0.10 {
		adj -= 0.02
	} else if p > 0.90 {
		adj += 0.02
		signals++
	}

	// Volume/liquidity ratio as an informed-trading proxy: heavy turnover
	// on thin liquidity suggests the price is being pushed with intent.
	if m.Liquidity > 0 {
		switch ratio := m.Volume24h / m.Liquidity; {
		case ratio > 2:
			adj += 0.015
			signals++
		case ratio < 0.5:
			adj -= 0.01
		}
	}

	// Far-out resolutions carry more uncertainty than the price admits:
	// pull the estimate toward 0.5.
	if m.HoursToResolution() > 720 {
		adj += (0.5 - p) * 0.05
		if p < 0.5 {
			signals++
		}
	}

	// Binary spread arbitrage bonus: if YES+NO sum below 1, half the gap
	// belongs to each side.
	if m.IsBinary() {
		if total := m.TotalPrice(); total < 1 {
			adj += (1 - total) / 2
			signals++
		}
	}

	// Short-horizon mean reversion against the rolling average of the
	// last recorded prices.
	if avg, ok := v.rollingAverage(o.TokenID); ok && p < avg {
		adj += (avg - p) * 0.3
		signals++
	}

	// Category-specific bias term from config.
	if bias, ok := v.cfg.CategoryBias[m.Category]; ok {
		adj += bias
		if bias > 0 {
			signals++
		}
	}

	return clamp(p+adj, 0.01, 0.99), signals
}

// confidence weights edge size, liquidity, corroborating-signal count,
// volume and category into a tier.
func (v *Value) confidence(m domain.Market, edge float64, signals int) domain.ConfidenceLevel {
	score := math.Min(edge*4, 0.40)

	switch {
	case m.Liquidity > 50_000:
		score += 0.20
	case m.Liquidity > 10_000:
		score += 0.10
	}

	score += math.Min(float64(signals)*0.05, 0.15)

	switch {
	case m.Volume24h > 100_000:
		score += 0.15
	case m.Volume24h > 20_000:
		score += 0.07
	}

	if _, ok := v.cfg.CategoryBias[m.Category]; ok {
		score += 0.05
	}

	switch {
	case score >= 0.70:
		return domain.ConfidenceHigh
	case score >= 0.40:
		return domain.ConfidenceStandard
	default:
		return domain.ConfidenceLow
	}
}

// ShouldExit closes at +15% / -20%, at extreme prices, or via the trailing
// stop once a position has given back most of a >=10% peak.
func (v *Value) ShouldExit(pos domain.Position) (bool, string) {
	pnl := pos.PnLPercent()

	peak := v.peakPnL[pos.ID]
	if pnl > peak {
		peak = pnl
		v.peakPnL[pos.ID] = pnl
	}

	switch {
	case pnl >= valueTakeProfitPct:
		delete(v.peakPnL, pos.ID)
		return true, fmt.Sprintf("take profit (%.1f%%)", pnl)
	case pnl <= valueStopLossPct:
		delete(v.peakPnL, pos.ID)
		return true, fmt.Sprintf("stop loss (%.1f%%)", pnl)
	case pos.CurrentPrice >= valueExtremeHigh || pos.CurrentPrice <= valueExtremeLow:
		delete(v.peakPnL, pos.ID)
		return true, fmt.Sprintf("extreme price (%.3f)", pos.CurrentPrice)
	case peak >= trailingArmPct && pnl < trailingTriggerPct:
		delete(v.peakPnL, pos.ID)
		return true, fmt.Sprintf("trailing stop (peak %.1f%%, now %.1f%%)", peak, pnl)
	}

	return false, ""
}

func (v *Value) recordPrice(tokenID string, price float64) {
	h := append(v.history[tokenID], price)
	if len(h) > priceHistoryPerToken {
		h = h[len(h)-priceHistoryPerToken:]
	}
	v.history[tokenID] = h
}

func (v *Value) rollingAverage(tokenID string) (float64, bool) {
	h := v.history[tokenID]
	if len(h) < 3 {
		return 0, false
	}
	sum := 0.0
	for _, p := range h {
		sum += p
	}
	return sum / float64(len(h)), true
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(x, hi))
}
