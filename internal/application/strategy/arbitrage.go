package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// ArbitrageConfig bounds which combined-price gaps are tradable.
// Gaps above MaxProfitPct are treated as stale or partial data, not free
// money: real books don't leave 15%+ lying around.
type ArbitrageConfig struct {
	MinProfitPct float64 // minimum (1-total)/total, default 0.02
	MaxProfitPct float64 // maximum (1-total)/total, default 0.15
	MinLiquidity float64 // USDC floor, default 1000
}

func (c *ArbitrageConfig) setDefaults() {
	if c.MinProfitPct <= 0 {
		c.MinProfitPct = 0.02
	}
	if c.MaxProfitPct <= 0 {
		c.MaxProfitPct = 0.15
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 1000
	}
}

// Arbitrage finds markets whose outcomes sum below 1.0: buying every
// outcome locks in the gap regardless of resolution.
type Arbitrage struct {
	cfg ArbitrageConfig
}

// NewArbitrage creates the arbitrage strategy with defaults applied.
func NewArbitrage(cfg ArbitrageConfig) *Arbitrage {
	cfg.setDefaults()
	return &Arbitrage{cfg: cfg}
}

func (a *Arbitrage) Tag() domain.StrategyTag {
	return domain.StrategyArbitrage
}

// Scan emits at most one opportunity per market, covering all outcomes.
func (a *Arbitrage) Scan(_ context.Context, markets []domain.Market) []domain.Opportunity {
	var opps []domain.Opportunity
	now := time.Now().UTC()

	for _, m := range markets {
		if len(m.Outcomes) < 2 || !m.PricesPopulated() {
			continue
		}
		if m.Liquidity < a.cfg.MinLiquidity {
			continue
		}

		total := m.TotalPrice()
		if total >= 1 {
			continue
		}

		profitPct := (1 - total) / total
		if profitPct < a.cfg.MinProfitPct {
			continue
		}
		if profitPct > a.cfg.MaxProfitPct {
			// A gap this wide means the snapshot is stale or half-populated.
			slog.Debug("arbitrage: rejecting suspicious gap",
				"market", domain.TruncateQuestion(m.Question, 40),
				"total", fmt.Sprintf("%.4f", total),
				"profit_pct", fmt.Sprintf("%.1f%%", profitPct*100),
			)
			continue
		}

		opps = append(opps, domain.Opportunity{
			Market:           m,
			Strategy:         domain.StrategyArbitrage,
			Side:             domain.SideYes,
			OutcomeIndex:     -1,
			EntryPrice:       total,
			EstimatedProb:    1.0,
			Edge:             1 - total,
			Confidence:       domain.ConfidenceArbitrage,
			TotalCost:        total,
			GuaranteedProfit: 1 - total,
			Rationale: fmt.Sprintf("all %d outcomes cost %.4f, guaranteed %.4f/set (%.2f%%)",
				len(m.Outcomes), total, 1-total, profitPct*100),
			ScannedAt: now,
		})
	}

	return opps
}

// ShouldExit always returns false: arbitrage baskets are held to
// resolution, where the full set pays out 1.0.
func (a *Arbitrage) ShouldExit(domain.Position) (bool, string) {
	return false, ""
}
