package strategy

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// WhaleConfig tunes large-trade aggregation and follow thresholds.
type WhaleConfig struct {
	MinNotional    float64       // trades below this USDC size are ignored, default 500
	Lookback       time.Duration // rolling aggregation window, default 15m
	MinNetVolume   float64       // minimum net buy USDC to signal, default 2000
	MinTrades      int           // minimum large trades in the window, default 3
	PremiumDivisor float64       // estProb = price + netBuy/divisor, default 200000
	MaxPremium     float64       // premium cap, default 0.08
	MinLiquidity   float64       // USDC floor, default 2000
}

func (c *WhaleConfig) setDefaults() {
	if c.MinNotional <= 0 {
		c.MinNotional = 500
	}
	if c.Lookback <= 0 {
		c.Lookback = 15 * time.Minute
	}
	if c.MinNetVolume <= 0 {
		c.MinNetVolume = 2000
	}
	if c.MinTrades <= 0 {
		c.MinTrades = 3
	}
	if c.PremiumDivisor <= 0 {
		c.PremiumDivisor = 200_000
	}
	if c.MaxPremium <= 0 {
		c.MaxPremium = 0.08
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 2000
	}
}

type whaleTrade struct {
	notional float64
	side     domain.TradeType
	at       time.Time
}

// Whale aggregates large observed trades per asset over a rolling window
// and follows sustained net buying. Net selling is deliberately not turned
// into a same-outcome signal: contrarian reads on the other side are the
// value strategy's job.
type Whale struct {
	cfg WhaleConfig

	mu     sync.Mutex
	trades map[string][]whaleTrade
	now    func() time.Time
}

// NewWhale creates the whale-following strategy with defaults applied.
func NewWhale(cfg WhaleConfig) *Whale {
	cfg.setDefaults()
	return &Whale{
		cfg:    cfg,
		trades: make(map[string][]whaleTrade),
		now:    time.Now,
	}
}

func (w *Whale) Tag() domain.StrategyTag {
	return domain.StrategyWhale
}

// RecordTrade feeds one observed trade into the aggregation window.
// Called by the reactor for every feed trade at or above the whale size;
// anything smaller is dropped here as a second line of defense.
func (w *Whale) RecordTrade(ev domain.TradeEvent) {
	if ev.Size < w.cfg.MinNotional {
		return
	}
	at := ev.Timestamp
	if at.IsZero() {
		at = w.now()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.trades[ev.AssetID] = append(w.trades[ev.AssetID], whaleTrade{
		notional: ev.Size,
		side:     ev.Side,
		at:       at,
	})
}

// netActivity returns net buy volume and large-trade count for an asset
// within the lookback window, pruning expired entries.
func (w *Whale) netActivity(assetID string) (netBuy float64, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.cfg.Lookback)
	kept := w.trades[assetID][:0]
	for _, t := range w.trades[assetID] {
		if t.at.Before(cutoff) {
			continue
		}
		kept = append(kept, t)
		count++
		if t.side == domain.TradeBuy {
			netBuy += t.notional
		} else {
			netBuy -= t.notional
		}
	}
	if len(kept) == 0 {
		delete(w.trades, assetID)
	} else {
		w.trades[assetID] = kept
	}
	return netBuy, count
}

// Scan signals only on net buying above both volume and count thresholds.
func (w *Whale) Scan(_ context.Context, markets []domain.Market) []domain.Opportunity {
	var opps []domain.Opportunity
	now := w.now().UTC()

	for _, m := range markets {
		if !m.PricesPopulated() || m.Liquidity < w.cfg.MinLiquidity {
			continue
		}
		for i, o := range m.Outcomes {
			netBuy, count := w.netActivity(o.TokenID)
			if netBuy < w.cfg.MinNetVolume || count < w.cfg.MinTrades {
				continue
			}

			est := w.EstimateProb(o.Price, netBuy)
			edge := est - o.Price
			if edge <= 0 {
				continue
			}

			conf := domain.ConfidenceStandard
			if netBuy >= w.cfg.MinNetVolume*3 {
				conf = domain.ConfidenceHigh
			}

			opps = append(opps, domain.Opportunity{
				Market:        m,
				Strategy:      domain.StrategyWhale,
				Side:          domain.SideYes,
				OutcomeIndex:  i,
				EntryPrice:    o.Price,
				EstimatedProb: est,
				Edge:          edge,
				Confidence:    conf,
				Rationale: fmt.Sprintf("net whale buying $%.0f across %d trades in %s",
					netBuy, count, w.cfg.Lookback),
				ScannedAt: now,
			})
		}
	}

	return opps
}

// EstimateProb is price plus a premium scaled by net buy volume, capped.
func (w *Whale) EstimateProb(price, netBuyVolume float64) float64 {
	premium := math.Min(netBuyVolume/w.cfg.PremiumDivisor, w.cfg.MaxPremium)
	return math.Min(price+premium, 0.95)
}

// ShouldExit uses the inherited default rule: whales don't tell us when
// they leave.
func (w *Whale) ShouldExit(pos domain.Position) (bool, string) {
	return DefaultShouldExit(pos)
}
