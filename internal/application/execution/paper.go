package execution

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
	"github.com/google/uuid"
)

// PaperConfig models execution friction in simulation.
type PaperConfig struct {
	FeeRate  float64 // flat fee on gross notional, default 0.02
	Spread   float64 // half-spread paid on top of mid, default 0.01
	Slippage float64 // market-impact allowance, default 0.005
}

func (c *PaperConfig) setDefaults() {
	if c.FeeRate <= 0 {
		c.FeeRate = 0.02
	}
	if c.Spread <= 0 {
		c.Spread = 0.01
	}
	if c.Slippage <= 0 {
		c.Slippage = 0.005
	}
}

// Paper simulates fills against mid prices with spread, slippage and fees.
// Buys execute at mid*(1+spread+slippage) capped at 0.99; sells at
// mid*(1-spread-slippage) floored at 0.01. Cost (gross deducted from the
// balance, fees included) and Size (net invested) are written separately
// so P&L is always currentValue - cost.
type Paper struct {
	cfg    PaperConfig
	ledger ports.Ledger
	now    func() time.Time
}

// NewPaper creates the paper venue.
func NewPaper(cfg PaperConfig, ledger ports.Ledger) *Paper {
	cfg.setDefaults()
	return &Paper{cfg: cfg, ledger: ledger, now: time.Now}
}

func (p *Paper) buyPrice(mid float64) float64 {
	return math.Min(mid*(1+p.cfg.Spread+p.cfg.Slippage), 0.99)
}

func (p *Paper) sellPrice(mid float64) float64 {
	return math.Max(mid*(1-p.cfg.Spread-p.cfg.Slippage), 0.01)
}

func (p *Paper) buy(ctx context.Context, opp domain.Opportunity, size float64) (*domain.Position, *domain.Trade, error) {
	exec := p.buyPrice(opp.EntryPrice)
	cost := size
	fees := cost * p.cfg.FeeRate
	net := cost - fees
	shares := net / exec
	now := p.now().UTC()

	pos := domain.Position{
		ID:           uuid.New().String(),
		MarketID:     opp.Market.ID,
		TokenID:      opp.Outcome().TokenID,
		OutcomeIndex: opp.OutcomeIndex,
		Question:     opp.Market.Question,
		Category:     opp.Market.Category,
		Strategy:     opp.Strategy,
		Side:         opp.Side,
		EntryPrice:   exec,
		CurrentPrice: exec,
		Size:         net,
		Cost:         cost,
		Shares:       shares,
		OpenedAt:     now,
		Status:       domain.PositionOpen,
	}
	trade := domain.Trade{
		ID:         uuid.New().String(),
		PositionID: pos.ID,
		MarketID:   pos.MarketID,
		TokenID:    pos.TokenID,
		Type:       domain.TradeBuy,
		Strategy:   pos.Strategy,
		Side:       pos.Side,
		Price:      exec,
		Size:       net,
		Shares:     shares,
		Fees:       fees,
		ExecutedAt: now,
	}

	if err := p.ledger.SettleBuy(ctx, []domain.Position{pos}, []domain.Trade{trade}, cost); err != nil {
		return nil, nil, fmt.Errorf("paper.buy: settle: %w", err)
	}

	slog.Info("paper: bought",
		"market", domain.TruncateQuestion(opp.Market.Question, 40),
		"strategy", opp.Strategy.String(),
		"price", fmt.Sprintf("%.4f", exec),
		"cost", fmt.Sprintf("$%.2f", cost),
		"shares", fmt.Sprintf("%.2f", shares),
	)
	return &pos, &trade, nil
}

func (p *Paper) sell(ctx context.Context, pos domain.Position, reason string) (*domain.Trade, error) {
	exec := p.sellPrice(pos.CurrentPrice)
	gross := pos.Shares * exec
	fees := gross * p.cfg.FeeRate
	proceeds := gross - fees
	realized := exec*pos.Shares - pos.Cost
	now := p.now().UTC()

	trade := domain.Trade{
		ID:          uuid.New().String(),
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		TokenID:     pos.TokenID,
		Type:        domain.TradeSell,
		Strategy:    pos.Strategy,
		Side:        pos.Side,
		Price:       exec,
		Size:        proceeds,
		Shares:      pos.Shares,
		Fees:        fees,
		RealizedPnL: realized,
		ExecutedAt:  now,
	}

	if err := p.ledger.SettleSell(ctx, trade, proceeds); err != nil {
		return nil, fmt.Errorf("paper.sell: settle: %w", err)
	}

	slog.Info("paper: sold",
		"market", domain.TruncateQuestion(pos.Question, 40),
		"reason", reason,
		"price", fmt.Sprintf("%.4f", exec),
		"pnl", fmt.Sprintf("$%.2f", realized),
	)
	return &trade, nil
}

// arbitrageBuy purchases whole outcome sets: equal share counts across all
// outcomes so the basket pays 1.0 per set at resolution. Cost and shares
// are allocated proportionally per leg.
func (p *Paper) arbitrageBuy(ctx context.Context, opp domain.Opportunity, size float64) ([]domain.Position, []domain.Trade, error) {
	var perSet float64
	legPrices := make([]float64, len(opp.Market.Outcomes))
	for i, o := range opp.Market.Outcomes {
		legPrices[i] = p.buyPrice(o.Price)
		perSet += legPrices[i]
	}
	if perSet <= 0 {
		return nil, nil, nil
	}

	// whole sets affordable: per-set cost grossed up for fees
	sets := math.Floor(size * (1 - p.cfg.FeeRate) / perSet)
	if sets < 1 {
		slog.Debug("paper: arbitrage budget below one set",
			"market", opp.Market.ID, "budget", fmt.Sprintf("$%.2f", size))
		return nil, nil, nil
	}

	now := p.now().UTC()
	positions := make([]domain.Position, 0, len(opp.Market.Outcomes))
	trades := make([]domain.Trade, 0, len(opp.Market.Outcomes))
	totalCost := 0.0

	for i, o := range opp.Market.Outcomes {
		exec := legPrices[i]
		net := sets * exec
		cost := net / (1 - p.cfg.FeeRate)
		fees := cost - net
		totalCost += cost

		pos := domain.Position{
			ID:           uuid.New().String(),
			MarketID:     opp.Market.ID,
			TokenID:      o.TokenID,
			OutcomeIndex: i,
			Question:     opp.Market.Question,
			Category:     opp.Market.Category,
			Strategy:     domain.StrategyArbitrage,
			Side:         legSide(i),
			EntryPrice:   exec,
			CurrentPrice: exec,
			Size:         net,
			Cost:         cost,
			Shares:       sets,
			OpenedAt:     now,
			Status:       domain.PositionOpen,
		}
		trade := domain.Trade{
			ID:         uuid.New().String(),
			PositionID: pos.ID,
			MarketID:   pos.MarketID,
			TokenID:    pos.TokenID,
			Type:       domain.TradeBuy,
			Strategy:   domain.StrategyArbitrage,
			Side:       pos.Side,
			Price:      exec,
			Size:       net,
			Shares:     sets,
			Fees:       fees,
			ExecutedAt: now,
		}
		positions = append(positions, pos)
		trades = append(trades, trade)
	}

	if err := p.ledger.SettleBuy(ctx, positions, trades, totalCost); err != nil {
		return nil, nil, fmt.Errorf("paper.arbitrageBuy: settle: %w", err)
	}

	slog.Info("paper: arbitrage basket bought",
		"market", domain.TruncateQuestion(opp.Market.Question, 40),
		"sets", fmt.Sprintf("%.0f", sets),
		"cost", fmt.Sprintf("$%.2f", totalCost),
		"guaranteed", fmt.Sprintf("%.4f/set", opp.GuaranteedProfit),
	)
	return positions, trades, nil
}

// legSide maps a basket leg to its position side so the one-open-position
// per (marketID, side) rule holds across a binary basket.
func legSide(outcomeIdx int) domain.Side {
	if outcomeIdx == 1 {
		return domain.SideNo
	}
	return domain.SideYes
}
