package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
	"github.com/google/uuid"
)

// BrokerVenue executes against a real broker and records results in the
// ledger. Positions are built from actual fills, never from the quoted
// price: AvgPrice and FilledSize come back from the exchange.
type BrokerVenue struct {
	broker ports.Broker
	ledger ports.Ledger
	now    func() time.Time
}

// NewBrokerVenue creates the real execution backend.
func NewBrokerVenue(broker ports.Broker, ledger ports.Ledger) *BrokerVenue {
	return &BrokerVenue{broker: broker, ledger: ledger, now: time.Now}
}

func (b *BrokerVenue) buy(ctx context.Context, opp domain.Opportunity, size float64) (*domain.Position, *domain.Trade, error) {
	res, err := b.broker.PlaceMarketOrder(ctx, ports.OrderRequest{
		TokenID: opp.Outcome().TokenID,
		Side:    domain.TradeBuy,
		SizeUSD: size,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("broker.buy: place order: %w", err)
	}
	if !res.Filled || res.FilledSize <= 0 || res.AvgPrice <= 0 {
		slog.Warn("broker: buy not filled",
			"market", opp.Market.ID, "token", opp.Outcome().TokenID)
		return nil, nil, nil
	}

	cost := res.FilledSize
	shares := cost / res.AvgPrice
	now := b.now().UTC()

	pos := domain.Position{
		ID:           uuid.New().String(),
		MarketID:     opp.Market.ID,
		TokenID:      opp.Outcome().TokenID,
		OutcomeIndex: opp.OutcomeIndex,
		Question:     opp.Market.Question,
		Category:     opp.Market.Category,
		Strategy:     opp.Strategy,
		Side:         opp.Side,
		EntryPrice:   res.AvgPrice,
		CurrentPrice: res.AvgPrice,
		Size:         cost,
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
		Price:      res.AvgPrice,
		Size:       cost,
		Shares:     shares,
		ExecutedAt: now,
	}

	// The exchange already owns the cash movement: the settle records
	// position and trade atomically, the balance comes from the broker.
	if err := b.ledger.SettleBuy(ctx, []domain.Position{pos}, []domain.Trade{trade}, 0); err != nil {
		return nil, nil, fmt.Errorf("broker.buy: settle: %w", err)
	}
	if err := b.refreshBalance(ctx); err != nil {
		slog.Warn("broker: balance refresh after buy failed", "err", err)
	}

	slog.Info("broker: bought",
		"market", domain.TruncateQuestion(opp.Market.Question, 40),
		"strategy", opp.Strategy.String(),
		"price", fmt.Sprintf("%.4f", res.AvgPrice),
		"cost", fmt.Sprintf("$%.2f", cost),
	)
	return &pos, &trade, nil
}

func (b *BrokerVenue) sell(ctx context.Context, pos domain.Position, reason string) (*domain.Trade, error) {
	res, err := b.broker.PlaceMarketOrder(ctx, ports.OrderRequest{
		TokenID: pos.TokenID,
		Side:    domain.TradeSell,
		Shares:  pos.Shares,
	})
	if err != nil {
		return nil, fmt.Errorf("broker.sell: place order: %w", err)
	}
	if !res.Filled || res.AvgPrice <= 0 {
		slog.Warn("broker: sell not filled", "position", pos.ID, "token", pos.TokenID)
		return nil, nil
	}

	soldShares := res.FilledSize
	if soldShares <= 0 {
		soldShares = pos.Shares
	}
	proceeds := soldShares * res.AvgPrice
	realized := res.AvgPrice*pos.Shares - pos.Cost
	now := b.now().UTC()

	trade := domain.Trade{
		ID:          uuid.New().String(),
		PositionID:  pos.ID,
		MarketID:    pos.MarketID,
		TokenID:     pos.TokenID,
		Type:        domain.TradeSell,
		Strategy:    pos.Strategy,
		Side:        pos.Side,
		Price:       res.AvgPrice,
		Size:        proceeds,
		Shares:      soldShares,
		RealizedPnL: realized,
		ExecutedAt:  now,
	}

	if err := b.ledger.SettleSell(ctx, trade, 0); err != nil {
		return nil, fmt.Errorf("broker.sell: settle: %w", err)
	}
	if err := b.refreshBalance(ctx); err != nil {
		slog.Warn("broker: balance refresh after sell failed", "err", err)
	}

	slog.Info("broker: sold",
		"market", domain.TruncateQuestion(pos.Question, 40),
		"reason", reason,
		"price", fmt.Sprintf("%.4f", res.AvgPrice),
		"pnl", fmt.Sprintf("$%.2f", realized),
	)
	return &trade, nil
}

// arbitrageBuy submits one order per outcome. A leg that fails to fill
// aborts the remaining legs; legs filled at the exchange are still
// recorded and exit through the normal sell path.
func (b *BrokerVenue) arbitrageBuy(ctx context.Context, opp domain.Opportunity, size float64) ([]domain.Position, []domain.Trade, error) {
	total := opp.Market.TotalPrice()
	if total <= 0 {
		return nil, nil, nil
	}

	positions := make([]domain.Position, 0, len(opp.Market.Outcomes))
	trades := make([]domain.Trade, 0, len(opp.Market.Outcomes))

	var legErr error
	for i, o := range opp.Market.Outcomes {
		legSize := size * o.Price / total
		res, err := b.broker.PlaceMarketOrder(ctx, ports.OrderRequest{
			TokenID: o.TokenID,
			Side:    domain.TradeBuy,
			SizeUSD: legSize,
		})
		if err != nil {
			legErr = fmt.Errorf("broker.arbitrageBuy: leg %d: %w", i, err)
			break
		}
		if !res.Filled || res.FilledSize <= 0 || res.AvgPrice <= 0 {
			slog.Warn("broker: arbitrage leg not filled, aborting basket",
				"market", opp.Market.ID, "leg", i)
			break
		}

		cost := res.FilledSize
		shares := cost / res.AvgPrice
		now := b.now().UTC()

		pos := domain.Position{
			ID:           uuid.New().String(),
			MarketID:     opp.Market.ID,
			TokenID:      o.TokenID,
			OutcomeIndex: i,
			Question:     opp.Market.Question,
			Category:     opp.Market.Category,
			Strategy:     domain.StrategyArbitrage,
			Side:         legSide(i),
			EntryPrice:   res.AvgPrice,
			CurrentPrice: res.AvgPrice,
			Size:         cost,
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
			Strategy:   domain.StrategyArbitrage,
			Side:       pos.Side,
			Price:      res.AvgPrice,
			Size:       cost,
			Shares:     shares,
			ExecutedAt: now,
		}
		positions = append(positions, pos)
		trades = append(trades, trade)
	}

	if len(positions) > 0 {
		if err := b.ledger.SettleBuy(ctx, positions, trades, 0); err != nil {
			return nil, nil, fmt.Errorf("broker.arbitrageBuy: settle: %w", err)
		}
		if err := b.refreshBalance(ctx); err != nil {
			slog.Warn("broker: balance refresh after basket failed", "err", err)
		}
	}
	return positions, trades, legErr
}

// refreshBalance re-reads the exchange balance into the snapshot so the
// sizer works from real numbers, not a simulated running total.
func (b *BrokerVenue) refreshBalance(ctx context.Context) error {
	balance, err := b.broker.Balance(ctx)
	if err != nil {
		return fmt.Errorf("broker.refreshBalance: %w", err)
	}
	_, peak, ok, err := b.ledger.LoadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("broker.refreshBalance: load snapshot: %w", err)
	}
	if !ok || balance > peak {
		peak = balance
	}
	if err := b.ledger.SaveSnapshot(ctx, balance, peak); err != nil {
		return fmt.Errorf("broker.refreshBalance: save snapshot: %w", err)
	}
	return nil
}
