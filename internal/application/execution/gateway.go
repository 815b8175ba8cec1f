package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/portfolio"
	"github.com/alejandrodnm/edgebot/internal/application/risk"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// Gateway implements Executor. It centralizes the dedup guards, consults
// the sizer, and routes to whichever venue was selected at startup.
// All guards run synchronously before the venue call (the first await),
// so a second notification for the same key during the call is rejected,
// not raced.
type Gateway struct {
	venue     venue
	sizer     *risk.Sizer
	portfolio *portfolio.Service
	coord     *Coordinator
	notifier  ports.Notifier
}

// NewGateway wires the gateway to a venue. notifier may be nil.
func NewGateway(v venue, sizer *risk.Sizer, pf *portfolio.Service, coord *Coordinator, notifier ports.Notifier) *Gateway {
	return &Gateway{venue: v, sizer: sizer, portfolio: pf, coord: coord, notifier: notifier}
}

// NewPaperGateway is the paper-mode constructor.
func NewPaperGateway(paper *Paper, sizer *risk.Sizer, pf *portfolio.Service, coord *Coordinator, notifier ports.Notifier) *Gateway {
	return NewGateway(paper, sizer, pf, coord, notifier)
}

// NewRealGateway is the real-mode constructor.
func NewRealGateway(broker *BrokerVenue, sizer *risk.Sizer, pf *portfolio.Service, coord *Coordinator, notifier ports.Notifier) *Gateway {
	return NewGateway(broker, sizer, pf, coord, notifier)
}

// CanTrade reports whether new buys are currently permitted.
func (g *Gateway) CanTrade(ctx context.Context) (risk.Decision, error) {
	snap, err := g.portfolio.Snapshot(ctx)
	if err != nil {
		return risk.Decision{}, fmt.Errorf("execution.CanTrade: %w", err)
	}
	return g.sizer.CanTrade(snap), nil
}

// PositionSize sizes an opportunity against the current portfolio.
func (g *Gateway) PositionSize(ctx context.Context, opp domain.Opportunity) (float64, error) {
	snap, err := g.portfolio.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("execution.PositionSize: %w", err)
	}
	return g.sizer.Size(opp, snap), nil
}

// ExecuteBuy gates, sizes, deduplicates and dispatches a single-leg buy.
func (g *Gateway) ExecuteBuy(ctx context.Context, opp domain.Opportunity) (*domain.Position, error) {
	snap, err := g.portfolio.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("execution.ExecuteBuy: snapshot: %w", err)
	}

	if d := g.sizer.CanTrade(snap); !d.Allowed {
		slog.Debug("buy blocked", "reason", d.Reason, "market", opp.Market.ID)
		return nil, nil
	}

	// Invariant: at most one open position per (marketId, side).
	if snap.HasOpenPosition(opp.Market.ID, opp.Side) {
		slog.Debug("buy skipped: open position exists",
			"market", opp.Market.ID, "side", opp.Side)
		return nil, nil
	}

	size := g.sizer.Size(opp, snap)
	if size <= 0 {
		return nil, nil
	}

	// Dedup guard, taken before the venue call can suspend.
	if !g.coord.BeginBuy(opp.Market.ID, opp.Side) {
		slog.Debug("buy skipped: cooldown", "market", opp.Market.ID, "side", opp.Side)
		return nil, nil
	}

	pos, trade, err := g.venue.buy(ctx, opp, size)
	if err != nil || pos == nil {
		g.coord.ReleaseBuy(opp.Market.ID, opp.Side)
		if err != nil {
			return nil, fmt.Errorf("execution.ExecuteBuy: %s: %w", opp.Market.ID, err)
		}
		return nil, nil
	}

	g.notify(ctx, domain.Notification{
		Kind:     domain.NotifyTradeExecuted,
		Position: *pos,
		Trade:    *trade,
		Reason:   opp.Rationale,
		At:       time.Now().UTC(),
	})
	return pos, nil
}

// ExecuteSell closes an open position. Sells bypass the buy gate: exits
// are permitted even in sell-only mode.
func (g *Gateway) ExecuteSell(ctx context.Context, pos domain.Position, reason string) (*domain.Trade, error) {
	if !pos.IsOpen() {
		return nil, nil
	}
	if !g.coord.BeginSell(pos.ID) {
		slog.Debug("sell skipped: already in flight", "position", pos.ID)
		return nil, nil
	}
	defer g.coord.FinishSell(pos.ID)

	trade, err := g.venue.sell(ctx, pos, reason)
	if err != nil {
		return nil, fmt.Errorf("execution.ExecuteSell: %s: %w", pos.ID, err)
	}
	if trade == nil {
		return nil, nil
	}

	g.notify(ctx, domain.Notification{
		Kind:     domain.NotifyPositionExited,
		Position: pos,
		Trade:    *trade,
		Reason:   reason,
		At:       time.Now().UTC(),
	})
	return trade, nil
}

// ExecuteArbitrageBuy buys the full outcome basket of an arbitrage
// opportunity. The dedup key is the market with the YES side: one basket
// per market at a time.
func (g *Gateway) ExecuteArbitrageBuy(ctx context.Context, opp domain.Opportunity) ([]domain.Position, error) {
	if !opp.IsArbitrage() {
		return nil, fmt.Errorf("execution.ExecuteArbitrageBuy: not an arbitrage opportunity")
	}

	snap, err := g.portfolio.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("execution.ExecuteArbitrageBuy: snapshot: %w", err)
	}

	if d := g.sizer.CanTrade(snap); !d.Allowed {
		slog.Debug("arbitrage buy blocked", "reason", d.Reason, "market", opp.Market.ID)
		return nil, nil
	}
	if snap.HasOpenPosition(opp.Market.ID, opp.Side) {
		return nil, nil
	}

	size := g.sizer.Size(opp, snap)
	if size <= 0 {
		return nil, nil
	}

	if !g.coord.BeginBuy(opp.Market.ID, opp.Side) {
		return nil, nil
	}

	positions, trades, err := g.venue.arbitrageBuy(ctx, opp, size)
	if err != nil || len(positions) == 0 {
		g.coord.ReleaseBuy(opp.Market.ID, opp.Side)
		if err != nil {
			return nil, fmt.Errorf("execution.ExecuteArbitrageBuy: %s: %w", opp.Market.ID, err)
		}
		return nil, nil
	}

	for i := range positions {
		n := domain.Notification{
			Kind:     domain.NotifyTradeExecuted,
			Position: positions[i],
			Reason:   opp.Rationale,
			At:       time.Now().UTC(),
		}
		if i < len(trades) {
			n.Trade = trades[i]
		}
		g.notify(ctx, n)
	}
	return positions, nil
}

func (g *Gateway) notify(ctx context.Context, n domain.Notification) {
	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(ctx, n); err != nil {
		slog.Warn("notifier error", "kind", n.Kind, "err", err)
	}
}
