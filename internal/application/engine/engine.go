package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/execution"
	"github.com/alejandrodnm/edgebot/internal/application/strategy"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// MarketSink receives the refreshed market set each cycle. Implemented by
// the reactor so its asset index tracks market discovery.
type MarketSink interface {
	RegisterMarkets(markets []domain.Market)
}

// Config contains the scan loop configuration.
type Config struct {
	ScanInterval    time.Duration // default 60s
	MaxBuysPerCycle int           // cap on new entries per cycle, default 5
	DryRun          bool          // run exactly one cycle, execute nothing
}

func (c *Config) setDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 60 * time.Second
	}
	if c.MaxBuysPerCycle <= 0 {
		c.MaxBuysPerCycle = 5
	}
}

// Engine is the periodic scan orchestrator: fetch markets, ask every
// strategy for opportunities, rank them, execute the best, then run the
// exit pass over open positions. Per-item failures are logged and skipped;
// a cycle never aborts halfway through the market list.
type Engine struct {
	cfg        Config
	markets    ports.MarketProvider
	prices     ports.PriceSource
	ledger     ports.Ledger
	exec       execution.Executor
	strategies map[domain.StrategyTag]strategy.Strategy
	sink       MarketSink
}

// New creates an Engine. sink may be nil when no reactor is attached;
// prices may be nil, positions then keep their stored marks.
func New(
	cfg Config,
	markets ports.MarketProvider,
	prices ports.PriceSource,
	ledger ports.Ledger,
	exec execution.Executor,
	strategies []strategy.Strategy,
	sink MarketSink,
) *Engine {
	cfg.setDefaults()
	byTag := make(map[domain.StrategyTag]strategy.Strategy, len(strategies))
	for _, s := range strategies {
		byTag[s.Tag()] = s
	}
	return &Engine{
		cfg:        cfg,
		markets:    markets,
		prices:     prices,
		ledger:     ledger,
		exec:       exec,
		strategies: byTag,
		sink:       sink,
	}
}

// CycleResult summarizes one scan cycle.
type CycleResult struct {
	Markets       int
	Opportunities []domain.Opportunity
	Buys          int
	Exits         int
	Duration      time.Duration
}

// Run executes scan cycles until the context is cancelled.
// In dry-run mode exactly one cycle runs and nothing is executed.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting",
		"interval", e.cfg.ScanInterval,
		"strategies", len(e.strategies),
		"dry_run", e.cfg.DryRun,
	)

	if err := e.runCycle(ctx); err != nil {
		slog.Error("scan cycle failed", "err", err)
		if e.cfg.DryRun {
			return err
		}
	}
	if e.cfg.DryRun {
		return nil
	}

	ticker := time.NewTicker(e.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("engine stopped")
			return nil
		case <-ticker.C:
			if err := e.runCycle(ctx); err != nil {
				slog.Error("scan cycle failed", "err", err)
			}
		}
	}
}

// RunOnce executes a single cycle and returns its result.
func (e *Engine) RunOnce(ctx context.Context) (*CycleResult, error) {
	return e.cycle(ctx)
}

func (e *Engine) runCycle(ctx context.Context) error {
	result, err := e.cycle(ctx)
	if err != nil {
		return err
	}
	slog.Info("scan cycle complete",
		"markets", result.Markets,
		"opportunities", len(result.Opportunities),
		"buys", result.Buys,
		"exits", result.Exits,
		"duration", result.Duration.Round(time.Millisecond),
	)
	return nil
}

func (e *Engine) cycle(ctx context.Context) (*CycleResult, error) {
	start := time.Now()

	markets, err := e.markets.FetchMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine.cycle: fetch markets: %w", err)
	}
	if e.sink != nil {
		e.sink.RegisterMarkets(markets)
	}

	opps := e.scanAll(ctx, markets)

	result := &CycleResult{
		Markets:       len(markets),
		Opportunities: opps,
		Duration:      time.Since(start),
	}
	if e.cfg.DryRun {
		return result, nil
	}

	result.Buys = e.executePass(ctx, opps)
	result.Exits = e.exitPass(ctx)
	result.Duration = time.Since(start)
	return result, nil
}

// scanAll collects opportunities from every strategy and ranks them by
// confidence-weighted edge.
func (e *Engine) scanAll(ctx context.Context, markets []domain.Market) []domain.Opportunity {
	var opps []domain.Opportunity
	for _, s := range e.strategies {
		found := s.Scan(ctx, markets)
		slog.Debug("strategy scanned",
			"strategy", s.Tag().String(), "opportunities", len(found))
		opps = append(opps, found...)
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].Score() > opps[j].Score()
	})
	return opps
}

// executePass dispatches ranked opportunities to the gateway until the
// per-cycle buy cap is hit. Gate rejections come back as nil results and
// don't count against the cap.
func (e *Engine) executePass(ctx context.Context, opps []domain.Opportunity) int {
	buys := 0
	for _, opp := range opps {
		if buys >= e.cfg.MaxBuysPerCycle {
			break
		}

		if opp.IsArbitrage() {
			positions, err := e.exec.ExecuteArbitrageBuy(ctx, opp)
			if err != nil {
				slog.Warn("arbitrage execution failed",
					"market", opp.Market.ID, "err", err)
				continue
			}
			if len(positions) > 0 {
				buys++
			}
			continue
		}

		pos, err := e.exec.ExecuteBuy(ctx, opp)
		if err != nil {
			slog.Warn("buy execution failed",
				"market", opp.Market.ID, "strategy", opp.Strategy.String(), "err", err)
			continue
		}
		if pos != nil {
			buys++
		}
	}
	return buys
}

// exitPass re-marks every open position and asks its owning strategy
// whether to close it. Positions that stay open get their refreshed mark
// persisted.
func (e *Engine) exitPass(ctx context.Context) int {
	open, err := e.ledger.OpenPositions(ctx)
	if err != nil {
		slog.Warn("exit pass: open positions lookup failed", "err", err)
		return 0
	}

	exits := 0
	for _, pos := range open {
		if e.prices != nil {
			if last, ok := e.prices.LastPrice(pos.TokenID); ok {
				pos.MarkPrice(last)
			}
		}

		exit, reason := e.shouldExit(pos)
		if exit {
			trade, err := e.exec.ExecuteSell(ctx, pos, reason)
			if err != nil {
				slog.Warn("exit failed", "position", pos.ID, "err", err)
				continue
			}
			if trade != nil {
				exits++
				continue
			}
		}

		if err := e.ledger.UpdatePositionPrice(ctx, pos.ID, pos.CurrentPrice); err != nil {
			slog.Warn("price update failed", "position", pos.ID, "err", err)
		}
	}
	return exits
}

// shouldExit routes to the owning strategy's exit rule. The tag set is
// closed: an unknown tag can only mean corrupted stored data, and falls
// back to the default rule.
func (e *Engine) shouldExit(pos domain.Position) (bool, string) {
	switch pos.Strategy {
	case domain.StrategyArbitrage, domain.StrategyValue, domain.StrategyWhale:
		if s, ok := e.strategies[pos.Strategy]; ok {
			return s.ShouldExit(pos)
		}
	}
	return strategy.DefaultShouldExit(pos)
}
