package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/edgebot/internal/application/execution"
	"github.com/alejandrodnm/edgebot/internal/application/strategy"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// Config tunes the reactor's trigger thresholds and cooldowns.
// Percent fields are fractions (0.05 = 5%).
type Config struct {
	QueueSize int // bounded event queue capacity, default 256

	DropTriggerPct  float64 // price drop that triggers a mean-reversion check, default 0.05
	SpikeTriggerPct float64 // price spike that triggers instant-exit checks, default 0.05

	MeanReversionCooldown time.Duration // per-asset, default 60s
	MeanWindow            int           // points averaged for the reversion target, default 10
	MinHistory            int           // points required before signaling, default 3
	MeanDeviationPct      float64       // required gap below the rolling mean, default 0.03
	MinEdge               float64       // minimum derived edge, default 0.03

	WhaleFollowCooldown   time.Duration // per-asset, default 30s
	WhaleMinNotional      float64       // forward-to-aggregation threshold, default 500
	InstantFollowNotional float64       // immediate-follow threshold, default 2500

	MinLiquidity  float64 // USDC floor for reactor-derived buys, default 1000
	PriceFloor    float64 // extreme-price filter lower bound, default 0.05
	PriceCeil     float64 // extreme-price filter upper bound, default 0.95
	TakeProfitPct float64 // instant-exit take profit, default 0.15
	ExitPriceHigh float64 // instant-exit extreme price, default 0.97
	ExitPriceLow  float64 // instant-exit extreme price, default 0.03

	// Arbitrage spread checks, rate-limited per market. The band diverges
	// from the scan strategy's profit band on purpose: both are policy.
	ArbCheckInterval time.Duration // default 5s
	ArbMinTotal      float64       // totals at or below read as unpopulated, default 0.80
	ArbMaxTotal      float64       // default 0.98
	ArbMinProfitPct  float64       // default 0.01
	ArbLegMin        float64       // default 0.02
	ArbLegMax        float64       // default 0.98
}

func (c *Config) setDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.DropTriggerPct <= 0 {
		c.DropTriggerPct = 0.05
	}
	if c.SpikeTriggerPct <= 0 {
		c.SpikeTriggerPct = 0.05
	}
	if c.MeanReversionCooldown <= 0 {
		c.MeanReversionCooldown = 60 * time.Second
	}
	if c.MeanWindow <= 0 {
		c.MeanWindow = 10
	}
	if c.MinHistory <= 0 {
		c.MinHistory = 3
	}
	if c.MeanDeviationPct <= 0 {
		c.MeanDeviationPct = 0.03
	}
	if c.MinEdge <= 0 {
		c.MinEdge = 0.03
	}
	if c.WhaleFollowCooldown <= 0 {
		c.WhaleFollowCooldown = 30 * time.Second
	}
	if c.WhaleMinNotional <= 0 {
		c.WhaleMinNotional = 500
	}
	if c.InstantFollowNotional <= 0 {
		c.InstantFollowNotional = 2500
	}
	if c.MinLiquidity <= 0 {
		c.MinLiquidity = 1000
	}
	if c.PriceFloor <= 0 {
		c.PriceFloor = 0.05
	}
	if c.PriceCeil <= 0 {
		c.PriceCeil = 0.95
	}
	if c.TakeProfitPct <= 0 {
		c.TakeProfitPct = 0.15
	}
	if c.ExitPriceHigh <= 0 {
		c.ExitPriceHigh = 0.97
	}
	if c.ExitPriceLow <= 0 {
		c.ExitPriceLow = 0.03
	}
	if c.ArbCheckInterval <= 0 {
		c.ArbCheckInterval = 5 * time.Second
	}
	if c.ArbMinTotal <= 0 {
		c.ArbMinTotal = 0.80
	}
	if c.ArbMaxTotal <= 0 {
		c.ArbMaxTotal = 0.98
	}
	if c.ArbMinProfitPct <= 0 {
		c.ArbMinProfitPct = 0.01
	}
	if c.ArbLegMin <= 0 {
		c.ArbLegMin = 0.02
	}
	if c.ArbLegMax <= 0 {
		c.ArbLegMax = 0.98
	}
}

// Stats are the reactor's trigger counters.
type Stats struct {
	PriceDropTrades   int
	WhaleFollowTrades int
	ArbTrades         int
	InstantExits      int
	EventsDropped     int
}

const historySize = 20

type assetState struct {
	history           []float64
	lastTradeAt       time.Time
	lastMeanReversion time.Time
	lastWhaleFollow   time.Time
}

type marketRef struct {
	marketID   string
	outcomeIdx int
}

// Reactor consumes typed feed events one at a time and turns them into
// trade signals under cooldown discipline. It owns all rolling state:
// per-asset price histories, the asset→(market, outcome) index, and the
// per-market arbitrage rate limiters. Strategies never touch this state.
//
// Disabling the reactor suppresses signal generation only; histories and
// whale aggregation keep accumulating so a re-enable starts warm.
type Reactor struct {
	cfg    Config
	exec   execution.Executor
	whale  *strategy.Whale
	ledger ports.Ledger

	events chan domain.FeedEvent

	mu          sync.Mutex
	enabled     bool
	assets      map[string]*assetState
	markets     map[string]domain.Market
	assetIndex  map[string]marketRef
	arbLimiters map[string]*rate.Limiter
	stats       Stats
	now         func() time.Time
}

// New creates the reactor. It starts enabled.
func New(cfg Config, exec execution.Executor, whale *strategy.Whale, ledger ports.Ledger) *Reactor {
	cfg.setDefaults()
	return &Reactor{
		cfg:         cfg,
		exec:        exec,
		whale:       whale,
		ledger:      ledger,
		events:      make(chan domain.FeedEvent, cfg.QueueSize),
		enabled:     true,
		assets:      make(map[string]*assetState),
		markets:     make(map[string]domain.Market),
		assetIndex:  make(map[string]marketRef),
		arbLimiters: make(map[string]*rate.Limiter),
		now:         time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (r *Reactor) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Enable turns signal generation back on.
func (r *Reactor) Enable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = true
}

// Disable suppresses signal generation. Bookkeeping continues so the
// price histories stay warm.
func (r *Reactor) Disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = false
}

// Enabled reports whether signal generation is active.
func (r *Reactor) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

// Stats returns a copy of the trigger counters.
func (r *Reactor) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// RegisterMarkets refreshes the tracked market set and the reverse index
// from tradable asset to (market, outcome). Called on every market refresh.
func (r *Reactor) RegisterMarkets(markets []domain.Market) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range markets {
		// Own the outcome slice: live price updates mutate it, and the
		// caller's copy is still being scanned elsewhere.
		m.Outcomes = append([]domain.Outcome(nil), m.Outcomes...)
		r.markets[m.ID] = m
		for i, o := range m.Outcomes {
			if o.TokenID == "" {
				continue
			}
			r.assetIndex[o.TokenID] = marketRef{marketID: m.ID, outcomeIdx: i}
		}
		if _, ok := r.arbLimiters[m.ID]; !ok {
			r.arbLimiters[m.ID] = rate.NewLimiter(rate.Every(r.cfg.ArbCheckInterval), 1)
		}
	}
}

// Push enqueues a feed event without blocking. When the queue is full the
// event is dropped and counted: stale reactions are worse than none.
func (r *Reactor) Push(ev domain.FeedEvent) bool {
	select {
	case r.events <- ev:
		return true
	default:
		r.mu.Lock()
		r.stats.EventsDropped++
		r.mu.Unlock()
		return false
	}
}

// Run consumes the event queue until ctx is cancelled. Events are
// processed strictly one at a time in arrival order.
func (r *Reactor) Run(ctx context.Context) error {
	slog.Info("reactor: running", "queue", r.cfg.QueueSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			switch e := ev.(type) {
			case domain.PriceEvent:
				r.HandlePriceUpdate(ctx, e)
			case domain.TradeEvent:
				r.HandleTradeUpdate(ctx, e)
			}
		}
	}
}

// HandlePriceUpdate processes one price notification: update rolling
// state, then (when enabled) check the drop/spike triggers and re-check
// the owning market for an arbitrage spread.
func (r *Reactor) HandlePriceUpdate(ctx context.Context, ev domain.PriceEvent) {
	if ev.Price <= 0 || ev.Price >= 1 {
		return
	}

	r.mu.Lock()
	st := r.assets[ev.AssetID]
	if st == nil {
		st = &assetState{}
		r.assets[ev.AssetID] = st
	}

	var prev float64
	if n := len(st.history); n > 0 {
		prev = st.history[n-1]
	}
	st.history = append(st.history, ev.Price)
	if len(st.history) > historySize {
		st.history = st.history[len(st.history)-historySize:]
	}

	ref, indexed := r.assetIndex[ev.AssetID]
	if indexed {
		m := r.markets[ref.marketID]
		if ref.outcomeIdx < len(m.Outcomes) {
			m.Outcomes[ref.outcomeIdx].Price = ev.Price
			r.markets[ref.marketID] = m
		}
	}
	enabled := r.enabled
	r.mu.Unlock()

	if !enabled {
		return
	}

	if prev > 0 {
		change := (ev.Price - prev) / prev
		if change <= -r.cfg.DropTriggerPct {
			r.checkMeanReversionBuy(ctx, ev.AssetID, ev.Price)
		} else if change >= r.cfg.SpikeTriggerPct {
			r.checkInstantExits(ctx, ev.AssetID, ev.Price)
		}
	}

	if indexed {
		r.checkArbitrage(ctx, ref.marketID)
	}
}

// HandleTradeUpdate processes one trade notification: whale-sized trades
// feed the aggregation window; very large buys trigger an instant follow.
func (r *Reactor) HandleTradeUpdate(ctx context.Context, ev domain.TradeEvent) {
	if ev.Size <= 0 {
		return
	}

	r.mu.Lock()
	st := r.assets[ev.AssetID]
	if st == nil {
		st = &assetState{}
		r.assets[ev.AssetID] = st
	}
	st.lastTradeAt = ev.Timestamp
	enabled := r.enabled
	r.mu.Unlock()

	// Aggregation is bookkeeping: it runs even when disabled.
	if ev.Size >= r.cfg.WhaleMinNotional {
		r.whale.RecordTrade(ev)
	}

	if !enabled {
		return
	}
	if ev.Size >= r.cfg.InstantFollowNotional && ev.Side == domain.TradeBuy {
		r.checkWhaleFollow(ctx, ev)
	}
}

func (r *Reactor) checkMeanReversionBuy(ctx context.Context, assetID string, price float64) {
	r.mu.Lock()
	st := r.assets[assetID]
	ref, indexed := r.assetIndex[assetID]
	var market domain.Market
	if indexed {
		market = r.markets[ref.marketID]
	}
	now := r.now()

	ok := st != nil && indexed &&
		now.Sub(st.lastMeanReversion) >= r.cfg.MeanReversionCooldown &&
		price > r.cfg.PriceFloor && price < r.cfg.PriceCeil &&
		market.Liquidity >= r.cfg.MinLiquidity &&
		len(st.history) >= r.cfg.MinHistory

	var mean, est, edge float64
	if ok {
		// Mean of the points before the one that just arrived.
		window := st.history[:len(st.history)-1]
		if len(window) > r.cfg.MeanWindow {
			window = window[len(window)-r.cfg.MeanWindow:]
		}
		for _, p := range window {
			mean += p
		}
		mean /= float64(len(window))
		est = mean
		if est > r.cfg.PriceCeil {
			est = r.cfg.PriceCeil
		}
		edge = est - price
		// Only an accepted signal consumes the cooldown.
		ok = mean > 0 &&
			(mean-price)/mean >= r.cfg.MeanDeviationPct &&
			edge >= r.cfg.MinEdge
	}
	if ok {
		st.lastMeanReversion = now
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	opp := domain.Opportunity{
		Market:        market,
		Strategy:      domain.StrategyValue,
		Side:          domain.SideYes,
		OutcomeIndex:  ref.outcomeIdx,
		EntryPrice:    price,
		EstimatedProb: est,
		Edge:          edge,
		Confidence:    domain.ConfidenceStandard,
		Rationale: fmt.Sprintf("sharp drop to %.3f, %.1f%% below %d-point mean %.3f",
			price, (mean-price)/mean*100, r.cfg.MeanWindow, mean),
		ScannedAt: now.UTC(),
	}

	pos, err := r.exec.ExecuteBuy(ctx, opp)
	if err != nil {
		slog.Warn("reactor: mean-reversion buy failed", "asset", assetID, "err", err)
		return
	}
	if pos != nil {
		r.mu.Lock()
		r.stats.PriceDropTrades++
		r.mu.Unlock()
		slog.Info("reactor: mean-reversion buy", "asset", assetID, "price", price)
	}
}

func (r *Reactor) checkInstantExits(ctx context.Context, assetID string, price float64) {
	open, err := r.ledger.OpenPositions(ctx)
	if err != nil {
		slog.Warn("reactor: open positions lookup failed", "err", err)
		return
	}

	for _, pos := range open {
		if pos.TokenID != assetID {
			continue
		}
		pos.MarkPrice(price)

		var reason string
		switch {
		case pos.PnLPercent() >= r.cfg.TakeProfitPct*100:
			reason = fmt.Sprintf("instant take profit at %.1f%%", pos.PnLPercent())
		case price >= r.cfg.ExitPriceHigh || price <= r.cfg.ExitPriceLow:
			reason = fmt.Sprintf("extreme price %.3f", price)
		default:
			continue
		}

		trade, err := r.exec.ExecuteSell(ctx, pos, reason)
		if err != nil {
			slog.Warn("reactor: instant exit failed", "position", pos.ID, "err", err)
			continue
		}
		if trade != nil {
			r.mu.Lock()
			r.stats.InstantExits++
			r.mu.Unlock()
		}
	}
}

func (r *Reactor) checkArbitrage(ctx context.Context, marketID string) {
	r.mu.Lock()
	limiter := r.arbLimiters[marketID]
	market, known := r.markets[marketID]
	now := r.now()
	r.mu.Unlock()

	if !known || limiter == nil || !limiter.Allow() {
		return
	}
	if !market.IsBinary() {
		return
	}

	total := market.TotalPrice()
	// Totals at or below the lower band read as not-yet-populated data,
	// not free money.
	if total <= r.cfg.ArbMinTotal || total >= r.cfg.ArbMaxTotal {
		return
	}
	if profit := (1 - total) / total; profit < r.cfg.ArbMinProfitPct {
		return
	}
	for _, o := range market.Outcomes {
		if o.Price <= r.cfg.ArbLegMin || o.Price >= r.cfg.ArbLegMax {
			return
		}
	}

	opp := domain.Opportunity{
		Market:           market,
		Strategy:         domain.StrategyArbitrage,
		Side:             domain.SideYes,
		OutcomeIndex:     -1,
		EntryPrice:       total,
		EstimatedProb:    1,
		Edge:             1 - total,
		Confidence:       domain.ConfidenceArbitrage,
		Rationale:        fmt.Sprintf("live spread: basket at %.4f", total),
		TotalCost:        total,
		GuaranteedProfit: 1 - total,
		ScannedAt:        now.UTC(),
	}

	positions, err := r.exec.ExecuteArbitrageBuy(ctx, opp)
	if err != nil {
		slog.Warn("reactor: arbitrage buy failed", "market", marketID, "err", err)
		return
	}
	if len(positions) > 0 {
		r.mu.Lock()
		r.stats.ArbTrades++
		r.mu.Unlock()
		slog.Info("reactor: live arbitrage executed", "market", marketID, "total", total)
	}
}

func (r *Reactor) checkWhaleFollow(ctx context.Context, ev domain.TradeEvent) {
	r.mu.Lock()
	st := r.assets[ev.AssetID]
	ref, indexed := r.assetIndex[ev.AssetID]
	var market domain.Market
	if indexed {
		market = r.markets[ref.marketID]
	}
	now := r.now()

	ok := st != nil && indexed &&
		now.Sub(st.lastWhaleFollow) >= r.cfg.WhaleFollowCooldown &&
		ev.Price > r.cfg.PriceFloor && ev.Price < r.cfg.PriceCeil &&
		market.Liquidity >= r.cfg.MinLiquidity
	if ok {
		st.lastWhaleFollow = now
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	est := r.whale.EstimateProb(ev.Price, ev.Size)
	edge := est - ev.Price
	if edge <= 0 {
		return
	}

	opp := domain.Opportunity{
		Market:        market,
		Strategy:      domain.StrategyWhale,
		Side:          domain.SideYes,
		OutcomeIndex:  ref.outcomeIdx,
		EntryPrice:    ev.Price,
		EstimatedProb: est,
		Edge:          edge,
		Confidence:    domain.ConfidenceHigh,
		Rationale:     fmt.Sprintf("instant follow: $%.0f buy at %.3f", ev.Size, ev.Price),
		ScannedAt:     now.UTC(),
	}

	pos, err := r.exec.ExecuteBuy(ctx, opp)
	if err != nil {
		slog.Warn("reactor: whale follow failed", "asset", ev.AssetID, "err", err)
		return
	}
	if pos != nil {
		r.mu.Lock()
		r.stats.WhaleFollowTrades++
		r.mu.Unlock()
		slog.Info("reactor: whale follow buy", "asset", ev.AssetID, "size", ev.Size)
	}
}
