package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// memLedger is an in-memory ports.Ledger for exercising the execution
// path without SQLite.
type memLedger struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	trades    []domain.Trade
	allocs    []domain.StrategyAllocation
	balance   float64
	peak      float64
	hasSnap   bool

	settleSellErr error // one-shot fault for the next SettleSell
}

func newMemLedger(balance float64) *memLedger {
	return &memLedger{
		positions: make(map[string]*domain.Position),
		balance:   balance,
		peak:      balance,
		hasSnap:   true,
	}
}

func (m *memLedger) CreatePosition(_ context.Context, pos domain.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[pos.ID] = &pos
	return nil
}

func (m *memLedger) UpdatePositionPrice(_ context.Context, id string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[id]; ok {
		pos.MarkPrice(price)
	}
	return nil
}

func (m *memLedger) ClosePosition(_ context.Context, id string, exitPrice, _ float64, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[id]
	if !ok {
		return fmt.Errorf("position %s not found", id)
	}
	return pos.Close(exitPrice, closedAt)
}

func (m *memLedger) OpenPositions(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Position
	for _, pos := range m.positions {
		if pos.IsOpen() {
			out = append(out, *pos)
		}
	}
	return out, nil
}

func (m *memLedger) OpenPositionsByStrategy(ctx context.Context, tag domain.StrategyTag) ([]domain.Position, error) {
	open, _ := m.OpenPositions(ctx)
	var out []domain.Position
	for _, pos := range open {
		if pos.Strategy == tag {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (m *memLedger) SaveTrade(_ context.Context, trade domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, trade)
	return nil
}

func (m *memLedger) SettleBuy(_ context.Context, positions []domain.Position, trades []domain.Trade, totalCost float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasSnap && totalCost != 0 {
		return fmt.Errorf("no balance snapshot")
	}
	for i := range positions {
		pos := positions[i]
		m.positions[pos.ID] = &pos
	}
	m.trades = append(m.trades, trades...)
	m.balance -= totalCost
	return nil
}

func (m *memLedger) SettleSell(_ context.Context, trade domain.Trade, proceeds float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settleSellErr != nil {
		err := m.settleSellErr
		m.settleSellErr = nil
		return err
	}
	pos, ok := m.positions[trade.PositionID]
	if !ok {
		return fmt.Errorf("position %s not found", trade.PositionID)
	}
	if err := pos.Close(trade.Price, trade.ExecutedAt); err != nil {
		return err
	}
	m.trades = append(m.trades, trade)
	m.balance += proceeds
	return nil
}

func (m *memLedger) Allocations(_ context.Context) ([]domain.StrategyAllocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.StrategyAllocation(nil), m.allocs...), nil
}

func (m *memLedger) UpdateAllocation(_ context.Context, alloc domain.StrategyAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.allocs {
		if m.allocs[i].Strategy == alloc.Strategy {
			m.allocs[i] = alloc
			return nil
		}
	}
	m.allocs = append(m.allocs, alloc)
	return nil
}

func (m *memLedger) SaveSnapshot(_ context.Context, balance, peak float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balance = balance
	m.peak = peak
	m.hasSnap = true
	return nil
}

func (m *memLedger) LoadSnapshot(_ context.Context) (float64, float64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance, m.peak, m.hasSnap, nil
}

func (m *memLedger) Stats(_ context.Context) (domain.LedgerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := domain.LedgerStats{Trades: len(m.trades)}
	wins, sells := 0, 0
	for _, tr := range m.trades {
		if tr.Type == domain.TradeSell {
			sells++
			stats.TotalPnL += tr.RealizedPnL
			if tr.RealizedPnL > 0 {
				wins++
			}
		}
	}
	if sells > 0 {
		stats.WinRate = float64(wins) / float64(sells)
	}
	return stats, nil
}

func (m *memLedger) Close() error { return nil }

// recordingNotifier captures published notifications.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []domain.Notification
}

func (n *recordingNotifier) Notify(_ context.Context, msg domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func binaryMarket(id string, yes, no float64) domain.Market {
	return domain.Market{
		ID:       id,
		Question: "Will it happen?",
		Category: "politics",
		Active:   true,
		Outcomes: []domain.Outcome{
			{Name: "Yes", TokenID: id + "-yes", Price: yes},
			{Name: "No", TokenID: id + "-no", Price: no},
		},
		Liquidity: 10000,
	}
}

func valueOpp(m domain.Market, edge float64) domain.Opportunity {
	price := m.Outcomes[0].Price
	return domain.Opportunity{
		Market:        m,
		Strategy:      domain.StrategyValue,
		Side:          domain.SideYes,
		OutcomeIndex:  0,
		EntryPrice:    price,
		EstimatedProb: price + edge,
		Edge:          edge,
		Confidence:    domain.ConfidenceStandard,
		Rationale:     "test opportunity",
		ScannedAt:     time.Now(),
	}
}

func arbOpp(m domain.Market) domain.Opportunity {
	total := m.TotalPrice()
	return domain.Opportunity{
		Market:           m,
		Strategy:         domain.StrategyArbitrage,
		Side:             domain.SideYes,
		OutcomeIndex:     -1,
		EntryPrice:       total,
		EstimatedProb:    1,
		Edge:             1 - total,
		Confidence:       domain.ConfidenceArbitrage,
		Rationale:        "basket under 1.0",
		TotalCost:        total,
		GuaranteedProfit: 1 - total,
		ScannedAt:        time.Now(),
	}
}
