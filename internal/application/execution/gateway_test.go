package execution

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/portfolio"
	"github.com/alejandrodnm/edgebot/internal/application/risk"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGateway(t *testing.T, balance float64) (*Gateway, *memLedger, *recordingNotifier, *Coordinator) {
	t.Helper()
	ledger := newMemLedger(balance)
	paper := NewPaper(PaperConfig{}, ledger)
	sizer := risk.New(risk.Config{}, domain.ModePaper)
	pf := portfolio.New(ledger, nil, balance)
	coord := NewCoordinator(5 * time.Second)
	notifier := &recordingNotifier{}
	return NewPaperGateway(paper, sizer, pf, coord, notifier), ledger, notifier, coord
}

func TestGatewayExecuteBuy(t *testing.T) {
	gw, ledger, notifier, _ := newTestGateway(t, 1000)
	ctx := context.Background()

	opp := valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08)
	pos, err := gw.ExecuteBuy(ctx, opp)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, domain.StrategyValue, pos.Strategy)
	assert.Len(t, ledger.trades, 1)

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, domain.NotifyTradeExecuted, notifier.sent[0].Kind)
	assert.Equal(t, pos.ID, notifier.sent[0].Position.ID)
}

func TestGatewayBuyDedup(t *testing.T) {
	gw, ledger, _, coord := newTestGateway(t, 1000)
	ctx := context.Background()

	// A buy on the same key is already marked as in flight: the gateway
	// must bail before touching the venue.
	opp := valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08)
	require.True(t, coord.BeginBuy(opp.Market.ID, opp.Side))

	pos, err := gw.ExecuteBuy(ctx, opp)
	require.NoError(t, err)
	assert.Nil(t, pos, "duplicate key rejected")
	assert.Empty(t, ledger.trades, "venue never reached")
}

func TestGatewayBuyBlockedByOpenPosition(t *testing.T) {
	gw, _, _, coord := newTestGateway(t, 1000)
	ctx := context.Background()

	opp := valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08)
	first, err := gw.ExecuteBuy(ctx, opp)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Even once the cooldown has long passed, the open position blocks a
	// second entry on the same (market, side).
	now := time.Now().Add(time.Minute)
	coord.SetClock(func() time.Time { return now })

	second, err := gw.ExecuteBuy(ctx, opp)
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestGatewayBuyBlockedOnDrawdownHalt(t *testing.T) {
	gw, ledger, _, _ := newTestGateway(t, 1000)
	ctx := context.Background()

	// 26% below peak: beyond the 25% halt threshold.
	require.NoError(t, ledger.SaveSnapshot(ctx, 740, 1000))

	d, err := gw.CanTrade(ctx)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "drawdown halt")

	pos, err := gw.ExecuteBuy(ctx, valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08))
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestGatewaySellsAllowedDuringHalt(t *testing.T) {
	gw, ledger, notifier, _ := newTestGateway(t, 1000)
	ctx := context.Background()

	pos, err := gw.ExecuteBuy(ctx, valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08))
	require.NoError(t, err)
	require.NotNil(t, pos)

	// Crash the portfolio past the halt threshold, then exit.
	require.NoError(t, ledger.SaveSnapshot(ctx, 100, 1000))
	pos.MarkPrice(0.30)

	trade, err := gw.ExecuteSell(ctx, *pos, "stop loss")
	require.NoError(t, err)
	require.NotNil(t, trade)
	assert.Negative(t, trade.RealizedPnL)

	last := notifier.sent[len(notifier.sent)-1]
	assert.Equal(t, domain.NotifyPositionExited, last.Kind)
	assert.Equal(t, "stop loss", last.Reason)
}

func TestGatewaySellIgnoresClosedPosition(t *testing.T) {
	gw, _, _, _ := newTestGateway(t, 1000)
	ctx := context.Background()

	pos, err := gw.ExecuteBuy(ctx, valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08))
	require.NoError(t, err)
	require.NotNil(t, pos)

	first, err := gw.ExecuteSell(ctx, *pos, "exit")
	require.NoError(t, err)
	require.NotNil(t, first)

	require.NoError(t, pos.Close(first.Price, time.Now()))
	second, err := gw.ExecuteSell(ctx, *pos, "exit again")
	require.NoError(t, err)
	assert.Nil(t, second)
}

func TestGatewayExecuteArbitrageBuy(t *testing.T) {
	gw, ledger, notifier, _ := newTestGateway(t, 1000)
	ctx := context.Background()

	positions, err := gw.ExecuteArbitrageBuy(ctx, arbOpp(binaryMarket("mkt-1", 0.40, 0.55)))
	require.NoError(t, err)
	require.Len(t, positions, 2, "one position per outcome")

	totalCost := 0.0
	for _, p := range positions {
		assert.Equal(t, domain.StrategyArbitrage, p.Strategy)
		assert.Equal(t, positions[0].Shares, p.Shares, "equal shares across legs")
		totalCost += p.Cost
	}

	balance, _, _, err := ledger.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1000-totalCost, balance, 1e-9, "cost sums to the amount deducted")

	assert.Len(t, notifier.sent, 2)
}

func TestGatewayArbitrageRejectsSingleLeg(t *testing.T) {
	gw, _, _, _ := newTestGateway(t, 1000)

	opp := valueOpp(binaryMarket("mkt-1", 0.50, 0.50), 0.08)
	_, err := gw.ExecuteArbitrageBuy(context.Background(), opp)
	assert.Error(t, err)
}
