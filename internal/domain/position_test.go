package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openPosition() Position {
	return Position{
		ID:           "pos-1",
		MarketID:     "mkt-1",
		TokenID:      "tok-1",
		Side:         SideYes,
		Strategy:     StrategyValue,
		EntryPrice:   0.40,
		CurrentPrice: 0.40,
		Size:         98,
		Cost:         100,
		Shares:       245,
		OpenedAt:     time.Now().UTC(),
		Status:       PositionOpen,
	}
}

func TestPosition_PnLAgainstCost(t *testing.T) {
	pos := openPosition()

	// at entry: value = 245 * 0.40 = 98, cost = 100 → fees show as -2
	assert.InDelta(t, -2.0, pos.PnL(), 0.0001)
	assert.InDelta(t, -2.0, pos.PnLPercent(), 0.0001)

	pos.MarkPrice(0.50)
	assert.InDelta(t, 22.5, pos.PnL(), 0.0001)
}

func TestPosition_ClosedPnLIsExact(t *testing.T) {
	pos := openPosition()
	exitPrice := 0.55

	require.NoError(t, pos.Close(exitPrice, time.Now().UTC()))

	// pnl == exitPrice*shares - cost, exactly
	assert.Equal(t, exitPrice*pos.Shares-pos.Cost, pos.PnL())
	assert.Equal(t, PositionClosed, pos.Status)
	require.NotNil(t, pos.ClosedAt)
}

func TestPosition_CloseIsTerminal(t *testing.T) {
	pos := openPosition()
	require.NoError(t, pos.Close(0.55, time.Now().UTC()))

	err := pos.Close(0.60, time.Now().UTC())
	assert.ErrorIs(t, err, ErrPositionClosed)
	assert.InDelta(t, 0.55, pos.CurrentPrice, 0.0001, "second close must not move the exit price")

	// marks are ignored after close
	pos.MarkPrice(0.90)
	assert.InDelta(t, 0.55, pos.CurrentPrice, 0.0001)
}

func TestPosition_MarkIgnoresZeroPrice(t *testing.T) {
	pos := openPosition()
	pos.MarkPrice(0)
	assert.InDelta(t, 0.40, pos.CurrentPrice, 0.0001)
}
