package notify

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifyTradeExecuted(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	err := c.Notify(context.Background(), domain.Notification{
		Kind: domain.NotifyTradeExecuted,
		Position: domain.Position{
			Question: "Will the incumbent win the runoff election in Argentina?",
			Strategy: domain.StrategyValue,
			Side:     domain.SideYes,
			Cost:     80,
		},
		Trade:  domain.Trade{Price: 0.5075},
		Reason: "edge 8.0%",
		At:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "BUY")
	assert.Contains(t, out, "value")
	assert.Contains(t, out, "...", "long questions are truncated")
	assert.Contains(t, out, "$80.00")
}

func TestNotifyPositionExited(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	err := c.Notify(context.Background(), domain.Notification{
		Kind: domain.NotifyPositionExited,
		Position: domain.Position{
			Question: "Short question?",
			Strategy: domain.StrategyWhale,
			Side:     domain.SideYes,
		},
		Trade:  domain.Trade{Price: 0.6895, RealizedPnL: 35.14},
		Reason: "take profit",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "SELL")
	assert.Contains(t, out, "+35.14")
	assert.Contains(t, out, "take profit")
}

func TestPrintPortfolio(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.PrintPortfolio(domain.Portfolio{
		Balance:        820,
		PositionsValue: 205,
		TotalValue:     1025,
		TotalPnL:       25,
		PeakValue:      1030,
		OpenPositions: []domain.Position{{
			Question: "Will it happen?", Strategy: domain.StrategyArbitrage,
			Side: domain.SideYes, EntryPrice: 0.406, CurrentPrice: 0.42,
			Cost: 100, Shares: 240, Status: domain.PositionOpen,
		}},
	})

	out := buf.String()
	assert.Contains(t, out, "balance $820.00")
	assert.Contains(t, out, "arbitrage")
	assert.Contains(t, out, "Will it happen?")
}

func TestPrintPortfolioEmpty(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsoleWriter(&buf)

	c.PrintPortfolio(domain.Portfolio{Balance: 1000, TotalValue: 1000})
	assert.Contains(t, buf.String(), "no open positions")
}
