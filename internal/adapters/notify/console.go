package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/olekukonko/tablewriter"
)

// Console implements ports.Notifier writing execution events and periodic
// portfolio tables to a terminal.
type Console struct {
	out io.Writer
}

// NewConsole creates a notifier that writes to stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter creates a notifier for tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// Notify prints one execution event as a single line.
func (c *Console) Notify(_ context.Context, n domain.Notification) error {
	at := n.At
	if at.IsZero() {
		at = time.Now()
	}
	name := domain.TruncateQuestion(n.Position.Question, 40)

	switch n.Kind {
	case domain.NotifyTradeExecuted:
		fmt.Fprintf(c.out, "[%s] BUY  %-8s %-40s %s @%.4f  $%.2f  (%s)\n",
			at.Format("15:04:05"), n.Position.Strategy.String(), name,
			n.Position.Side, n.Trade.Price, n.Position.Cost, n.Reason)
	case domain.NotifyPositionExited:
		fmt.Fprintf(c.out, "[%s] SELL %-8s %-40s %s @%.4f  pnl $%+.2f  (%s)\n",
			at.Format("15:04:05"), n.Position.Strategy.String(), name,
			n.Position.Side, n.Trade.Price, n.Trade.RealizedPnL, n.Reason)
	default:
		fmt.Fprintf(c.out, "[%s] %s %s\n", at.Format("15:04:05"), n.Kind, name)
	}
	return nil
}

// PrintPortfolio renders the current portfolio as a table: one row per
// open position plus a totals footer.
func (c *Console) PrintPortfolio(pf domain.Portfolio) {
	fmt.Fprintf(c.out, "\n[%s] balance $%.2f | positions $%.2f | total $%.2f | pnl $%+.2f | drawdown %.1f%%\n",
		time.Now().Format("15:04:05"), pf.Balance, pf.PositionsValue,
		pf.TotalValue, pf.TotalPnL, pf.DrawdownFraction()*100)

	if len(pf.OpenPositions) == 0 {
		fmt.Fprintln(c.out, "  no open positions")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Strategy", "Market", "Side", "Entry", "Now", "Cost", "Value", "PnL%")

	for i, pos := range pf.OpenPositions {
		table.Append(
			fmt.Sprintf("%d", i+1),
			pos.Strategy.String(),
			domain.TruncateQuestion(pos.Question, 40),
			string(pos.Side),
			fmt.Sprintf("%.4f", pos.EntryPrice),
			fmt.Sprintf("%.4f", pos.CurrentPrice),
			fmt.Sprintf("$%.2f", pos.Cost),
			fmt.Sprintf("$%.2f", pos.CurrentValue()),
			fmt.Sprintf("%+.1f%%", pos.PnLPercent()),
		)
	}
	table.Render()
}

// PrintStats renders ledger aggregates and reactor counters.
func (c *Console) PrintStats(stats domain.LedgerStats) {
	fmt.Fprintf(c.out, "  trades: %d | realized pnl $%+.2f | win rate %.0f%%\n",
		stats.Trades, stats.TotalPnL, stats.WinRate*100)
}
