package portfolio

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// Service derives the current Portfolio view from the ledger and live
// prices. The portfolio itself is never stored: only balance and peak
// value persist, everything else is recomputed on demand.
type Service struct {
	ledger         ports.Ledger
	prices         ports.PriceSource
	initialCapital float64
}

// New creates the portfolio service. prices may be nil; positions then
// keep their last stored mark.
func New(ledger ports.Ledger, prices ports.PriceSource, initialCapital float64) *Service {
	return &Service{ledger: ledger, prices: prices, initialCapital: initialCapital}
}

// Snapshot builds the derived portfolio state. It advances the persisted
// peak value whenever a new high-water mark is observed.
func (s *Service) Snapshot(ctx context.Context) (domain.Portfolio, error) {
	balance, peak, ok, err := s.ledger.LoadSnapshot(ctx)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio.Snapshot: load: %w", err)
	}
	if !ok {
		balance = s.initialCapital
		peak = s.initialCapital
	}

	open, err := s.ledger.OpenPositions(ctx)
	if err != nil {
		return domain.Portfolio{}, fmt.Errorf("portfolio.Snapshot: open positions: %w", err)
	}

	positionsValue := 0.0
	for i := range open {
		if s.prices != nil {
			if last, found := s.prices.LastPrice(open[i].TokenID); found {
				open[i].MarkPrice(last)
			}
		}
		positionsValue += open[i].CurrentValue()
	}

	total := balance + positionsValue
	if total > peak {
		peak = total
		if err := s.ledger.SaveSnapshot(ctx, balance, peak); err != nil {
			slog.Warn("portfolio: failed to persist new peak", "err", err)
		}
	}

	allocs, err := s.ledger.Allocations(ctx)
	if err != nil {
		slog.Warn("portfolio: failed to load allocations", "err", err)
	}

	return domain.Portfolio{
		Balance:        balance,
		PositionsValue: positionsValue,
		TotalValue:     total,
		TotalPnL:       total - s.initialCapital,
		PeakValue:      peak,
		OpenPositions:  open,
		Allocations:    allocs,
	}, nil
}
