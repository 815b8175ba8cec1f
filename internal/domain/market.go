package domain

import "time"

// Market is a multi-outcome prediction market. Identity fields (ID, Question,
// Slug, Category) are immutable after discovery; prices, liquidity and volume
// are refreshed by the data layer.
type Market struct {
	ID        string
	Question  string
	Slug      string
	Category  string
	Outcomes  []Outcome
	Liquidity float64
	Volume24h float64
	EndDate   time.Time
	Active    bool
	Closed    bool
}

// Outcome is one side of a market. Price is a probability-like value in [0,1].
type Outcome struct {
	Name    string
	TokenID string
	Price   float64
}

// IsBinary reports whether the market has exactly two outcomes.
func (m Market) IsBinary() bool {
	return len(m.Outcomes) == 2
}

// TotalPrice returns the sum of all outcome prices. For a fairly priced
// market this is ~1.0; below 1.0 the full basket is an arbitrage.
func (m Market) TotalPrice() float64 {
	total := 0.0
	for _, o := range m.Outcomes {
		total += o.Price
	}
	return total
}

// PricesPopulated reports whether every outcome has a price strictly inside
// (0,1). Feeds deliver 0 for assets they haven't priced yet.
func (m Market) PricesPopulated() bool {
	if len(m.Outcomes) == 0 {
		return false
	}
	for _, o := range m.Outcomes {
		if o.Price <= 0 || o.Price >= 1 {
			return false
		}
	}
	return true
}

// HoursToResolution returns the hours until the market resolves.
// Returns 0 if EndDate is unset or already past.
func (m Market) HoursToResolution() float64 {
	if m.EndDate.IsZero() {
		return 0
	}
	h := time.Until(m.EndDate).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// OutcomeIndexByToken returns the index of the outcome whose tradable asset
// is tokenID, or -1 if the token doesn't belong to this market.
func (m Market) OutcomeIndexByToken(tokenID string) int {
	for i, o := range m.Outcomes {
		if o.TokenID == tokenID {
			return i
		}
	}
	return -1
}

// TruncateQuestion shortens a market question for log lines and tables.
func TruncateQuestion(q string, maxLen int) string {
	if len(q) <= maxLen {
		return q
	}
	return q[:maxLen-3] + "..."
}
