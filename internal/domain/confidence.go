package domain

// ConfidenceLevel is the ordinal strength classification of a signal.
// It controls the fraction of the raw Kelly size actually deployed.
type ConfidenceLevel int

const (
	ConfidenceLow ConfidenceLevel = iota
	ConfidenceStandard
	ConfidenceHigh
	ConfidenceArbitrage
)

func (c ConfidenceLevel) String() string {
	switch c {
	case ConfidenceLow:
		return "low"
	case ConfidenceStandard:
		return "standard"
	case ConfidenceHigh:
		return "high"
	case ConfidenceArbitrage:
		return "arbitrage"
	default:
		return "unknown"
	}
}

// Multiplier returns the Kelly scale-down for this tier. Real-money mode
// uses more conservative multipliers than simulation: a probability model
// that looks fine on paper gets half the rope with actual funds.
func (c ConfidenceLevel) Multiplier(mode TradingMode) float64 {
	if mode == ModeReal {
		switch c {
		case ConfidenceLow:
			return 0.15
		case ConfidenceStandard:
			return 0.30
		case ConfidenceHigh:
			return 0.50
		case ConfidenceArbitrage:
			return 0.80
		}
	}
	switch c {
	case ConfidenceLow:
		return 0.25
	case ConfidenceStandard:
		return 0.50
	case ConfidenceHigh:
		return 0.75
	case ConfidenceArbitrage:
		return 1.0
	}
	return 0
}

// Weight is the mode-independent ranking weight used to order candidate
// opportunities within a scan cycle.
func (c ConfidenceLevel) Weight() float64 {
	switch c {
	case ConfidenceLow:
		return 0.5
	case ConfidenceStandard:
		return 1.0
	case ConfidenceHigh:
		return 1.5
	case ConfidenceArbitrage:
		return 2.0
	default:
		return 0
	}
}
