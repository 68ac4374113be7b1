package risk

type Limits struct {
	MaxNotionalPerTrade  float64
	MaxPortfolioNotional float64
}

// Allow reports whether a new position of the given notional fits under the
// per-trade and portfolio caps. Zero-valued caps are unlimited.
func (l Limits) Allow(notional, currentExposure float64) bool {
	if l.MaxNotionalPerTrade > 0 && notional > l.MaxNotionalPerTrade {
		return false
	}
	if l.MaxPortfolioNotional > 0 && currentExposure+notional > l.MaxPortfolioNotional {
		return false
	}
	return true
}
