package strategy

// Indicator helpers shared by the scalp and breakout strategies. All work on
// plain float series; callers hold the locks.

// rsi computes the Relative Strength Index over a window. It needs window+1
// samples (returns -1 when history is short). A flat series maps to the
// neutral 50; an all-gain series to 100 and an all-loss series to 0.
func rsi(prices []float64, window int) float64 {
	if window <= 0 || len(prices) < window+1 {
		return -1
	}
	recent := prices[len(prices)-window-1:]
	var gains, losses float64
	for i := 1; i < len(recent); i++ {
		diff := recent[i] - recent[i-1]
		if diff > 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(window)
	avgLoss := losses / float64(window)
	if avgGain == 0 && avgLoss == 0 {
		return 50
	}
	if avgLoss == 0 {
		return 100
	}
	if avgGain == 0 {
		return 0
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// rsiDegenerate reports whether an RSI value is pinned at an extreme. Pinned
// readings come from one-sided series and are treated as a data-quality
// problem, never as a trade signal.
func rsiDegenerate(v float64) bool {
	return v >= 99 || v <= 1
}

// ema computes an exponential moving average with smoothing 2/(period+1),
// seeded by the simple average of the first period samples. Returns -1 when
// history is short.
func ema(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return -1
	}
	k := 2 / float64(period+1)
	var seed float64
	for _, p := range prices[:period] {
		seed += p
	}
	e := seed / float64(period)
	for _, p := range prices[period:] {
		e = p*k + e*(1-k)
	}
	return e
}

// meanPrice is the VWAP stand-in: the unweighted mean over the window tail.
// Quote endpoints carry no volume, so every sample weighs the same.
func meanPrice(prices []float64, window int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if window > 0 && len(prices) > window {
		prices = prices[len(prices)-window:]
	}
	var sum float64
	for _, p := range prices {
		sum += p
	}
	return sum / float64(len(prices))
}
