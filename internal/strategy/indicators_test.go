package strategy

import (
	"math"
	"testing"
)

func TestRSIInsufficientHistory(t *testing.T) {
	if got := rsi([]float64{1, 2, 3}, 14); got != -1 {
		t.Fatalf("expected -1 for short series, got %v", got)
	}
	// exactly window+1 samples is the minimum
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100
	}
	if got := rsi(prices, 14); got != 50 {
		t.Fatalf("flat series should be neutral 50, got %v", got)
	}
}

func TestRSIAllLosses(t *testing.T) {
	prices := []float64{100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 87, 86}
	got := rsi(prices, 14)
	if got != 0 {
		t.Fatalf("all-loss series should be 0, got %v", got)
	}
	if !rsiDegenerate(got) {
		t.Fatalf("RSI 0 must be flagged degenerate")
	}
}

func TestRSIAllGains(t *testing.T) {
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100 + float64(i)
	}
	got := rsi(prices, 14)
	if got != 100 {
		t.Fatalf("all-gain series should be 100, got %v", got)
	}
	if !rsiDegenerate(got) {
		t.Fatalf("RSI 100 must be flagged degenerate")
	}
}

func TestRSIBounded(t *testing.T) {
	prices := []float64{100, 101, 99, 102, 98, 103, 97, 104, 96, 105, 95, 106, 94, 107, 93}
	got := rsi(prices, 14)
	if got < 0 || got > 100 {
		t.Fatalf("RSI out of bounds: %v", got)
	}
	if rsiDegenerate(got) {
		t.Fatalf("mixed series should not be degenerate, got %v", got)
	}
}

func TestEMASeededBySMA(t *testing.T) {
	prices := []float64{10, 20, 30}
	// period 3, exactly enough samples: EMA equals the simple average seed
	if got := ema(prices, 3); got != 20 {
		t.Fatalf("expected SMA seed 20, got %v", got)
	}
	if got := ema(prices[:2], 3); got != -1 {
		t.Fatalf("expected -1 for short series, got %v", got)
	}
}

func TestEMASmoothing(t *testing.T) {
	prices := []float64{10, 10, 10, 20}
	// seed 10, k = 2/4 = 0.5 -> 10 + 0.5*(20-10) = 15
	got := ema(prices, 3)
	if math.Abs(got-15) > 1e-9 {
		t.Fatalf("expected 15, got %v", got)
	}
}

func TestMeanPrice(t *testing.T) {
	prices := []float64{1, 2, 3, 4}
	if got := meanPrice(prices, 2); got != 3.5 {
		t.Fatalf("expected mean of last 2 = 3.5, got %v", got)
	}
	if got := meanPrice(prices, 10); got != 2.5 {
		t.Fatalf("window larger than series should use everything, got %v", got)
	}
	if got := meanPrice(nil, 5); got != 0 {
		t.Fatalf("empty series should be 0, got %v", got)
	}
}
