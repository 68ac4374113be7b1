package strategy

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// testBreakoutParams uses one-second candles so every tick completes a candle
// and a handful of ticks builds a usable book.
func testBreakoutParams() BreakoutParams {
	return BreakoutParams{
		CandleSec:            1,
		LevelLookback:        50,
		MinTouches:           3,
		TouchTolerance:       0.003,
		BreakoutPct:          0.001,
		ConsolidationCandles: 3,
		EMAFast:              2,
		EMASlow:              5,
		EMABand:              0.5, // wide dead zone keeps the bias neutral
		Cooldown:             time.Millisecond,
	}
}

func feedCandles(b *Breakout, symbol string, prices []float64, start time.Time) *market.Signal {
	var last *market.Signal
	for i, px := range prices {
		sig := b.OnTick(market.Tick{Symbol: symbol, Price: px, Ts: start.Add(time.Duration(i) * time.Second)})
		if sig != nil {
			last = sig
		}
	}
	return last
}

// resistanceSeries oscillates between 95 and a thrice-tested ceiling at 100.
var resistanceSeries = []float64{95, 95, 95, 100, 95, 95, 95, 100, 95, 95, 95, 100, 95, 95, 95}

func TestBreakoutLongThroughResistance(t *testing.T) {
	b := NewBreakout(testBreakoutParams(), zerolog.Nop())
	start := time.Unix(1000, 0)
	if sig := feedCandles(b, "SOL/USDC", resistanceSeries, start); sig != nil {
		t.Fatalf("no breakout yet, got %s", sig.Reason)
	}

	sig := b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 100.2, Ts: start.Add(15 * time.Second)})
	if sig == nil {
		t.Fatalf("expected a long breakout signal")
	}
	if sig.Side != market.Long {
		t.Fatalf("expected long, got %s", sig.Side)
	}
	if sig.Indicators.Level != 100 {
		t.Fatalf("expected level 100, got %v", sig.Indicators.Level)
	}
	if sig.Indicators.Touches < 3 {
		t.Fatalf("level should carry its touch count, got %d", sig.Indicators.Touches)
	}
}

func TestBreakoutShortThroughSupport(t *testing.T) {
	b := NewBreakout(testBreakoutParams(), zerolog.Nop())
	start := time.Unix(1000, 0)
	series := []float64{105, 105, 105, 100, 105, 105, 105, 100, 105, 105, 105, 100, 105, 105, 105}
	if sig := feedCandles(b, "SOL/USDC", series, start); sig != nil {
		t.Fatalf("no breakdown yet, got %s", sig.Reason)
	}

	sig := b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 99.8, Ts: start.Add(15 * time.Second)})
	if sig == nil {
		t.Fatalf("expected a short breakdown signal")
	}
	if sig.Side != market.Short {
		t.Fatalf("expected short, got %s", sig.Side)
	}
}

func TestBreakoutRequiresConsolidation(t *testing.T) {
	b := NewBreakout(testBreakoutParams(), zerolog.Nop())
	start := time.Unix(1000, 0)
	series := make([]float64, len(resistanceSeries))
	copy(series, resistanceSeries)
	series[len(series)-2] = 100.5 // a close already above the level

	feedCandles(b, "SOL/USDC", series, start)
	if sig := b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 100.2, Ts: start.Add(15 * time.Second)}); sig != nil {
		t.Fatalf("breakout without consolidation must not fire, got %s", sig.Reason)
	}
}

func TestBreakoutMarginRequired(t *testing.T) {
	b := NewBreakout(testBreakoutParams(), zerolog.Nop())
	start := time.Unix(1000, 0)
	feedCandles(b, "SOL/USDC", resistanceSeries, start)
	// above the level but inside the 0.1% margin
	if sig := b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 100.05, Ts: start.Add(15 * time.Second)}); sig != nil {
		t.Fatalf("price inside the margin must not fire, got %s", sig.Reason)
	}
}

func TestCandleAggregation(t *testing.T) {
	b := NewBreakout(BreakoutParams{CandleSec: 60}, zerolog.Nop())
	start := time.Unix(0, 0)
	b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 100, Ts: start})
	b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 103, Ts: start.Add(10 * time.Second)})
	b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 99, Ts: start.Add(20 * time.Second)})
	b.OnTick(market.Tick{Symbol: "SOL/USDC", Price: 101, Ts: start.Add(70 * time.Second)})

	book := b.books["SOL/USDC"]
	if len(book.done) != 1 {
		t.Fatalf("expected 1 completed candle, got %d", len(book.done))
	}
	c := book.done[0]
	if c.open != 100 || c.high != 103 || c.low != 99 || c.close != 99 {
		t.Fatalf("bad candle: %+v", c)
	}
	if book.current == nil || book.current.open != 101 {
		t.Fatalf("new bucket should open at 101")
	}
}
