package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/batch"
	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/position"
	"github.com/JirA44/obelisk-dex-sub002/internal/risk"
)

// scriptedFeed replays fixed sample sets, then repeats the last one.
type scriptedFeed struct {
	mu    sync.Mutex
	steps []map[string]float64
	i     int
}

func (f *scriptedFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.steps) == 0 {
		return nil, nil
	}
	step := f.steps[f.i]
	if f.i < len(f.steps)-1 {
		f.i++
	}
	return step, nil
}

// alwaysLong fires a long on every tick of its symbol.
type alwaysLong struct{ symbol string }

func (s *alwaysLong) Name() string { return "always-long" }

func (s *alwaysLong) OnTick(t market.Tick) *market.Signal {
	if t.Symbol != s.symbol {
		return nil
	}
	return &market.Signal{Symbol: t.Symbol, Side: market.Long, Price: t.Price, Ts: t.Ts}
}

type countSettler struct {
	mu      sync.Mutex
	batches [][]market.Trade
}

func (s *countSettler) Settle(ctx context.Context, batchID string, trades []market.Trade) (batch.SettleResult, error) {
	s.mu.Lock()
	s.batches = append(s.batches, trades)
	s.mu.Unlock()
	return batch.SettleResult{Settled: len(trades)}, nil
}

func TestEngineRoundTrip(t *testing.T) {
	feed := &scriptedFeed{steps: []map[string]float64{
		{"SOL/USDC": 100},
		{"SOL/USDC": 102}, // above the 1.5% target
	}}
	book := position.NewBook(position.Params{MaxPositions: 1, SizeQuote: 10}, risk.Limits{}, nil, zerolog.Nop())
	settler := &countSettler{}
	agg := batch.NewAggregator(batch.Params{Mode: batch.ModeCount, BatchSize: 1, MinBatchSize: 1}, settler, nil, zerolog.Nop())

	e := New(Params{TickInterval: 5 * time.Millisecond, StopGrace: time.Second}, Deps{
		Feed:     feed,
		Strategy: &alwaysLong{symbol: "SOL/USDC"},
		Book:     book,
		Batcher:  agg,
		Log:      zerolog.Nop(),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if e.Stats().TradesClosed >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	e.Stop()

	s := e.Stats()
	if s.SignalsGenerated == 0 {
		t.Fatalf("no signals generated")
	}
	if s.TradesOpened == 0 || s.TradesClosed == 0 {
		t.Fatalf("expected a full open/close cycle, got %+v", s)
	}
	if s.Wins == 0 {
		t.Fatalf("target exit should count as a win, got %+v", s)
	}
	ps, ok := s.ByPair["SOL/USDC"]
	if !ok || ps.Trades == 0 {
		t.Fatalf("missing byPair rollup: %+v", s.ByPair)
	}
	settler.mu.Lock()
	settled := len(settler.batches)
	settler.mu.Unlock()
	if settled == 0 {
		t.Fatalf("closed trade never reached the settler")
	}
}

func TestEngineSkipsFailedFeed(t *testing.T) {
	feed := &scriptedFeed{} // always empty
	book := position.NewBook(position.Params{}, risk.Limits{}, nil, zerolog.Nop())
	e := New(Params{TickInterval: time.Millisecond}, Deps{
		Feed:     feed,
		Strategy: &alwaysLong{symbol: "SOL/USDC"},
		Book:     book,
		Log:      zerolog.Nop(),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	e.Stop()
	if s := e.Stats(); s.SignalsGenerated != 0 || s.TradesOpened != 0 {
		t.Fatalf("empty feed should be a no-op, got %+v", s)
	}
}

// countingFeed serves the same two-symbol sample set forever and counts
// fetches.
type countingFeed struct {
	mu    sync.Mutex
	calls int64
}

func (f *countingFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return map[string]float64{"SOL/USDC": 100, "WIF/USDC": 200}, nil
}

func (f *countingFeed) count() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestEngineTicksCountLoopsNotSamples(t *testing.T) {
	feed := &countingFeed{}
	book := position.NewBook(position.Params{}, risk.Limits{}, nil, zerolog.Nop())
	e := New(Params{TickInterval: time.Millisecond}, Deps{
		Feed:     feed,
		Strategy: &alwaysLong{symbol: "none"},
		Book:     book,
		Log:      zerolog.Nop(),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	e.Stop()

	s := e.Stats()
	if s.Ticks == 0 {
		t.Fatalf("no ticks recorded")
	}
	// Two symbols per fetch: counting samples instead of loops would
	// report double.
	if s.Ticks != feed.count() {
		t.Fatalf("ticks = %d, want one per fetch (%d)", s.Ticks, feed.count())
	}
}

type failingFeed struct{}

func (failingFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	return nil, errors.New("feed down")
}

func TestEngineCountsFeedErrors(t *testing.T) {
	book := position.NewBook(position.Params{}, risk.Limits{}, nil, zerolog.Nop())
	e := New(Params{TickInterval: time.Millisecond}, Deps{
		Feed:     failingFeed{},
		Strategy: &alwaysLong{symbol: "SOL/USDC"},
		Book:     book,
		Log:      zerolog.Nop(),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	e.Stop()
	s := e.Stats()
	if s.FeedErrors == 0 {
		t.Fatalf("expected feed errors to be counted, got %+v", s)
	}
	if s.Ticks != 0 || s.SignalsGenerated != 0 {
		t.Fatalf("failed fetches must not advance the tick state: %+v", s)
	}
}

func TestEngineDoubleStart(t *testing.T) {
	book := position.NewBook(position.Params{}, risk.Limits{}, nil, zerolog.Nop())
	e := New(Params{TickInterval: time.Hour}, Deps{
		Feed:     &scriptedFeed{},
		Strategy: &alwaysLong{symbol: "X"},
		Book:     book,
		Log:      zerolog.Nop(),
	})
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	defer e.Stop()
	if err := e.Start(context.Background()); err == nil {
		t.Fatalf("second Start should fail")
	}
}
