package position

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/risk"
	"github.com/JirA44/obelisk-dex-sub002/internal/venue"
)

type fakeVenue struct {
	mu     sync.Mutex
	opens  []string
	closes []string
}

func (f *fakeVenue) Name() string { return "fake" }

func (f *fakeVenue) Open(ctx context.Context, symbol string, side market.Side, sizeQuote float64) (venue.OpenResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, symbol)
	return venue.OpenResult{}, nil
}

func (f *fakeVenue) Close(ctx context.Context, symbol string) (venue.CloseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, symbol)
	return venue.CloseResult{}, nil
}

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	return func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}, func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		}
}

func longSignal(symbol string, price float64) *market.Signal {
	return &market.Signal{Symbol: symbol, Side: market.Long, Price: price, Ts: time.Now()}
}

func TestOnSignalCapRejects(t *testing.T) {
	b := NewBook(Params{MaxPositions: 2, SizeQuote: 5}, risk.Limits{}, nil, zerolog.Nop())
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := b.OnSignal(longSignal("B", 100)); err != nil {
		t.Fatalf("second open: %v", err)
	}
	if _, err := b.OnSignal(longSignal("C", 100)); err != ErrPositionCap {
		t.Fatalf("expected ErrPositionCap, got %v", err)
	}
	if b.OpenCount() != 2 {
		t.Fatalf("expected 2 open, got %d", b.OpenCount())
	}
}

func TestOnSignalRiskRejects(t *testing.T) {
	limits := risk.Limits{MaxPortfolioNotional: 8}
	b := NewBook(Params{MaxPositions: 5, SizeQuote: 5}, limits, nil, zerolog.Nop())
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("first open: %v", err)
	}
	// second position would put exposure at 10 > 8
	if _, err := b.OnSignal(longSignal("B", 100)); err != ErrRiskRejected {
		t.Fatalf("expected ErrRiskRejected, got %v", err)
	}
}

func TestStopAndTargetLevelsBySide(t *testing.T) {
	b := NewBook(Params{StopPct: 0.01, TargetPct: 0.02, SizeQuote: 5}, risk.Limits{}, nil, zerolog.Nop())
	long, err := b.OnSignal(longSignal("A", 100))
	if err != nil {
		t.Fatalf("open long: %v", err)
	}
	if long.Stop != 99 || long.Target != 102 {
		t.Fatalf("long levels wrong: stop=%v target=%v", long.Stop, long.Target)
	}

	short, err := b.OnSignal(&market.Signal{Symbol: "B", Side: market.Short, Price: 100, Ts: time.Now()})
	if err != nil {
		t.Fatalf("open short: %v", err)
	}
	if short.Stop != 101 || short.Target != 98 {
		t.Fatalf("short levels wrong: stop=%v target=%v", short.Stop, short.Target)
	}
}

func TestCheckExitsTargetLong(t *testing.T) {
	b := NewBook(Params{StopPct: 0.01, TargetPct: 0.02, SizeQuote: 10, MaxHold: time.Minute}, risk.Limits{}, nil, zerolog.Nop())
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("open: %v", err)
	}

	if trades := b.CheckExits(map[string]float64{"A": 101}); len(trades) != 0 {
		t.Fatalf("no exit expected yet, got %d", len(trades))
	}
	trades := b.CheckExits(map[string]float64{"A": 102.5})
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	tr := trades[0]
	if tr.Reason != market.CloseTarget {
		t.Fatalf("expected target close, got %s", tr.Reason)
	}
	// (102.5-100)/100 * 10
	if math.Abs(tr.Pnl-0.25) > 1e-9 {
		t.Fatalf("expected pnl 0.25, got %v", tr.Pnl)
	}
	if b.OpenCount() != 0 {
		t.Fatalf("position should be removed")
	}
}

func TestCheckExitsStopShort(t *testing.T) {
	b := NewBook(Params{StopPct: 0.01, TargetPct: 0.02, SizeQuote: 10, MaxHold: time.Minute}, risk.Limits{}, nil, zerolog.Nop())
	if _, err := b.OnSignal(&market.Signal{Symbol: "A", Side: market.Short, Price: 100, Ts: time.Now()}); err != nil {
		t.Fatalf("open: %v", err)
	}
	trades := b.CheckExits(map[string]float64{"A": 101.5})
	if len(trades) != 1 || trades[0].Reason != market.CloseStop {
		t.Fatalf("expected stop close, got %+v", trades)
	}
	if trades[0].Pnl >= 0 {
		t.Fatalf("short stopped above entry must lose, got %v", trades[0].Pnl)
	}
}

func TestCheckExitsTimeoutWinsOverTarget(t *testing.T) {
	now, advance := testClock(time.Unix(0, 0))
	b := NewBook(Params{StopPct: 0.01, TargetPct: 0.02, SizeQuote: 10, MaxHold: 30 * time.Second},
		risk.Limits{}, nil, zerolog.Nop(), WithClock(now))
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("open: %v", err)
	}

	advance(31 * time.Second)
	// price is through the target, but the hold expired first
	trades := b.CheckExits(map[string]float64{"A": 105})
	if len(trades) != 1 || trades[0].Reason != market.CloseTimeout {
		t.Fatalf("expected timeout close, got %+v", trades)
	}
	if trades[0].HoldMs != 31_000 {
		t.Fatalf("expected 31000ms hold, got %d", trades[0].HoldMs)
	}
}

func TestCheckExitsIgnoresUnknownPrices(t *testing.T) {
	b := NewBook(Params{MaxHold: time.Minute}, risk.Limits{}, nil, zerolog.Nop())
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("open: %v", err)
	}
	if trades := b.CheckExits(map[string]float64{"B": 1}); len(trades) != 0 {
		t.Fatalf("unrelated prices must not close, got %+v", trades)
	}
	if trades := b.CheckExits(map[string]float64{"A": 0}); len(trades) != 0 {
		t.Fatalf("non-positive price must not close, got %+v", trades)
	}
}

func TestVenueCallsAreDetached(t *testing.T) {
	v := &fakeVenue{}
	b := NewBook(Params{StopPct: 0.01, TargetPct: 0.02, SizeQuote: 10, MaxHold: time.Minute}, risk.Limits{}, v, zerolog.Nop())
	if _, err := b.OnSignal(longSignal("A", 100)); err != nil {
		t.Fatalf("open: %v", err)
	}
	b.CheckExits(map[string]float64{"A": 102.5})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		v.mu.Lock()
		done := len(v.opens) == 1 && len(v.closes) == 1
		v.mu.Unlock()
		if done {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("venue never saw the open/close pair")
}

func TestRoundTripPnlZero(t *testing.T) {
	if pnl := market.RealizedPnl(market.Long, 100, 100, 10); pnl != 0 {
		t.Fatalf("flat exit should be zero pnl, got %v", pnl)
	}
	if pnl := market.RealizedPnl(market.Short, 100, 100, 10); pnl != 0 {
		t.Fatalf("flat short exit should be zero pnl, got %v", pnl)
	}
}
