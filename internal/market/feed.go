package market

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
)

// Feed supplies the latest price per tracked instrument on demand. An empty
// map with a nil error means "no update this tick".
type Feed interface {
	Fetch(ctx context.Context) (map[string]float64, error)
}

// StubFeed emits a deterministic drifting sine price per symbol, useful for
// tests and offline runs.
type StubFeed struct {
	mu      sync.Mutex
	symbols []string
	base    float64
	step    int
}

// NewStubFeed constructs a stub feed for the supplied symbols
// (deduplicated, sorted for determinism).
func NewStubFeed(symbols []string, base float64) *StubFeed {
	if base <= 0 {
		base = 100
	}
	f := &StubFeed{base: base}
	f.SetSymbols(symbols)
	return f
}

// SetSymbols replaces the tracked symbol list.
func (f *StubFeed) SetSymbols(symbols []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	unique := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		unique[sym] = struct{}{}
	}
	f.symbols = f.symbols[:0]
	for sym := range unique {
		f.symbols = append(f.symbols, sym)
	}
	sort.Strings(f.symbols)
}

// Fetch returns the next synthetic sample set.
func (f *StubFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.step++
	out := make(map[string]float64, len(f.symbols))
	for i, sym := range f.symbols {
		phase := float64(f.step) / 7
		out[sym] = f.base * (1 + 0.002*math.Sin(phase+float64(i)))
	}
	return out, nil
}
