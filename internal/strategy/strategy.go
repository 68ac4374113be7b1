// Package strategy turns per-instrument price history into trade signals.
package strategy

import (
	"sync"
	"time"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// Strategy is the contract the position layer consumes. OnTick ingests one
// price sample and returns at most one signal for that instrument and tick.
type Strategy interface {
	OnTick(t market.Tick) *market.Signal
	Name() string
}

// cooldownTracker enforces a minimum spacing between accepted signals for
// the same (symbol, side) key.
type cooldownTracker struct {
	mu       sync.Mutex
	interval time.Duration
	last     map[string]time.Time
}

func newCooldownTracker(interval time.Duration) *cooldownTracker {
	return &cooldownTracker{
		interval: interval,
		last:     make(map[string]time.Time),
	}
}

// allow reports whether a signal for the key may fire at ts, and records the
// firing time when it may. Recording and checking are one atomic step so two
// strategies sharing a tracker cannot double-fire.
func (c *cooldownTracker) allow(symbol string, side market.Side, ts time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := symbol + "|" + string(side)
	if prev, ok := c.last[key]; ok && ts.Sub(prev) < c.interval {
		return false
	}
	c.last[key] = ts
	return true
}
