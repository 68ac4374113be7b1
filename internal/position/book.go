// Package position owns the bounded set of open positions and their exits.
package position

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/sonyflake"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/risk"
	"github.com/JirA44/obelisk-dex-sub002/internal/venue"
)

// ErrPositionCap rejects a signal when the book is full.
var ErrPositionCap = errors.New("open position cap reached")

// ErrRiskRejected rejects a signal that fails the notional guard rails.
var ErrRiskRejected = errors.New("risk limits rejected size")

// Params configures the book.
type Params struct {
	MaxPositions int
	SizeQuote    float64 // quote-currency size per position
	StopPct      float64
	TargetPct    float64
	MaxHold      time.Duration
}

func (p Params) withDefaults() Params {
	if p.MaxPositions <= 0 {
		p.MaxPositions = 5
	}
	if p.SizeQuote <= 0 {
		p.SizeQuote = 5
	}
	if p.StopPct <= 0 {
		p.StopPct = 0.005
	}
	if p.TargetPct <= 0 {
		p.TargetPct = 0.015
	}
	if p.MaxHold <= 0 {
		p.MaxHold = 30 * time.Second
	}
	return p
}

// Book tracks open positions, applies the three exit rules per tick, and
// converts each close into exactly one Trade.
//
// Venue calls are detached: the in-memory lifecycle is never rolled back on
// a venue failure, matching the simulated-ledger-authoritative behavior the
// engine inherits. Failures go to the logging sink only.
type Book struct {
	params Params
	limits risk.Limits
	venue  venue.Venue
	log    zerolog.Logger
	now    func() time.Time
	flake  *sonyflake.Sonyflake

	mu   sync.Mutex
	open map[string]*market.Position
}

// Option customizes Book construction.
type Option func(*Book)

// WithClock injects a time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(b *Book) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBook constructs a position book. The venue may be nil for pure
// simulation.
func NewBook(params Params, limits risk.Limits, v venue.Venue, log zerolog.Logger, opts ...Option) *Book {
	b := &Book{
		params: params.withDefaults(),
		limits: limits,
		venue:  v,
		log:    log,
		now:    time.Now,
		flake:  sonyflake.NewSonyflake(sonyflake.Settings{}),
		open:   make(map[string]*market.Position),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnSignal opens a position for the signal, or reports why it was rejected.
func (b *Book) OnSignal(sig *market.Signal) (*market.Position, error) {
	if sig == nil || sig.Price <= 0 {
		return nil, errors.New("invalid signal")
	}

	b.mu.Lock()
	if len(b.open) >= b.params.MaxPositions {
		b.mu.Unlock()
		return nil, ErrPositionCap
	}
	exposure := float64(len(b.open)) * b.params.SizeQuote
	if !b.limits.Allow(b.params.SizeQuote, exposure) {
		b.mu.Unlock()
		return nil, ErrRiskRejected
	}

	stop := sig.Price * (1 - b.params.StopPct)
	target := sig.Price * (1 + b.params.TargetPct)
	if sig.Side == market.Short {
		stop = sig.Price * (1 + b.params.StopPct)
		target = sig.Price * (1 - b.params.TargetPct)
	}

	pos := &market.Position{
		ID:        b.nextID(sig),
		Symbol:    sig.Symbol,
		Side:      sig.Side,
		Entry:     sig.Price,
		SizeQuote: b.params.SizeQuote,
		Stop:      stop,
		Target:    target,
		OpenedAt:  b.now(),
	}
	b.open[pos.ID] = pos
	b.mu.Unlock()

	b.log.Info().Str("id", pos.ID).Str("symbol", pos.Symbol).Str("side", string(pos.Side)).
		Float64("entry", pos.Entry).Float64("stop", pos.Stop).Float64("target", pos.Target).
		Str("reason", sig.Reason).Msg("position opened")

	if b.venue != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if _, err := b.venue.Open(ctx, pos.Symbol, pos.Side, pos.SizeQuote); err != nil {
				b.log.Warn().Err(err).Str("id", pos.ID).Msg("venue open failed")
			}
		}()
	}
	return pos, nil
}

// CheckExits evaluates every open position against the current prices and
// returns the trades produced this tick. At most one exit applies per
// position: timeout wins over stop, stop over target.
func (b *Book) CheckExits(prices map[string]float64) []market.Trade {
	now := b.now()

	b.mu.Lock()
	var closing []closeIntent
	for _, pos := range b.open {
		px, ok := prices[pos.Symbol]
		if !ok || px <= 0 {
			continue
		}
		switch {
		case now.Sub(pos.OpenedAt) >= b.params.MaxHold:
			closing = append(closing, closeIntent{pos, px, market.CloseTimeout})
		case pos.Side == market.Long && px <= pos.Stop,
			pos.Side == market.Short && px >= pos.Stop:
			closing = append(closing, closeIntent{pos, px, market.CloseStop})
		case pos.Side == market.Long && px >= pos.Target,
			pos.Side == market.Short && px <= pos.Target:
			closing = append(closing, closeIntent{pos, px, market.CloseTarget})
		}
	}
	trades := make([]market.Trade, 0, len(closing))
	for _, in := range closing {
		delete(b.open, in.pos.ID)
		trades = append(trades, b.toTrade(in, now))
	}
	b.mu.Unlock()

	for _, tr := range trades {
		b.log.Info().Str("id", tr.PositionID).Str("symbol", tr.Symbol).
			Str("reason", string(tr.Reason)).Float64("exit", tr.Exit).
			Float64("pnl", tr.Pnl).Msg("position closed")
		if b.venue != nil {
			symbol := tr.Symbol
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if _, err := b.venue.Close(ctx, symbol); err != nil {
					b.log.Warn().Err(err).Str("symbol", symbol).Msg("venue close failed")
				}
			}()
		}
	}
	return trades
}

type closeIntent struct {
	pos    *market.Position
	exit   float64
	reason market.CloseReason
}

func (b *Book) toTrade(in closeIntent, now time.Time) market.Trade {
	return market.Trade{
		PositionID: in.pos.ID,
		Symbol:     in.pos.Symbol,
		Side:       in.pos.Side,
		SizeQuote:  in.pos.SizeQuote,
		Entry:      in.pos.Entry,
		Exit:       in.exit,
		Pnl:        market.RealizedPnl(in.pos.Side, in.pos.Entry, in.exit, in.pos.SizeQuote),
		Reason:     in.reason,
		HoldMs:     now.Sub(in.pos.OpenedAt).Milliseconds(),
		OpenedAt:   in.pos.OpenedAt,
		ClosedAt:   now,
	}
}

// OpenCount reports the number of open positions.
func (b *Book) OpenCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.open)
}

// Snapshot returns a copy of the open positions.
func (b *Book) Snapshot() []market.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]market.Position, 0, len(b.open))
	for _, pos := range b.open {
		out = append(out, *pos)
	}
	return out
}

func (b *Book) nextID(sig *market.Signal) string {
	// NewSonyflake returns nil when no private IP is available to derive a
	// machine ID; fall back to the timestamp ID in that case too.
	if b.flake != nil {
		if id, err := b.flake.NextID(); err == nil {
			return fmt.Sprintf("%s_%s_%x", sig.Symbol, sig.Side, id)
		}
	}
	return fmt.Sprintf("%s_%s_%d", sig.Symbol, sig.Side, b.now().UnixNano())
}
