package venue

import (
	"context"
	"errors"
	"sync"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

const epsilon = 1e-9

// Marker supplies the mark price used to fill paper orders.
type Marker interface {
	Mark(symbol string) float64
}

// MarkMap is a Marker backed by a plain mutable map, handy for tests.
type MarkMap struct {
	mu     sync.RWMutex
	prices map[string]float64
}

// NewMarkMap builds an empty MarkMap.
func NewMarkMap() *MarkMap {
	return &MarkMap{prices: make(map[string]float64)}
}

// Set stores the mark price for a symbol.
func (m *MarkMap) Set(symbol string, price float64) {
	m.mu.Lock()
	m.prices[symbol] = price
	m.mu.Unlock()
}

// Mark returns the stored price, zero when unknown.
func (m *MarkMap) Mark(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.prices[symbol]
}

type paperLot struct {
	side  market.Side
	size  float64 // quote currency committed
	entry float64
}

// Paper is a virtual venue tracking cash, per-symbol lots, and realized PnL.
// Both sides fill instantly at the current mark price.
type Paper struct {
	marker Marker

	mu           sync.Mutex
	startingCash float64
	cash         float64
	realized     float64
	lots         map[string][]paperLot
}

// NewPaper constructs a paper venue with the supplied bankroll.
func NewPaper(startingCash float64, marker Marker) *Paper {
	return &Paper{
		marker:       marker,
		startingCash: startingCash,
		cash:         startingCash,
		lots:         make(map[string][]paperLot),
	}
}

// Name identifies the venue in logs and stats.
func (p *Paper) Name() string { return "paper" }

// Open commits sizeQuote of cash to a virtual lot at the current mark.
func (p *Paper) Open(ctx context.Context, symbol string, side market.Side, sizeQuote float64) (OpenResult, error) {
	if err := ctx.Err(); err != nil {
		return OpenResult{}, err
	}
	if sizeQuote <= 0 {
		return OpenResult{}, errors.New("size must be positive")
	}
	mark := p.marker.Mark(symbol)
	if mark <= 0 {
		return OpenResult{}, errors.New("no mark price")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if sizeQuote > p.cash+epsilon {
		return OpenResult{}, errors.New("insufficient cash")
	}
	p.cash -= sizeQuote
	p.lots[symbol] = append(p.lots[symbol], paperLot{side: side, size: sizeQuote, entry: mark})
	return OpenResult{Success: true, EntryPrice: mark}, nil
}

// Close settles every lot for the symbol at the current mark and returns the
// combined realized PnL. Closing with no open lots is a successful no-op.
func (p *Paper) Close(ctx context.Context, symbol string) (CloseResult, error) {
	if err := ctx.Err(); err != nil {
		return CloseResult{}, err
	}
	mark := p.marker.Mark(symbol)
	if mark <= 0 {
		return CloseResult{}, errors.New("no mark price")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	lots := p.lots[symbol]
	if len(lots) == 0 {
		return CloseResult{Success: true}, nil
	}
	var pnl float64
	for _, lot := range lots {
		pnl += market.RealizedPnl(lot.side, lot.entry, mark, lot.size)
		p.cash += lot.size
	}
	p.cash += pnl
	p.realized += pnl
	delete(p.lots, symbol)
	return CloseResult{Success: true, Pnl: pnl}, nil
}

// Cash reports free cash.
func (p *Paper) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// RealizedPnL reports cumulative closed-trade profit.
func (p *Paper) RealizedPnL() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.realized
}

// Equity reports cash plus committed lot value marked to market.
func (p *Paper) Equity() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	equity := p.cash
	for symbol, lots := range p.lots {
		mark := p.marker.Mark(symbol)
		for _, lot := range lots {
			equity += lot.size
			if mark > 0 {
				equity += market.RealizedPnl(lot.side, lot.entry, mark, lot.size)
			}
		}
	}
	return equity
}
