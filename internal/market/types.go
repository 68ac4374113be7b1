// Package market standardizes the value types shared between the feed,
// strategy, position, and settlement layers.
package market

import "time"

// Side enumerates position directions.
type Side string

const (
	// Long profits when price rises.
	Long Side = "long"
	// Short profits when price falls.
	Short Side = "short"
)

// Opposite returns the mirrored side.
func (s Side) Opposite() Side {
	if s == Long {
		return Short
	}
	return Long
}

// Tick is one price sample for one instrument.
type Tick struct {
	Symbol string
	Price  float64
	Ts     time.Time
}

// IndicatorSnapshot freezes the indicator values a signal was derived from.
type IndicatorSnapshot struct {
	RSI     float64
	EMAFast float64
	EMASlow float64
	VWAP    float64
	VWAPDev float64
	Level   float64 // breakout level, zero for scalp signals
	Touches int     // level touch count, zero for scalp signals
}

// Signal expresses a trade intent produced by a strategy. It lives for a
// single tick and is never persisted.
type Signal struct {
	Symbol     string
	Side       Side
	Price      float64
	Indicators IndicatorSnapshot
	Reason     string
	Ts         time.Time
}

// CloseReason tags why a position left the book.
type CloseReason string

const (
	// CloseStop marks a stop-loss exit.
	CloseStop CloseReason = "stop"
	// CloseTarget marks a take-profit exit.
	CloseTarget CloseReason = "target"
	// CloseTimeout marks a max-hold forced exit.
	CloseTimeout CloseReason = "timeout"
)

// Position is an open trade owned by the position book. It is mutated only
// through the book's methods and removed exactly once.
type Position struct {
	ID        string
	Symbol    string
	Side      Side
	Entry     float64
	SizeQuote float64
	Stop      float64
	Target    float64
	OpenedAt  time.Time
}

// Trade is the immutable record of a closed position.
type Trade struct {
	PositionID string
	Symbol     string
	Side       Side
	SizeQuote  float64
	Entry      float64
	Exit       float64
	Pnl        float64
	Reason     CloseReason
	HoldMs     int64
	OpenedAt   time.Time
	ClosedAt   time.Time
}

// RealizedPnl computes quote-currency profit for a round trip.
// Longs gain when exit > entry; shorts are sign-flipped.
func RealizedPnl(side Side, entry, exit, sizeQuote float64) float64 {
	if entry == 0 {
		return 0
	}
	diff := exit - entry
	if side == Short {
		diff = entry - exit
	}
	return diff / entry * sizeQuote
}
