// Package venue defines the execution venue contract and the built-in
// paper and custodial implementations.
package venue

import (
	"context"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// OpenResult reports the outcome of an entry order.
type OpenResult struct {
	Success    bool
	EntryPrice float64
}

// CloseResult reports the outcome of an exit order.
type CloseResult struct {
	Success bool
	Pnl     float64
}

// Venue is the uniform open/close contract the position layer consumes.
// Implementations must be safe for concurrent use.
type Venue interface {
	Open(ctx context.Context, symbol string, side market.Side, sizeQuote float64) (OpenResult, error)
	Close(ctx context.Context, symbol string) (CloseResult, error)
	Name() string
}
