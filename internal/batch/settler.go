package batch

import (
	"context"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// AckSettler acknowledges settlements without touching a chain. Used in
// paper mode, where the batch exists only to exercise the cost gate.
type AckSettler struct {
	GasCost  float64 // flat per-batch figure reported back
	GasSaved float64 // estimated saving versus per-trade settlement
}

// Settle acknowledges the whole batch.
func (s AckSettler) Settle(_ context.Context, _ string, trades []market.Trade) (SettleResult, error) {
	return SettleResult{
		Settled:  len(trades),
		GasCost:  s.GasCost,
		GasSaved: s.GasSaved * float64(len(trades)),
	}, nil
}
