package router

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub002/internal/batch"
	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// BatchSettler settles a trade batch on-chain by netting the batch notional
// into a single routed swap, amortizing gas across every trade in it.
type BatchSettler struct {
	Router     *Router
	TokenIn    string
	TokenOut   string
	Slippage   float64
	PerSwapGas float64 // what one unbatched settlement would have cost
}

// Settle executes the netted settlement swap and reports amortized costs.
func (s *BatchSettler) Settle(ctx context.Context, batchID string, trades []market.Trade) (batch.SettleResult, error) {
	if len(trades) == 0 {
		return batch.SettleResult{}, fmt.Errorf("empty batch %s", batchID)
	}

	notional := decimal.Zero
	for _, tr := range trades {
		notional = notional.Add(decimal.NewFromFloat(tr.SizeQuote))
	}

	res, err := s.Router.ExecuteSwap(ctx, s.TokenIn, s.TokenOut, notional, s.Slippage)
	if err != nil {
		return batch.SettleResult{}, err
	}

	gas, _ := res.Cost.Float64()
	saved := s.PerSwapGas*float64(len(trades)) - gas
	if saved < 0 {
		saved = 0
	}
	return batch.SettleResult{
		Settled:  len(trades),
		GasCost:  gas,
		GasSaved: saved,
		TxRef:    res.TxRef,
	}, nil
}
