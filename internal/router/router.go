// Package router aggregates quotes across liquidity sources and executes
// against the best one.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"github.com/sourcegraph/conc"

	"github.com/JirA44/obelisk-dex-sub002/internal/metrics"
)

// ErrNoLiquidity reports that no configured source produced a usable quote.
var ErrNoLiquidity = errors.New("no liquidity on any source")

// Quote is one source's answer for a given input amount.
type Quote struct {
	Source    string
	AmountOut decimal.Decimal
	PathRef   string // aggregator route reference, empty for direct sources
}

// BestQuote is the aggregation result.
type BestQuote struct {
	Best       Quote
	All        []Quote // successful quotes, best first
	SavingsBps int64   // best vs worst successful quote
}

// SwapRequest carries everything a source needs to execute.
type SwapRequest struct {
	TokenIn      string
	TokenOut     string
	AmountIn     decimal.Decimal
	MinAmountOut decimal.Decimal
	PathRef      string
	Deadline     time.Time
}

// SwapResult is the normalized execution outcome.
type SwapResult struct {
	Source    string
	AmountIn  decimal.Decimal
	AmountOut decimal.Decimal
	Cost      decimal.Decimal // gas in quote currency
	Latency   time.Duration
	TxRef     string
}

// LiquiditySource quotes and executes swaps on one venue. Quote failures are
// expected and only remove the source from consideration.
type LiquiditySource interface {
	Name() string
	Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (Quote, error)
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
}

// Approver is implemented by sources whose input asset needs a pre-trade
// allowance. EnsureApproval must be idempotent: it checks the current
// allowance first and only issues an approval when insufficient.
type Approver interface {
	EnsureApproval(ctx context.Context, token string, amount decimal.Decimal) error
}

// Params tunes the router.
type Params struct {
	DefaultSlippage float64       // e.g. 0.005
	QuoteTimeout    time.Duration // per-source budget inside an aggregation
	SwapDeadline    time.Duration // wall-clock bound handed to the venue
	BreakerFailures uint32        // consecutive failures before a source is benched
	BreakerCooldown time.Duration
}

func (p Params) withDefaults() Params {
	if p.DefaultSlippage <= 0 {
		p.DefaultSlippage = 0.005
	}
	if p.QuoteTimeout <= 0 {
		p.QuoteTimeout = 5 * time.Second
	}
	if p.SwapDeadline <= 0 {
		p.SwapDeadline = 2 * time.Minute
	}
	if p.BreakerFailures == 0 {
		p.BreakerFailures = 5
	}
	if p.BreakerCooldown <= 0 {
		p.BreakerCooldown = 30 * time.Second
	}
	return p
}

// Router fans quote requests out to every source in parallel, keeps the
// successes, and commits only against the strict maximum. Each source sits
// behind its own circuit breaker so a flapping venue stops being queried for
// a cooldown window without ever aborting the aggregation.
type Router struct {
	params   Params
	sources  []LiquiditySource
	breakers []*gobreaker.CircuitBreaker
	log      zerolog.Logger
}

// New constructs a router over the supplied sources. Source order matters:
// it is the tie-break for equal quotes.
func New(params Params, log zerolog.Logger, sources ...LiquiditySource) *Router {
	p := params.withDefaults()
	breakers := make([]*gobreaker.CircuitBreaker, len(sources))
	for i, src := range sources {
		breakers[i] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    src.Name(),
			Timeout: p.BreakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= p.BreakerFailures
			},
		})
	}
	return &Router{params: p, sources: sources, breakers: breakers, log: log}
}

// GetBestQuote queries every source concurrently and returns the strictly
// maximal output. A source failure removes only that source; the call fails
// with ErrNoLiquidity only when nothing usable came back.
func (r *Router) GetBestQuote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (BestQuote, error) {
	if len(r.sources) == 0 {
		return BestQuote{}, ErrNoLiquidity
	}

	results := make([]*Quote, len(r.sources))
	var wg conc.WaitGroup
	var mu sync.Mutex
	for i, src := range r.sources {
		i, src := i, src
		wg.Go(func() {
			qctx, cancel := context.WithTimeout(ctx, r.params.QuoteTimeout)
			defer cancel()
			out, err := r.breakers[i].Execute(func() (any, error) {
				return src.Quote(qctx, tokenIn, tokenOut, amountIn)
			})
			if err != nil {
				metrics.QuotesTotal.WithLabelValues(src.Name(), "error").Inc()
				r.log.Debug().Err(err).Str("source", src.Name()).Msg("quote failed")
				return
			}
			q := out.(Quote)
			if !q.AmountOut.IsPositive() {
				metrics.QuotesTotal.WithLabelValues(src.Name(), "empty").Inc()
				return
			}
			metrics.QuotesTotal.WithLabelValues(src.Name(), "ok").Inc()
			mu.Lock()
			results[i] = &q
			mu.Unlock()
		})
	}
	wg.Wait()

	// Keep source enumeration order, then sort descending. The stable sort
	// means equal quotes tie-break by configuration order.
	var all []Quote
	for _, q := range results {
		if q != nil {
			all = append(all, *q)
		}
	}
	if len(all) == 0 {
		return BestQuote{}, ErrNoLiquidity
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].AmountOut.GreaterThan(all[j].AmountOut)
	})

	best := all[0]
	var savings int64
	if len(all) > 1 && best.AmountOut.IsPositive() {
		worst := all[len(all)-1].AmountOut
		savings = best.AmountOut.Sub(worst).
			Mul(decimal.NewFromInt(10000)).
			Div(best.AmountOut).IntPart()
	}
	return BestQuote{Best: best, All: all, SavingsBps: savings}, nil
}

// ExecuteSwap re-derives the best quote, bounds the acceptable output by the
// slippage tolerance, ensures any required allowance, and executes on the
// winning source. Pass slippage <= 0 for the configured default.
func (r *Router) ExecuteSwap(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal, slippage float64) (SwapResult, error) {
	if slippage <= 0 {
		slippage = r.params.DefaultSlippage
	}

	bq, err := r.GetBestQuote(ctx, tokenIn, tokenOut, amountIn)
	if err != nil {
		return SwapResult{}, err
	}

	src := r.sourceByName(bq.Best.Source)
	if src == nil {
		return SwapResult{}, fmt.Errorf("winning source %q vanished", bq.Best.Source)
	}

	minOut := bq.Best.AmountOut.Mul(decimal.NewFromFloat(1 - slippage))

	if approver, ok := src.(Approver); ok {
		if err := approver.EnsureApproval(ctx, tokenIn, amountIn); err != nil {
			return SwapResult{}, fmt.Errorf("approve %s: %w", tokenIn, err)
		}
	}

	started := time.Now()
	res, err := src.Swap(ctx, SwapRequest{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		PathRef:      bq.Best.PathRef,
		Deadline:     started.Add(r.params.SwapDeadline),
	})
	if err != nil {
		return SwapResult{}, fmt.Errorf("swap via %s: %w", src.Name(), err)
	}
	if res.Latency == 0 {
		res.Latency = time.Since(started)
	}
	res.Source = src.Name()
	res.AmountIn = amountIn

	r.log.Info().Str("source", res.Source).
		Str("in", amountIn.String()).Str("out", res.AmountOut.String()).
		Str("minOut", minOut.String()).Dur("latency", res.Latency).Msg("swap executed")
	return res, nil
}

// Sources reports the configured source names in order.
func (r *Router) Sources() []string {
	names := make([]string, len(r.sources))
	for i, src := range r.sources {
		names[i] = src.Name()
	}
	return names
}

func (r *Router) sourceByName(name string) LiquiditySource {
	for _, src := range r.sources {
		if src.Name() == name {
			return src
		}
	}
	return nil
}
