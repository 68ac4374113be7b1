// Package batch queues closed trades and settles them in cost-gated groups.
package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/metrics"
)

// Mode selects what fires a settlement attempt.
type Mode string

const (
	// ModeTime settles on a fixed interval.
	ModeTime Mode = "TIME"
	// ModeCount settles when the queue reaches the batch size.
	ModeCount Mode = "COUNT"
	// ModeHybrid settles on whichever comes first.
	ModeHybrid Mode = "HYBRID"
)

// ErrBatchBelowMin reports a flush on a queue under the minimum batch size.
var ErrBatchBelowMin = errors.New("queue below minimum batch size")

// Settler executes a candidate batch against a settlement venue.
type Settler interface {
	Settle(ctx context.Context, batchID string, trades []market.Trade) (SettleResult, error)
}

// SettleResult reports a completed settlement.
type SettleResult struct {
	Settled  int
	GasCost  float64
	GasSaved float64
	TxRef    string
}

// Event is the typed payload handed to observers.
type Event struct {
	BatchID  string
	Count    int
	GrossPnl float64
	GasCost  float64
	Fees     float64
	NetPnl   float64
	GasSaved float64
	TxRef    string
	Err      error
}

// Observer receives settlement lifecycle notifications. All callbacks run on
// the triggering goroutine; implementations must not block.
type Observer interface {
	BatchSettled(Event)
	BatchSkipped(Event)
	BatchFailed(Event)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) BatchSettled(Event) {}
func (NopObserver) BatchSkipped(Event) {}
func (NopObserver) BatchFailed(Event)  {}

// Params configures the aggregator.
type Params struct {
	Mode          Mode
	Interval      time.Duration
	BatchSize     int
	MinBatchSize  int
	MaxBatchSize  int
	MinNetProfit  float64
	SettlementGas float64 // flat cost per settlement, quote currency
	FeeRate       float64 // venue taker fee, applied per side
	ProfitGuard   bool
}

func (p Params) withDefaults() Params {
	if p.Mode == "" {
		p.Mode = ModeHybrid
	}
	if p.Interval <= 0 {
		p.Interval = 10 * time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 10
	}
	if p.MinBatchSize <= 0 {
		p.MinBatchSize = p.BatchSize
	}
	if p.MaxBatchSize <= 0 {
		p.MaxBatchSize = 50
	}
	return p
}

// Stats is a snapshot of the aggregator counters.
type Stats struct {
	Queued    int64
	Settled   int64
	Executed  int64
	Skipped   int64
	GasSaved  float64
	NetPnl    float64
	LastBatch time.Time
}

// Aggregator owns the FIFO pending queue. Only one settlement attempt may be
// in flight; a trigger arriving while one runs is a no-op.
type Aggregator struct {
	params   Params
	settler  Settler
	observer Observer
	log      zerolog.Logger

	mu      sync.Mutex
	pending []market.Trade

	inFlight atomic.Bool
	cancel   context.CancelFunc

	statsMu sync.Mutex
	stats   Stats
}

// NewAggregator constructs an aggregator. A nil observer is replaced by
// NopObserver.
func NewAggregator(params Params, settler Settler, observer Observer, log zerolog.Logger) *Aggregator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Aggregator{
		params:   params.withDefaults(),
		settler:  settler,
		observer: observer,
		log:      log,
	}
}

// Start launches the interval trigger for TIME and HYBRID modes.
func (a *Aggregator) Start(ctx context.Context) {
	if a.params.Mode == ModeCount {
		return
	}
	ctx, a.cancel = context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(a.params.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.Trigger(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Warn().Err(err).Msg("batch settlement failed")
				}
			}
		}
	}()
}

// Stop cancels the interval trigger. Pending trades stay queued.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// Enqueue appends a trade and, in COUNT/HYBRID mode, fires a synchronous
// settlement attempt once the queue reaches the batch size.
func (a *Aggregator) Enqueue(ctx context.Context, trade market.Trade) {
	a.mu.Lock()
	a.pending = append(a.pending, trade)
	depth := len(a.pending)
	a.mu.Unlock()

	a.statsMu.Lock()
	a.stats.Queued++
	a.statsMu.Unlock()

	a.log.Debug().Str("position", trade.PositionID).Int("depth", depth).Msg("trade queued")

	if a.params.Mode == ModeCount || a.params.Mode == ModeHybrid {
		if depth >= a.params.BatchSize {
			if err := a.Trigger(ctx); err != nil {
				a.log.Warn().Err(err).Msg("count-triggered settlement failed")
			}
		}
	}
}

// Flush forces a settlement attempt regardless of trigger mode. It reports
// ErrBatchBelowMin when the queue is under the minimum.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.mu.Lock()
	depth := len(a.pending)
	a.mu.Unlock()
	if depth < a.params.MinBatchSize {
		return ErrBatchBelowMin
	}
	return a.Trigger(ctx)
}

// Trigger runs one settlement attempt. A concurrent trigger is a no-op; a
// queue under the minimum is a silent no-op; a failed gate leaves the queue
// untouched; a failed settlement restores the candidate to the front of the
// queue in original order and surfaces the error.
func (a *Aggregator) Trigger(ctx context.Context) error {
	if !a.inFlight.CompareAndSwap(false, true) {
		return nil
	}
	defer a.inFlight.Store(false)

	a.mu.Lock()
	if len(a.pending) < a.params.MinBatchSize {
		a.mu.Unlock()
		return nil
	}
	take := len(a.pending)
	if take > a.params.MaxBatchSize {
		take = a.params.MaxBatchSize
	}
	candidate := make([]market.Trade, take)
	copy(candidate, a.pending[:take])
	a.mu.Unlock()

	batchID := uuid.NewString()
	gross, fees := a.batchCosts(candidate)
	net := gross - a.params.SettlementGas - fees

	if a.params.ProfitGuard && net <= a.params.MinNetProfit {
		a.statsMu.Lock()
		a.stats.Skipped++
		a.statsMu.Unlock()
		metrics.BatchesTotal.WithLabelValues("skipped").Inc()
		a.log.Info().Str("batch", batchID).Int("trades", len(candidate)).
			Float64("net", net).Msg("batch skipped, not profitable")
		a.observer.BatchSkipped(Event{
			BatchID: batchID, Count: len(candidate),
			GrossPnl: gross, GasCost: a.params.SettlementGas, Fees: fees, NetPnl: net,
		})
		return nil
	}

	// Gate passed: now actually remove the candidate.
	a.mu.Lock()
	a.pending = a.pending[take:]
	a.mu.Unlock()

	result, err := a.settler.Settle(ctx, batchID, candidate)
	if err != nil {
		a.mu.Lock()
		a.pending = append(candidate, a.pending...)
		a.mu.Unlock()
		metrics.BatchesTotal.WithLabelValues("failed").Inc()
		a.observer.BatchFailed(Event{
			BatchID: batchID, Count: len(candidate),
			GrossPnl: gross, NetPnl: net, Err: err,
		})
		return fmt.Errorf("settle batch %s: %w", batchID, err)
	}

	a.statsMu.Lock()
	a.stats.Executed++
	a.stats.Settled += int64(result.Settled)
	a.stats.GasSaved += result.GasSaved
	a.stats.NetPnl += net
	a.stats.LastBatch = time.Now()
	a.statsMu.Unlock()
	metrics.BatchesTotal.WithLabelValues("settled").Inc()

	a.log.Info().Str("batch", batchID).Int("trades", result.Settled).
		Float64("net", net).Float64("gasSaved", result.GasSaved).Msg("batch settled")
	a.observer.BatchSettled(Event{
		BatchID: batchID, Count: result.Settled,
		GrossPnl: gross, GasCost: result.GasCost, Fees: fees, NetPnl: net,
		GasSaved: result.GasSaved, TxRef: result.TxRef,
	})
	return nil
}

// batchCosts sums gross PnL and per-trade venue fees (open plus close legs).
func (a *Aggregator) batchCosts(trades []market.Trade) (gross, fees float64) {
	for _, tr := range trades {
		gross += tr.Pnl
		fees += tr.SizeQuote * a.params.FeeRate * 2
	}
	return gross, fees
}

// Pending reports the queue depth.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// PendingTrades returns a copy of the queue in order.
func (a *Aggregator) PendingTrades() []market.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]market.Trade, len(a.pending))
	copy(out, a.pending)
	return out
}

// Snapshot returns the aggregator counters.
func (a *Aggregator) Snapshot() Stats {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	return a.stats
}
