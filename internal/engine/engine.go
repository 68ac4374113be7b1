// Package engine runs the trading loop: poll the feed, feed the strategy,
// manage positions, and hand closed trades to the batch aggregator.
package engine

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/batch"
	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/metrics"
	"github.com/JirA44/obelisk-dex-sub002/internal/position"
	"github.com/JirA44/obelisk-dex-sub002/internal/strategy"
	"github.com/JirA44/obelisk-dex-sub002/internal/venue"
)

// Params tunes the loop itself.
type Params struct {
	TickInterval time.Duration
	StopGrace    time.Duration // budget for the final drain on Stop
}

func (p Params) withDefaults() Params {
	if p.TickInterval <= 0 {
		p.TickInterval = time.Second
	}
	if p.StopGrace <= 0 {
		p.StopGrace = 5 * time.Second
	}
	return p
}

// Deps are the injected collaborators. Feed, Strategy and Book are required;
// the rest may be nil.
type Deps struct {
	Feed     market.Feed
	Strategy strategy.Strategy
	Book     *position.Book
	Batcher  *batch.Aggregator
	Recorder venue.TradeRecorder
	Marker   *venue.MarkMap
	Log      zerolog.Logger
}

// PairStats is the per-instrument rollup inside a Stats snapshot.
type PairStats struct {
	Trades int     `json:"trades"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`
	Pnl    float64 `json:"pnl"`
}

// Stats is a point-in-time view of the session.
type Stats struct {
	ElapsedSec       float64              `json:"elapsedSec"`
	Ticks            int64                `json:"ticks"` // loop ticks that carried a price update
	FeedErrors       int64                `json:"feedErrors"`
	SignalsGenerated int64                `json:"signalsGenerated"`
	TradesOpened     int64                `json:"tradesOpened"`
	TradesClosed     int64                `json:"tradesClosed"`
	Wins             int64                `json:"wins"`
	Losses           int64                `json:"losses"`
	WinRate          float64              `json:"winRate"`
	TotalPnl         float64              `json:"totalPnl"`
	OpenPositions    int                  `json:"openPositions"`
	BatchesExecuted  int64                `json:"batchesExecuted"`
	BatchesSkipped   int64                `json:"batchesSkipped"`
	GasSaved         float64              `json:"gasSaved"`
	ByPair           map[string]PairStats `json:"byPair"`
}

// Engine is the serialized tick loop. Every tick runs to completion before
// the next one is armed, so the strategy and book never see concurrent
// samples for the same instrument.
type Engine struct {
	params Params
	deps   Deps
	log    zerolog.Logger

	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	startedAt  time.Time
	ticks      int64
	feedErrors int64
	signals    int64
	opened     int64
	closed     int64
	wins       int64
	losses     int64
	totalPnl   float64
	byPair     map[string]PairStats
}

// New wires an engine. It does not start the loop.
func New(params Params, deps Deps) *Engine {
	return &Engine{
		params: params.withDefaults(),
		deps:   deps,
		log:    deps.Log,
		byPair: make(map[string]PairStats),
	}
}

// Start launches the loop and the batcher's interval trigger. A second Start
// while running is an error.
func (e *Engine) Start(ctx context.Context) error {
	if e.deps.Feed == nil || e.deps.Strategy == nil || e.deps.Book == nil {
		return errors.New("engine needs a feed, a strategy and a book")
	}
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine already running")
	}

	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})

	e.mu.Lock()
	e.startedAt = time.Now()
	e.mu.Unlock()

	if e.deps.Batcher != nil {
		e.deps.Batcher.Start(ctx)
	}

	go e.loop(ctx)
	e.log.Info().Str("strategy", e.deps.Strategy.Name()).
		Dur("interval", e.params.TickInterval).Msg("engine started")
	return nil
}

// Stop halts the loop, then attempts one final settlement within the grace
// budget. Trades that still fail the batch minimum stay with the recorder.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}
	e.cancel()
	<-e.done

	if e.deps.Batcher != nil {
		e.deps.Batcher.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), e.params.StopGrace)
		defer cancel()
		if err := e.deps.Batcher.Flush(ctx); err != nil && !errors.Is(err, batch.ErrBatchBelowMin) {
			e.log.Warn().Err(err).Msg("final batch flush failed")
		}
	}
	e.log.Info().Msg("engine stopped")
}

// loop re-arms a timer after each completed tick rather than running off a
// ticker, so a slow tick can never overlap the next one.
func (e *Engine) loop(ctx context.Context) {
	defer close(e.done)
	timer := time.NewTimer(e.params.TickInterval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			e.tick(ctx)
			timer.Reset(e.params.TickInterval)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	prices, err := e.deps.Feed.Fetch(ctx)
	if err != nil {
		e.mu.Lock()
		e.feedErrors++
		e.mu.Unlock()
		e.log.Warn().Err(err).Msg("feed fetch failed, skipping tick")
		return
	}
	if len(prices) == 0 {
		return
	}
	e.mu.Lock()
	e.ticks++
	e.mu.Unlock()
	now := time.Now()

	// Deterministic instrument order within a tick.
	symbols := make([]string, 0, len(prices))
	for sym := range prices {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		px := prices[sym]
		if px <= 0 {
			continue
		}
		if e.deps.Marker != nil {
			e.deps.Marker.Set(sym, px)
		}
		metrics.TicksTotal.WithLabelValues(sym).Inc()

		sig := e.deps.Strategy.OnTick(market.Tick{Symbol: sym, Price: px, Ts: now})
		if sig == nil {
			continue
		}
		metrics.SignalsTotal.WithLabelValues(sym, string(sig.Side)).Inc()
		e.mu.Lock()
		e.signals++
		e.mu.Unlock()
		e.log.Debug().Str("symbol", sym).Str("side", string(sig.Side)).
			Str("reason", sig.Reason).Msg("signal")

		if _, err := e.deps.Book.OnSignal(sig); err != nil {
			if errors.Is(err, position.ErrPositionCap) || errors.Is(err, position.ErrRiskRejected) {
				e.log.Debug().Err(err).Str("symbol", sym).Msg("signal dropped")
			} else {
				e.log.Warn().Err(err).Str("symbol", sym).Msg("open failed")
			}
			continue
		}
		e.mu.Lock()
		e.opened++
		e.mu.Unlock()
	}

	trades := e.deps.Book.CheckExits(prices)
	for _, tr := range trades {
		metrics.TradesTotal.WithLabelValues(tr.Symbol, string(tr.Reason)).Inc()
		if e.deps.Recorder != nil {
			e.deps.Recorder.Record(tr)
		}
		if e.deps.Batcher != nil {
			e.deps.Batcher.Enqueue(ctx, tr)
		}
		e.recordClose(tr)
	}
	metrics.OpenPositions.Set(float64(e.deps.Book.OpenCount()))
}

func (e *Engine) recordClose(tr market.Trade) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed++
	e.totalPnl += tr.Pnl
	if tr.Pnl > 0 {
		e.wins++
	} else {
		e.losses++
	}
	ps := e.byPair[tr.Symbol]
	ps.Trades++
	ps.Pnl += tr.Pnl
	if tr.Pnl > 0 {
		ps.Wins++
	} else {
		ps.Losses++
	}
	e.byPair[tr.Symbol] = ps
}

// Stats snapshots the session counters plus the batcher's view.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	s := Stats{
		Ticks:            e.ticks,
		FeedErrors:       e.feedErrors,
		SignalsGenerated: e.signals,
		TradesOpened:     e.opened,
		TradesClosed:     e.closed,
		Wins:             e.wins,
		Losses:           e.losses,
		TotalPnl:         e.totalPnl,
		ByPair:           make(map[string]PairStats, len(e.byPair)),
	}
	for sym, ps := range e.byPair {
		s.ByPair[sym] = ps
	}
	if !e.startedAt.IsZero() {
		s.ElapsedSec = time.Since(e.startedAt).Seconds()
	}
	e.mu.Unlock()

	if s.TradesClosed > 0 {
		s.WinRate = float64(s.Wins) / float64(s.TradesClosed)
	}
	s.OpenPositions = e.deps.Book.OpenCount()
	if e.deps.Batcher != nil {
		bs := e.deps.Batcher.Snapshot()
		s.BatchesExecuted = bs.Executed
		s.BatchesSkipped = bs.Skipped
		s.GasSaved = bs.GasSaved
	}
	return s
}

// Summary converts the stats into the persisted session rollup.
func (e *Engine) Summary() venue.SessionSummary {
	s := e.Stats()
	e.mu.Lock()
	started := e.startedAt
	e.mu.Unlock()
	return venue.SessionSummary{
		StartedAt:  started,
		ElapsedSec: s.ElapsedSec,
		Trades:     int(s.TradesClosed),
		Wins:       int(s.Wins),
		Losses:     int(s.Losses),
		WinRate:    s.WinRate,
		TotalPnl:   s.TotalPnl,
		Batches:    int(s.BatchesExecuted),
		Skipped:    int(s.BatchesSkipped),
	}
}
