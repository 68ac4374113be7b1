package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// ScalpParams tunes the momentum/mean-reversion strategy.
type ScalpParams struct {
	RSIWindow    int
	Overbought   float64
	Oversold     float64
	VWAPBand     float64 // relative deviation from mean price, e.g. 0.0003
	EMAFast      int
	EMASlow      int
	SignalWindow int     // samples kept per instrument for VWAP/RSI
	GapPct       float64 // reject the tick when the last step exceeds this
	DriftWindow  time.Duration
	DriftPct     float64 // veto counter-trend entries beyond this drift
	Cooldown     time.Duration
}

func (p ScalpParams) withDefaults() ScalpParams {
	if p.RSIWindow <= 0 {
		p.RSIWindow = 14
	}
	if p.Overbought <= 0 {
		p.Overbought = 70
	}
	if p.Oversold <= 0 {
		p.Oversold = 30
	}
	if p.VWAPBand <= 0 {
		p.VWAPBand = 0.0003
	}
	if p.EMAFast <= 0 {
		p.EMAFast = 5
	}
	if p.EMASlow <= 0 {
		p.EMASlow = 20
	}
	if p.SignalWindow <= 0 {
		p.SignalWindow = 30
	}
	if p.GapPct <= 0 {
		p.GapPct = 0.02
	}
	if p.DriftWindow <= 0 {
		p.DriftWindow = 10 * time.Second
	}
	if p.DriftPct <= 0 {
		p.DriftPct = 0.004
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 20 * time.Second
	}
	return p
}

// Scalper detects fresh RSI threshold crossings confirmed by mean-price
// deviation and EMA direction, with gap and drift guards against bad ticks
// and counter-trend entries.
type Scalper struct {
	params   ScalpParams
	cooldown *cooldownTracker
	log      zerolog.Logger

	mu     sync.Mutex
	series map[string]*scalpSeries
}

type scalpSeries struct {
	samples []market.Tick
	prevRSI float64
	seeded  bool
}

// NewScalper builds a scalp strategy with zero-value params replaced by the
// live defaults.
func NewScalper(params ScalpParams, log zerolog.Logger) *Scalper {
	p := params.withDefaults()
	return &Scalper{
		params:   p,
		cooldown: newCooldownTracker(p.Cooldown),
		log:      log,
		series:   make(map[string]*scalpSeries),
	}
}

// Name returns the strategy identifier for logging.
func (s *Scalper) Name() string { return "scalp" }

// OnTick ingests one sample and emits at most one signal.
func (s *Scalper) OnTick(t market.Tick) *market.Signal {
	if t.Symbol == "" || t.Price <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ser := s.series[t.Symbol]
	if ser == nil {
		ser = &scalpSeries{}
		s.series[t.Symbol] = ser
	}

	// Gap guard: a step beyond GapPct is either a bad tick or a genuine
	// repricing. The sample still joins the history so the series
	// re-anchors at the new level; it just never drives a decision.
	if n := len(ser.samples); n > 0 {
		last := ser.samples[n-1].Price
		if math.Abs(t.Price/last-1) > s.params.GapPct {
			s.log.Debug().Str("symbol", t.Symbol).Float64("px", t.Price).Float64("prev", last).Msg("gap filter skipped tick")
			s.record(ser, t)
			return nil
		}
	}

	s.record(ser, t)

	prices := make([]float64, len(ser.samples))
	for i, tk := range ser.samples {
		prices[i] = tk.Price
	}

	cur := rsi(prices, s.params.RSIWindow)
	if cur < 0 {
		return nil // insufficient history
	}
	prev := ser.prevRSI
	hadPrev := ser.seeded
	ser.prevRSI = cur
	ser.seeded = true
	if !hadPrev {
		return nil
	}
	if rsiDegenerate(cur) {
		s.log.Debug().Str("symbol", t.Symbol).Float64("rsi", cur).Msg("degenerate rsi suppressed")
		return nil
	}

	vwap := meanPrice(prices, s.params.SignalWindow)
	if vwap <= 0 {
		return nil
	}
	dev := (t.Price - vwap) / vwap

	fast := ema(prices, s.params.EMAFast)
	slow := ema(prices, s.params.EMASlow)
	if fast < 0 || slow < 0 {
		return nil
	}

	var side market.Side
	switch {
	// Fresh cross under the oversold line, not a lingering reading.
	case prev >= s.params.Oversold && cur < s.params.Oversold &&
		dev < -s.params.VWAPBand && fast > slow:
		side = market.Long
	case prev <= s.params.Overbought && cur > s.params.Overbought &&
		dev > s.params.VWAPBand && fast < slow:
		side = market.Short
	default:
		return nil
	}

	drift := s.driftLocked(ser, t)
	if side == market.Long && drift < -s.params.DriftPct {
		s.log.Debug().Str("symbol", t.Symbol).Float64("drift", drift).Msg("counter-trend long vetoed")
		return nil
	}
	if side == market.Short && drift > s.params.DriftPct {
		s.log.Debug().Str("symbol", t.Symbol).Float64("drift", drift).Msg("counter-trend short vetoed")
		return nil
	}
	boosted := (side == market.Long && drift > s.params.DriftPct) ||
		(side == market.Short && drift < -s.params.DriftPct)

	if !s.cooldown.allow(t.Symbol, side, t.Ts) {
		return nil
	}

	reason := fmt.Sprintf("rsi %.1f→%.1f vwapDev=%.5f", prev, cur, dev)
	if boosted {
		reason += " momentum-boost"
		s.log.Debug().Str("symbol", t.Symbol).Float64("drift", drift).Msg("same-direction momentum boost")
	}
	return &market.Signal{
		Symbol: t.Symbol,
		Side:   side,
		Price:  t.Price,
		Indicators: market.IndicatorSnapshot{
			RSI:     cur,
			EMAFast: fast,
			EMASlow: slow,
			VWAP:    vwap,
			VWAPDev: dev,
		},
		Reason: reason,
		Ts:     t.Ts,
	}
}

// record appends a sample and trims the buffer to the history cap. Caller
// holds s.mu.
func (s *Scalper) record(ser *scalpSeries, t market.Tick) {
	ser.samples = append(ser.samples, t)
	if max := s.historyCap(); len(ser.samples) > max {
		ser.samples = ser.samples[len(ser.samples)-max:]
	}
}

// historyCap bounds the per-instrument sample buffer: twice the signal
// window, but never below what the slowest indicator needs to compute.
func (s *Scalper) historyCap() int {
	max := s.params.SignalWindow * 2
	if need := s.params.RSIWindow + 1; max < need {
		max = need
	}
	if max < s.params.EMASlow {
		max = s.params.EMASlow
	}
	return max
}

// driftLocked returns the relative price change over the drift look-back
// window ending at the current tick. Caller holds s.mu.
func (s *Scalper) driftLocked(ser *scalpSeries, t market.Tick) float64 {
	cutoff := t.Ts.Add(-s.params.DriftWindow)
	anchor := 0.0
	for _, tk := range ser.samples {
		if !tk.Ts.Before(cutoff) {
			anchor = tk.Price
			break
		}
	}
	if anchor <= 0 {
		return 0
	}
	return (t.Price - anchor) / anchor
}
