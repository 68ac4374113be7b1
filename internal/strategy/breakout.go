package strategy

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// BreakoutParams tunes the structural support/resistance strategy.
type BreakoutParams struct {
	CandleSec            int
	LevelLookback        int     // candles examined for swing points
	MinTouches           int     // observations required before a level is valid
	TouchTolerance       float64 // relative band around a cluster anchor
	BreakoutPct          float64 // margin beyond the level confirming a breakout
	ConsolidationCandles int     // candles that must sit on the entry side
	EMAFast              int
	EMASlow              int
	EMABand              float64 // dead zone around the fast/slow ratio
	Cooldown             time.Duration
}

func (p BreakoutParams) withDefaults() BreakoutParams {
	if p.CandleSec <= 0 {
		p.CandleSec = 60
	}
	if p.LevelLookback <= 0 {
		p.LevelLookback = 50
	}
	if p.MinTouches <= 0 {
		p.MinTouches = 3
	}
	if p.TouchTolerance <= 0 {
		p.TouchTolerance = 0.003
	}
	if p.BreakoutPct <= 0 {
		p.BreakoutPct = 0.001
	}
	if p.ConsolidationCandles <= 0 {
		p.ConsolidationCandles = 3
	}
	if p.EMAFast <= 0 {
		p.EMAFast = 5
	}
	if p.EMASlow <= 0 {
		p.EMASlow = 20
	}
	if p.EMABand <= 0 {
		p.EMABand = 0.0003
	}
	if p.Cooldown <= 0 {
		p.Cooldown = 2 * time.Minute
	}
	return p
}

// swingWindow is the number of candles on each side confirming a swing point.
const swingWindow = 3

type candle struct {
	open, high, low, close float64
	ts                     int64 // bucket start, unix ms
}

type level struct {
	price   float64
	touches int
	kind    string // "resistance" | "support"
}

type bias string

const (
	biasBull    bias = "bull"
	biasBear    bias = "bear"
	biasNeutral bias = "neutral"
)

// Breakout builds fixed-duration candles from the tick stream, clusters swing
// highs/lows into tested levels, and signals when price escapes a
// consolidation through a level, gated by a higher-timeframe EMA bias.
type Breakout struct {
	params   BreakoutParams
	cooldown *cooldownTracker
	log      zerolog.Logger

	mu    sync.Mutex
	books map[string]*candleBook
}

type candleBook struct {
	done    []candle
	current *candle
}

// NewBreakout builds a breakout strategy with zero-value params replaced by
// the live defaults.
func NewBreakout(params BreakoutParams, log zerolog.Logger) *Breakout {
	p := params.withDefaults()
	return &Breakout{
		params:   p,
		cooldown: newCooldownTracker(p.Cooldown),
		log:      log,
		books:    make(map[string]*candleBook),
	}
}

// Name returns the strategy identifier for logging.
func (b *Breakout) Name() string { return "breakout" }

// OnTick folds the sample into the candle book and checks for a breakout.
func (b *Breakout) OnTick(t market.Tick) *market.Signal {
	if t.Symbol == "" || t.Price <= 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	book := b.books[t.Symbol]
	if book == nil {
		book = &candleBook{}
		b.books[t.Symbol] = book
	}
	b.addTick(book, t)

	if len(book.done) < 15 || book.current == nil {
		return nil
	}

	levels := b.detectLevels(book.done)
	if len(levels) == 0 {
		return nil
	}

	mtf := b.mtfBias(book.done)
	curPrice := book.current.close
	recent := book.done[len(book.done)-min(b.params.ConsolidationCandles, len(book.done)):]

	for _, lvl := range levels {
		if lvl.kind == "resistance" && mtf != biasBear {
			consolidated := true
			for _, c := range recent {
				if c.close >= lvl.price {
					consolidated = false
					break
				}
			}
			if consolidated && curPrice > lvl.price*(1+b.params.BreakoutPct) {
				if sig := b.emit(t, market.Long, lvl, mtf, curPrice); sig != nil {
					return sig
				}
			}
		}
		if lvl.kind == "support" && mtf != biasBull {
			consolidated := true
			for _, c := range recent {
				if c.close <= lvl.price {
					consolidated = false
					break
				}
			}
			if consolidated && curPrice < lvl.price*(1-b.params.BreakoutPct) {
				if sig := b.emit(t, market.Short, lvl, mtf, curPrice); sig != nil {
					return sig
				}
			}
		}
	}
	return nil
}

func (b *Breakout) emit(t market.Tick, side market.Side, lvl level, mtf bias, price float64) *market.Signal {
	if !b.cooldown.allow(t.Symbol, side, t.Ts) {
		return nil
	}
	dir := "above"
	if side == market.Short {
		dir = "below"
	}
	return &market.Signal{
		Symbol: t.Symbol,
		Side:   side,
		Price:  price,
		Indicators: market.IndicatorSnapshot{
			Level:   lvl.price,
			Touches: lvl.touches,
		},
		Reason: fmt.Sprintf("breakout %s %.4f (%dx tested, mtf=%s)", dir, lvl.price, lvl.touches, mtf),
		Ts:     t.Ts,
	}
}

func (b *Breakout) addTick(book *candleBook, t market.Tick) {
	candleMs := int64(b.params.CandleSec) * 1000
	bucket := t.Ts.UnixMilli() / candleMs * candleMs

	if book.current == nil {
		book.current = &candle{open: t.Price, high: t.Price, low: t.Price, close: t.Price, ts: bucket}
		return
	}

	c := book.current
	if bucket > c.ts {
		book.done = append(book.done, *c)
		if max := b.params.LevelLookback + 20; len(book.done) > max {
			book.done = book.done[len(book.done)-max:]
		}
		book.current = &candle{open: t.Price, high: t.Price, low: t.Price, close: t.Price, ts: bucket}
		return
	}

	if t.Price > c.high {
		c.high = t.Price
	}
	if t.Price < c.low {
		c.low = t.Price
	}
	c.close = t.Price
}

// detectLevels finds swing highs/lows within the lookback and clusters them
// around a fixed anchor so a drifting mean cannot swallow distant swings.
func (b *Breakout) detectLevels(candles []candle) []level {
	if len(candles) < swingWindow*2+b.params.MinTouches {
		return nil
	}
	lookback := candles
	if len(lookback) > b.params.LevelLookback {
		lookback = lookback[len(lookback)-b.params.LevelLookback:]
	}

	type swing struct {
		price float64
		high  bool
	}
	var swings []swing
	for i := swingWindow; i < len(lookback)-swingWindow; i++ {
		c := lookback[i]
		isHigh, isLow := true, true
		for j := i - swingWindow; j <= i+swingWindow; j++ {
			if j == i {
				continue
			}
			if lookback[j].high > c.high {
				isHigh = false
			}
			if lookback[j].low < c.low {
				isLow = false
			}
		}
		if isHigh {
			swings = append(swings, swing{price: c.high, high: true})
		}
		if isLow {
			swings = append(swings, swing{price: c.low, high: false})
		}
	}

	type cluster struct {
		anchor, sum float64
		count       int
		highs, lows int
	}
	var clusters []*cluster
	for _, s := range swings {
		var home *cluster
		for _, cl := range clusters {
			if math.Abs(s.price-cl.anchor)/cl.anchor <= b.params.TouchTolerance {
				home = cl
				break
			}
		}
		if home == nil {
			home = &cluster{anchor: s.price}
			clusters = append(clusters, home)
		}
		home.sum += s.price
		home.count++
		if s.high {
			home.highs++
		} else {
			home.lows++
		}
	}

	var out []level
	for _, cl := range clusters {
		if cl.count < b.params.MinTouches {
			continue
		}
		kind := "support"
		if cl.highs >= cl.lows {
			kind = "resistance"
		}
		out = append(out, level{
			price:   cl.sum / float64(cl.count),
			touches: cl.count,
			kind:    kind,
		})
	}
	// Strongest levels first.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].touches > out[j-1].touches; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// mtfBias computes the higher-timeframe trend from candle closes. Inside the
// band the trend is neutral and both breakout directions stay allowed.
func (b *Breakout) mtfBias(candles []candle) bias {
	if len(candles) < b.params.EMASlow {
		return biasNeutral
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.close
	}
	fast := ema(closes, b.params.EMAFast)
	slow := ema(closes, b.params.EMASlow)
	if fast < 0 || slow < 0 {
		return biasNeutral
	}
	switch {
	case fast > slow*(1+b.params.EMABand):
		return biasBull
	case fast < slow*(1-b.params.EMABand):
		return biasBear
	default:
		return biasNeutral
	}
}
