// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JirA44/obelisk-dex-sub002/internal/batch"
	"github.com/JirA44/obelisk-dex-sub002/internal/engine"
	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/position"
	"github.com/JirA44/obelisk-dex-sub002/internal/risk"
	"github.com/JirA44/obelisk-dex-sub002/internal/router"
	"github.com/JirA44/obelisk-dex-sub002/internal/strategy"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string `yaml:"metrics_addr"`
	StatsAddr   string `yaml:"stats_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed selects the price source and the instruments it tracks.
type Feed struct {
	Kind         string    `yaml:"kind"` // stub|markets|stream|dexscreener
	BaseURL      string    `yaml:"base_url"`
	WsURL        string    `yaml:"ws_url"`
	DefaultChain string    `yaml:"default_chain"`
	Symbols      []string  `yaml:"symbols"`
	Discovery    Discovery `yaml:"discovery"`
}

// Discovery tunes automatic instrument discovery for the dexscreener feed.
type Discovery struct {
	Enabled            bool     `yaml:"enabled"`
	RefreshIntervalMs  int      `yaml:"refresh_interval_ms"`
	MaxPairs           int      `yaml:"max_pairs"`
	MaxPairsPerKeyword int      `yaml:"max_pairs_per_keyword"`
	MinLiquidityUSD    float64  `yaml:"min_liquidity_usd"`
	MinVolumeUSD       float64  `yaml:"min_volume_usd"`
	Chains             []string `yaml:"chains"`
	Keywords           []string `yaml:"keywords"`
}

// Engine tunes the tick loop.
type Engine struct {
	TickIntervalMs int `yaml:"tick_interval_ms"`
	StopGraceMs    int `yaml:"stop_grace_ms"`
}

// Scalp groups the momentum strategy thresholds.
type Scalp struct {
	RSIWindow     int     `yaml:"rsi_window"`
	Overbought    float64 `yaml:"overbought"`
	Oversold      float64 `yaml:"oversold"`
	VWAPBand      float64 `yaml:"vwap_band"`
	EMAFast       int     `yaml:"ema_fast"`
	EMASlow       int     `yaml:"ema_slow"`
	SignalWindow  int     `yaml:"signal_window"`
	GapPct        float64 `yaml:"gap_pct"`
	DriftWindowMs int     `yaml:"drift_window_ms"`
	DriftPct      float64 `yaml:"drift_pct"`
	CooldownMs    int     `yaml:"cooldown_ms"`
}

// Breakout groups the structural strategy thresholds.
type Breakout struct {
	CandleSec            int     `yaml:"candle_sec"`
	LevelLookback        int     `yaml:"level_lookback"`
	MinTouches           int     `yaml:"min_touches"`
	TouchTolerance       float64 `yaml:"touch_tolerance"`
	BreakoutPct          float64 `yaml:"breakout_pct"`
	ConsolidationCandles int     `yaml:"consolidation_candles"`
	EMAFast              int     `yaml:"ema_fast"`
	EMASlow              int     `yaml:"ema_slow"`
	EMABand              float64 `yaml:"ema_band"`
	CooldownMs           int     `yaml:"cooldown_ms"`
}

// Strategy specifies which strategy is active along with both parameter bundles.
type Strategy struct {
	Mode     string
	Scalp    Scalp    `yaml:"scalp"`
	Breakout Breakout `yaml:"breakout"`
}

// Position sizes and bounds the open-position book.
type Position struct {
	MaxPositions int     `yaml:"max_positions"`
	SizeQuote    float64 `yaml:"size_quote"`
	StopPct      float64 `yaml:"stop_pct"`
	TargetPct    float64 `yaml:"target_pct"`
	MaxHoldMs    int     `yaml:"max_hold_ms"`
}

// Risk encodes guard-rails for how much size the engine may take on.
type Risk struct {
	MaxNotionalPerTrade  float64 `yaml:"max_notional_per_trade"`
	MaxPortfolioNotional float64 `yaml:"max_portfolio_notional"`
}

// Batch tunes the trade settlement aggregator.
type Batch struct {
	Mode          string  `yaml:"mode"` // TIME|COUNT|HYBRID
	IntervalMs    int     `yaml:"interval_ms"`
	BatchSize     int     `yaml:"batch_size"`
	MinBatchSize  int     `yaml:"min_batch_size"`
	MaxBatchSize  int     `yaml:"max_batch_size"`
	MinNetProfit  float64 `yaml:"min_net_profit"`
	SettlementGas float64 `yaml:"settlement_gas"`
	FeeRate       float64 `yaml:"fee_rate"`
	ProfitGuard   bool    `yaml:"profit_guard"`
}

// Source names one direct liquidity source for the router.
type Source struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// Router tunes quote aggregation and swap execution.
type Router struct {
	DefaultSlippage float64  `yaml:"default_slippage"`
	QuoteTimeoutMs  int      `yaml:"quote_timeout_ms"`
	SwapDeadlineMs  int      `yaml:"swap_deadline_ms"`
	BreakerFailures uint32   `yaml:"breaker_failures"`
	BreakerCooldown int      `yaml:"breaker_cooldown_ms"`
	Sources         []Source `yaml:"sources"`
}

// Venue selects the execution venue behind the position book.
type Venue struct {
	Kind         string  `yaml:"kind"` // paper|perps|dex
	StartingCash float64 `yaml:"starting_cash"`
	BaseURL      string  `yaml:"base_url"`
	UserID       string  `yaml:"user_id"`
	TradesPath   string  `yaml:"trades_path"`
	SessionsPath string  `yaml:"sessions_path"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App      App      `yaml:"app"`
	Feed     Feed     `yaml:"feed"`
	Engine   Engine   `yaml:"engine"`
	Strategy Strategy `yaml:"strategy"`
	Position Position `yaml:"position"`
	Risk     Risk     `yaml:"risk"`
	Batch    Batch    `yaml:"batch"`
	Router   Router   `yaml:"router"`
	Venue    Venue    `yaml:"venue"`
	Dex      Dex      `yaml:"dex"`
	Wallet   Wallet   `yaml:"wallet"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// EngineParams converts the engine leaf to runtime parameters.
func (c *Config) EngineParams() engine.Params {
	return engine.Params{
		TickInterval: ms(c.Engine.TickIntervalMs),
		StopGrace:    ms(c.Engine.StopGraceMs),
	}
}

// StrategyParams converts both strategy leaves to runtime parameters.
func (c *Config) StrategyParams() strategy.Params {
	return strategy.Params{
		Scalp: strategy.ScalpParams{
			RSIWindow:    c.Strategy.Scalp.RSIWindow,
			Overbought:   c.Strategy.Scalp.Overbought,
			Oversold:     c.Strategy.Scalp.Oversold,
			VWAPBand:     c.Strategy.Scalp.VWAPBand,
			EMAFast:      c.Strategy.Scalp.EMAFast,
			EMASlow:      c.Strategy.Scalp.EMASlow,
			SignalWindow: c.Strategy.Scalp.SignalWindow,
			GapPct:       c.Strategy.Scalp.GapPct,
			DriftWindow:  ms(c.Strategy.Scalp.DriftWindowMs),
			DriftPct:     c.Strategy.Scalp.DriftPct,
			Cooldown:     ms(c.Strategy.Scalp.CooldownMs),
		},
		Breakout: strategy.BreakoutParams{
			CandleSec:            c.Strategy.Breakout.CandleSec,
			LevelLookback:        c.Strategy.Breakout.LevelLookback,
			MinTouches:           c.Strategy.Breakout.MinTouches,
			TouchTolerance:       c.Strategy.Breakout.TouchTolerance,
			BreakoutPct:          c.Strategy.Breakout.BreakoutPct,
			ConsolidationCandles: c.Strategy.Breakout.ConsolidationCandles,
			EMAFast:              c.Strategy.Breakout.EMAFast,
			EMASlow:              c.Strategy.Breakout.EMASlow,
			EMABand:              c.Strategy.Breakout.EMABand,
			Cooldown:             ms(c.Strategy.Breakout.CooldownMs),
		},
	}
}

// PositionParams converts the position leaf to book parameters.
func (c *Config) PositionParams() position.Params {
	return position.Params{
		MaxPositions: c.Position.MaxPositions,
		SizeQuote:    c.Position.SizeQuote,
		StopPct:      c.Position.StopPct,
		TargetPct:    c.Position.TargetPct,
		MaxHold:      ms(c.Position.MaxHoldMs),
	}
}

// RiskLimits converts the risk leaf to runtime guard-rails.
func (c *Config) RiskLimits() risk.Limits {
	return risk.Limits{
		MaxNotionalPerTrade:  c.Risk.MaxNotionalPerTrade,
		MaxPortfolioNotional: c.Risk.MaxPortfolioNotional,
	}
}

// BatchParams converts the batch leaf to aggregator parameters.
func (c *Config) BatchParams() batch.Params {
	return batch.Params{
		Mode:          batch.Mode(c.Batch.Mode),
		Interval:      ms(c.Batch.IntervalMs),
		BatchSize:     c.Batch.BatchSize,
		MinBatchSize:  c.Batch.MinBatchSize,
		MaxBatchSize:  c.Batch.MaxBatchSize,
		MinNetProfit:  c.Batch.MinNetProfit,
		SettlementGas: c.Batch.SettlementGas,
		FeeRate:       c.Batch.FeeRate,
		ProfitGuard:   c.Batch.ProfitGuard,
	}
}

// DiscoveryParams converts the discovery leaf to runtime parameters.
func (c *Config) DiscoveryParams() market.DiscoveryParams {
	d := c.Feed.Discovery
	return market.DiscoveryParams{
		Enabled:            d.Enabled,
		RefreshInterval:    ms(d.RefreshIntervalMs),
		MaxPairs:           d.MaxPairs,
		MaxPairsPerKeyword: d.MaxPairsPerKeyword,
		MinLiquidityUSD:    d.MinLiquidityUSD,
		MinVolumeUSD:       d.MinVolumeUSD,
		Chains:             d.Chains,
		Keywords:           d.Keywords,
	}
}

// RouterParams converts the router leaf to runtime parameters.
func (c *Config) RouterParams() router.Params {
	return router.Params{
		DefaultSlippage: c.Router.DefaultSlippage,
		QuoteTimeout:    ms(c.Router.QuoteTimeoutMs),
		SwapDeadline:    ms(c.Router.SwapDeadlineMs),
		BreakerFailures: c.Router.BreakerFailures,
		BreakerCooldown: ms(c.Router.BreakerCooldown),
	}
}
