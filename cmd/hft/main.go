// Binary hft runs the full trading loop: feed, strategy, position book,
// batch aggregator, and the selected execution venue.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/batch"
	"github.com/JirA44/obelisk-dex-sub002/internal/config"
	dex "github.com/JirA44/obelisk-dex-sub002/internal/dex/solana"
	"github.com/JirA44/obelisk-dex-sub002/internal/engine"
	"github.com/JirA44/obelisk-dex-sub002/internal/market"
	"github.com/JirA44/obelisk-dex-sub002/internal/metrics"
	"github.com/JirA44/obelisk-dex-sub002/internal/position"
	"github.com/JirA44/obelisk-dex-sub002/internal/router"
	"github.com/JirA44/obelisk-dex-sub002/internal/strategy"
	"github.com/JirA44/obelisk-dex-sub002/internal/util"
	"github.com/JirA44/obelisk-dex-sub002/internal/venue"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		l := util.NewLogger("info")
		l.Fatal().Err(err).Msg("load config")
	}
	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.App.MetricsAddr != "" {
		_ = metrics.Serve(cfg.App.MetricsAddr)
		log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	marker := venue.NewMarkMap()
	feed := buildFeed(ctx, cfg, log)
	exec := buildVenue(ctx, cfg, marker, log)

	book := position.NewBook(cfg.PositionParams(), cfg.RiskLimits(), exec, log)

	settler := buildSettler(cfg, log)
	agg := batch.NewAggregator(cfg.BatchParams(), settler, nil, log)

	memory := venue.NewMemoryRecorder(256)
	recorders := venue.MultiRecorder{memory}
	var jsonl *venue.JSONLRecorder
	if cfg.Venue.TradesPath != "" {
		jsonl, err = venue.NewJSONLRecorder(cfg.Venue.TradesPath)
		if err != nil {
			log.Warn().Err(err).Msg("trade log unavailable")
		} else {
			recorders = append(recorders, jsonl)
		}
	}

	eng := engine.New(cfg.EngineParams(), engine.Deps{
		Feed:     feed,
		Strategy: strategy.Build(cfg.Strategy.Mode, cfg.StrategyParams(), log),
		Book:     book,
		Batcher:  agg,
		Recorder: recorders,
		Marker:   marker,
		Log:      log,
	})

	if cfg.App.StatsAddr != "" {
		serveStats(cfg.App.StatsAddr, eng, memory)
		log.Info().Str("addr", cfg.App.StatsAddr).Msg("stats up")
	}

	if err := eng.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("engine start")
	}

	<-ctx.Done()
	log.Info().Msg("shutting down")
	eng.Stop()

	if cfg.Venue.SessionsPath != "" {
		venue.SaveSession(cfg.Venue.SessionsPath, eng.Summary())
	}
	if jsonl != nil {
		_ = jsonl.Close()
	}
}

func buildFeed(ctx context.Context, cfg *config.Config, log zerolog.Logger) market.Feed {
	switch strings.ToLower(cfg.Feed.Kind) {
	case "markets":
		return market.NewMarketsFeed(cfg.Feed.BaseURL, cfg.Feed.Symbols, log)
	case "stream":
		f := market.NewStreamFeed(cfg.Feed.WsURL, cfg.Feed.Symbols, log)
		go func() {
			if err := f.Run(ctx); err != nil {
				log.Error().Err(err).Msg("stream feed stopped")
			}
		}()
		return f
	case "dexscreener":
		f := market.NewDexScreenerFeed(cfg.Feed.BaseURL, cfg.Feed.DefaultChain, cfg.Feed.Symbols, log)
		disc := market.NewDiscovery(log, f, cfg.Feed.Symbols, cfg.Feed.BaseURL, cfg.Feed.DefaultChain, cfg.DiscoveryParams())
		disc.Start(ctx)
		return f
	default:
		return market.NewStubFeed(cfg.Feed.Symbols, 100)
	}
}

func buildVenue(ctx context.Context, cfg *config.Config, marker *venue.MarkMap, log zerolog.Logger) venue.Venue {
	switch strings.ToLower(cfg.Venue.Kind) {
	case "perps":
		p := venue.NewPerps(cfg.Venue.BaseURL, cfg.Venue.UserID, log)
		// clear anything the previous session left open
		cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		p.CloseAll(cctx, cfg.Feed.Symbols)
		return p
	default:
		return venue.NewPaper(cfg.Venue.StartingCash, marker)
	}
}

func buildSettler(cfg *config.Config, log zerolog.Logger) batch.Settler {
	if strings.ToLower(cfg.Venue.Kind) != "dex" {
		return &batch.AckSettler{GasCost: cfg.Batch.SettlementGas, GasSaved: cfg.Batch.SettlementGas}
	}

	var sources []router.LiquiditySource
	key, err := dex.LoadPrivateKeyFromEnv()
	if err != nil {
		log.Warn().Err(err).Msg("no signing key, dex settlement degraded to paper")
		return &batch.AckSettler{GasCost: cfg.Batch.SettlementGas, GasSaved: cfg.Batch.SettlementGas}
	}
	tokens := make(map[string]dex.Token, len(cfg.Dex.Tokens))
	for sym, t := range cfg.Dex.Tokens {
		tokens[sym] = dex.Token{Mint: t.Mint, Decimals: t.Decimals}
	}
	sources = append(sources, dex.NewAggregator(cfg.Dex.RpcURL, cfg.Dex.JupiterBase, key, cfg.Dex.Commitment, tokens))
	for _, s := range cfg.Router.Sources {
		sources = append(sources, router.NewHTTPSource(s.Name, s.BaseURL))
	}
	r := router.New(cfg.RouterParams(), log, sources...)
	return &router.BatchSettler{
		Router:     r,
		TokenIn:    "USDC",
		TokenOut:   "SOL",
		Slippage:   cfg.Router.DefaultSlippage,
		PerSwapGas: cfg.Batch.SettlementGas,
	}
}

func serveStats(addr string, eng *engine.Engine, trades *venue.MemoryRecorder) {
	mux := http.NewServeMux()
	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Stats())
	})
	mux.HandleFunc("/trades", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(trades.Snapshot())
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
}
