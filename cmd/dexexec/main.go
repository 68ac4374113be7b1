// Binary dexexec is a one-shot router CLI: quote a pair across every
// configured liquidity source, and optionally execute against the winner.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub002/internal/config"
	dex "github.com/JirA44/obelisk-dex-sub002/internal/dex/solana"
	"github.com/JirA44/obelisk-dex-sub002/internal/router"
	"github.com/JirA44/obelisk-dex-sub002/internal/util"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	tokenIn := flag.String("in", "USDC", "input token symbol")
	tokenOut := flag.String("out", "SOL", "output token symbol")
	amount := flag.String("amount", "10", "input amount in token units")
	slippage := flag.Float64("slippage", 0, "slippage tolerance, 0 for config default")
	execute := flag.Bool("execute", false, "execute against the best source instead of just quoting")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := util.NewLogger(cfg.App.LogLevel)

	amountIn, err := decimal.NewFromString(*amount)
	if err != nil {
		log.Fatalf("amount: %v", err)
	}

	key, err := dex.LoadPrivateKeyFromEnv()
	if err != nil {
		log.Fatalf("wallet: %v", err)
	}

	tokens := make(map[string]dex.Token, len(cfg.Dex.Tokens))
	for sym, t := range cfg.Dex.Tokens {
		tokens[sym] = dex.Token{Mint: t.Mint, Decimals: t.Decimals}
	}
	sources := []router.LiquiditySource{
		dex.NewAggregator(
			getEnv("SOLANA_RPC_URL", cfg.Dex.RpcURL),
			getEnv("JUPITER_BASE_URL", cfg.Dex.JupiterBase),
			key,
			getEnv("SOLANA_COMMITMENT", cfg.Dex.Commitment),
			tokens,
		),
	}
	for _, s := range cfg.Router.Sources {
		sources = append(sources, router.NewHTTPSource(s.Name, s.BaseURL))
	}
	r := router.New(cfg.RouterParams(), logger, sources...)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if !*execute {
		bq, err := r.GetBestQuote(ctx, *tokenIn, *tokenOut, amountIn)
		if err != nil {
			log.Fatalf("quote: %v", err)
		}
		for _, q := range bq.All {
			log.Printf("%-12s %s %s", q.Source, q.AmountOut, *tokenOut)
		}
		log.Printf("best: %s (%d bps over worst)", bq.Best.Source, bq.SavingsBps)
		return
	}

	res, err := r.ExecuteSwap(ctx, *tokenIn, *tokenOut, amountIn, *slippage)
	if err != nil {
		log.Fatalf("swap: %v", err)
	}
	log.Printf("swapped %s %s -> %s %s via %s in %s (tx %s)",
		res.AmountIn, *tokenIn, res.AmountOut, *tokenOut, res.Source, res.Latency, res.TxRef)
}

func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
