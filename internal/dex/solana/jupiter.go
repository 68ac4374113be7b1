// Package solana provides the on-chain aggregator liquidity source. Quoting
// and execution are split: a quote pins a Jupiter route under a path
// reference, and the swap must redeem that reference before it expires.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	bin "github.com/gagliardetto/binary"
	solana "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JirA44/obelisk-dex-sub002/internal/router"
)

// Token maps a symbol onto its mint and on-chain decimals.
type Token struct {
	Mint     string
	Decimals int32
}

// jupQuote is Jupiter's v6 quote payload, carried opaque through to /v6/swap.
type jupQuote struct {
	InputMint      string  `json:"inputMint"`
	OutputMint     string  `json:"outputMint"`
	InAmount       string  `json:"inAmount"`
	OutAmount      string  `json:"outAmount"`
	OtherAmount    string  `json:"otherAmountThreshold"`
	SlippageBps    int     `json:"slippageBps"`
	RoutePlan      any     `json:"routePlan"`
	PriceImpactPct float64 `json:"priceImpactPct"`
}

type pinnedRoute struct {
	quote   jupQuote
	out     decimal.Decimal
	expires time.Time
}

// Aggregator quotes and executes through the Jupiter aggregator. Routes go
// stale quickly on-chain, so each quote is held for RouteTTL and a swap
// against an expired reference fails instead of executing at a moved price.
type Aggregator struct {
	base   string
	rpc    *rpc.Client
	owner  solana.PrivateKey
	commit rpc.CommitmentType
	client *http.Client
	tokens map[string]Token

	mu     sync.Mutex
	routes map[string]pinnedRoute
	ttl    time.Duration
}

const defaultRouteTTL = 30 * time.Second

// NewAggregator builds the Jupiter source. tokens keys are the symbols the
// engine trades in; amounts are converted through their registered decimals.
func NewAggregator(rpcURL, base string, owner solana.PrivateKey, commit string, tokens map[string]Token) *Aggregator {
	c := rpc.CommitmentConfirmed
	switch commit {
	case "processed":
		c = rpc.CommitmentProcessed
	case "finalized":
		c = rpc.CommitmentFinalized
	}
	return &Aggregator{
		base:   base,
		rpc:    rpc.New(rpcURL),
		owner:  owner,
		commit: c,
		client: &http.Client{Timeout: 8 * time.Second},
		tokens: tokens,
		routes: make(map[string]pinnedRoute),
		ttl:    defaultRouteTTL,
	}
}

func (a *Aggregator) Name() string { return "jupiter" }

func (a *Aggregator) token(symbol string) (Token, error) {
	t, ok := a.tokens[symbol]
	if !ok {
		return Token{}, fmt.Errorf("no mint registered for %s", symbol)
	}
	return t, nil
}

// Quote fetches a route from Jupiter and pins it under a fresh path
// reference. The caller has RouteTTL to redeem it via Swap.
func (a *Aggregator) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (router.Quote, error) {
	in, err := a.token(tokenIn)
	if err != nil {
		return router.Quote{}, err
	}
	out, err := a.token(tokenOut)
	if err != nil {
		return router.Quote{}, err
	}

	raw := amountIn.Shift(in.Decimals).Truncate(0)
	q := url.Values{}
	q.Set("inputMint", in.Mint)
	q.Set("outputMint", out.Mint)
	q.Set("amount", raw.String())
	q.Set("slippageBps", "50")
	q.Set("onlyDirectRoutes", "false")

	req, _ := http.NewRequestWithContext(ctx, "GET", a.base+"/v6/quote?"+q.Encode(), nil)
	resp, err := a.client.Do(req)
	if err != nil {
		return router.Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return router.Quote{}, fmt.Errorf("jupiter quote status %d", resp.StatusCode)
	}
	var jq jupQuote
	if err := json.NewDecoder(resp.Body).Decode(&jq); err != nil {
		return router.Quote{}, err
	}
	outAmt, err := decimal.NewFromString(jq.OutAmount)
	if err != nil {
		return router.Quote{}, fmt.Errorf("bad outAmount %q: %w", jq.OutAmount, err)
	}
	outAmt = outAmt.Shift(-out.Decimals)

	ref := uuid.NewString()
	a.mu.Lock()
	a.routes[ref] = pinnedRoute{quote: jq, out: outAmt, expires: time.Now().Add(a.ttl)}
	for k, r := range a.routes {
		if time.Now().After(r.expires) {
			delete(a.routes, k)
		}
	}
	a.mu.Unlock()

	return router.Quote{Source: a.Name(), AmountOut: outAmt, PathRef: ref}, nil
}

// Swap redeems a pinned route: asks Jupiter for the ready-to-sign
// transaction, signs it with the owner key, and submits it via RPC.
func (a *Aggregator) Swap(ctx context.Context, req router.SwapRequest) (router.SwapResult, error) {
	a.mu.Lock()
	route, ok := a.routes[req.PathRef]
	if ok {
		delete(a.routes, req.PathRef)
	}
	a.mu.Unlock()
	if !ok {
		return router.SwapResult{}, fmt.Errorf("unknown route %s, re-quote", req.PathRef)
	}
	if time.Now().After(route.expires) {
		return router.SwapResult{}, fmt.Errorf("route %s expired, re-quote", req.PathRef)
	}
	if route.out.LessThan(req.MinAmountOut) {
		return router.SwapResult{}, fmt.Errorf("route output %s below minimum %s", route.out, req.MinAmountOut)
	}

	start := time.Now()
	payload := map[string]any{
		"userPublicKey":             a.owner.PublicKey().String(),
		"wrapAndUnwrapSol":          true,
		"asLegacyTransaction":       false,
		"useTokenLedger":            false,
		"prioritizationFeeLamports": 0,
		"quoteResponse":             route.quote,
	}
	body, _ := json.Marshal(payload)

	hreq, _ := http.NewRequestWithContext(ctx, "POST", a.base+"/v6/swap", bytes.NewReader(body))
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := a.client.Do(hreq)
	if err != nil {
		return router.SwapResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return router.SwapResult{}, fmt.Errorf("jupiter swap status %d", resp.StatusCode)
	}
	var sr struct {
		SwapTransaction string `json:"swapTransaction"` // base64-encoded tx (unsigned)
	}
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return router.SwapResult{}, err
	}

	rawTx, err := base64.StdEncoding.DecodeString(sr.SwapTransaction)
	if err != nil {
		return router.SwapResult{}, fmt.Errorf("decode tx: %w", err)
	}
	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(rawTx))
	if err != nil {
		return router.SwapResult{}, fmt.Errorf("unmarshal tx: %w", err)
	}
	if _, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(a.owner.PublicKey()) {
			return &a.owner
		}
		return nil
	}); err != nil {
		return router.SwapResult{}, fmt.Errorf("sign: %w", err)
	}

	sig, err := a.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: a.commit,
	})
	if err != nil {
		return router.SwapResult{}, err
	}

	return router.SwapResult{
		Source:    a.Name(),
		AmountIn:  req.AmountIn,
		AmountOut: route.out,
		Cost:      decimal.Zero,
		Latency:   time.Since(start),
		TxRef:     sig.String(),
	}, nil
}
