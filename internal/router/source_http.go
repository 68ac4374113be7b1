package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPSource is a direct pool venue behind a simple REST API. Unlike the
// aggregator it quotes against a single pool, so PathRef stays empty and
// swaps execute immediately against the live price.
type HTTPSource struct {
	name   string
	base   string
	client *http.Client

	mu        sync.Mutex
	approvals map[string]decimal.Decimal // token -> granted allowance
}

// NewHTTPSource builds a direct source named name against base.
func NewHTTPSource(name, base string) *HTTPSource {
	return &HTTPSource{
		name:      name,
		base:      base,
		client:    &http.Client{Timeout: 8 * time.Second},
		approvals: make(map[string]decimal.Decimal),
	}
}

func (s *HTTPSource) Name() string { return s.name }

type httpQuoteResp struct {
	AmountOut string `json:"amountOut"`
	Error     string `json:"error,omitempty"`
}

func (s *HTTPSource) Quote(ctx context.Context, tokenIn, tokenOut string, amountIn decimal.Decimal) (Quote, error) {
	u := fmt.Sprintf("%s/quote?tokenIn=%s&tokenOut=%s&amountIn=%s", s.base, tokenIn, tokenOut, amountIn)
	req, _ := http.NewRequestWithContext(ctx, "GET", u, nil)
	resp, err := s.client.Do(req)
	if err != nil {
		return Quote{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return Quote{}, fmt.Errorf("%s quote status %d", s.name, resp.StatusCode)
	}
	var qr httpQuoteResp
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return Quote{}, err
	}
	if qr.Error != "" {
		return Quote{}, fmt.Errorf("%s: %s", s.name, qr.Error)
	}
	out, err := decimal.NewFromString(qr.AmountOut)
	if err != nil {
		return Quote{}, fmt.Errorf("%s bad amountOut %q: %w", s.name, qr.AmountOut, err)
	}
	return Quote{Source: s.name, AmountOut: out}, nil
}

type httpSwapResp struct {
	AmountOut string `json:"amountOut"`
	GasCost   string `json:"gasCost"`
	TxRef     string `json:"txRef"`
	Error     string `json:"error,omitempty"`
}

func (s *HTTPSource) Swap(ctx context.Context, req SwapRequest) (SwapResult, error) {
	start := time.Now()
	body, _ := json.Marshal(map[string]string{
		"tokenIn":      req.TokenIn,
		"tokenOut":     req.TokenOut,
		"amountIn":     req.AmountIn.String(),
		"minAmountOut": req.MinAmountOut.String(),
		"deadline":     req.Deadline.UTC().Format(time.RFC3339),
	})
	hreq, _ := http.NewRequestWithContext(ctx, "POST", s.base+"/swap", bytes.NewReader(body))
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(hreq)
	if err != nil {
		return SwapResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return SwapResult{}, fmt.Errorf("%s swap status %d", s.name, resp.StatusCode)
	}
	var sr httpSwapResp
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return SwapResult{}, err
	}
	if sr.Error != "" {
		return SwapResult{}, fmt.Errorf("%s: %s", s.name, sr.Error)
	}
	out, err := decimal.NewFromString(sr.AmountOut)
	if err != nil {
		return SwapResult{}, fmt.Errorf("%s bad amountOut %q: %w", s.name, sr.AmountOut, err)
	}
	if out.LessThan(req.MinAmountOut) {
		return SwapResult{}, fmt.Errorf("%s filled %s below minimum %s", s.name, out, req.MinAmountOut)
	}
	cost := decimal.Zero
	if sr.GasCost != "" {
		cost, _ = decimal.NewFromString(sr.GasCost)
	}
	return SwapResult{
		Source:    s.name,
		AmountIn:  req.AmountIn,
		AmountOut: out,
		Cost:      cost,
		Latency:   time.Since(start),
		TxRef:     sr.TxRef,
	}, nil
}

// EnsureApproval grants the venue an allowance for token. It is idempotent:
// a sufficient existing allowance short-circuits without another request.
func (s *HTTPSource) EnsureApproval(ctx context.Context, token string, amount decimal.Decimal) error {
	s.mu.Lock()
	granted, ok := s.approvals[token]
	s.mu.Unlock()
	if ok && granted.GreaterThanOrEqual(amount) {
		return nil
	}

	body, _ := json.Marshal(map[string]string{"token": token, "amount": amount.String()})
	req, _ := http.NewRequestWithContext(ctx, "POST", s.base+"/approve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		return fmt.Errorf("%s approve status %d", s.name, resp.StatusCode)
	}

	s.mu.Lock()
	s.approvals[token] = amount
	s.mu.Unlock()
	return nil
}
