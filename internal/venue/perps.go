package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/JirA44/obelisk-dex-sub002/internal/market"
)

// Perps is a custodial perpetuals venue spoken over a small JSON API:
// POST /api/perps/open and POST /api/perps/close.
type Perps struct {
	baseURL string
	userID  string
	client  *http.Client
	log     zerolog.Logger
}

// NewPerps constructs a perps client. userID scopes positions server-side so
// several engines can share one venue.
func NewPerps(baseURL, userID string, log zerolog.Logger) *Perps {
	return &Perps{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		userID:  userID,
		client:  &http.Client{Timeout: 5 * time.Second},
		log:     log,
	}
}

// Name identifies the venue in logs and stats.
func (p *Perps) Name() string { return "perps" }

type perpsOpenRequest struct {
	Pair   string  `json:"pair"`
	Side   string  `json:"side"`
	Size   float64 `json:"sizeUsd"`
	UserID string  `json:"userId"`
}

type perpsCloseRequest struct {
	Pair   string `json:"pair"`
	UserID string `json:"userId"`
}

type perpsResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Result  struct {
		EntryPrice float64 `json:"entryPrice"`
		Pnl        float64 `json:"pnl"`
	} `json:"result"`
}

// Open places an entry order.
func (p *Perps) Open(ctx context.Context, symbol string, side market.Side, sizeQuote float64) (OpenResult, error) {
	var resp perpsResponse
	err := p.post(ctx, "/api/perps/open", perpsOpenRequest{
		Pair:   symbol,
		Side:   string(side),
		Size:   sizeQuote,
		UserID: p.userID,
	}, &resp)
	if err != nil {
		return OpenResult{}, err
	}
	if !resp.Success {
		return OpenResult{}, fmt.Errorf("perps open rejected: %s", resp.Error)
	}
	return OpenResult{Success: true, EntryPrice: resp.Result.EntryPrice}, nil
}

// Close flattens the symbol position.
func (p *Perps) Close(ctx context.Context, symbol string) (CloseResult, error) {
	var resp perpsResponse
	err := p.post(ctx, "/api/perps/close", perpsCloseRequest{Pair: symbol, UserID: p.userID}, &resp)
	if err != nil {
		return CloseResult{}, err
	}
	if !resp.Success {
		return CloseResult{}, fmt.Errorf("perps close rejected: %s", resp.Error)
	}
	return CloseResult{Success: true, Pnl: resp.Result.Pnl}, nil
}

// CloseAll flattens every listed pair, swallowing per-pair errors. Used at
// startup to clear ghost positions left by a previous session.
func (p *Perps) CloseAll(ctx context.Context, pairs []string) {
	for _, pair := range pairs {
		res, err := p.Close(ctx, pair)
		if err != nil {
			continue // no position is fine
		}
		if res.Success && res.Pnl != 0 {
			p.log.Info().Str("pair", pair).Float64("pnl", res.Pnl).Msg("closed ghost position")
		}
	}
}

func (p *Perps) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
