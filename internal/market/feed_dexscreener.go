package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultDexScreenerBaseURL = "https://api.dexscreener.com"

// DexScreenerFeed polls Dexscreener pair endpoints for on-chain prices.
// Symbols use the form ALIAS@chain/pairAddress; a bare address falls back to
// the default chain. Per-pair fetch failures are logged and reported as
// "no update" for that instrument.
type DexScreenerFeed struct {
	baseURL      string
	defaultChain string
	client       *http.Client
	log          zerolog.Logger

	mu      sync.Mutex
	symbols []string
}

type dexTarget struct {
	Alias   string
	Chain   string
	Address string
}

type dexPairsResponse struct {
	Pairs []dexPair `json:"pairs"`
	Pair  *dexPair  `json:"pair"`
}

type dexPair struct {
	ChainID     string         `json:"chainId"`
	PairAddress string         `json:"pairAddress"`
	BaseToken   dexToken       `json:"baseToken"`
	QuoteToken  dexToken       `json:"quoteToken"`
	PriceUsd    string         `json:"priceUsd"`
	PriceNative string         `json:"priceNative"`
	Volume      dexVolumes     `json:"volume"`
	Liquidity   dexLiquidity   `json:"liquidity"`
	PriceChange dexPriceChange `json:"priceChange"`
}

type dexToken struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

type dexVolumes struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

type dexLiquidity struct {
	USD   float64 `json:"usd"`
	Base  float64 `json:"base"`
	Quote float64 `json:"quote"`
}

type dexPriceChange struct {
	M5  float64 `json:"m5"`
	H1  float64 `json:"h1"`
	H6  float64 `json:"h6"`
	H24 float64 `json:"h24"`
}

func (r *dexPairsResponse) firstPair() (*dexPair, bool) {
	if len(r.Pairs) > 0 {
		return &r.Pairs[0], true
	}
	if r.Pair != nil {
		return r.Pair, true
	}
	return nil, false
}

// NewDexScreenerFeed constructs a feed polling Dexscreener for the supplied
// symbols. An empty baseURL targets the public API.
func NewDexScreenerFeed(baseURL, defaultChain string, symbols []string, log zerolog.Logger) *DexScreenerFeed {
	if baseURL == "" {
		baseURL = defaultDexScreenerBaseURL
	}
	f := &DexScreenerFeed{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultChain: strings.ToLower(strings.TrimSpace(defaultChain)),
		client:       &http.Client{Timeout: 10 * time.Second},
		log:          log,
	}
	f.SetSymbols(symbols)
	return f
}

// SetSymbols replaces the tracked symbol list. Safe to call while Fetch runs;
// discovery uses it to grow the instrument universe.
func (f *DexScreenerFeed) SetSymbols(symbols []string) {
	cleaned := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		if sym = strings.TrimSpace(sym); sym != "" {
			cleaned = append(cleaned, sym)
		}
	}
	f.mu.Lock()
	f.symbols = cleaned
	f.mu.Unlock()
}

func (f *DexScreenerFeed) snapshotSymbols() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.symbols...)
}

// Fetch polls every tracked pair and returns the prices that resolved.
func (f *DexScreenerFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	targets, err := parseDexTargets(f.snapshotSymbols(), f.defaultChain)
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(targets))
	for _, target := range targets {
		price, err := f.fetchPair(ctx, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			f.log.Warn().Err(err).Str("symbol", target.Alias).Msg("dexscreener fetch failed")
			continue
		}
		out[target.Alias] = price
	}
	return out, nil
}

func (f *DexScreenerFeed) fetchPair(ctx context.Context, target dexTarget) (float64, error) {
	url := fmt.Sprintf("%s/latest/dex/pairs/%s/%s", f.baseURL, target.Chain, target.Address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "obelisk-hft/1.0 (feed)")
	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload dexPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	pair, ok := payload.firstPair()
	if !ok {
		return 0, fmt.Errorf("no pair data returned")
	}
	return parseDexPrice(pair)
}

func parseDexPrice(pair *dexPair) (float64, error) {
	if pair == nil {
		return 0, fmt.Errorf("pair missing")
	}
	if pair.PriceUsd != "" {
		if px, err := strconv.ParseFloat(pair.PriceUsd, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	if pair.PriceNative != "" {
		if px, err := strconv.ParseFloat(pair.PriceNative, 64); err == nil && px > 0 {
			return px, nil
		}
	}
	return 0, fmt.Errorf("pair missing price")
}

func parseDexTargets(symbols []string, defaultChain string) ([]dexTarget, error) {
	targets := make([]dexTarget, 0, len(symbols))
	for _, raw := range symbols {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		aliasPart := raw
		targetPart := raw
		if parts := strings.SplitN(raw, "@", 2); len(parts) == 2 {
			aliasPart = parts[0]
			targetPart = parts[1]
		}
		chain := defaultChain
		address := targetPart
		if parts := strings.SplitN(targetPart, "/", 2); len(parts) == 2 {
			if parts[0] != "" {
				chain = strings.ToLower(strings.TrimSpace(parts[0]))
			}
			address = parts[1]
		}
		chain = strings.ToLower(strings.TrimSpace(chain))
		address = strings.TrimSpace(address)
		if chain == "" || address == "" {
			return nil, fmt.Errorf("dexscreener symbol %q missing chain or address", raw)
		}
		targets = append(targets, dexTarget{
			Alias:   composeDexAlias(aliasPart, address),
			Chain:   chain,
			Address: address,
		})
	}
	return targets, nil
}

func sanitizeDexAlias(alias string) string {
	alias = strings.TrimSpace(alias)
	if alias == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(alias))
	for _, r := range alias {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if r >= 'a' && r <= 'z' {
				r -= 32
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func composeDexAlias(base, address string) string {
	base = sanitizeDexAlias(base)
	suffix := sanitizeDexAlias(address)
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	if base == "" {
		if suffix == "" {
			return "PAIR"
		}
		return "PAIR_" + suffix
	}
	if suffix == "" {
		return base
	}
	return base + "_" + suffix
}
