package market

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DiscoveryParams tunes the Dexscreener symbol discovery loop.
type DiscoveryParams struct {
	Enabled            bool
	RefreshInterval    time.Duration
	MaxPairs           int
	MaxPairsPerKeyword int
	MinLiquidityUSD    float64
	MinVolumeUSD       float64
	Chains             []string
	Keywords           []string
}

// SymbolSetter is the feed side of discovery: discovery pushes the merged
// symbol universe into the feed between fetches.
type SymbolSetter interface {
	SetSymbols([]string)
}

// Discovery continuously enriches the feed symbol list using Dexscreener
// search endpoints, scored by liquidity and volume.
type Discovery struct {
	log          zerolog.Logger
	feed         SymbolSetter
	manual       []string
	client       *http.Client
	baseURL      string
	defaultChain string
	params       DiscoveryParams

	mu      sync.Mutex
	lastSet []string
}

type candidatePair struct {
	symbol    string
	liquidity float64
	volume    float64
	change24  float64
	score     float64
}

// NewDiscovery constructs a discovery service; returns nil when disabled or
// given a nil feed.
func NewDiscovery(log zerolog.Logger, feed SymbolSetter, manual []string, baseURL, defaultChain string, params DiscoveryParams) *Discovery {
	if feed == nil || !params.Enabled {
		return nil
	}
	if baseURL == "" {
		baseURL = defaultDexScreenerBaseURL
	}
	return &Discovery{
		log:          log,
		feed:         feed,
		manual:       append([]string(nil), manual...),
		client:       &http.Client{Timeout: 10 * time.Second},
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultChain: strings.ToLower(strings.TrimSpace(defaultChain)),
		params:       params,
	}
}

// Start launches the discovery loop in a goroutine.
func (d *Discovery) Start(ctx context.Context) {
	if d == nil {
		return
	}
	go d.loop(ctx)
}

func (d *Discovery) loop(ctx context.Context) {
	interval := d.params.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if err := d.Refresh(ctx); err != nil {
		d.log.Warn().Err(err).Msg("symbol discovery refresh failed")
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Refresh(ctx); err != nil {
				d.log.Warn().Err(err).Msg("symbol discovery refresh failed")
			}
		}
	}
}

// Refresh performs a single discovery cycle.
func (d *Discovery) Refresh(ctx context.Context) error {
	if d == nil {
		return nil
	}
	candidates, err := d.discover(ctx)
	if err != nil {
		return err
	}
	discovered := make([]string, len(candidates))
	for i, cand := range candidates {
		discovered[i] = cand.symbol
	}
	combined := mergeSymbols(d.manual, discovered)
	d.feed.SetSymbols(combined)
	d.logDiscoveryChange(combined, candidates)
	return nil
}

func (d *Discovery) discover(ctx context.Context) ([]candidatePair, error) {
	limit := d.params.MaxPairs
	if limit <= 0 {
		limit = 12
	}
	chainAllow := make(map[string]struct{}, len(d.params.Chains))
	for _, chain := range d.params.Chains {
		chainAllow[strings.ToLower(strings.TrimSpace(chain))] = struct{}{}
	}
	if len(chainAllow) == 0 && d.defaultChain != "" {
		chainAllow[d.defaultChain] = struct{}{}
	}
	keywords := d.params.Keywords
	if len(keywords) == 0 {
		keywords = []string{"sol", "wif", "pepe", "doge"}
	}
	perKeyword := d.params.MaxPairsPerKeyword
	if perKeyword <= 0 {
		perKeyword = limit
	}

	seen := make(map[string]struct{})
	candidates := make([]candidatePair, 0, limit*2)
	for _, keyword := range keywords {
		if len(candidates) >= limit {
			break
		}
		pairs, err := d.search(ctx, keyword)
		if err != nil {
			d.log.Debug().Err(err).Str("keyword", keyword).Msg("dexscreener search failed")
			continue
		}
		added := 0
		for _, pair := range pairs {
			if len(candidates) >= limit || added >= perKeyword {
				break
			}
			chain := strings.ToLower(pair.ChainID)
			if len(chainAllow) > 0 {
				if _, ok := chainAllow[chain]; !ok {
					continue
				}
			}
			if d.params.MinLiquidityUSD > 0 && pair.Liquidity.USD < d.params.MinLiquidityUSD {
				continue
			}
			if pair.PairAddress == "" {
				continue
			}
			if _, ok := seen[pair.PairAddress]; ok {
				continue
			}
			volumeUSD := pair.Volume.H24
			if volumeUSD <= 0 {
				volumeUSD = pair.Volume.H6
			}
			if volumeUSD <= 0 {
				volumeUSD = pair.Volume.H1
			}
			if d.params.MinVolumeUSD > 0 && volumeUSD < d.params.MinVolumeUSD {
				continue
			}
			aliasBase := pair.BaseToken.Symbol
			if aliasBase == "" {
				aliasBase = pair.BaseToken.Name
			}
			quote := pair.QuoteToken.Symbol
			if quote == "" {
				quote = pair.QuoteToken.Name
			}
			sym := fmt.Sprintf("%s@%s/%s", composeDexAlias(aliasBase+quote, pair.PairAddress), chain, pair.PairAddress)
			score := pair.Liquidity.USD*0.6 + volumeUSD*0.35
			if pair.PriceChange.H24 > 0 {
				score += pair.PriceChange.H24 * 1000
			}
			candidates = append(candidates, candidatePair{
				symbol:    sym,
				liquidity: pair.Liquidity.USD,
				volume:    volumeUSD,
				change24:  pair.PriceChange.H24,
				score:     score,
			})
			seen[pair.PairAddress] = struct{}{}
			added++
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if math.Abs(candidates[i].score-candidates[j].score) > 1 {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].liquidity > candidates[j].liquidity
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

func (d *Discovery) search(ctx context.Context, keyword string) ([]dexPair, error) {
	endpoint := fmt.Sprintf("%s/latest/dex/search?q=%s", d.baseURL, url.QueryEscape(keyword))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "obelisk-hft/1.0 (discovery)")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var payload dexPairsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload.Pairs) > 0 {
		return payload.Pairs, nil
	}
	if payload.Pair != nil {
		return []dexPair{*payload.Pair}, nil
	}
	return nil, nil
}

func (d *Discovery) logDiscoveryChange(combined []string, discovered []candidatePair) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slicesEqual(combined, d.lastSet) {
		return
	}
	prev := append([]string(nil), d.lastSet...)
	d.lastSet = append([]string(nil), combined...)
	detail := make([]string, len(discovered))
	for i, cand := range discovered {
		detail[i] = fmt.Sprintf("%s(liq=%.0f vol=%.0f chg24=%.2f)", cand.symbol, cand.liquidity, cand.volume, cand.change24)
	}
	d.log.Info().
		Strs("symbols", combined).
		Strs("discovered", detail).
		Strs("manual", d.manual).
		Strs("previous", prev).
		Msg("updated symbol universe")
}

func mergeSymbols(manual, discovered []string) []string {
	set := make(map[string]struct{}, len(manual)+len(discovered))
	for _, sym := range manual {
		if sym = strings.TrimSpace(sym); sym != "" {
			set[sym] = struct{}{}
		}
	}
	for _, sym := range discovered {
		if sym = strings.TrimSpace(sym); sym != "" {
			set[sym] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

func slicesEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
