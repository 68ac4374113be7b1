package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MarketsFeed polls a custodial venue's markets endpoint and exposes the
// latest prices through the pull contract. A failed poll yields an empty
// sample set so the caller skips the tick instead of failing.
type MarketsFeed struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
	allow   map[string]struct{}
}

type marketsResponse struct {
	Markets []marketEntry `json:"markets"`
}

type marketEntry struct {
	Pair  string  `json:"pair"`
	Price float64 `json:"price"`
}

// NewMarketsFeed constructs a feed polling baseURL/api/markets, restricted
// to the supplied pairs (all pairs when empty).
func NewMarketsFeed(baseURL string, pairs []string, log zerolog.Logger) *MarketsFeed {
	allow := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		p = strings.TrimSpace(p)
		if p != "" {
			allow[p] = struct{}{}
		}
	}
	return &MarketsFeed{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 3 * time.Second},
		log:     log,
		allow:   allow,
	}
}

// Fetch pulls the latest sample set. Network or decode failures are logged
// and reported as "no update".
func (f *MarketsFeed) Fetch(ctx context.Context) (map[string]float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/api/markets", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.log.Warn().Err(err).Msg("markets poll failed")
		return map[string]float64{}, nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		f.log.Warn().Int("status", resp.StatusCode).Msg("markets poll rejected")
		return map[string]float64{}, nil
	}

	var payload marketsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		f.log.Warn().Err(err).Msg("markets payload malformed")
		return map[string]float64{}, nil
	}

	out := make(map[string]float64, len(payload.Markets))
	for _, m := range payload.Markets {
		if m.Pair == "" || m.Price <= 0 {
			continue
		}
		if len(f.allow) > 0 {
			if _, ok := f.allow[m.Pair]; !ok {
				continue
			}
		}
		out[m.Pair] = m.Price
	}
	return out, nil
}
