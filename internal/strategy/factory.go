package strategy

import (
	"strings"

	"github.com/rs/zerolog"
)

// Params bundles the knobs for every strategy implementation so callers can
// hydrate one struct from config.
type Params struct {
	Scalp    ScalpParams
	Breakout BreakoutParams
}

// Build returns the strategy matching the configured mode, defaulting to the
// scalp strategy for unknown modes.
func Build(mode string, params Params, log zerolog.Logger) Strategy {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "breakout", "structural":
		return NewBreakout(params.Breakout, log)
	case "", "scalp", "rsi", "momentum":
		return NewScalper(params.Scalp, log)
	default:
		return NewScalper(params.Scalp, log)
	}
}
