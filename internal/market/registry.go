package market

import (
	"fmt"
	"strings"
	"time"
)

// SourceNames lists every adapter NewSources can build.
var SourceNames = []string{"okx", "huobi", "coingecko", "bitstamp", "bitfinex", "simulated"}

// NewSources builds the named adapters in the given order. seed only
// affects the simulated source.
func NewSources(names []string, timeout time.Duration, seed int64) ([]PriceSource, error) {
	out := make([]PriceSource, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		switch name {
		case "okx":
			out = append(out, NewOKXProvider(timeout))
		case "huobi":
			out = append(out, NewHuobiProvider(timeout))
		case "coingecko":
			out = append(out, NewCoinGeckoProvider(timeout))
		case "bitstamp":
			out = append(out, NewBitstampProvider(timeout))
		case "bitfinex":
			out = append(out, NewBitfinexProvider(timeout))
		case "simulated":
			out = append(out, NewSimulatedProvider("simulated", seed))
		default:
			return nil, fmt.Errorf("unknown price source: %q", raw)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no price sources configured")
	}
	return out, nil
}
