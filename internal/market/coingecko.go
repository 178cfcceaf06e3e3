package market

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// CoinGeckoProvider reads the aggregated USD spot price. CoinGecko has no
// order book, so bid and ask are both the spot price.
type CoinGeckoProvider struct {
	baseURL string
	client  *http.Client
}

var coinGeckoIDs = map[string]string{
	"btc":  "bitcoin",
	"eth":  "ethereum",
	"usdt": "tether",
	"bnb":  "binancecoin",
	"ada":  "cardano",
}

func NewCoinGeckoProvider(timeout time.Duration) *CoinGeckoProvider {
	return &CoinGeckoProvider{
		baseURL: "https://api.coingecko.com",
		client:  newHTTPClient(timeout),
	}
}

func (p *CoinGeckoProvider) Name() string { return "coingecko" }

func (p *CoinGeckoProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym := normalizeSymbol(symbol)
	id, ok := coinGeckoIDs[sym]
	if !ok {
		return Quote{}, unsupported(p.Name(), symbol)
	}
	q := url.Values{}
	q.Set("ids", id)
	q.Set("vs_currencies", "usd")
	endpoint := p.baseURL + "/api/v3/simple/price?" + q.Encode()

	var payload map[string]map[string]decimal.Decimal
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &payload); err != nil {
		return Quote{}, err
	}
	price, ok := payload[id]["usd"]
	if !ok || !price.IsPositive() {
		return Quote{}, invalid(p.Name(), "no usd price for "+id)
	}
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    price,
		Ask:    price,
		Source: p.Name(),
	}, nil
}
