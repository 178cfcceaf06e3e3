package market

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BitfinexProvider reads the v2 ticker array:
// [BID, BID_SIZE, ASK, ASK_SIZE, DAILY_CHANGE, DAILY_CHANGE_RELATIVE, LAST_PRICE, VOLUME, HIGH, LOW]
type BitfinexProvider struct {
	baseURL string
	client  *http.Client
}

var bitfinexSymbols = map[string]bool{"btc": true, "eth": true, "usdt": true, "bnb": true, "ada": true}

func NewBitfinexProvider(timeout time.Duration) *BitfinexProvider {
	return &BitfinexProvider{
		baseURL: "https://api-pub.bitfinex.com",
		client:  newHTTPClient(timeout),
	}
}

func (p *BitfinexProvider) Name() string { return "bitfinex" }

func (p *BitfinexProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym := normalizeSymbol(symbol)
	if !bitfinexSymbols[sym] {
		return Quote{}, unsupported(p.Name(), symbol)
	}
	endpoint := p.baseURL + "/v2/ticker/t" + strings.ToUpper(sym) + "USD"

	var payload []decimal.Decimal
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &payload); err != nil {
		return Quote{}, err
	}
	if len(payload) < 7 {
		return Quote{}, invalid(p.Name(), fmt.Sprintf("ticker has %d fields", len(payload)))
	}
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    payload[0],
		Ask:    payload[2],
		Source: p.Name(),
	}, nil
}
