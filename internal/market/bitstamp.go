package market

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type BitstampProvider struct {
	baseURL string
	client  *http.Client
}

type bitstampResp struct {
	Bid  *decimal.Decimal `json:"bid"`
	Ask  *decimal.Decimal `json:"ask"`
	Last *decimal.Decimal `json:"last"`
}

var bitstampSymbols = map[string]bool{
	"btc": true, "eth": true, "ltc": true, "xrp": true,
	"bch": true, "link": true, "eos": true, "ada": true,
}

func NewBitstampProvider(timeout time.Duration) *BitstampProvider {
	return &BitstampProvider{
		baseURL: "https://www.bitstamp.net",
		client:  newHTTPClient(timeout),
	}
}

func (p *BitstampProvider) Name() string { return "bitstamp" }

func (p *BitstampProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym := normalizeSymbol(symbol)
	if !bitstampSymbols[sym] {
		return Quote{}, unsupported(p.Name(), symbol)
	}
	endpoint := p.baseURL + "/api/v2/ticker/" + sym + "usd/"

	var payload bitstampResp
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &payload); err != nil {
		return Quote{}, err
	}
	if payload.Bid == nil || payload.Ask == nil {
		return Quote{}, invalid(p.Name(), "missing bid/ask")
	}
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    *payload.Bid,
		Ask:    *payload.Ask,
		Source: p.Name(),
	}, nil
}
