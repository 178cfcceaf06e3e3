package market

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type HuobiProvider struct {
	baseURL string
	client  *http.Client
}

type huobiResp struct {
	Status string `json:"status"`
	Tick   *struct {
		Bid []decimal.Decimal `json:"bid"`
		Ask []decimal.Decimal `json:"ask"`
	} `json:"tick"`
}

var huobiSymbols = map[string]bool{
	"btc": true, "eth": true, "ltc": true, "xrp": true,
	"bch": true, "link": true, "eos": true, "ada": true,
}

func NewHuobiProvider(timeout time.Duration) *HuobiProvider {
	return &HuobiProvider{
		baseURL: "https://api.huobi.pro",
		client:  newHTTPClient(timeout),
	}
}

func (p *HuobiProvider) Name() string { return "huobi" }

func (p *HuobiProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym := normalizeSymbol(symbol)
	if !huobiSymbols[sym] {
		return Quote{}, unsupported(p.Name(), symbol)
	}
	q := url.Values{}
	q.Set("symbol", sym+"usdt")
	endpoint := p.baseURL + "/market/detail/merged?" + q.Encode()

	var payload huobiResp
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &payload); err != nil {
		return Quote{}, err
	}
	if payload.Status != "ok" || payload.Tick == nil {
		return Quote{}, invalid(p.Name(), "status="+payload.Status)
	}
	if len(payload.Tick.Bid) == 0 || len(payload.Tick.Ask) == 0 {
		return Quote{}, invalid(p.Name(), "missing bid/ask levels")
	}
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    payload.Tick.Bid[0],
		Ask:    payload.Tick.Ask[0],
		Source: p.Name(),
	}, nil
}
