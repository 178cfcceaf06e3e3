package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OKXProvider struct {
	baseURL string
	client  *http.Client
}

type okxResp struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string          `json:"instId"`
		BidPx  decimal.Decimal `json:"bidPx"`
		AskPx  decimal.Decimal `json:"askPx"`
	} `json:"data"`
}

var okxSymbols = map[string]bool{"btc": true, "eth": true, "usdt": true, "bnb": true, "ada": true}

func NewOKXProvider(timeout time.Duration) *OKXProvider {
	return &OKXProvider{
		baseURL: "https://www.okx.com",
		client:  newHTTPClient(timeout),
	}
}

func (p *OKXProvider) Name() string { return "okx" }

func (p *OKXProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	sym := normalizeSymbol(symbol)
	if !okxSymbols[sym] {
		return Quote{}, unsupported(p.Name(), symbol)
	}
	q := url.Values{}
	q.Set("instId", strings.ToUpper(sym)+"-USDT")
	endpoint := p.baseURL + "/api/v5/market/ticker?" + q.Encode()

	var payload okxResp
	if err := getJSON(ctx, p.client, p.Name(), endpoint, &payload); err != nil {
		return Quote{}, err
	}
	if payload.Code != "" && payload.Code != "0" {
		return Quote{}, invalid(p.Name(), fmt.Sprintf("code=%s msg=%s", payload.Code, payload.Msg))
	}
	if len(payload.Data) == 0 {
		return Quote{}, invalid(p.Name(), "empty data")
	}
	d := payload.Data[0]
	if !d.BidPx.IsPositive() || !d.AskPx.IsPositive() {
		return Quote{}, invalid(p.Name(), "non-positive bid/ask")
	}
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    d.BidPx,
		Ask:    d.AskPx,
		Source: p.Name(),
	}, nil
}
