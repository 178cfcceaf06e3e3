package market

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedSymbol = errors.New("unsupported symbol")
	ErrSourceUnavailable = errors.New("source unavailable")
	ErrInvalidResponse   = errors.New("invalid response")
)

// Quote is one source's current bid/ask for a symbol.
type Quote struct {
	Symbol string          `json:"symbol"`
	Bid    decimal.Decimal `json:"bid"`
	Ask    decimal.Decimal `json:"ask"`
	Source string          `json:"source"`
}

// NoData is returned by Lowest/Highest when no source produced a quote.
var NoData = Quote{
	Symbol: "N/A",
	Bid:    decimal.Zero,
	Ask:    decimal.Zero,
	Source: "none",
}

func (q Quote) IsNoData() bool {
	return q.Source == NoData.Source && q.Symbol == NoData.Symbol
}

// Outcome wraps a single source's fetch attempt. Exactly one of Quote/Err is set.
type Outcome struct {
	Source string
	Quote  *Quote
	Err    error
}

func Success(q Quote) Outcome {
	return Outcome{Source: q.Source, Quote: &q}
}

func Failure(source string, err error) Outcome {
	if err == nil {
		err = ErrSourceUnavailable
	}
	return Outcome{Source: source, Err: err}
}

func (o Outcome) OK() bool {
	return o.Err == nil && o.Quote != nil
}

func (o Outcome) Reason() string {
	if o.OK() {
		return ""
	}
	return o.Err.Error()
}

// Kind classifies a failure for logs and metrics.
func (o Outcome) Kind() string {
	switch {
	case o.OK():
		return "ok"
	case errors.Is(o.Err, ErrUnsupportedSymbol):
		return "unsupported_symbol"
	case errors.Is(o.Err, ErrInvalidResponse):
		return "invalid_response"
	default:
		return "unavailable"
	}
}

type PriceSource interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

func normalizeSymbol(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}
