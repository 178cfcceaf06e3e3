package market

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var simulatedBase = map[string]float64{
	"btc":  99000.0,
	"eth":  3000.0,
	"usdt": 1.0,
	"bnb":  600.0,
	"ada":  0.45,
}

// SimulatedProvider produces a random walk around fixed base prices. It is
// meant for offline runs and demos.
type SimulatedProvider struct {
	name string

	mu   sync.Mutex
	rnd  *rand.Rand
	last map[string]float64
}

func NewSimulatedProvider(name string, seed int64) *SimulatedProvider {
	if name == "" {
		name = "simulated"
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &SimulatedProvider{
		name: name,
		rnd:  rand.New(rand.NewSource(seed)),
		last: make(map[string]float64),
	}
}

func (p *SimulatedProvider) Name() string { return p.name }

func (p *SimulatedProvider) Fetch(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, err
	}
	sym := normalizeSymbol(symbol)
	base, ok := simulatedBase[sym]
	if !ok {
		return Quote{}, unsupported(p.name, symbol)
	}

	p.mu.Lock()
	price, seen := p.last[sym]
	if !seen {
		price = base
	}
	// ±1% per step, spread 0.05%
	price *= 1 + (p.rnd.Float64()-0.5)*0.02
	p.last[sym] = price
	p.mu.Unlock()

	mid := decimal.NewFromFloat(price)
	half := mid.Mul(decimal.NewFromFloat(0.00025))
	return Quote{
		Symbol: strings.ToUpper(sym),
		Bid:    mid.Sub(half).Round(8),
		Ask:    mid.Add(half).Round(8),
		Source: p.name,
	}, nil
}
