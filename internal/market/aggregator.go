package market

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Aggregator fans a symbol query out to every registered source.
type Aggregator struct {
	sources []PriceSource
	timeout time.Duration
	logger  zerolog.Logger
}

// NewAggregator registers sources in order. timeout bounds each source call;
// zero leaves timing to the adapters.
func NewAggregator(timeout time.Duration, logger zerolog.Logger, sources ...PriceSource) *Aggregator {
	if timeout < 0 {
		timeout = 0
	}
	return &Aggregator{
		sources: sources,
		timeout: timeout,
		logger:  logger.With().Str("component", "aggregator").Logger(),
	}
}

func (a *Aggregator) Sources() []string {
	names := make([]string, 0, len(a.sources))
	for _, s := range a.sources {
		names = append(names, s.Name())
	}
	return names
}

// FetchAll returns one outcome per source, in registration order. It waits
// for every source; failures never cancel the others.
func (a *Aggregator) FetchAll(ctx context.Context, symbol string) []Outcome {
	out := make([]Outcome, len(a.sources))
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			out[i] = a.fetchOne(ctx, src, symbol)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (a *Aggregator) fetchOne(ctx context.Context, src PriceSource, symbol string) (o Outcome) {
	name := src.Name()
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error().Str("source", name).Interface("panic", r).Msg("price source panicked")
			o = Failure(name, fmt.Errorf("%w: panic: %v", ErrSourceUnavailable, r))
		}
	}()

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	start := time.Now()
	q, err := src.Fetch(ctx, symbol)
	if err != nil {
		a.logger.Debug().Str("source", name).Str("symbol", symbol).Err(err).Dur("took", time.Since(start)).Msg("fetch failed")
		return Failure(name, err)
	}
	q.Source = name
	return Success(q)
}

// Lowest returns the successful quote with the minimum ask. Ties keep the
// first one in outcome order.
func Lowest(outcomes []Outcome) Quote {
	var best *Quote
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		if best == nil || o.Quote.Ask.LessThan(best.Ask) {
			best = o.Quote
		}
	}
	if best == nil {
		return NoData
	}
	return *best
}

// Highest returns the successful quote with the maximum bid.
func Highest(outcomes []Outcome) Quote {
	var best *Quote
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		if best == nil || o.Quote.Bid.GreaterThan(best.Bid) {
			best = o.Quote
		}
	}
	if best == nil {
		return NoData
	}
	return *best
}

type Summary struct {
	Lowest    Quote           `json:"lowest"`
	Highest   Quote           `json:"highest"`
	Spread    decimal.Decimal `json:"spread"`
	SpreadPct float64         `json:"spread_pct"`
	Successes int             `json:"successes"`
	Failures  int             `json:"failures"`
}

func (s Summary) Empty() bool {
	return s.Successes == 0
}

// Summarize computes the cross-source extremes. Spread is highest bid minus
// lowest ask, so a positive spread means one venue bids above another's ask.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{
		Lowest:  Lowest(outcomes),
		Highest: Highest(outcomes),
	}
	for _, o := range outcomes {
		if o.OK() {
			s.Successes++
		} else {
			s.Failures++
		}
	}
	if s.Successes == 0 {
		s.Spread = decimal.Zero
		return s
	}
	s.Spread = s.Highest.Bid.Sub(s.Lowest.Ask)
	if s.Lowest.Ask.IsPositive() {
		s.SpreadPct = s.Spread.Div(s.Lowest.Ask).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return s
}
