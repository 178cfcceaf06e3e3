package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

type stubSource struct {
	name  string
	bid   float64
	ask   float64
	err   error
	delay time.Duration
	panic bool
	block bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context, symbol string) (Quote, error) {
	if s.panic {
		panic("boom")
	}
	if s.block {
		<-ctx.Done()
		return Quote{}, ctx.Err()
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return Quote{}, s.err
	}
	return Quote{
		Symbol: symbol,
		Bid:    decimal.NewFromFloat(s.bid),
		Ask:    decimal.NewFromFloat(s.ask),
	}, nil
}

func ok(name string, bid, ask float64) Outcome {
	return Success(Quote{Symbol: "BTC", Bid: decimal.NewFromFloat(bid), Ask: decimal.NewFromFloat(ask), Source: name})
}

func TestAggregator_FetchAllOneOutcomePerSource(t *testing.T) {
	agg := NewAggregator(0, zerolog.Nop(),
		&stubSource{name: "a", bid: 100, ask: 101},
		&stubSource{name: "b", err: unsupported("b", "btc")},
		&stubSource{name: "c", bid: 102, ask: 103},
	)

	out := agg.FetchAll(context.Background(), "btc")
	if len(out) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(out))
	}
	for i, want := range []string{"a", "b", "c"} {
		if out[i].Source != want {
			t.Errorf("outcomes[%d].Source = %q, want %q", i, out[i].Source, want)
		}
	}
	if !out[0].OK() || out[1].OK() || !out[2].OK() {
		t.Errorf("unexpected success flags: %v %v %v", out[0].OK(), out[1].OK(), out[2].OK())
	}
	if !errors.Is(out[1].Err, ErrUnsupportedSymbol) {
		t.Errorf("outcomes[1].Err = %v, want ErrUnsupportedSymbol", out[1].Err)
	}
	if out[1].Kind() != "unsupported_symbol" {
		t.Errorf("Kind() = %q, want unsupported_symbol", out[1].Kind())
	}
}

func TestAggregator_SourcesRunConcurrently(t *testing.T) {
	agg := NewAggregator(0, zerolog.Nop(),
		&stubSource{name: "a", bid: 1, ask: 2, delay: 100 * time.Millisecond},
		&stubSource{name: "b", bid: 1, ask: 2, delay: 100 * time.Millisecond},
		&stubSource{name: "c", bid: 1, ask: 2, delay: 100 * time.Millisecond},
	)

	start := time.Now()
	out := agg.FetchAll(context.Background(), "btc")
	if took := time.Since(start); took > 250*time.Millisecond {
		t.Errorf("FetchAll took %v, sources were not queried concurrently", took)
	}
	if len(out) != 3 {
		t.Fatalf("len(outcomes) = %d, want 3", len(out))
	}
}

func TestAggregator_PanicBecomesFailure(t *testing.T) {
	agg := NewAggregator(0, zerolog.Nop(),
		&stubSource{name: "bad", panic: true},
		&stubSource{name: "good", bid: 10, ask: 11},
	)

	out := agg.FetchAll(context.Background(), "btc")
	if out[0].OK() {
		t.Fatalf("panicking source reported success")
	}
	if !errors.Is(out[0].Err, ErrSourceUnavailable) {
		t.Errorf("Err = %v, want ErrSourceUnavailable", out[0].Err)
	}
	if !out[1].OK() {
		t.Errorf("healthy source failed: %v", out[1].Err)
	}
}

func TestAggregator_TimeoutBoundsHangingSource(t *testing.T) {
	agg := NewAggregator(50*time.Millisecond, zerolog.Nop(),
		&stubSource{name: "hang", block: true},
		&stubSource{name: "fast", bid: 10, ask: 11},
	)

	start := time.Now()
	out := agg.FetchAll(context.Background(), "btc")
	if took := time.Since(start); took > time.Second {
		t.Fatalf("FetchAll took %v, timeout not applied", took)
	}
	if out[0].OK() || !errors.Is(out[0].Err, context.DeadlineExceeded) {
		t.Errorf("hanging source outcome = %+v, want deadline exceeded", out[0])
	}
	if !out[1].OK() {
		t.Errorf("fast source failed: %v", out[1].Err)
	}
}

func TestLowestHighest_AllFailuresReturnSentinel(t *testing.T) {
	outcomes := []Outcome{
		Failure("a", ErrSourceUnavailable),
		Failure("b", ErrInvalidResponse),
	}
	for name, got := range map[string]Quote{"lowest": Lowest(outcomes), "highest": Highest(outcomes)} {
		if !got.IsNoData() {
			t.Errorf("%s = %+v, want NoData", name, got)
		}
		if got.Source != "none" || !got.Bid.IsZero() || !got.Ask.IsZero() {
			t.Errorf("%s sentinel fields = %+v", name, got)
		}
	}
	if got := Lowest(nil); !got.IsNoData() {
		t.Errorf("Lowest(nil) = %+v, want NoData", got)
	}
}

func TestLowestHighest_Bounds(t *testing.T) {
	outcomes := []Outcome{
		ok("a", 100, 104),
		Failure("x", ErrSourceUnavailable),
		ok("b", 99, 101),
		ok("c", 103, 105),
	}
	lo := Lowest(outcomes)
	hi := Highest(outcomes)
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		if lo.Ask.GreaterThan(o.Quote.Ask) {
			t.Errorf("Lowest ask %s > %s (%s)", lo.Ask, o.Quote.Ask, o.Source)
		}
		if hi.Bid.LessThan(o.Quote.Bid) {
			t.Errorf("Highest bid %s < %s (%s)", hi.Bid, o.Quote.Bid, o.Source)
		}
	}
	if lo.Source != "b" || hi.Source != "c" {
		t.Errorf("lowest=%s highest=%s, want b and c", lo.Source, hi.Source)
	}
}

func TestLowestHighest_TiesKeepFirst(t *testing.T) {
	outcomes := []Outcome{ok("first", 100, 101), ok("second", 100, 101)}
	if got := Lowest(outcomes).Source; got != "first" {
		t.Errorf("Lowest tie = %s, want first", got)
	}
	if got := Highest(outcomes).Source; got != "first" {
		t.Errorf("Highest tie = %s, want first", got)
	}
}

func TestSummarize_TwoOfThreeSucceed(t *testing.T) {
	outcomes := []Outcome{
		ok("a", 100, 101),
		ok("b", 102, 103),
		Failure("c", ErrSourceUnavailable),
	}
	s := Summarize(outcomes)
	if !s.Lowest.Ask.Equal(decimal.NewFromInt(101)) {
		t.Errorf("Lowest.Ask = %s, want 101", s.Lowest.Ask)
	}
	if !s.Highest.Bid.Equal(decimal.NewFromInt(102)) {
		t.Errorf("Highest.Bid = %s, want 102", s.Highest.Bid)
	}
	if s.Successes != 2 || s.Failures != 1 {
		t.Errorf("successes=%d failures=%d, want 2/1", s.Successes, s.Failures)
	}
	if !s.Spread.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Spread = %s, want 1", s.Spread)
	}
	if s.SpreadPct < 0.99 || s.SpreadPct > 0.995 {
		t.Errorf("SpreadPct = %f, want ~0.990", s.SpreadPct)
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize([]Outcome{Failure("a", nil)})
	if !s.Empty() || !s.Lowest.IsNoData() || !s.Highest.IsNoData() {
		t.Errorf("Summarize(all failed) = %+v", s)
	}
	if !s.Spread.IsZero() {
		t.Errorf("Spread = %s, want 0", s.Spread)
	}
}
