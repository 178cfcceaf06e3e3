// Package publish carries the per-cycle Snapshot to its consumers.
package publish

import (
	"context"
	"errors"
	"time"

	"crypto-monitor/internal/market"
)

// SourceResult is one source's row in a snapshot: a quote or the reason
// there is none.
type SourceResult struct {
	Source string        `json:"source"`
	Status string        `json:"status"`
	Quote  *market.Quote `json:"quote,omitempty"`
	Error  string        `json:"error,omitempty"`
}

type ForecastPoint struct {
	Time  time.Time `json:"timestamp"`
	Price float64   `json:"price"`
}

// Snapshot is everything one cycle produced. Stale marks a cycle in which no
// source answered and the summary and forecast were carried over.
type Snapshot struct {
	CycleID         string          `json:"cycle_id"`
	Symbol          string          `json:"symbol"`
	Time            time.Time       `json:"time"`
	Sources         []SourceResult  `json:"sources"`
	Summary         market.Summary  `json:"summary"`
	LastPrice       float64         `json:"last_price"`
	Samples         int             `json:"samples"`
	HasForecast     bool            `json:"has_forecast"`
	DailyForecast   float64         `json:"daily_forecast"`
	MonthlyForecast []ForecastPoint `json:"monthly_forecast"`
	ForecastError   string          `json:"forecast_error,omitempty"`
	Stale           bool            `json:"stale"`
}

func SourceResults(outcomes []market.Outcome) []SourceResult {
	out := make([]SourceResult, 0, len(outcomes))
	for _, o := range outcomes {
		r := SourceResult{Source: o.Source, Status: o.Kind()}
		if o.OK() {
			q := *o.Quote
			r.Quote = &q
		} else {
			r.Error = o.Reason()
		}
		out = append(out, r)
	}
	return out
}

// Publisher receives each completed snapshot. Implementations must not
// block the cycle for long.
type Publisher interface {
	Publish(ctx context.Context, snap Snapshot) error
}

type PublisherFunc func(ctx context.Context, snap Snapshot) error

func (f PublisherFunc) Publish(ctx context.Context, snap Snapshot) error {
	return f(ctx, snap)
}

// Multi publishes to every target and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
