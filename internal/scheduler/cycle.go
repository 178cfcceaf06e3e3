package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"crypto-monitor/internal/forecast"
	"crypto-monitor/internal/market"
	"crypto-monitor/internal/publish"
	"crypto-monitor/internal/store"
)

func (s *Scheduler) runCycle(ctx context.Context, symbol string) publish.Snapshot {
	start := time.Now()
	cycleID := uuid.NewString()
	log := s.log.With().Str("cycle_id", cycleID).Str("symbol", symbol).Logger()
	defer s.setState(StateIdle)

	s.switchSymbol(ctx, symbol, log)

	s.setState(StateFetching)
	outcomes := s.deps.Fetcher.FetchAll(ctx, symbol)
	now := s.now().UTC()

	s.setState(StateAggregating)
	summary := market.Summarize(outcomes)
	s.deps.History.Append(outcomes, now)
	s.recordQuotes(ctx, cycleID, symbol, now, outcomes, log)

	snap := publish.Snapshot{
		CycleID: cycleID,
		Symbol:  symbol,
		Time:    now,
		Sources: publish.SourceResults(outcomes),
		Summary: summary,
	}

	s.setState(StateForecasting)
	if summary.Empty() {
		snap.Stale = true
		log.Warn().Int("sources", len(outcomes)).Msg("no source answered, republishing previous results")
	}
	if prev := s.last; summary.Empty() && prev != nil && prev.Symbol == symbol {
		snap.Summary.Lowest = prev.Summary.Lowest
		snap.Summary.Highest = prev.Summary.Highest
		snap.Summary.Spread = prev.Summary.Spread
		snap.Summary.SpreadPct = prev.Summary.SpreadPct
		snap.HasForecast = prev.HasForecast
		snap.DailyForecast = prev.DailyForecast
		snap.MonthlyForecast = prev.MonthlyForecast
		snap.ForecastError = prev.ForecastError
	} else {
		s.forecast(&snap, log)
	}
	observed := s.deps.History.Observed()
	snap.Samples = len(observed)
	if last, ok := observed.Last(); ok {
		snap.LastPrice = last.Price
	}

	s.setState(StatePublishing)
	if err := s.deps.Publisher.Publish(ctx, snap); err != nil {
		s.deps.Metrics.RecordPublishError()
		log.Error().Err(err).Msg("publish snapshot failed")
	}
	s.last = &snap

	persistErr := s.persist(ctx)
	if persistErr != nil {
		s.deps.Metrics.RecordPersistError()
		log.Error().Err(persistErr).Msg("history persist failed")
	}

	took := time.Since(start)
	s.finish(snap, took, persistErr)
	log.Info().
		Int("successes", summary.Successes).
		Int("failures", summary.Failures).
		Bool("stale", snap.Stale).
		Bool("forecast", snap.HasForecast).
		Dur("duration", took).
		Msg("cycle complete")
	return snap
}

// switchSymbol saves the outgoing symbol's history before loading the
// requested one. The carried-over snapshot belongs to the old symbol and is
// dropped.
func (s *Scheduler) switchSymbol(ctx context.Context, symbol string, log zerolog.Logger) {
	current := s.deps.History.Symbol()
	if current == symbol {
		return
	}
	if current != "" {
		if err := s.persist(ctx); err != nil {
			s.deps.Metrics.RecordPersistError()
			log.Error().Err(err).Str("previous", current).Msg("persist before symbol change failed")
		}
	}
	if err := s.deps.History.Load(ctx, symbol); err != nil {
		log.Error().Err(err).Msg("history load failed, starting empty")
	}
	s.last = nil
}

func (s *Scheduler) forecast(snap *publish.Snapshot, log zerolog.Logger) {
	horizon := s.cfg.Horizon
	window := s.deps.History.BuildTrainingWindow()
	if len(window) == 0 {
		snap.ForecastError = forecast.ErrInsufficientData.Error()
		return
	}
	if err := s.deps.Engine.Train(window, horizon); err != nil {
		snap.ForecastError = err.Error()
		if !errors.Is(err, forecast.ErrInsufficientData) {
			log.Error().Err(err).Int("samples", len(window)).Msg("forecast train failed")
		}
		return
	}
	prices, err := s.deps.Engine.Forecast(horizon)
	if err != nil || len(prices) == 0 {
		if err == nil {
			err = errors.New("forecast returned no prices")
		}
		snap.ForecastError = err.Error()
		log.Error().Err(err).Msg("forecast failed")
		return
	}

	anchor, ok := s.deps.History.LastObserved()
	if !ok {
		anchor = window[len(window)-1].Time
	}
	s.deps.History.RecordForecast(anchor, prices)

	predicted := s.deps.History.Predicted()
	points := make([]publish.ForecastPoint, 0, len(predicted))
	for _, p := range predicted {
		points = append(points, publish.ForecastPoint{Time: p.Time, Price: p.Price})
	}
	snap.HasForecast = true
	snap.DailyForecast = prices[0]
	snap.MonthlyForecast = points
	s.deps.Metrics.RecordForecast(snap.Symbol, prices[0])
}

func (s *Scheduler) recordQuotes(ctx context.Context, cycleID, symbol string, now time.Time, outcomes []market.Outcome, log zerolog.Logger) {
	recs := make([]store.QuoteRecord, 0, len(outcomes))
	for _, o := range outcomes {
		s.deps.Metrics.RecordSource(o.Source, o.Kind())
		if !o.OK() {
			log.Debug().Str("source", o.Source).Str("reason", o.Reason()).Msg("source failed")
			continue
		}
		s.deps.Metrics.RecordBid(symbol, o.Source, o.Quote.Bid.InexactFloat64())
		recs = append(recs, store.QuoteRecord{
			CycleID: cycleID,
			TS:      now.UnixMilli(),
			Symbol:  symbol,
			Source:  o.Source,
			Bid:     o.Quote.Bid,
			Ask:     o.Quote.Ask,
		})
	}
	if s.deps.Quotes == nil || len(recs) == 0 {
		return
	}
	if err := s.deps.Quotes.InsertQuotes(ctx, recs); err != nil {
		log.Warn().Err(err).Msg("record quotes failed")
	}
}

// persist completes even if ctx is cancelled mid-shutdown, bounded by
// persistTimeout.
func (s *Scheduler) persist(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return s.deps.History.Persist(pctx)
}

func (s *Scheduler) finish(snap publish.Snapshot, took time.Duration, persistErr error) {
	result := "ok"
	if snap.Stale {
		result = "stale"
	}
	if !snap.Stale && !snap.Summary.Empty() {
		s.deps.Metrics.RecordSpread(snap.Symbol, snap.Summary.SpreadPct)
	}
	s.deps.Metrics.RecordCycle(snap.Symbol, result, took)

	s.mu.Lock()
	s.status.Cycles++
	s.status.LastCycleID = snap.CycleID
	s.status.LastCycleAt = snap.Time
	s.status.LastDurationMs = took.Milliseconds()
	s.status.LastPersistError = ""
	if persistErr != nil {
		s.status.LastPersistError = persistErr.Error()
	}
	s.mu.Unlock()
}
