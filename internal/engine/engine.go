// Package engine watches published snapshots for cross-exchange spreads and
// large forecast moves and raises alerts for them. It never places orders.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-monitor/internal/alert"
	"crypto-monitor/internal/analyst"
	"crypto-monitor/internal/publish"
	"crypto-monitor/internal/store"
)

const (
	TypeSpreadWide   = "SPREAD_WIDE"
	TypeForecastMove = "FORECAST_MOVE"

	queueSize = 8
)

// Threshold levels are percentages; zero disables a level.
type Threshold struct {
	MedPct  float64
	HighPct float64
}

func (t Threshold) severity(v float64) (string, float64) {
	switch {
	case t.HighPct > 0 && v >= t.HighPct:
		return "high", t.HighPct
	case t.MedPct > 0 && v >= t.MedPct:
		return "med", t.MedPct
	}
	return "", 0
}

type Config struct {
	SpreadWide       Threshold
	ForecastMove     Threshold
	SpreadCooldown   time.Duration
	ForecastCooldown time.Duration
}

type EventRecorder interface {
	InsertEvent(e store.EventRecord) (int64, error)
}

type Assessor interface {
	Assess(ctx context.Context, in analyst.Input) (analyst.Assessment, error)
}

type Alerter interface {
	Handle(ctx context.Context, req alert.Request) alert.Result
}

type Event struct {
	ID       int64
	Type     string
	Severity string
	Symbol   string
	Time     time.Time
	Title    string
	DedupKey string
	Input    analyst.Input
}

type Engine struct {
	cfg      Config
	events   EventRecorder
	assessor Assessor
	alerts   Alerter
	log      zerolog.Logger

	queue chan publish.Snapshot

	mu       sync.Mutex
	cooldown map[string]time.Time
}

func New(cfg Config, events EventRecorder, assessor Assessor, alerts Alerter, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		events:   events,
		assessor: assessor,
		alerts:   alerts,
		log:      logger.With().Str("component", "engine").Logger(),
		queue:    make(chan publish.Snapshot, queueSize),
		cooldown: make(map[string]time.Time),
	}
}

// Publish queues the snapshot for Run. A full queue drops it.
func (e *Engine) Publish(_ context.Context, snap publish.Snapshot) error {
	select {
	case e.queue <- snap:
	default:
		e.log.Warn().Str("cycle_id", snap.CycleID).Msg("engine queue full, snapshot skipped")
	}
	return nil
}

func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-e.queue:
			e.Evaluate(ctx, snap)
		}
	}
}

// Evaluate applies every rule to snap and returns the events it raised.
func (e *Engine) Evaluate(ctx context.Context, snap publish.Snapshot) []Event {
	if snap.Stale {
		return nil
	}
	var out []Event
	if ev, ok := e.ruleSpreadWide(snap); ok {
		out = append(out, e.emit(ctx, ev))
	}
	if ev, ok := e.ruleForecastMove(snap); ok {
		out = append(out, e.emit(ctx, ev))
	}
	return out
}

func (e *Engine) ruleSpreadWide(snap publish.Snapshot) (Event, bool) {
	sum := snap.Summary
	if sum.Successes < 2 || sum.Lowest.Source == sum.Highest.Source {
		return Event{}, false
	}
	sev, thr := e.cfg.SpreadWide.severity(sum.SpreadPct)
	if sev == "" || !e.checkCooldown(TypeSpreadWide, snap.Symbol, sev, snap.Time, e.cfg.SpreadCooldown) {
		return Event{}, false
	}
	return Event{
		Type:     TypeSpreadWide,
		Severity: sev,
		Symbol:   snap.Symbol,
		Time:     snap.Time,
		Title:    fmt.Sprintf("%s spread %.2f%% (%s ask < %s bid)", strings.ToUpper(snap.Symbol), sum.SpreadPct, sum.Lowest.Source, sum.Highest.Source),
		DedupKey: fmt.Sprintf("%s:%s:%s", TypeSpreadWide, snap.Symbol, sev),
		Input: analyst.Input{
			Type:       TypeSpreadWide,
			Severity:   sev,
			Symbol:     snap.Symbol,
			SpreadPct:  sum.SpreadPct,
			LowSource:  sum.Lowest.Source,
			HighSource: sum.Highest.Source,
			LastPrice:  snap.LastPrice,
			Threshold:  thr,
		},
	}, true
}

func (e *Engine) ruleForecastMove(snap publish.Snapshot) (Event, bool) {
	if !snap.HasForecast || snap.LastPrice <= 0 {
		return Event{}, false
	}
	pct := (snap.DailyForecast - snap.LastPrice) / snap.LastPrice * 100
	sev, thr := e.cfg.ForecastMove.severity(math.Abs(pct))
	if sev == "" || !e.checkCooldown(TypeForecastMove, snap.Symbol, sev, snap.Time, e.cfg.ForecastCooldown) {
		return Event{}, false
	}
	return Event{
		Type:     TypeForecastMove,
		Severity: sev,
		Symbol:   snap.Symbol,
		Time:     snap.Time,
		Title:    fmt.Sprintf("%s forecast %+.2f%% next step", strings.ToUpper(snap.Symbol), pct),
		DedupKey: fmt.Sprintf("%s:%s:%s", TypeForecastMove, snap.Symbol, sev),
		Input: analyst.Input{
			Type:        TypeForecastMove,
			Severity:    sev,
			Symbol:      snap.Symbol,
			LastPrice:   snap.LastPrice,
			Forecast:    snap.DailyForecast,
			ForecastPct: pct,
			Threshold:   thr,
		},
	}, true
}

func (e *Engine) emit(ctx context.Context, ev Event) Event {
	evidence, _ := json.Marshal(ev.Input)
	if e.events != nil {
		id, err := e.events.InsertEvent(store.EventRecord{
			TS:           ev.Time.Unix(),
			Type:         ev.Type,
			Severity:     ev.Severity,
			Symbol:       ev.Symbol,
			Title:        ev.Title,
			DedupKey:     ev.DedupKey,
			EvidenceJSON: string(evidence),
		})
		if err != nil {
			e.log.Error().Err(err).Str("type", ev.Type).Msg("insert event failed")
		}
		ev.ID = id
		ev.Input.EventID = id
	}
	e.log.Info().Str("type", ev.Type).Str("severity", ev.Severity).Str("symbol", ev.Symbol).Msg(ev.Title)

	if e.alerts == nil {
		return ev
	}
	assessment := analyst.Fallback(ev.Input)
	if e.assessor != nil {
		if a, err := e.assessor.Assess(ctx, ev.Input); err != nil {
			e.log.Warn().Err(err).Msg("analyst assessment failed, using fallback")
		} else {
			assessment = a
		}
	}
	res := e.alerts.Handle(ctx, alert.Request{
		Priority: alert.ParsePriority(assessment.Severity),
		Symbol:   ev.Symbol,
		Title:    ev.Title,
		Markdown: analyst.FormatMarkdown(ev.Title, assessment),
		DedupKey: ev.DedupKey,
	})
	if res.Error != nil {
		e.log.Warn().Err(res.Error).Str("status", string(res.Status)).Msg("alert not delivered")
	}
	return ev
}

func (e *Engine) checkCooldown(rule, symbol, severity string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	key := rule + ":" + symbol + ":" + severity
	e.mu.Lock()
	defer e.mu.Unlock()
	if last, ok := e.cooldown[key]; ok && now.Sub(last) < cooldown {
		return false
	}
	e.cooldown[key] = now
	return true
}
