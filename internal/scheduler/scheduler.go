// Package scheduler drives the fetch, aggregate, forecast and publish cycle.
package scheduler

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"crypto-monitor/internal/forecast"
	"crypto-monitor/internal/history"
	"crypto-monitor/internal/market"
	"crypto-monitor/internal/metrics"
	"crypto-monitor/internal/publish"
	"crypto-monitor/internal/store"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultHorizon  = 30
	persistTimeout  = 10 * time.Second
)

type Config struct {
	Symbol   string
	Interval time.Duration
	Horizon  int
}

type Fetcher interface {
	FetchAll(ctx context.Context, symbol string) []market.Outcome
}

type QuoteRecorder interface {
	InsertQuotes(ctx context.Context, recs []store.QuoteRecord) error
}

// Deps are the collaborators of a Scheduler. Quotes, Metrics and Publisher
// are optional.
type Deps struct {
	Fetcher   Fetcher
	History   *history.Manager
	Engine    forecast.Engine
	Publisher publish.Publisher
	Quotes    QuoteRecorder
	Metrics   *metrics.Recorder
	Logger    zerolog.Logger
}

// Status is a point-in-time view of the scheduler for operators.
type Status struct {
	State            string    `json:"state"`
	Symbol           string    `json:"symbol"`
	Pending          bool      `json:"pending"`
	Cycles           int64     `json:"cycles"`
	LastCycleID      string    `json:"last_cycle_id,omitempty"`
	LastCycleAt      time.Time `json:"last_cycle_at"`
	LastDurationMs   int64     `json:"last_duration_ms"`
	LastPersistError string    `json:"last_persist_error,omitempty"`
}

// Scheduler runs at most one cycle at a time. Requests that arrive while a
// cycle is running collapse into a single follow-up cycle for the most
// recently requested symbol.
type Scheduler struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	state atomic.Int32
	wake  chan struct{}

	mu      sync.Mutex
	symbol  string
	pending bool
	status  Status

	// last is only touched by the cycle goroutine.
	last *publish.Snapshot
}

func New(cfg Config, deps Deps) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Horizon <= 0 {
		cfg.Horizon = DefaultHorizon
	}
	cfg.Symbol = normalize(cfg.Symbol)
	if deps.Publisher == nil {
		deps.Publisher = publish.Multi{}
	}
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		log:    deps.Logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		symbol: cfg.Symbol,
	}
}

func normalize(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Symbol returns the most recently requested symbol.
func (s *Scheduler) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	st := s.status
	st.Symbol = s.symbol
	st.Pending = s.pending
	s.mu.Unlock()
	st.State = s.State().String()
	return st
}

// Trigger requests a cycle. An empty symbol keeps the current one. It never
// blocks.
func (s *Scheduler) Trigger(symbol string) {
	symbol = normalize(symbol)
	s.mu.Lock()
	if symbol != "" {
		s.symbol = symbol
	}
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.pending
	s.pending = false
	return s.symbol, ok
}

// Run starts with an immediate cycle, then one per interval, until ctx is
// cancelled. The history of the active symbol is persisted on the way out.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.log.Info().Str("symbol", s.Symbol()).Dur("interval", s.cfg.Interval).Msg("scheduler started")
	s.Trigger("")
	for {
		select {
		case <-ctx.Done():
			s.shutdown(ctx)
			return nil
		case <-ticker.C:
			s.Trigger("")
		case <-s.wake:
			symbol, ok := s.takePending()
			if !ok {
				continue
			}
			s.runCycle(ctx, symbol)
		}
	}
}

func (s *Scheduler) shutdown(ctx context.Context) {
	if s.deps.History.Symbol() == "" {
		return
	}
	if err := s.persist(ctx); err != nil {
		s.log.Error().Err(err).Msg("final history persist failed")
	}
	s.log.Info().Msg("scheduler stopped")
}
