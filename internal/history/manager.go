package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-monitor/internal/market"
)

const (
	DefaultMaxDataPoints = 90
	DefaultStep          = 24 * time.Hour
)

type Config struct {
	MaxDataPoints int
	// Step is the spacing of predicted samples; it must match the
	// forecast engine's step.
	Step time.Duration
}

// Manager owns the observed and predicted series of the active symbol.
// The scheduler's running cycle is the only writer; the mutex lets API
// readers take consistent snapshots.
type Manager struct {
	cfg    Config
	store  Store
	logger zerolog.Logger

	mu        sync.RWMutex
	symbol    string
	observed  Series
	predicted Series
}

func NewManager(cfg Config, store Store, logger zerolog.Logger) *Manager {
	if cfg.MaxDataPoints <= 0 {
		cfg.MaxDataPoints = DefaultMaxDataPoints
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logger.With().Str("component", "history").Logger(),
		observed:  Series{},
		predicted: Series{},
	}
}

func (m *Manager) Symbol() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.symbol
}

// Load replaces both series with the stored history of symbol. Missing or
// corrupt history yields an empty series and no error; other store errors
// are returned, with the manager still reset to an empty series.
func (m *Manager) Load(ctx context.Context, symbol string) error {
	var loaded Series
	var loadErr error
	if m.store != nil {
		s, err := m.store.Load(ctx, symbol)
		switch {
		case err == nil:
			loaded = s
		case errors.Is(err, ErrCorrupt):
			m.logger.Warn().Err(err).Str("symbol", symbol).Msg("stored history unreadable, starting empty")
		default:
			loadErr = fmt.Errorf("load history %s: %w", symbol, err)
		}
	}

	loaded = loaded.Clone()
	sortSeries(loaded)
	loaded = trim(loaded, m.cfg.MaxDataPoints)

	m.mu.Lock()
	m.symbol = symbol
	m.observed = loaded
	m.predicted = Series{}
	m.mu.Unlock()

	m.logger.Info().Str("symbol", symbol).Int("samples", len(loaded)).Msg("history loaded")
	return loadErr
}

// Append records one sample per successful outcome, priced at its bid.
// It returns the number of samples added.
func (m *Manager) Append(outcomes []market.Outcome, now time.Time) int {
	ts := now.UTC()
	added := 0

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		m.observed = append(m.observed, Sample{Time: ts, Price: o.Quote.Bid.InexactFloat64()})
		added++
	}
	if added == 0 {
		return 0
	}
	if !m.observed.IsSorted() {
		sortSeries(m.observed)
	}
	m.observed = trim(m.observed, m.cfg.MaxDataPoints)
	return added
}

// BuildTrainingWindow returns observed ++ predicted sorted by time. Prior
// forecasts are deliberately included: they lengthen the training series
// at the cost of feeding the model its own bias.
func (m *Manager) BuildTrainingWindow() Series {
	m.mu.Lock()
	defer m.mu.Unlock()

	sortSeries(m.predicted)
	m.predicted = trim(m.predicted, m.cfg.MaxDataPoints)

	combined := make(Series, 0, len(m.observed)+len(m.predicted))
	combined = append(combined, m.observed...)
	combined = append(combined, m.predicted...)
	sortSeries(combined)
	return combined
}

// RecordForecast replaces the predicted series with prices[i] at
// lastObserved + (i+1)*Step.
func (m *Manager) RecordForecast(lastObserved time.Time, prices []float64) {
	predicted := make(Series, 0, len(prices))
	base := lastObserved.UTC()
	for i, p := range prices {
		predicted = append(predicted, Sample{
			Time:  base.Add(time.Duration(i+1) * m.cfg.Step),
			Price: p,
		})
	}

	m.mu.Lock()
	m.predicted = trim(predicted, m.cfg.MaxDataPoints)
	m.mu.Unlock()
}

func (m *Manager) LastObserved() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.observed.Last()
	return last.Time, ok
}

func (m *Manager) Observed() Series {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.observed.Clone()
}

func (m *Manager) Predicted() Series {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predicted.Clone()
}

// View is a consistent copy of the manager's state for readers.
type View struct {
	Symbol    string `json:"symbol"`
	Observed  Series `json:"observed"`
	Predicted Series `json:"predicted"`
}

// Snapshot copies the symbol and both series under one lock, so a cycle
// that switches symbol or records a forecast cannot split the result.
func (m *Manager) Snapshot() View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return View{
		Symbol:    m.symbol,
		Observed:  m.observed.Clone(),
		Predicted: m.predicted.Clone(),
	}
}

// Persist saves the observed series. The in-memory series are untouched
// whether or not the save succeeds.
func (m *Manager) Persist(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mu.RLock()
	symbol := m.symbol
	observed := m.observed.Clone()
	m.mu.RUnlock()

	if err := m.store.Save(ctx, symbol, observed); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPersist, symbol, err)
	}
	return nil
}
