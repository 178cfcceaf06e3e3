package forecast

import (
	"fmt"
	"math"
	"sync"
	"time"

	"crypto-monitor/internal/history"
)

const (
	DefaultSmoothingWidth = 7
	DefaultStep           = 24 * time.Hour
)

type TrendConfig struct {
	Step           time.Duration
	SmoothingWidth int
	// MinSamples defaults to SmoothingWidth.
	MinSamples int
}

// TrendEngine smooths prices with a centred moving average and fits a
// least-squares line against time measured in forecast steps.
type TrendEngine struct {
	cfg TrendConfig

	mu        sync.Mutex
	trained   bool
	slope     float64
	intercept float64
	lastIndex float64
}

func NewTrendEngine(cfg TrendConfig) *TrendEngine {
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	if cfg.SmoothingWidth <= 0 {
		cfg.SmoothingWidth = DefaultSmoothingWidth
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = cfg.SmoothingWidth
	}
	return &TrendEngine{cfg: cfg}
}

func (e *TrendEngine) MinSamples() int { return e.cfg.MinSamples }

func (e *TrendEngine) Train(series history.Series, horizon int) error {
	if horizon <= 0 {
		return ErrInvalidHorizon
	}
	if len(series) == 0 || len(series) < e.cfg.MinSamples {
		return fmt.Errorf("%w: have %d samples, need %d", ErrInsufficientData, len(series), e.cfg.MinSamples)
	}

	start := series[0].Time
	xs := make([]float64, len(series))
	for i, s := range series {
		xs[i] = float64(s.Time.Sub(start)) / float64(e.cfg.Step)
	}
	ys := smooth(series.Prices(), e.cfg.SmoothingWidth)
	slope, intercept := fitLine(xs, ys)

	e.mu.Lock()
	e.trained = true
	e.slope = slope
	e.intercept = intercept
	e.lastIndex = xs[len(xs)-1]
	e.mu.Unlock()
	return nil
}

func (e *TrendEngine) Forecast(horizon int) ([]float64, error) {
	if horizon <= 0 {
		return nil, ErrInvalidHorizon
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.trained {
		return nil, ErrNotTrained
	}
	out := make([]float64, horizon)
	for i := 1; i <= horizon; i++ {
		v := e.intercept + e.slope*(e.lastIndex+float64(i))
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		out[i-1] = v
	}
	return out, nil
}

// smooth applies a centred moving average; the window shrinks at the edges.
func smooth(ys []float64, width int) []float64 {
	if width <= 1 || len(ys) == 0 {
		out := make([]float64, len(ys))
		copy(out, ys)
		return out
	}
	half := width / 2
	out := make([]float64, len(ys))
	for i := range ys {
		lo := max(0, i-half)
		hi := min(len(ys)-1, i+half)
		var sum float64
		for j := lo; j <= hi; j++ {
			sum += ys[j]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// fitLine returns the ordinary least-squares slope and intercept. When all
// x are equal the slope is zero and the intercept is the mean.
func fitLine(xs, ys []float64) (float64, float64) {
	n := float64(len(xs))
	var sx, sy float64
	for i := range xs {
		sx += xs[i]
		sy += ys[i]
	}
	mx, my := sx/n, sy/n
	var cov, varx float64
	for i := range xs {
		dx := xs[i] - mx
		cov += dx * (ys[i] - my)
		varx += dx * dx
	}
	if varx == 0 {
		return 0, my
	}
	slope := cov / varx
	return slope, my - slope*mx
}
