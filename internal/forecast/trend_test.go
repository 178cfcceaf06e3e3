package forecast

import (
	"errors"
	"math"
	"testing"
	"time"

	"crypto-monitor/internal/history"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func linearSeries(n int, step time.Duration, a, b float64) history.Series {
	s := make(history.Series, n)
	for i := range s {
		s[i] = history.Sample{Time: t0.Add(time.Duration(i) * step), Price: a + b*float64(i)}
	}
	return s
}

func TestTrendEngine_ForecastBeforeTrain(t *testing.T) {
	e := NewTrendEngine(TrendConfig{})
	if _, err := e.Forecast(3); !errors.Is(err, ErrNotTrained) {
		t.Errorf("err = %v, want ErrNotTrained", err)
	}
}

func TestTrendEngine_InsufficientData(t *testing.T) {
	e := NewTrendEngine(TrendConfig{})
	tests := []struct {
		name   string
		series history.Series
	}{
		{"empty", nil},
		{"below smoothing width", linearSeries(6, time.Hour, 100, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Train(tt.series, 30); !errors.Is(err, ErrInsufficientData) {
				t.Errorf("err = %v, want ErrInsufficientData", err)
			}
		})
	}
	if _, err := e.Forecast(1); !errors.Is(err, ErrNotTrained) {
		t.Errorf("failed Train left engine trained")
	}
}

func TestTrendEngine_LinearTrend(t *testing.T) {
	e := NewTrendEngine(TrendConfig{Step: 24 * time.Hour, SmoothingWidth: 1})
	if err := e.Train(linearSeries(10, 24*time.Hour, 100, 2), 3); err != nil {
		t.Fatalf("Train: %v", err)
	}
	got, err := e.Forecast(3)
	if err != nil {
		t.Fatalf("Forecast: %v", err)
	}
	want := []float64{120, 122, 124}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Errorf("forecast[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

func TestTrendEngine_FlatWhenTimestampsEqual(t *testing.T) {
	e := NewTrendEngine(TrendConfig{MinSamples: 2})
	s := history.Series{{Time: t0, Price: 100}, {Time: t0, Price: 102}}
	if err := e.Train(s, 2); err != nil {
		t.Fatalf("Train: %v", err)
	}
	got, _ := e.Forecast(2)
	for _, v := range got {
		if v != 101 {
			t.Errorf("forecast = %v, want flat 101", got)
		}
	}
}

func TestTrendEngine_RetrainReplacesState(t *testing.T) {
	e := NewTrendEngine(TrendConfig{SmoothingWidth: 1})
	_ = e.Train(linearSeries(8, 24*time.Hour, 100, 5), 1)
	_ = e.Train(linearSeries(8, 24*time.Hour, 50, 0), 1)
	got, _ := e.Forecast(1)
	if math.Abs(got[0]-50) > 1e-9 {
		t.Errorf("forecast after retrain = %f, want 50", got[0])
	}
}

func TestTrendEngine_HorizonLength(t *testing.T) {
	e := NewTrendEngine(TrendConfig{})
	_ = e.Train(linearSeries(20, time.Hour, 100, 0.5), 30)
	got, err := e.Forecast(30)
	if err != nil || len(got) != 30 {
		t.Fatalf("Forecast(30) = %d values, err %v", len(got), err)
	}
	if _, err := e.Forecast(0); !errors.Is(err, ErrInvalidHorizon) {
		t.Errorf("Forecast(0) err = %v", err)
	}
}

func TestSmooth(t *testing.T) {
	got := smooth([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{1.5, 2, 3, 4, 4.5}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("smooth = %v, want %v", got, want)
		}
	}
}
