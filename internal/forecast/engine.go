// Package forecast defines the forecasting capability used by the monitor
// and a small trend-following implementation of it.
package forecast

import (
	"errors"

	"crypto-monitor/internal/history"
)

var (
	ErrInsufficientData = errors.New("insufficient data for forecast")
	ErrNotTrained       = errors.New("forecast model not trained")
	ErrInvalidHorizon   = errors.New("forecast horizon must be positive")
)

// Engine is trained on a full series and then asked for horizon future
// prices, one per forecast step after the last training sample. Every Train
// call discards the previous fit.
type Engine interface {
	Train(series history.Series, horizon int) error
	Forecast(horizon int) ([]float64, error)
}
