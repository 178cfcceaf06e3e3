package history

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrCorrupt marks stored history that could not be decoded. Load
	// recovers from it with an empty series.
	ErrCorrupt = errors.New("history corrupt")
	ErrPersist = errors.New("history persist failed")
)

// Sample is one (timestamp, price) point, observed or predicted.
type Sample struct {
	Time  time.Time `json:"timestamp"`
	Price float64   `json:"price"`
}

// Series is ordered by Time ascending.
type Series []Sample

func (s Series) Clone() Series {
	if s == nil {
		return Series{}
	}
	out := make(Series, len(s))
	copy(out, s)
	return out
}

func (s Series) Last() (Sample, bool) {
	if len(s) == 0 {
		return Sample{}, false
	}
	return s[len(s)-1], true
}

func (s Series) Prices() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Price
	}
	return out
}

func (s Series) IsSorted() bool {
	return sort.SliceIsSorted(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

func sortSeries(s Series) {
	sort.SliceStable(s, func(i, j int) bool { return s[i].Time.Before(s[j].Time) })
}

// trim keeps the most recent max samples. s must already be sorted.
func trim(s Series, max int) Series {
	if max > 0 && len(s) > max {
		kept := make(Series, max)
		copy(kept, s[len(s)-max:])
		return kept
	}
	return s
}

// Store persists one symbol's observed series. Load returns an empty series
// when nothing is stored; a payload that cannot be decoded is reported with
// ErrCorrupt.
type Store interface {
	Load(ctx context.Context, symbol string) (Series, error)
	Save(ctx context.Context, symbol string, s Series) error
}
