package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-monitor/internal/market"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func success(source string, bid float64) market.Outcome {
	return market.Success(market.Quote{
		Symbol: "BTC",
		Bid:    decimal.NewFromFloat(bid),
		Ask:    decimal.NewFromFloat(bid + 1),
		Source: source,
	})
}

type memStore struct {
	data    map[string]Series
	loadErr error
	saveErr error
	saves   int
}

func newMemStore() *memStore { return &memStore{data: map[string]Series{}} }

func (m *memStore) Load(_ context.Context, symbol string) (Series, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[symbol].Clone(), nil
}

func (m *memStore) Save(_ context.Context, symbol string, s Series) error {
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[symbol] = s.Clone()
	return nil
}

func newTestManager(max int, st Store) *Manager {
	return NewManager(Config{MaxDataPoints: max, Step: 24 * time.Hour}, st, zerolog.Nop())
}

func TestManager_AppendRecordsOneSamplePerSuccess(t *testing.T) {
	m := newTestManager(90, nil)
	outcomes := []market.Outcome{
		success("a", 100),
		success("b", 102),
		market.Failure("c", market.ErrSourceUnavailable),
	}

	if got := m.Append(outcomes, t0); got != 2 {
		t.Fatalf("Append added %d, want 2", got)
	}
	obs := m.Observed()
	if len(obs) != 2 {
		t.Fatalf("len(observed) = %d, want 2", len(obs))
	}
	if obs[0].Price != 100 || obs[1].Price != 102 {
		t.Errorf("prices = %v, want [100 102]", obs.Prices())
	}
	for _, s := range obs {
		if !s.Time.Equal(t0) {
			t.Errorf("sample time = %v, want %v", s.Time, t0)
		}
	}
}

func TestManager_AppendAllFailuresAddsNothing(t *testing.T) {
	m := newTestManager(90, nil)
	got := m.Append([]market.Outcome{market.Failure("a", nil)}, t0)
	if got != 0 || len(m.Observed()) != 0 {
		t.Errorf("Append added %d samples, observed=%d", got, len(m.Observed()))
	}
}

func TestManager_WindowKeepsMostRecent(t *testing.T) {
	const max = 90
	m := newTestManager(max, nil)
	for i := 0; i < 150; i++ {
		m.Append([]market.Outcome{success("a", float64(i))}, t0.Add(time.Duration(i)*time.Minute))
	}

	obs := m.Observed()
	if len(obs) != max {
		t.Fatalf("len(observed) = %d, want %d", len(obs), max)
	}
	first := t0.Add(time.Duration(150-max) * time.Minute)
	if !obs[0].Time.Equal(first) || obs[0].Price != float64(150-max) {
		t.Errorf("oldest kept = %+v, want price %d at %v", obs[0], 150-max, first)
	}
	if obs[max-1].Price != 149 {
		t.Errorf("newest = %v, want 149", obs[max-1].Price)
	}
	if !obs.IsSorted() {
		t.Errorf("observed not sorted")
	}
}

func TestManager_BuildTrainingWindow(t *testing.T) {
	m := newTestManager(5, nil)
	for i := 0; i < 3; i++ {
		m.Append([]market.Outcome{success("a", float64(100+i))}, t0.Add(time.Duration(i)*time.Hour))
	}
	last, ok := m.LastObserved()
	if !ok {
		t.Fatalf("LastObserved not set")
	}
	m.RecordForecast(last, []float64{1, 2, 3, 4, 5, 6, 7, 8})

	pred := m.Predicted()
	if len(pred) != 5 {
		t.Fatalf("len(predicted) = %d, want 5 after trim", len(pred))
	}
	if pred[len(pred)-1].Price != 8 {
		t.Errorf("kept predicted tail = %v, want ending at 8", pred.Prices())
	}

	win := m.BuildTrainingWindow()
	if len(win) != len(m.Observed())+len(m.Predicted()) {
		t.Fatalf("len(window) = %d, want %d", len(win), len(m.Observed())+len(m.Predicted()))
	}
	if !win.IsSorted() {
		t.Errorf("training window not sorted: %+v", win)
	}
}

func TestManager_BuildTrainingWindowInterleavesByTime(t *testing.T) {
	m := newTestManager(90, nil)
	m.Append([]market.Outcome{success("a", 1)}, t0)
	m.RecordForecast(t0, []float64{10, 20})
	// an observation that lands after the first predicted step
	m.Append([]market.Outcome{success("a", 2)}, t0.Add(36*time.Hour))

	win := m.BuildTrainingWindow()
	want := []float64{1, 10, 2, 20}
	got := win.Prices()
	if len(got) != len(want) {
		t.Fatalf("window = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("window = %v, want %v", got, want)
		}
	}
}

func TestManager_RecordForecastTimestamps(t *testing.T) {
	m := newTestManager(90, nil)
	m.RecordForecast(t0, []float64{1, 2, 3})
	pred := m.Predicted()
	for i, s := range pred {
		want := t0.Add(time.Duration(i+1) * 24 * time.Hour)
		if !s.Time.Equal(want) {
			t.Errorf("predicted[%d].Time = %v, want %v", i, s.Time, want)
		}
	}
	m.RecordForecast(t0, []float64{9})
	if got := m.Predicted(); len(got) != 1 || got[0].Price != 9 {
		t.Errorf("predicted not replaced wholesale: %+v", got)
	}
}

func TestManager_SnapshotIsConsistentAcrossSymbolSwitch(t *testing.T) {
	st := newMemStore()
	st.data["btc"] = Series{{Time: t0, Price: 100}, {Time: t0.Add(time.Minute), Price: 100}}
	st.data["eth"] = Series{{Time: t0, Price: 2}}
	m := newTestManager(90, st)
	ctx := context.Background()
	if err := m.Load(ctx, "btc"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.RecordForecast(t0.Add(time.Minute), []float64{100})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			sym := "eth"
			if i%2 == 1 {
				sym = "btc"
			}
			_ = m.Load(ctx, sym)
			if sym == "btc" {
				m.RecordForecast(t0.Add(time.Minute), []float64{100})
			}
		}
	}()

	wantPrice := map[string]float64{"btc": 100, "eth": 2}
	for {
		select {
		case <-done:
			return
		default:
		}
		v := m.Snapshot()
		for _, smp := range v.Observed {
			if smp.Price != wantPrice[v.Symbol] {
				t.Fatalf("snapshot %q holds observed price %v", v.Symbol, smp.Price)
			}
		}
		for _, smp := range v.Predicted {
			if smp.Price != wantPrice[v.Symbol] {
				t.Fatalf("snapshot %q holds predicted price %v", v.Symbol, smp.Price)
			}
		}
	}
}

func TestManager_LoadMissingIsEmpty(t *testing.T) {
	m := newTestManager(90, newMemStore())
	if err := m.Load(context.Background(), "btc"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Symbol() != "btc" || len(m.Observed()) != 0 {
		t.Errorf("symbol=%q observed=%d", m.Symbol(), len(m.Observed()))
	}
}

func TestManager_LoadCorruptRecovers(t *testing.T) {
	st := newMemStore()
	st.loadErr = ErrCorrupt
	m := newTestManager(90, st)
	if err := m.Load(context.Background(), "btc"); err != nil {
		t.Fatalf("Load(corrupt) = %v, want nil", err)
	}
	if len(m.Observed()) != 0 {
		t.Errorf("observed not empty after corrupt load")
	}
}

func TestManager_LoadTrimsAndResetsPredicted(t *testing.T) {
	st := newMemStore()
	var s Series
	for i := 0; i < 10; i++ {
		s = append(s, Sample{Time: t0.Add(time.Duration(9-i) * time.Minute), Price: float64(9 - i)})
	}
	st.data["eth"] = s
	m := newTestManager(4, st)
	m.RecordForecast(t0, []float64{1, 2})

	if err := m.Load(context.Background(), "eth"); err != nil {
		t.Fatalf("Load: %v", err)
	}
	obs := m.Observed()
	if len(obs) != 4 || !obs.IsSorted() || obs[3].Price != 9 {
		t.Errorf("observed after load = %+v", obs)
	}
	if len(m.Predicted()) != 0 {
		t.Errorf("predicted survived symbol load")
	}
}

func TestManager_PersistFailureKeepsState(t *testing.T) {
	st := newMemStore()
	st.saveErr = errors.New("disk full")
	m := newTestManager(90, st)
	_ = m.Load(context.Background(), "btc")
	m.Append([]market.Outcome{success("a", 100)}, t0)

	err := m.Persist(context.Background())
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("Persist err = %v, want ErrPersist", err)
	}
	if len(m.Observed()) != 1 {
		t.Errorf("observed lost after failed persist")
	}
}

func TestManager_PersistSavesObserved(t *testing.T) {
	st := newMemStore()
	m := newTestManager(90, st)
	_ = m.Load(context.Background(), "btc")
	m.Append([]market.Outcome{success("a", 100), success("b", 101)}, t0)
	m.RecordForecast(t0, []float64{5})

	if err := m.Persist(context.Background()); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if got := st.data["btc"]; len(got) != 2 {
		t.Errorf("persisted %d samples, want 2 observed only", len(got))
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
