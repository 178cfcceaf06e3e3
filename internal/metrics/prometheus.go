package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exposes monitor cycle metrics. A nil *Recorder records nothing.
type Recorder struct {
	registry *prometheus.Registry

	cycles         *prometheus.CounterVec
	sourceOutcomes *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	lastBid        *prometheus.GaugeVec
	dailyForecast  *prometheus.GaugeVec
	spreadPct      *prometheus.GaugeVec
	persistErrors  prometheus.Counter
	publishErrors  prometheus.Counter
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypto_monitor_cycles_total",
				Help: "Completed refresh cycles by result",
			},
			[]string{"symbol", "result"},
		),
		sourceOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crypto_monitor_source_outcomes_total",
				Help: "Price source fetch outcomes by kind",
			},
			[]string{"source", "kind"},
		),
		cycleDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crypto_monitor_cycle_duration_seconds",
				Help:    "Duration of a refresh cycle in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		lastBid: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crypto_monitor_last_bid",
				Help: "Last bid per source and symbol",
			},
			[]string{"symbol", "source"},
		),
		dailyForecast: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crypto_monitor_daily_forecast",
				Help: "Next-step forecast price",
			},
			[]string{"symbol"},
		),
		spreadPct: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crypto_monitor_spread_pct",
				Help: "Highest bid minus lowest ask, percent of lowest ask",
			},
			[]string{"symbol"},
		),
		persistErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "crypto_monitor_persist_errors_total",
				Help: "History persist failures",
			},
		),
		publishErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "crypto_monitor_publish_errors_total",
				Help: "Snapshot publish failures",
			},
		),
	}
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordCycle records one finished cycle; result is ok, stale or error.
func (r *Recorder) RecordCycle(symbol, result string, took time.Duration) {
	if r == nil {
		return
	}
	r.cycles.WithLabelValues(symbol, result).Inc()
	r.cycleDuration.Observe(took.Seconds())
}

func (r *Recorder) RecordSource(source, kind string) {
	if r == nil {
		return
	}
	r.sourceOutcomes.WithLabelValues(source, kind).Inc()
}

func (r *Recorder) RecordBid(symbol, source string, bid float64) {
	if r == nil {
		return
	}
	r.lastBid.WithLabelValues(symbol, source).Set(bid)
}

func (r *Recorder) RecordForecast(symbol string, daily float64) {
	if r == nil {
		return
	}
	r.dailyForecast.WithLabelValues(symbol).Set(daily)
}

func (r *Recorder) RecordSpread(symbol string, pct float64) {
	if r == nil {
		return
	}
	r.spreadPct.WithLabelValues(symbol).Set(pct)
}

func (r *Recorder) RecordPersistError() {
	if r == nil {
		return
	}
	r.persistErrors.Inc()
}

func (r *Recorder) RecordPublishError() {
	if r == nil {
		return
	}
	r.publishErrors.Inc()
}
