package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/rs/zerolog"

	"crypto-monitor/internal/alert"
	"crypto-monitor/internal/analyst"
	"crypto-monitor/internal/api"
	"crypto-monitor/internal/config"
	"crypto-monitor/internal/engine"
	"crypto-monitor/internal/forecast"
	"crypto-monitor/internal/history"
	"crypto-monitor/internal/logger"
	"crypto-monitor/internal/market"
	"crypto-monitor/internal/metrics"
	"crypto-monitor/internal/publish"
	"crypto-monitor/internal/push/dingtalk"
	"crypto-monitor/internal/scheduler"
	"crypto-monitor/internal/store"
)

func main() {
	configPath := flag.String("config", "configs/app.yaml", "path to the yaml config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cfg.Log.Output})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	if err := run(*cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Store.Sqlite.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	var historyStore history.Store = st.History()
	if cfg.Store.Driver == "json" {
		fs, err := history.NewFileStore(cfg.Store.JSON.Dir)
		if err != nil {
			return err
		}
		historyStore = fs
	}

	sources, err := market.NewSources(
		cfg.Sources.Enabled,
		time.Duration(cfg.Sources.HTTPTimeoutMs)*time.Millisecond,
		cfg.Sources.SimulatedSeed,
	)
	if err != nil {
		return err
	}
	agg := market.NewAggregator(cfg.Sources.Timeout(), log, sources...)

	hist := history.NewManager(history.Config{
		MaxDataPoints: cfg.Monitor.MaxDataPoints,
		Step:          cfg.Monitor.ForecastStep(),
	}, historyStore, log)

	trend := forecast.NewTrendEngine(forecast.TrendConfig{
		Step:           cfg.Monitor.ForecastStep(),
		SmoothingWidth: cfg.Monitor.SmoothingWidth,
		MinSamples:     cfg.Monitor.MinSamples,
	})

	var rec *metrics.Recorder
	if cfg.Metrics.Enabled {
		rec = metrics.New()
	}

	dt := dingtalk.NewClient(
		cfg.Push.Dingtalk.Webhook,
		cfg.Push.Dingtalk.Secret,
		time.Duration(cfg.Push.Dingtalk.TimeoutMs)*time.Millisecond,
	)
	alertSvc := alert.NewService(alert.Config{
		PerMinute:         cfg.Alert.RateLimit.PerMinute,
		Burst:             cfg.Alert.RateLimit.Burst,
		DedupWindow:       time.Duration(cfg.Alert.Dedup.WindowSec) * time.Second,
		LowDigestInterval: time.Duration(cfg.Alert.Digest.LowIntervalSec) * time.Second,
	}, dt, st, log)
	defer alertSvc.Stop()

	an := analyst.New(analyst.Config{
		Enabled:    cfg.Analyst.Enabled,
		Model:      cfg.Analyst.Model,
		APIKey:     cfg.Analyst.APIKey,
		BaseURL:    cfg.Analyst.BaseURL,
		ByAzure:    cfg.Analyst.ByAzure,
		APIVersion: cfg.Analyst.APIVersion,
		Timeout:    time.Duration(cfg.Analyst.TimeoutMs) * time.Millisecond,
	}, log)

	eng := engine.New(engine.Config{
		SpreadWide:       engine.Threshold{MedPct: cfg.Engine.SpreadWide.MedPct, HighPct: cfg.Engine.SpreadWide.HighPct},
		ForecastMove:     engine.Threshold{MedPct: cfg.Engine.ForecastMove.MedPct, HighPct: cfg.Engine.ForecastMove.HighPct},
		SpreadCooldown:   time.Duration(cfg.Engine.CooldownSec.SpreadWide) * time.Second,
		ForecastCooldown: time.Duration(cfg.Engine.CooldownSec.ForecastMove) * time.Second,
	}, st, an, alertSvc, log)

	latest := publish.NewLatest()
	publishers := publish.Multi{latest, eng}
	if cfg.Redis.Enabled {
		rp := publish.NewRedisPublisher(publish.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
			TTL:       time.Duration(cfg.Redis.TTLSec) * time.Second,
		})
		defer rp.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rp.Ping(pingCtx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, publishing anyway")
		}
		cancel()
		publishers = append(publishers, rp)
	}

	sched := scheduler.New(scheduler.Config{
		Symbol:   cfg.Monitor.Symbol,
		Interval: cfg.Monitor.RefreshInterval(),
		Horizon:  cfg.Monitor.Horizon,
	}, scheduler.Deps{
		Fetcher:   agg,
		History:   hist,
		Engine:    trend,
		Publisher: publishers,
		Quotes:    st,
		Metrics:   rec,
		Logger:    log,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	h := server.Default(server.WithHostPorts(addr), server.WithExitWaitTime(2*time.Second))
	api.RegisterRoutes(h, api.Deps{
		Scheduler: sched,
		Latest:    latest,
		History:   hist,
		Records:   st,
		Dingtalk:  dt,
		Analyst:   an,
		Symbols:   cfg.Monitor.Symbols,
		Sources:   agg.Sources(),
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		eng.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	var metricsSrv *http.Server
	if rec != nil {
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: rec.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", cfg.Metrics.Addr).Msg("metrics listener")
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("symbol", cfg.Monitor.Symbol).
			Strs("sources", agg.Sources()).
			Str("history_store", cfg.Store.Driver).
			Msg("server starting")
		serveErr <- h.Run()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			stop()
			wg.Wait()
			return fmt.Errorf("hertz run: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("hertz shutdown")
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	stop()
	wg.Wait()
	return nil
}
