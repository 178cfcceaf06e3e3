package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Monitor MonitorConfig `yaml:"monitor"`
	Sources SourcesConfig `yaml:"sources"`
	Store   StoreConfig   `yaml:"store"`
	Metrics MetricsConfig `yaml:"metrics"`
	Redis   RedisConfig   `yaml:"redis"`
	Engine  EngineConfig  `yaml:"engine"`
	Alert   AlertConfig   `yaml:"alert"`
	Push    PushConfig    `yaml:"push"`
	Analyst AnalystConfig `yaml:"analyst"`
}

type ServerConfig struct {
	Port int `yaml:"port" validate:"gt=0,lte=65535"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
	Output string `yaml:"output"`
}

type MonitorConfig struct {
	Symbol             string   `yaml:"symbol" validate:"required"`
	Symbols            []string `yaml:"symbols" validate:"min=1"`
	RefreshIntervalSec int      `yaml:"refresh_interval_sec" validate:"gte=1"`
	MaxDataPoints      int      `yaml:"max_data_points" validate:"gte=2"`
	Horizon            int      `yaml:"horizon" validate:"gte=1"`
	ForecastStepHours  int      `yaml:"forecast_step_hours" validate:"gte=1"`
	SmoothingWidth     int      `yaml:"smoothing_width" validate:"gte=1"`
	MinSamples         int      `yaml:"min_samples" validate:"gte=1"`
}

func (m MonitorConfig) RefreshInterval() time.Duration {
	return time.Duration(m.RefreshIntervalSec) * time.Second
}

func (m MonitorConfig) ForecastStep() time.Duration {
	return time.Duration(m.ForecastStepHours) * time.Hour
}

type SourcesConfig struct {
	Enabled []string `yaml:"enabled" validate:"min=1,dive,oneof=okx huobi coingecko bitstamp bitfinex simulated"`
	// TimeoutMs bounds each source call; 0 leaves it to the HTTP client.
	TimeoutMs     int   `yaml:"timeout_ms" validate:"gte=0"`
	HTTPTimeoutMs int   `yaml:"http_timeout_ms" validate:"gte=0"`
	SimulatedSeed int64 `yaml:"simulated_seed"`
}

func (s SourcesConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

type StoreConfig struct {
	Driver string       `yaml:"driver" validate:"oneof=sqlite json"`
	Sqlite SqliteConfig `yaml:"sqlite"`
	JSON   JSONConfig   `yaml:"json"`
}

type SqliteConfig struct {
	Path string `yaml:"path" validate:"required"`
}

type JSONConfig struct {
	Dir string `yaml:"dir"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" validate:"required_if=Enabled true"`
}

type RedisConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Addr      string `yaml:"addr" validate:"required_if=Enabled true"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
	TTLSec    int    `yaml:"ttl_sec" validate:"gte=0"`
}

type EngineConfig struct {
	SpreadWide   ThresholdConfig      `yaml:"spread_wide"`
	ForecastMove ThresholdConfig      `yaml:"forecast_move"`
	CooldownSec  EngineCooldownConfig `yaml:"cooldown_sec"`
}

// ThresholdConfig holds percentage thresholds; zero disables a level.
type ThresholdConfig struct {
	MedPct  float64 `yaml:"med_pct" validate:"gte=0"`
	HighPct float64 `yaml:"high_pct" validate:"gte=0"`
}

type EngineCooldownConfig struct {
	SpreadWide   int `yaml:"spread_wide" validate:"gte=0"`
	ForecastMove int `yaml:"forecast_move" validate:"gte=0"`
}

type AlertConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Digest    DigestConfig    `yaml:"digest"`
}

type RateLimitConfig struct {
	PerMinute int `yaml:"per_minute" validate:"gte=0"`
	Burst     int `yaml:"burst" validate:"gte=0"`
}

type DedupConfig struct {
	WindowSec int `yaml:"window_sec" validate:"gte=0"`
}

type DigestConfig struct {
	LowIntervalSec int `yaml:"low_interval_sec" validate:"gte=0"`
}

type PushConfig struct {
	Dingtalk DingtalkConfig `yaml:"dingtalk"`
}

type DingtalkConfig struct {
	Webhook   string `yaml:"webhook"`
	Secret    string `yaml:"secret"`
	TimeoutMs int    `yaml:"timeout_ms" validate:"gte=0"`
}

type AnalystConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Model      string `yaml:"model" validate:"required_if=Enabled true"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	ByAzure    bool   `yaml:"by_azure"`
	APIVersion string `yaml:"api_version"`
	TimeoutMs  int    `yaml:"timeout_ms" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{Port: 8080},
		Log:    LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Monitor: MonitorConfig{
			Symbol:             "btc",
			Symbols:            []string{"btc", "eth", "usdt", "bnb", "ada"},
			RefreshIntervalSec: 60,
			MaxDataPoints:      90,
			Horizon:            30,
			ForecastStepHours:  24,
			SmoothingWidth:     7,
			MinSamples:         7,
		},
		Sources: SourcesConfig{
			Enabled:       []string{"okx", "huobi", "coingecko"},
			TimeoutMs:     10000,
			HTTPTimeoutMs: 5000,
			SimulatedSeed: 1,
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Sqlite: SqliteConfig{Path: "data/monitor.db"},
			JSON:   JSONConfig{Dir: "data"},
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "crypto-monitor",
			TTLSec:    300,
		},
		Engine: EngineConfig{
			SpreadWide:   ThresholdConfig{MedPct: 0.5, HighPct: 1.5},
			ForecastMove: ThresholdConfig{MedPct: 5, HighPct: 10},
			CooldownSec:  EngineCooldownConfig{SpreadWide: 600, ForecastMove: 3600},
		},
		Alert: AlertConfig{
			RateLimit: RateLimitConfig{PerMinute: 20, Burst: 5},
			Dedup:     DedupConfig{WindowSec: 300},
			Digest:    DigestConfig{LowIntervalSec: 600},
		},
		Push: PushConfig{
			Dingtalk: DingtalkConfig{TimeoutMs: 5000},
		},
		Analyst: AnalystConfig{
			Model:     "gpt-4.1-mini",
			TimeoutMs: 10000,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse applies YAML and then environment overrides on top of Default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	cfg.Monitor.Symbol = strings.ToLower(strings.TrimSpace(cfg.Monitor.Symbol))
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid PORT: %q", v)
		}
		cfg.Server.Port = p
	}
	if v := os.Getenv("CRYPTO_SYMBOL"); v != "" {
		cfg.Monitor.Symbol = v
	}
	if v := os.Getenv("DINGTALK_WEBHOOK"); v != "" {
		cfg.Push.Dingtalk.Webhook = v
	}
	if v := os.Getenv("DINGTALK_SECRET"); v != "" {
		cfg.Push.Dingtalk.Secret = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Analyst.APIKey == "" {
		cfg.Analyst.APIKey = v
	}
	return nil
}
