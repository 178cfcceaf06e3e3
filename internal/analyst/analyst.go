// Package analyst turns watch events into short human-readable assessments,
// using an LLM when one is configured and a rule-based fallback otherwise.
package analyst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

type Config struct {
	Enabled    bool
	Model      string
	APIKey     string
	BaseURL    string
	ByAzure    bool
	APIVersion string
	Timeout    time.Duration
}

type Input struct {
	EventID     int64   `json:"event_id"`
	Type        string  `json:"type"`
	Severity    string  `json:"severity"`
	Symbol      string  `json:"symbol"`
	SpreadPct   float64 `json:"spread_pct,omitempty"`
	LowSource   string  `json:"low_source,omitempty"`
	HighSource  string  `json:"high_source,omitempty"`
	LastPrice   float64 `json:"last_price,omitempty"`
	Forecast    float64 `json:"forecast,omitempty"`
	ForecastPct float64 `json:"forecast_pct,omitempty"`
	Threshold   float64 `json:"threshold,omitempty"`
}

type Assessment struct {
	Severity   string   `json:"severity"`
	OneLiner   string   `json:"one_liner"`
	Why        []string `json:"why"`
	Watch      []string `json:"watch"`
	Confidence float64  `json:"confidence"`
	Tags       []string `json:"tags"`
	Mode       string   `json:"mode"`
}

type chatModel interface {
	Generate(ctx context.Context, in []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

type Analyst struct {
	model          chatModel
	modelName      string
	disabledReason string
	log            zerolog.Logger
	errLog         zerolog.Logger
}

const systemPrompt = `You are a crypto market monitor assistant. Output ONLY valid JSON with keys:
severity (low|med|high), one_liner, why (1-3 short strings), watch (1-3 short strings), confidence (0.0-1.0), tags.
Rules:
- Describe what the data shows; never recommend buying, selling or any trade.
- Cross-exchange spreads may come from stale or thin venues; say so when relevant.
- Forecasts come from a simple trend model; treat them as indicative only.
- If evidence is weak, use severity low and confidence below 0.5.`

func New(cfg Config, logger zerolog.Logger) *Analyst {
	a := &Analyst{log: logger.With().Str("component", "analyst").Logger()}
	a.errLog = a.log.Sample(&zerolog.BurstSampler{Burst: 1, Period: 5 * time.Second})
	if !cfg.Enabled {
		a.disabledReason = "disabled by config"
		return a
	}
	if cfg.APIKey == "" || cfg.Model == "" {
		a.disabledReason = "api_key or model missing"
		a.log.Warn().Msg("analyst disabled: missing api key or model")
		return a
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	m, err := openai.NewChatModel(context.Background(), &openai.ChatModelConfig{
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		ByAzure:    cfg.ByAzure,
		APIVersion: cfg.APIVersion,
		Timeout:    cfg.Timeout,
	})
	if err != nil {
		a.disabledReason = "init failed"
		a.log.Error().Err(err).Msg("analyst init failed")
		return a
	}
	a.model = m
	a.modelName = cfg.Model
	return a
}

func (a *Analyst) Enabled() bool {
	return a != nil && a.model != nil
}

// Ping reports whether the model answers; the fallback mode is always ok.
func (a *Analyst) Ping(ctx context.Context) (map[string]any, error) {
	if !a.Enabled() {
		reason := "not configured"
		if a != nil && a.disabledReason != "" {
			reason = a.disabledReason
		}
		return map[string]any{"ok": true, "mode": "fallback", "reason": reason}, nil
	}
	start := time.Now()
	_, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(`Return ONLY valid JSON: {"ok":true}. No other text.`),
		schema.UserMessage("ping"),
	})
	if err != nil {
		a.logLLMError(err)
		return map[string]any{"ok": true, "mode": "fallback", "reason": "llm error"}, err
	}
	return map[string]any{
		"ok":         true,
		"mode":       "llm",
		"model":      a.modelName,
		"latency_ms": time.Since(start).Milliseconds(),
	}, nil
}

// Assess never returns an empty assessment: on any model failure it falls
// back to the rule-based one and also returns the error.
func (a *Analyst) Assess(ctx context.Context, in Input) (Assessment, error) {
	if !a.Enabled() {
		return Fallback(in), nil
	}
	payload, _ := json.Marshal(in)
	resp, err := a.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(fmt.Sprintf("Event: %s", payload)),
	})
	if err != nil {
		a.logLLMError(err)
		return Fallback(in), err
	}
	text := strings.TrimSpace(resp.Content)
	a.log.Debug().Str("output", truncate(text, 800)).Msg("analyst output")

	out, err := parseAssessment(text)
	if err != nil {
		return Fallback(in), err
	}
	out = sanitize(out, in)
	out.Mode = "llm"
	return out, nil
}

func (a *Analyst) logLLMError(err error) {
	apiErr := &openai.APIError{}
	if errors.As(err, &apiErr) {
		a.errLog.Error().Int("status", apiErr.HTTPStatusCode).Str("message", truncate(apiErr.Message, 300)).Msg("analyst api error")
		return
	}
	a.errLog.Error().Err(err).Msg("analyst error")
}

func parseAssessment(text string) (Assessment, error) {
	var out Assessment
	if err := json.Unmarshal([]byte(text), &out); err == nil {
		return out, nil
	}
	obj := extractFirstJSONObject(text)
	if obj == "" {
		return Assessment{}, errors.New("no json object found")
	}
	if err := json.Unmarshal([]byte(obj), &out); err != nil {
		return Assessment{}, fmt.Errorf("parse assessment: %w", err)
	}
	return out, nil
}

func extractFirstJSONObject(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
