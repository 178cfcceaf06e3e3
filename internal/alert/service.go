package alert

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"crypto-monitor/internal/push/dingtalk"
	"crypto-monitor/internal/store"
)

type Priority string

const (
	PriorityHigh Priority = "high"
	PriorityMed  Priority = "med"
	PriorityLow  Priority = "low"
)

func ParsePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityMed:
		return PriorityMed
	default:
		return PriorityLow
	}
}

type Request struct {
	Priority Priority `json:"priority"`
	Symbol   string   `json:"symbol"`
	Title    string   `json:"title"`
	Markdown string   `json:"markdown"`
	DedupKey string   `json:"dedup_key"`
}

type Status string

const (
	StatusSent         Status = "sent"
	StatusFailed       Status = "failed"
	StatusSuppressed   Status = "suppressed"
	StatusQueuedDigest Status = "queued_digest"
)

type Result struct {
	Status  Status
	Error   error
	ErrCode int
	ErrMsg  string
}

// highPriorityWait is how long a high alert may wait on the rate limiter
// before it falls back to the digest.
const highPriorityWait = 2 * time.Second

type Config struct {
	PerMinute         int
	Burst             int
	DedupWindow       time.Duration
	LowDigestInterval time.Duration
}

// Notifier delivers a rendered alert. *dingtalk.Client satisfies it.
type Notifier interface {
	Enabled() bool
	SendMarkdown(ctx context.Context, title, markdown string, opts ...dingtalk.SendOption) (*dingtalk.Response, error)
}

type Recorder interface {
	InsertAlert(a store.AlertRecord) error
}

// Service gates alerts through dedup and a token bucket. Low priority
// alerts, and med alerts that find the bucket empty, wait for the digest.
type Service struct {
	cfg      Config
	notifier Notifier
	records  Recorder
	limiter  *TokenBucket
	log      zerolog.Logger
	now      func() time.Time

	dedupMu sync.Mutex
	dedup   map[string]time.Time

	digestMu sync.Mutex
	digest   map[string][]Request

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func NewService(cfg Config, notifier Notifier, records Recorder, logger zerolog.Logger) *Service {
	s := &Service{
		cfg:      cfg,
		notifier: notifier,
		records:  records,
		limiter:  NewTokenBucket(cfg.PerMinute, cfg.Burst),
		log:      logger.With().Str("component", "alert").Logger(),
		now:      time.Now,
		dedup:    make(map[string]time.Time),
		digest:   make(map[string][]Request),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	if cfg.LowDigestInterval > 0 {
		go s.runDigestLoop()
	} else {
		close(s.done)
	}
	return s
}

// Stop ends the digest loop after flushing what is queued.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

func (s *Service) Handle(ctx context.Context, req Request) Result {
	if req.Priority == "" {
		req.Priority = PriorityMed
	}
	var res Result
	switch {
	case s.isDeduped(req):
		res = Result{Status: StatusSuppressed}
	case req.Priority == PriorityLow:
		res = s.queueDigest(req)
	case s.limiter.Allow():
		res = s.sendNow(ctx, req)
	case req.Priority == PriorityHigh && s.limiter.Wait(ctx, highPriorityWait):
		res = s.sendNow(ctx, req)
	default:
		res = s.queueDigest(req)
	}
	s.record(req, res)
	return res
}

func (s *Service) sendNow(ctx context.Context, req Request) Result {
	if s.notifier == nil || !s.notifier.Enabled() {
		return Result{Status: StatusSuppressed, ErrMsg: "no notifier configured"}
	}
	var opts []dingtalk.SendOption
	if req.Priority == PriorityHigh {
		opts = append(opts, dingtalk.WithAtAll())
	}
	resp, err := s.notifier.SendMarkdown(ctx, req.Title, req.Markdown, opts...)
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		res := Result{Status: StatusFailed, Error: err, ErrMsg: err.Error()}
		var apiErr *dingtalk.APIError
		if errors.As(err, &apiErr) {
			res.ErrCode = apiErr.Code
			res.ErrMsg = apiErr.Msg
		}
		return res
	}
	return Result{Status: StatusSent}
}

func (s *Service) isDeduped(req Request) bool {
	if req.DedupKey == "" || s.cfg.DedupWindow <= 0 {
		return false
	}
	now := s.now()
	s.dedupMu.Lock()
	defer s.dedupMu.Unlock()
	if last, ok := s.dedup[req.DedupKey]; ok && now.Sub(last) <= s.cfg.DedupWindow {
		return true
	}
	s.dedup[req.DedupKey] = now
	return false
}

func (s *Service) queueDigest(req Request) Result {
	if s.cfg.LowDigestInterval <= 0 {
		return Result{Status: StatusSuppressed, ErrMsg: "digest disabled"}
	}
	key := req.Symbol
	if key == "" {
		key = "general"
	}
	s.digestMu.Lock()
	s.digest[key] = append(s.digest[key], req)
	s.digestMu.Unlock()
	return Result{Status: StatusQueuedDigest}
}

func (s *Service) runDigestLoop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.LowDigestInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flushDigest(context.Background())
		case <-s.stopCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.flushDigest(ctx)
			cancel()
			return
		}
	}
}

func (s *Service) flushDigest(ctx context.Context) {
	groups := s.swapDigest()
	if len(groups) == 0 {
		return
	}
	if s.notifier == nil || !s.notifier.Enabled() {
		s.log.Debug().Int("groups", len(groups)).Msg("digest dropped: no notifier configured")
		return
	}
	resp, err := s.notifier.SendMarkdown(ctx, "Crypto monitor digest", buildDigestMarkdown(groups))
	if err != nil {
		s.log.Error().Err(err).Msg("digest send failed")
		return
	}
	if !resp.OK() {
		s.log.Error().Int("errcode", resp.ErrCode).Str("errmsg", resp.ErrMsg).Msg("digest rejected")
	}
}

func (s *Service) swapDigest() map[string][]Request {
	s.digestMu.Lock()
	defer s.digestMu.Unlock()
	if len(s.digest) == 0 {
		return nil
	}
	out := s.digest
	s.digest = make(map[string][]Request)
	return out
}

func (s *Service) record(req Request, res Result) {
	if res.Error != nil {
		s.log.Warn().Err(res.Error).Str("title", req.Title).Msg("alert delivery failed")
	}
	if s.records == nil {
		return
	}
	payload := ""
	if res.Status == StatusSent || res.Status == StatusFailed {
		payload = req.Markdown
	}
	rec := store.AlertRecord{
		TS:        s.now().Unix(),
		Priority:  string(req.Priority),
		Symbol:    req.Symbol,
		Title:     req.Title,
		DedupKey:  req.DedupKey,
		Status:    string(res.Status),
		Channel:   "dingtalk",
		ErrCode:   res.ErrCode,
		ErrMsg:    res.ErrMsg,
		PayloadMD: payload,
	}
	if err := s.records.InsertAlert(rec); err != nil {
		s.log.Error().Err(err).Msg("record alert failed")
	}
}

func buildDigestMarkdown(groups map[string][]Request) string {
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString("### ")
		b.WriteString(strings.ToUpper(k))
		b.WriteString("\n")
		for _, a := range groups[k] {
			title := a.Title
			if title == "" {
				title = "(no title)"
			}
			fmt.Fprintf(&b, "- **%s** (%s)\n", title, a.Priority)
		}
		b.WriteString("\n")
	}
	return b.String()
}
