package alert

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"crypto-monitor/internal/push/dingtalk"
	"crypto-monitor/internal/store"
)

type fakeNotifier struct {
	mu     sync.Mutex
	titles []string
	bodies []string
	atAll  []bool
	resp   *dingtalk.Response
	err    error
}

func (f *fakeNotifier) Enabled() bool { return true }

func (f *fakeNotifier) SendMarkdown(_ context.Context, title, md string, opts ...dingtalk.SendOption) (*dingtalk.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titles = append(f.titles, title)
	f.bodies = append(f.bodies, md)
	f.atAll = append(f.atAll, len(opts) > 0)
	if f.err != nil {
		return nil, f.err
	}
	if f.resp != nil {
		return f.resp, nil
	}
	return &dingtalk.Response{}, nil
}

func (f *fakeNotifier) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

type fakeRecords struct {
	mu   sync.Mutex
	recs []store.AlertRecord
}

func (f *fakeRecords) InsertAlert(a store.AlertRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, a)
	return nil
}

func TestService_SendsAndRecords(t *testing.T) {
	n := &fakeNotifier{}
	recs := &fakeRecords{}
	s := NewService(Config{}, n, recs, zerolog.Nop())
	defer s.Stop()

	res := s.Handle(context.Background(), Request{Priority: PriorityHigh, Symbol: "btc", Title: "wide spread", Markdown: "x"})
	if res.Status != StatusSent || res.Error != nil {
		t.Fatalf("result = %+v", res)
	}
	if got := n.sent(); len(got) != 1 || got[0] != "wide spread" {
		t.Errorf("sent = %v", got)
	}
	if len(recs.recs) != 1 || recs.recs[0].Status != "sent" || recs.recs[0].Symbol != "btc" {
		t.Errorf("records = %+v", recs.recs)
	}
}

func TestService_Dedup(t *testing.T) {
	n := &fakeNotifier{}
	s := NewService(Config{DedupWindow: time.Minute}, n, nil, zerolog.Nop())
	defer s.Stop()
	now := time.Unix(1000, 0)
	s.now = func() time.Time { return now }

	req := Request{Priority: PriorityMed, Title: "t", DedupKey: "SPREAD_WIDE:btc:med"}
	if res := s.Handle(context.Background(), req); res.Status != StatusSent {
		t.Fatalf("first = %v", res.Status)
	}
	if res := s.Handle(context.Background(), req); res.Status != StatusSuppressed {
		t.Errorf("second = %v, want suppressed", res.Status)
	}
	now = now.Add(2 * time.Minute)
	if res := s.Handle(context.Background(), req); res.Status != StatusSent {
		t.Errorf("after window = %v, want sent", res.Status)
	}
}

func TestService_LowPriorityGoesToDigest(t *testing.T) {
	n := &fakeNotifier{}
	s := NewService(Config{LowDigestInterval: time.Hour}, n, nil, zerolog.Nop())

	res := s.Handle(context.Background(), Request{Priority: PriorityLow, Symbol: "eth", Title: "minor"})
	if res.Status != StatusQueuedDigest {
		t.Fatalf("status = %v", res.Status)
	}
	if len(n.sent()) != 0 {
		t.Fatal("low priority sent immediately")
	}
	s.Stop()
	sent := n.sent()
	if len(sent) != 1 || !strings.Contains(n.bodies[0], "minor") || !strings.Contains(n.bodies[0], "ETH") {
		t.Errorf("digest = %v %v", sent, n.bodies)
	}
}

func TestService_RateLimitedMedFallsBackToDigest(t *testing.T) {
	n := &fakeNotifier{}
	s := NewService(Config{PerMinute: 1, Burst: 1, LowDigestInterval: time.Hour}, n, nil, zerolog.Nop())
	defer s.Stop()

	first := s.Handle(context.Background(), Request{Priority: PriorityMed, Title: "a"})
	second := s.Handle(context.Background(), Request{Priority: PriorityMed, Title: "b"})
	if first.Status != StatusSent || second.Status != StatusQueuedDigest {
		t.Errorf("statuses = %v, %v", first.Status, second.Status)
	}
}

func TestService_DeliveryFailure(t *testing.T) {
	n := &fakeNotifier{resp: &dingtalk.Response{ErrCode: 310000, ErrMsg: "sign not match"}}
	recs := &fakeRecords{}
	s := NewService(Config{}, n, recs, zerolog.Nop())
	defer s.Stop()

	res := s.Handle(context.Background(), Request{Priority: PriorityHigh, Title: "x"})
	if res.Status != StatusFailed || res.ErrCode != 310000 {
		t.Errorf("result = %+v", res)
	}
	if recs.recs[0].ErrMsg != "sign not match" {
		t.Errorf("record = %+v", recs.recs[0])
	}

	n2 := &fakeNotifier{err: errors.New("dial tcp: refused")}
	s2 := NewService(Config{}, n2, nil, zerolog.Nop())
	defer s2.Stop()
	if res := s2.Handle(context.Background(), Request{Priority: PriorityHigh}); res.Status != StatusFailed {
		t.Errorf("status = %v, want failed", res.Status)
	}
}

func TestService_HighPriorityMentionsEveryone(t *testing.T) {
	n := &fakeNotifier{}
	s := NewService(Config{}, n, nil, zerolog.Nop())
	defer s.Stop()

	s.Handle(context.Background(), Request{Priority: PriorityHigh, Title: "spread"})
	s.Handle(context.Background(), Request{Priority: PriorityMed, Title: "forecast"})
	if len(n.atAll) != 2 || !n.atAll[0] || n.atAll[1] {
		t.Errorf("atAll = %v, want [true false]", n.atAll)
	}
}

func TestTokenBucket_BurstAndRefill(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b := NewTokenBucket(60, 2)
	b.now = func() time.Time { return now }
	b.last = now

	if !b.Allow() || !b.Allow() {
		t.Fatal("burst not honoured")
	}
	if b.Allow() {
		t.Error("third call allowed without refill")
	}
	now = now.Add(500 * time.Millisecond)
	if b.Allow() {
		t.Error("allowed after half a token")
	}
	now = now.Add(500 * time.Millisecond)
	if !b.Allow() {
		t.Error("denied after a full refill")
	}
	now = now.Add(time.Hour)
	if !b.Allow() || !b.Allow() || b.Allow() {
		t.Error("refill not capped at burst")
	}
}

func TestTokenBucket_Wait(t *testing.T) {
	b := NewTokenBucket(60, 1)
	if !b.Allow() {
		t.Fatal("first token denied")
	}
	start := time.Now()
	if b.Wait(context.Background(), 100*time.Millisecond) {
		t.Error("Wait succeeded although the next token is a second away")
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Error("Wait slept although it could not succeed")
	}
	if !b.Wait(context.Background(), 1500*time.Millisecond) {
		t.Error("token not refilled within 1.5s at 1/s")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if b.Wait(ctx, 5*time.Second) {
		t.Error("Wait succeeded on a cancelled context")
	}
}

func TestTokenBucket_Disabled(t *testing.T) {
	b := NewTokenBucket(0, 0)
	if b != nil || !b.Allow() || !b.Wait(context.Background(), 0) {
		t.Error("disabled bucket denied")
	}
}

func TestParsePriority(t *testing.T) {
	for in, want := range map[string]Priority{"HIGH": PriorityHigh, "med": PriorityMed, "": PriorityLow, "x": PriorityLow} {
		if got := ParsePriority(in); got != want {
			t.Errorf("ParsePriority(%q) = %v, want %v", in, got, want)
		}
	}
}
