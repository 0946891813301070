package checker

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type fakeProbe struct {
	probeInfo
	run func(ctx context.Context, in Input) Verdict
}

func (f *fakeProbe) Run(ctx context.Context, in Input) Verdict { return f.run(ctx, in) }

func newFakeProbe(id string, requires Requirement, run func(ctx context.Context, in Input) Verdict) *fakeProbe {
	return &fakeProbe{
		probeInfo: probeInfo{id: id, title: strings.ToUpper(id), category: "Test", requires: requires},
		run:       run,
	}
}

func returning(status Status, delay time.Duration) func(context.Context, Input) Verdict {
	return func(ctx context.Context, _ Input) Verdict {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
		return Verdict{Status: status, Message: string(status)}
	}
}

func TestRunner_ResultsInCatalogOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	catalog := NewCatalog(
		newFakeProbe("slow", RequiresNothing, returning(StatusDanger, 40*time.Millisecond)),
		newFakeProbe("fast", RequiresNothing, returning(StatusSecure, 0)),
		newFakeProbe("medium", RequiresNothing, returning(StatusWarning, 15*time.Millisecond)),
	)

	var mu sync.Mutex
	var streamed []string
	runner := &Runner{Concurrency: 3, Timeout: time.Second, Logger: zaptest.NewLogger(t)}
	verdicts := runner.Run(context.Background(), catalog, Input{}, func(v Verdict) {
		mu.Lock()
		streamed = append(streamed, v.ProbeID)
		mu.Unlock()
	})

	if len(verdicts) != 3 {
		t.Fatalf("Expected 3 verdicts, got %d", len(verdicts))
	}
	want := []string{"slow", "fast", "medium"}
	for i, id := range want {
		if verdicts[i].ProbeID != id {
			t.Errorf("verdict %d: expected %s, got %s", i, id, verdicts[i].ProbeID)
		}
	}
	if len(streamed) != 3 {
		t.Fatalf("Expected 3 callbacks, got %d", len(streamed))
	}
	if streamed[0] != "fast" {
		t.Errorf("Expected fast probe to be streamed first, got %v", streamed)
	}
	if verdicts[0].Title != "SLOW" || verdicts[0].Category != "Test" {
		t.Errorf("Expected identity to be stamped, got %+v", verdicts[0])
	}
	if verdicts[0].CheckedAt.IsZero() {
		t.Error("Expected CheckedAt to be set")
	}
}

func TestRunner_RespectsConcurrency(t *testing.T) {
	defer goleak.VerifyNone(t)

	var current, peak int32
	run := func(ctx context.Context, _ Input) Verdict {
		n := atomic.AddInt32(&current, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&current, -1)
		return Verdict{Status: StatusSecure}
	}

	probes := make([]Probe, 0, 8)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		probes = append(probes, newFakeProbe(id, RequiresNothing, run))
	}
	runner := &Runner{Concurrency: 2, Timeout: time.Second}
	runner.Run(context.Background(), NewCatalog(probes...), Input{}, nil)

	if got := atomic.LoadInt32(&peak); got > 2 {
		t.Errorf("Expected at most 2 concurrent probes, got %d", got)
	}
}

func TestRunner_TimeoutIgnoringProbe(t *testing.T) {
	release := make(chan struct{})
	defer goleak.VerifyNone(t)
	defer close(release)

	catalog := NewCatalog(newFakeProbe("stuck", RequiresNothing, func(context.Context, Input) Verdict {
		<-release
		return Verdict{Status: StatusSecure}
	}))
	runner := &Runner{Concurrency: 1, Timeout: 20 * time.Millisecond}
	verdicts := runner.Run(context.Background(), catalog, Input{}, nil)

	v := verdicts[0]
	if v.Status != StatusUnknown {
		t.Fatalf("Expected unknown, got %s", v.Status)
	}
	if !strings.Contains(v.Message, "timed out after 20ms") {
		t.Errorf("Expected timeout message, got %q", v.Message)
	}
	if v.Remediation == nil {
		t.Error("Expected remediation on unknown verdict")
	}
}

func TestRunner_CancelledContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ran int32
	run := func(context.Context, Input) Verdict {
		atomic.AddInt32(&ran, 1)
		return Verdict{Status: StatusSecure}
	}
	catalog := NewCatalog(
		newFakeProbe("a", RequiresNothing, run),
		newFakeProbe("b", RequiresNothing, run),
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	verdicts := (&Runner{Concurrency: 1}).Run(ctx, catalog, Input{}, nil)
	for _, v := range verdicts {
		if v.Status != StatusUnknown || v.Message != "cancelled" {
			t.Errorf("Expected cancelled verdict, got %s %q", v.Status, v.Message)
		}
	}
	if atomic.LoadInt32(&ran) != 0 {
		t.Errorf("Expected no probe to run, %d ran", ran)
	}
}

func TestRunner_CancelMidRun(t *testing.T) {
	release := make(chan struct{})
	defer goleak.VerifyNone(t)
	defer close(release)

	started := make(chan struct{})
	catalog := NewCatalog(newFakeProbe("blocked", RequiresNothing, func(context.Context, Input) Verdict {
		close(started)
		<-release
		return Verdict{Status: StatusSecure}
	}))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	verdicts := (&Runner{Concurrency: 1, Timeout: time.Minute}).Run(ctx, catalog, Input{}, nil)
	if verdicts[0].Message != "cancelled" {
		t.Errorf("Expected cancelled, got %q", verdicts[0].Message)
	}
}

func TestRunner_SkipsUnsatisfiedProbes(t *testing.T) {
	defer goleak.VerifyNone(t)

	var ran int32
	catalog := NewCatalog(
		newFakeProbe("needs-client", RequiresClient, func(context.Context, Input) Verdict {
			atomic.AddInt32(&ran, 1)
			return Verdict{Status: StatusDanger}
		}),
		newFakeProbe("needs-target", RequiresTarget, returning(StatusSecure, 0)),
		newFakeProbe("either", RequiresTargetOrClient, returning(StatusSecure, 0)),
	)
	verdicts := (&Runner{Concurrency: 2}).Run(context.Background(), catalog, Input{}, nil)

	for _, v := range verdicts {
		if v.Status != StatusSkipped {
			t.Errorf("%s: expected skipped, got %s", v.ProbeID, v.Status)
		}
		if v.Remediation != nil {
			t.Errorf("%s: skipped verdict must not carry remediation", v.ProbeID)
		}
	}
	if verdicts[0].Message != "No browser report supplied" {
		t.Errorf("unexpected skip message %q", verdicts[0].Message)
	}
	if ran != 0 {
		t.Error("Expected skipped probe not to run")
	}
}

func TestRunner_RecoversPanics(t *testing.T) {
	defer goleak.VerifyNone(t)

	catalog := NewCatalog(newFakeProbe("boom", RequiresNothing, func(context.Context, Input) Verdict {
		panic("kaboom")
	}))
	verdicts := (&Runner{}).Run(context.Background(), catalog, Input{}, nil)
	if verdicts[0].Status != StatusUnknown || !strings.Contains(verdicts[0].Message, "kaboom") {
		t.Errorf("Expected recovered panic, got %+v", verdicts[0])
	}
}

func TestRunner_RateLimit(t *testing.T) {
	defer goleak.VerifyNone(t)

	probes := []Probe{
		newFakeProbe("a", RequiresNothing, returning(StatusSecure, 0)),
		newFakeProbe("b", RequiresNothing, returning(StatusSecure, 0)),
		newFakeProbe("c", RequiresNothing, returning(StatusSecure, 0)),
	}
	start := time.Now()
	(&Runner{Concurrency: 3, RateLimit: 1}).Run(context.Background(), NewCatalog(probes...), Input{}, nil)
	// Burst of 1 then one start per second.
	if elapsed := time.Since(start); elapsed < 1500*time.Millisecond {
		t.Errorf("Expected rate limiting to space out starts, took %s", elapsed)
	}
}

func TestFinalize_RemediationInvariant(t *testing.T) {
	p := newFakeProbe("x", RequiresNothing, nil)
	start := time.Now()

	secure := finalize(p, Verdict{Status: StatusSecure, Remediation: &Remediation{Summary: "drop me"}}, start)
	if secure.Remediation != nil {
		t.Error("Expected remediation to be removed from secure verdict")
	}

	warning := finalize(p, Verdict{Status: StatusWarning, Message: "weak"}, start)
	if warning.Remediation == nil || warning.Remediation.Summary != "weak" {
		t.Errorf("Expected remediation to be filled in, got %+v", warning.Remediation)
	}

	bogus := finalize(p, Verdict{Status: "maybe"}, start)
	if bogus.Status != StatusUnknown || bogus.Remediation == nil {
		t.Errorf("Expected invalid status to become unknown with remediation, got %+v", bogus)
	}
}

func TestWorst(t *testing.T) {
	tests := []struct {
		a, b, want Status
	}{
		{StatusSecure, StatusWarning, StatusWarning},
		{StatusDanger, StatusWarning, StatusDanger},
		{StatusSecure, StatusUnknown, StatusSecure},
		{StatusSkipped, StatusSecure, StatusSecure},
	}
	for _, tt := range tests {
		if got := Worst(tt.a, tt.b); got != tt.want {
			t.Errorf("Worst(%s, %s) = %s, want %s", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestNewInput(t *testing.T) {
	in, err := NewInput("", nil, "203.0.113.9", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Target != nil || in.Snapshot != nil {
		t.Error("Expected no target without a target string")
	}

	in, err = NewInput("example.com", &ClientReport{}, "", NewFetcher(time.Second, AllowAnyAddress))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if in.Target == nil || in.Target.FullURL != "https://example.com" || in.Snapshot == nil {
		t.Errorf("Expected parsed target with snapshot, got %+v", in)
	}

	if _, err := NewInput("ftp://example.com", nil, "", nil); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}
