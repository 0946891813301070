package checkup

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	jsonstore "github.com/khanhnv2901/secheckup/internal/infrastructure/persistence/json"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

type stubCollector struct {
	report *checker.ClientReport
	err    error
	url    string
}

func (s *stubCollector) Collect(ctx context.Context, pageURL string) (*checker.ClientReport, error) {
	s.url = pageURL
	return s.report, s.err
}

func newTestOrchestrator(t *testing.T, collector checker.ClientCollector) (*Orchestrator, *jsonstore.CheckupRepository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := jsonstore.NewCheckupRepository(dir)
	if err != nil {
		t.Fatalf("NewCheckupRepository: %v", err)
	}
	telemetry, err := jsonstore.NewTelemetryLog(dir)
	if err != nil {
		t.Fatalf("NewTelemetryLog: %v", err)
	}
	return NewOrchestrator(Config{
		Runner:         &checker.Runner{Concurrency: 7},
		SimulatedDelay: func(string) time.Duration { return time.Millisecond },
		Collector:      collector,
		Repo:           repo,
		Telemetry:      telemetry,
		Logger:         zaptest.NewLogger(t),
	}), repo
}

func TestOrchestrator_SimulatedRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	o, repo := newTestOrchestrator(t, nil)
	var events []Event
	c, err := o.Run(context.Background(), Request{Mode: "simulated"}, func(e Event) { events = append(events, e) })
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if c.Status() != checkup.StatusComplete {
		t.Fatalf("Expected complete, got %s", c.Status())
	}
	verdicts := c.Verdicts()
	if len(verdicts) != len(checker.ProbeOrder) {
		t.Fatalf("Expected %d verdicts, got %d", len(checker.ProbeOrder), len(verdicts))
	}
	for i, v := range verdicts {
		if v.ProbeID != checker.ProbeOrder[i] {
			t.Errorf("position %d: expected %s, got %s", i, checker.ProbeOrder[i], v.ProbeID)
		}
	}

	// running + one per verdict + complete
	if len(events) != len(checker.ProbeOrder)+2 {
		t.Fatalf("Expected %d events, got %d", len(checker.ProbeOrder)+2, len(events))
	}
	if first := events[0]; first.Kind != EventCheckup || first.Checkup.Status != "running" {
		t.Errorf("unexpected first event %+v", first)
	}
	last := events[len(events)-1]
	if last.Kind != EventCheckup || last.Checkup.Status != "complete" || !last.Checkup.Finished() {
		t.Errorf("unexpected last event %+v", last)
	}

	saved, err := repo.FindByID(context.Background(), c.ID())
	if err != nil {
		t.Fatalf("Expected checkup to be saved: %v", err)
	}
	if saved.Summary() != c.Summary() {
		t.Errorf("saved summary differs: %+v vs %+v", saved.Summary(), c.Summary())
	}
}

func TestOrchestrator_PrepareValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"bad mode", Request{Mode: "turbo"}, sharedErrors.ErrInvalidCheckupMode},
		{"bad target", Request{Target: "ftp://example.com"}, sharedErrors.ErrInvalidTarget},
		{"unknown probe", Request{Probes: []string{"ports"}}, sharedErrors.ErrUnknownProbe},
		{"invalid client", Request{Client: &checker.ClientReport{UserAgent: string(make([]byte, 100000))}}, sharedErrors.ErrInvalidClientReport},
		{"browser without collector", Request{Browser: true}, sharedErrors.ErrBrowserDisabled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.Prepare(tt.req); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	plan, err := o.Prepare(Request{Probes: []string{"headers", "https"}})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan.Checkup.Status() != checkup.StatusIdle || plan.Catalog.Len() != 2 {
		t.Errorf("unexpected plan status=%s probes=%d", plan.Checkup.Status(), plan.Catalog.Len())
	}
	if plan.Catalog.Probes()[0].ID() != checker.ProbeHTTPS {
		t.Error("Expected selected probes in catalog order")
	}
}

func TestOrchestrator_PublicAddressesOnly(t *testing.T) {
	o := NewOrchestrator(Config{
		Probes: checker.ProbeConfig{Addresses: checker.PublicAddressesOnly},
		Logger: zaptest.NewLogger(t),
	})

	for _, target := range []string{
		"http://127.0.0.1:6379",
		"https://169.254.169.254/latest/meta-data/",
		"10.0.0.5:8443",
		"localhost:8080",
		"http://[::1]/",
	} {
		if _, err := o.Prepare(Request{Target: target}); !errors.Is(err, sharedErrors.ErrPrivateTarget) {
			t.Errorf("%s: expected ErrPrivateTarget, got %v", target, err)
		}
	}
	if _, err := o.Prepare(Request{Target: "https://example.com"}); err != nil {
		t.Errorf("Expected public target to be accepted, got %v", err)
	}
	// Simulated checkups never connect to the target.
	if _, err := o.Prepare(Request{Target: "http://127.0.0.1", Mode: "simulated"}); err != nil {
		t.Errorf("Expected simulated checkup to be accepted, got %v", err)
	}

	open := NewOrchestrator(Config{Logger: zaptest.NewLogger(t)})
	if _, err := open.Prepare(Request{Target: "http://127.0.0.1:6379"}); err != nil {
		t.Errorf("Expected private target to be accepted by default, got %v", err)
	}
}

func TestOrchestrator_DuplicateExternalIDs(t *testing.T) {
	first, err := checker.NewExternalProbe(checker.ExternalProbeConfig{ID: "ports", Command: "true"})
	if err != nil {
		t.Fatalf("NewExternalProbe: %v", err)
	}
	second, err := checker.NewExternalProbe(checker.ExternalProbeConfig{ID: "ports", Command: "false"})
	if err != nil {
		t.Fatalf("NewExternalProbe: %v", err)
	}
	o := NewOrchestrator(Config{Extra: []checker.Probe{first, second}, Logger: zaptest.NewLogger(t)})

	if got := o.Catalog(checkup.ModeLive).Len(); got != len(checker.ProbeOrder)+1 {
		t.Errorf("Expected %d live checks, got %d", len(checker.ProbeOrder)+1, got)
	}
	plan, err := o.Prepare(Request{Probes: []string{"ports"}})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if plan.Catalog.Len() != 1 {
		t.Errorf("Expected one selected check, got %d", plan.Catalog.Len())
	}
}

func TestOrchestrator_LiveClientOnly(t *testing.T) {
	defer goleak.VerifyNone(t)

	client := &checker.ClientReport{
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		PageProtocol:  "https:",
		SecureContext: true,
		JavaScript:    checker.JavaScriptInfo{Enabled: true},
	}
	collector := &stubCollector{report: client}
	o, _ := newTestOrchestrator(t, collector)

	c, err := o.Run(context.Background(), Request{
		Probes:  []string{"https", "javascript", "fingerprint", "headers"},
		Browser: true,
	}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if collector.url != "about:blank" {
		t.Errorf("Expected about:blank collection without a target, got %q", collector.url)
	}
	byID := map[string]checker.Verdict{}
	for _, v := range c.Verdicts() {
		byID[v.ProbeID] = v
	}
	if byID["headers"].Status != checker.StatusSkipped {
		t.Errorf("Expected headers to be skipped without a target, got %s", byID["headers"].Status)
	}
	if byID["https"].Status != checker.StatusSecure || byID["javascript"].Status != checker.StatusSecure {
		t.Errorf("unexpected client verdicts %+v", byID)
	}
}

func TestOrchestrator_CollectorFailure(t *testing.T) {
	o, repo := newTestOrchestrator(t, &stubCollector{err: sharedErrors.ErrBrowserFailure})

	var last Event
	c, err := o.Run(context.Background(), Request{Browser: true}, func(e Event) { last = e })
	if !errors.Is(err, sharedErrors.ErrBrowserFailure) {
		t.Fatalf("Expected ErrBrowserFailure, got %v", err)
	}
	if c.Status() != checkup.StatusFailed {
		t.Errorf("Expected failed checkup, got %s", c.Status())
	}
	if last.Checkup == nil || last.Checkup.Status != "failed" || last.Checkup.Error == "" {
		t.Errorf("Expected failed event, got %+v", last)
	}
	if _, err := repo.FindByID(context.Background(), c.ID()); err != nil {
		t.Errorf("Expected failed checkup to be saved: %v", err)
	}
}

func TestOrchestrator_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	o, _ := newTestOrchestrator(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c, err := o.Run(ctx, Request{Mode: "simulated"}, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if c.Status() != checkup.StatusFailed {
		t.Errorf("Expected failed checkup, got %s", c.Status())
	}
	for _, v := range c.Verdicts() {
		if v.Status != checker.StatusUnknown || v.Message != "cancelled" {
			t.Errorf("%s: expected cancelled verdict, got %s %q", v.ProbeID, v.Status, v.Message)
		}
	}
}

func TestOrchestrator_HistoryAndPurge(t *testing.T) {
	o, _ := newTestOrchestrator(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := o.Run(ctx, Request{Mode: "simulated", Probes: []string{"dns"}}, nil); err != nil {
			t.Fatalf("Run: %v", err)
		}
	}
	list, err := o.ListCheckups(ctx, 2)
	if err != nil || len(list) != 2 {
		t.Fatalf("Expected 2 checkups, got %d (%v)", len(list), err)
	}
	got, err := o.GetCheckup(ctx, list[0].ID())
	if err != nil || got.ID() != list[0].ID() {
		t.Errorf("GetCheckup: %v", err)
	}
	if err := o.DeleteCheckup(ctx, list[0].ID()); err != nil {
		t.Errorf("DeleteCheckup: %v", err)
	}
	if _, err := o.Purge(ctx, 0); !errors.Is(err, sharedErrors.ErrValidation) {
		t.Errorf("Expected validation error for zero retention, got %v", err)
	}
	removed, err := o.Purge(ctx, time.Hour)
	if err != nil || removed != 0 {
		t.Errorf("Expected nothing older than an hour, got %d (%v)", removed, err)
	}
}
