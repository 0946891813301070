package checker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Status is the categorical outcome of a probe.
type Status string

const (
	StatusSecure  Status = "secure"
	StatusWarning Status = "warning"
	StatusDanger  Status = "danger"
	// StatusUnknown marks a probe that failed, timed out or was cancelled.
	StatusUnknown Status = "unknown"
	// StatusSkipped marks a probe whose required input was not supplied.
	StatusSkipped Status = "skipped"
)

// Evaluated reports whether the status is a real security outcome.
func (s Status) Evaluated() bool {
	return s == StatusSecure || s == StatusWarning || s == StatusDanger
}

// Severity orders evaluated statuses; non-outcomes sort below secure.
func (s Status) Severity() int {
	switch s {
	case StatusSecure:
		return 1
	case StatusWarning:
		return 2
	case StatusDanger:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusSecure, StatusWarning, StatusDanger, StatusUnknown, StatusSkipped:
		return true
	}
	return false
}

// Worst returns the more severe of two statuses.
func Worst(a, b Status) Status {
	if b.Severity() > a.Severity() {
		return b
	}
	return a
}

// Link is a reference attached to remediation guidance.
type Link struct {
	Title string `json:"title" yaml:"title"`
	URL   string `json:"url" yaml:"url"`
}

// Remediation is user-facing guidance for a non-secure verdict.
type Remediation struct {
	Summary string `json:"summary"`
	// Risk names what is exposed; Impact what an attacker can do with it.
	Risk   string   `json:"risk,omitempty"`
	Impact string   `json:"impact,omitempty"`
	Steps  []string `json:"steps,omitempty"`
	Links  []Link   `json:"links,omitempty"`
}

// Verdict is the normalized result of running one probe.
type Verdict struct {
	ProbeID     string                 `json:"probe_id"`
	Title       string                 `json:"title"`
	Category    string                 `json:"category"`
	Status      Status                 `json:"status"`
	Message     string                 `json:"message"`
	Details     map[string]interface{} `json:"details,omitempty"`
	Remediation *Remediation           `json:"remediation,omitempty"`
	CheckedAt   time.Time              `json:"checked_at"`
	DurationMS  float64                `json:"duration_ms"`
}

// Input carries everything a probe may inspect during a run.
type Input struct {
	Target     *TargetInfo
	Client     *ClientReport
	ObservedIP string
	// Snapshot is the shared fetch of Target; nil when there is no target.
	Snapshot *Snapshot
}

// NewInput builds the input for one run. target may be empty.
func NewInput(target string, client *ClientReport, observedIP string, fetcher *Fetcher) (Input, error) {
	in := Input{Client: client, ObservedIP: observedIP}
	if target == "" {
		return in, nil
	}
	info, err := ParseTarget(target)
	if err != nil {
		return in, err
	}
	in.Target = info
	if fetcher == nil {
		fetcher = NewFetcher(0, AllowAnyAddress)
	}
	in.Snapshot = fetcher.Snapshot(info)
	return in, nil
}

// Requirement declares which inputs a probe needs before it can run.
type Requirement int

const (
	RequiresNothing Requirement = iota
	RequiresTarget
	RequiresClient
	RequiresTargetOrClient
)

// Satisfied reports whether in provides what r asks for.
func (r Requirement) Satisfied(in Input) bool {
	switch r {
	case RequiresTarget:
		return in.Target != nil
	case RequiresClient:
		return in.Client != nil
	case RequiresTargetOrClient:
		return in.Target != nil || in.Client != nil
	default:
		return true
	}
}

func (r Requirement) String() string {
	switch r {
	case RequiresTarget:
		return "target"
	case RequiresClient:
		return "client"
	case RequiresTargetOrClient:
		return "target or client"
	default:
		return "none"
	}
}

func (r Requirement) missingMessage() string {
	switch r {
	case RequiresTarget:
		return "No target supplied"
	case RequiresClient:
		return "No browser report supplied"
	default:
		return "No target or browser report supplied"
	}
}

// Probe is one named security test.
type Probe interface {
	ID() string
	Title() string
	Category() string
	Description() string
	Requires() Requirement
	// Run evaluates the probe. It must honour ctx cancellation.
	Run(ctx context.Context, in Input) Verdict
}

// VerdictFunc receives each verdict as soon as its probe finishes.
type VerdictFunc func(Verdict)

// Runner executes a catalog with bounded concurrency, a global start rate
// and a per-probe timeout.
type Runner struct {
	Concurrency int           // Maximum number of probes running at once
	RateLimit   int           // Probe starts per second (0 = unlimited)
	Timeout     time.Duration // Timeout for each probe
	Logger      *zap.Logger
}

// Run executes every probe in catalog and returns one verdict per probe in
// catalog order. onVerdict, when set, is called serially as probes finish.
func (r *Runner) Run(ctx context.Context, catalog *Catalog, in Input, onVerdict VerdictFunc) []Verdict {
	probes := catalog.Probes()
	results := make([]Verdict, len(probes))

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	var limiter *rate.Limiter
	if r.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.RateLimit), r.RateLimit)
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var emitMu sync.Mutex
	emit := func(i int, v Verdict) {
		results[i] = v
		if onVerdict != nil {
			emitMu.Lock()
			onVerdict(v)
			emitMu.Unlock()
		}
	}

	for i, p := range probes {
		if !p.Requires().Satisfied(in) {
			emit(i, finalize(p, Verdict{
				Status:  StatusSkipped,
				Message: p.Requires().missingMessage(),
			}, time.Now()))
			continue
		}

		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				emit(i, finalize(p, cancelledVerdict(), time.Now()))
				return
			}

			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					emit(i, finalize(p, cancelledVerdict(), time.Now()))
					return
				}
			}
			if ctx.Err() != nil {
				emit(i, finalize(p, cancelledVerdict(), time.Now()))
				return
			}

			start := time.Now()
			v := r.runOne(ctx, p, in)
			v = finalize(p, v, start)
			logger.Debug("probe finished",
				zap.String("probe", p.ID()),
				zap.String("status", string(v.Status)),
				zap.Float64("duration_ms", v.DurationMS),
			)
			emit(i, v)
		}(i, p)
	}

	wg.Wait()
	return results
}

func (r *Runner) runOne(ctx context.Context, p Probe, in Input) Verdict {
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Verdict, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Verdict{
					Status:  StatusUnknown,
					Message: fmt.Sprintf("probe failed: %v", rec),
				}
			}
		}()
		done <- p.Run(probeCtx, in)
	}()

	select {
	case v := <-done:
		return v
	case <-probeCtx.Done():
		if ctx.Err() != nil {
			return cancelledVerdict()
		}
		return Verdict{
			Status:  StatusUnknown,
			Message: fmt.Sprintf("timed out after %s", timeout),
		}
	}
}

func cancelledVerdict() Verdict {
	return Verdict{Status: StatusUnknown, Message: "cancelled"}
}

// finalize stamps identity and timing onto v and enforces the remediation
// invariant: present for warning, danger and unknown; absent otherwise.
func finalize(p Probe, v Verdict, start time.Time) Verdict {
	v.ProbeID = p.ID()
	v.Title = p.Title()
	v.Category = p.Category()
	if !v.Status.Valid() {
		v.Status = StatusUnknown
	}
	if v.CheckedAt.IsZero() {
		v.CheckedAt = time.Now().UTC()
	}
	if v.Status == StatusSkipped {
		v.DurationMS = 0
	} else {
		v.DurationMS = float64(time.Since(start).Microseconds()) / 1000
	}

	switch v.Status {
	case StatusSecure, StatusSkipped:
		v.Remediation = nil
	case StatusUnknown:
		if v.Remediation == nil {
			v.Remediation = &Remediation{
				Summary: "The check could not complete. Re-run the checkup; if it keeps failing, verify network access to the target.",
			}
		}
	default:
		if v.Remediation == nil {
			v.Remediation = &Remediation{Summary: v.Message}
		}
	}
	return v
}
