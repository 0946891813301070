package checkup

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/report"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// Checkup is one run of the probe catalog. It is the aggregate root owning
// the verdicts recorded during the run.
type Checkup struct {
	id           string
	target       string
	mode         Mode
	status       Status
	createdAt    time.Time
	startedAt    time.Time
	completedAt  time.Time
	verdicts     []checker.Verdict
	summary      report.Summary
	errorMessage string
}

// Status represents the lifecycle of a checkup.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusRunning  Status = "running"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	return s == StatusComplete || s == StatusFailed
}

// Mode selects live probes or canned simulated verdicts.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// ParseMode validates a mode name; empty means live.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeLive, nil
	case ModeLive, ModeSimulated:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", sharedErrors.ErrInvalidCheckupMode, s)
	}
}

// New creates an idle checkup. target may be empty for browser-only runs.
func New(target string, mode Mode) (*Checkup, error) {
	if mode != ModeLive && mode != ModeSimulated {
		return nil, fmt.Errorf("%w: %q", sharedErrors.ErrInvalidCheckupMode, mode)
	}
	return &Checkup{
		id:        uuid.NewString(),
		target:    strings.TrimSpace(target),
		mode:      mode,
		status:    StatusIdle,
		createdAt: time.Now().UTC(),
		verdicts:  make([]checker.Verdict, 0),
	}, nil
}

// Reconstruct creates a checkup from persisted data.
func Reconstruct(id, target string, mode Mode, status Status, createdAt, startedAt, completedAt time.Time,
	verdicts []checker.Verdict, summary report.Summary, errorMessage string) *Checkup {
	if verdicts == nil {
		verdicts = make([]checker.Verdict, 0)
	}
	return &Checkup{
		id:           id,
		target:       target,
		mode:         mode,
		status:       status,
		createdAt:    createdAt,
		startedAt:    startedAt,
		completedAt:  completedAt,
		verdicts:     verdicts,
		summary:      summary,
		errorMessage: errorMessage,
	}
}

// Business methods

// Start marks the checkup as running.
func (c *Checkup) Start() error {
	if c.status != StatusIdle {
		return sharedErrors.ErrCheckupNotIdle
	}
	c.status = StatusRunning
	c.startedAt = time.Now().UTC()
	return nil
}

// Record adds a verdict. Each probe may report once per checkup.
func (c *Checkup) Record(v checker.Verdict) error {
	if c.status != StatusRunning {
		return sharedErrors.ErrCheckupNotRunning
	}
	for _, existing := range c.verdicts {
		if existing.ProbeID == v.ProbeID {
			return fmt.Errorf("%w: %s", sharedErrors.ErrDuplicateVerdict, v.ProbeID)
		}
	}
	c.verdicts = append(c.verdicts, v)
	return nil
}

// Complete marks the checkup as complete and computes its summary.
func (c *Checkup) Complete() error {
	if c.status != StatusRunning {
		return sharedErrors.ErrCheckupNotRunning
	}
	c.status = StatusComplete
	c.completedAt = time.Now().UTC()
	c.summary = report.Summarize(c.verdicts)
	return nil
}

// Fail marks the checkup as failed.
func (c *Checkup) Fail(err error) error {
	if c.status.Finished() {
		return sharedErrors.ErrCheckupFinished
	}
	c.status = StatusFailed
	c.completedAt = time.Now().UTC()
	if err != nil {
		c.errorMessage = err.Error()
	}
	c.summary = report.Summarize(c.verdicts)
	return nil
}

// Getters

func (c *Checkup) ID() string {
	return c.id
}

func (c *Checkup) Target() string {
	return c.target
}

func (c *Checkup) Mode() Mode {
	return c.mode
}

func (c *Checkup) Status() Status {
	return c.status
}

func (c *Checkup) CreatedAt() time.Time {
	return c.createdAt
}

func (c *Checkup) StartedAt() time.Time {
	return c.startedAt
}

func (c *Checkup) CompletedAt() time.Time {
	return c.completedAt
}

func (c *Checkup) ErrorMessage() string {
	return c.errorMessage
}

// Verdicts returns a copy of the recorded verdicts.
func (c *Checkup) Verdicts() []checker.Verdict {
	out := make([]checker.Verdict, len(c.verdicts))
	copy(out, c.verdicts)
	return out
}

// Summary is the tally computed when the checkup finished; for a running
// checkup it reflects the verdicts recorded so far.
func (c *Checkup) Summary() report.Summary {
	if !c.status.Finished() {
		return report.Summarize(c.verdicts)
	}
	return c.summary
}

// Document converts the checkup for the report renderers.
func (c *Checkup) Document() report.Document {
	return report.Document{
		ID:           c.id,
		Target:       c.target,
		Mode:         string(c.mode),
		Status:       string(c.status),
		StartedAt:    c.startedAt,
		CompletedAt:  c.completedAt,
		ErrorMessage: c.errorMessage,
		Verdicts:     c.Verdicts(),
		Summary:      c.Summary(),
	}
}

// Clone returns a deep-enough copy for handing to another goroutine.
func (c *Checkup) Clone() *Checkup {
	cp := *c
	cp.verdicts = c.Verdicts()
	return &cp
}
