package checkup

import (
	"time"

	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	"github.com/khanhnv2901/secheckup/internal/report"
)

// EventKind distinguishes lifecycle changes from individual verdicts.
type EventKind string

const (
	EventCheckup EventKind = "checkup"
	EventVerdict EventKind = "verdict"
)

// Event is published while a checkup runs.
type Event struct {
	Kind      EventKind        `json:"kind"`
	CheckupID string           `json:"checkup_id"`
	Checkup   *View            `json:"checkup,omitempty"`
	Verdict   *checker.Verdict `json:"verdict,omitempty"`
}

// Observer receives events. It is called from the goroutine running the
// checkup, one event at a time.
type Observer func(Event)

// View is the serializable form of a checkup.
type View struct {
	ID          string            `json:"id"`
	Target      string            `json:"target,omitempty"`
	Mode        string            `json:"mode"`
	Status      string            `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Verdicts    []checker.Verdict `json:"verdicts"`
	Summary     report.Summary    `json:"summary"`
}

// NewView snapshots c.
func NewView(c *checkup.Checkup) View {
	v := View{
		ID:        c.ID(),
		Target:    c.Target(),
		Mode:      string(c.Mode()),
		Status:    string(c.Status()),
		CreatedAt: c.CreatedAt(),
		Error:     c.ErrorMessage(),
		Verdicts:  c.Verdicts(),
		Summary:   c.Summary(),
	}
	if t := c.StartedAt(); !t.IsZero() {
		v.StartedAt = &t
	}
	if t := c.CompletedAt(); !t.IsZero() {
		v.CompletedAt = &t
	}
	return v
}

// Finished reports whether the viewed checkup reached a terminal state.
func (v View) Finished() bool {
	return checkup.Status(v.Status).Finished()
}

// Document converts the view for report rendering.
func (v View) Document() report.Document {
	doc := report.Document{
		ID:           v.ID,
		Target:       v.Target,
		Mode:         v.Mode,
		Status:       v.Status,
		ErrorMessage: v.Error,
		Verdicts:     v.Verdicts,
		Summary:      v.Summary,
		GeneratedAt:  time.Now().UTC(),
	}
	if v.StartedAt != nil {
		doc.StartedAt = *v.StartedAt
	}
	if v.CompletedAt != nil {
		doc.CompletedAt = *v.CompletedAt
	}
	return doc
}

func checkupEvent(c *checkup.Checkup) Event {
	view := NewView(c)
	return Event{Kind: EventCheckup, CheckupID: c.ID(), Checkup: &view}
}
