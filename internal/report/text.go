package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/khanhnv2901/secheckup/internal/checker"
)

var (
	colorSecure  = color.New(color.FgGreen).SprintFunc()
	colorWarning = color.New(color.FgYellow).SprintFunc()
	colorDanger  = color.New(color.FgRed).SprintFunc()
	colorMuted   = color.New(color.FgHiBlack).SprintFunc()
	colorHeading = color.New(color.FgCyan, color.Bold).SprintFunc()
)

// ColorStatus renders a status the way the terminal output shows it.
func ColorStatus(s checker.Status) string {
	label := strings.ToUpper(string(s))
	switch s {
	case checker.StatusSecure:
		return colorSecure(label)
	case checker.StatusWarning:
		return colorWarning(label)
	case checker.StatusDanger:
		return colorDanger(label)
	default:
		return colorMuted(label)
	}
}

func renderText(w io.Writer, doc Document) error {
	ew := &errWriter{w: w}

	ew.printf("%s %s\n", colorHeading("Security checkup:"), doc.TargetLabel())
	if doc.ID != "" {
		ew.printf("ID: %s\n", doc.ID)
	}
	ew.printf("Mode: %s | Status: %s | Duration: %s\n\n", doc.Mode, doc.Status, formatDuration(doc.Duration()))
	if doc.ErrorMessage != "" {
		ew.printf("%s %s\n\n", colorDanger("Checkup failed:"), doc.ErrorMessage)
	}

	tw := tabwriter.NewWriter(ew, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHECK\tSTATUS\tMESSAGE")
	for _, v := range doc.Verdicts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", v.Title, ColorStatus(v.Status), v.Message)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush verdict table: %w", err)
	}

	remediations := 0
	for _, v := range doc.Verdicts {
		if v.Remediation == nil {
			continue
		}
		if remediations == 0 {
			ew.printf("\n%s\n", colorHeading("Remediation"))
		}
		remediations++
		ew.printf("\n[%s] %s\n", v.Title, v.Remediation.Summary)
		if v.Remediation.Risk != "" {
			ew.printf("  %s %s\n", colorMuted("Risk:"), v.Remediation.Risk)
		}
		if v.Remediation.Impact != "" {
			ew.printf("  %s %s\n", colorMuted("Impact:"), v.Remediation.Impact)
		}
		for _, step := range v.Remediation.Steps {
			ew.printf("  - %s\n", step)
		}
		for _, link := range v.Remediation.Links {
			ew.printf("  %s %s\n", colorMuted(link.Title+":"), link.URL)
		}
	}

	s := doc.Summary
	ew.printf("\n%s grade %s (%.1f/100), overall %s\n", colorHeading("Summary:"), s.Grade, s.Score, ColorStatus(s.Overall))
	ew.printf("Secure: %s | Warning: %s | Danger: %s | Unknown: %d | Skipped: %d | Total: %d\n",
		colorSecure(s.Secure), colorWarning(s.Warning), colorDanger(s.Danger), s.Unknown, s.Skipped, s.Total)
	return ew.err
}

// errWriter keeps the first write error so the renderer can report it once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}

func (e *errWriter) printf(format string, args ...interface{}) {
	_, _ = fmt.Fprintf(e, format, args...)
}
