package cmd

import (
	"strings"

	"github.com/fatih/color"
)

var (
	colorSuccess = color.New(color.FgGreen).SprintFunc()
	colorInfo    = color.New(color.FgCyan).SprintFunc()
	colorWarn    = color.New(color.FgYellow).SprintFunc()
	colorError   = color.New(color.FgRed).SprintFunc()
)

// formatStatusWithColor colours a checkup lifecycle status.
func formatStatusWithColor(status string) string {
	switch strings.ToLower(status) {
	case "complete", "ok":
		return colorSuccess(status)
	case "running", "idle":
		return colorInfo(status)
	case "failed", "error":
		return colorError(status)
	default:
		return status
	}
}

func formatGrade(grade string) string {
	switch grade {
	case "A", "B":
		return colorSuccess(grade)
	case "C", "D":
		return colorWarn(grade)
	case "F":
		return colorError(grade)
	default:
		return grade
	}
}
