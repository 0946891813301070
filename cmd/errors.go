package cmd

import "fmt"

// CheckupNotFoundError indicates a saved checkup lookup failure.
type CheckupNotFoundError struct {
	ID string
}

func (e *CheckupNotFoundError) Error() string {
	return fmt.Sprintf("checkup %s not found", e.ID)
}

// CheckupFailedError reports a checkup that ended in the failed state.
type CheckupFailedError struct {
	ID     string
	Reason string
}

func (e *CheckupFailedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("checkup %s failed", e.ID)
	}
	return fmt.Sprintf("checkup %s failed: %s", e.ID, e.Reason)
}

// InvalidFlagError signals a flag value outside its accepted range.
type InvalidFlagError struct {
	Flag   string
	Value  string
	Reason string
}

func (e *InvalidFlagError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid value %q for --%s", e.Value, e.Flag)
	}
	return fmt.Sprintf("invalid value %q for --%s: %s", e.Value, e.Flag, e.Reason)
}
