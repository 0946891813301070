package errors

import "errors"

// Domain errors
var (
	// Checkup errors
	ErrCheckupNotFound    = errors.New("checkup not found")
	ErrCheckupNotIdle     = errors.New("checkup can only be started from idle status")
	ErrCheckupNotRunning  = errors.New("checkup is not running")
	ErrCheckupFinished    = errors.New("checkup already finished")
	ErrDuplicateVerdict   = errors.New("verdict already recorded for probe")
	ErrInvalidCheckupID   = errors.New("invalid checkup ID")
	ErrInvalidCheckupMode = errors.New("invalid checkup mode")

	// Probe errors
	ErrUnknownProbe    = errors.New("unknown probe")
	ErrDuplicateProbe  = errors.New("probe id already in catalog")
	ErrEmptyTarget     = errors.New("target cannot be empty")
	ErrInvalidTarget   = errors.New("invalid target")
	ErrPrivateTarget   = errors.New("target address is not public")
	ErrBrowserFailure  = errors.New("headless browser collection failed")
	ErrBrowserDisabled = errors.New("headless browser collection is disabled")

	// Client report errors
	ErrInvalidClientReport = errors.New("invalid client report")

	// Repository errors
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrValidation      = errors.New("validation error")
	ErrUnsupportedType = errors.New("unsupported format")
)
