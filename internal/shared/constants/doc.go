// Package constants centralizes defaults shared across the CLI, the API
// service and the probes.
//
// File permissions, capture limits, certificate warning windows and the
// delays used by simulated checkups live here so cmd/ and internal/ can
// reference them without import cycles.
package constants
