package constants

import (
	"io/fs"
	"time"
)

const (
	// DefaultDirPerm is the default permission used when creating directories.
	DefaultDirPerm fs.FileMode = 0o755
	// DefaultFilePerm is the default permission used when creating files.
	DefaultFilePerm fs.FileMode = 0o644
)

const (
	// BodyCaptureLimit caps how many bytes of the target page a snapshot keeps.
	BodyCaptureLimit = 512 * 1024
	// ClientReportLimit caps the size of a client report accepted over HTTP.
	ClientReportLimit = 64 * 1024
	// TLSSoonExpiryWindow warns when a certificate expires inside this window.
	TLSSoonExpiryWindow = 14 * 24 * time.Hour
	// MaxRedirects bounds the redirect chain followed by a snapshot.
	MaxRedirects = 10
)

const (
	// DefaultProbeTimeout bounds a single probe.
	DefaultProbeTimeout = 10 * time.Second
	// DefaultConcurrency is how many probes run at once.
	DefaultConcurrency = 4
	// DefaultRateLimit is the global probe start rate (per second).
	DefaultRateLimit = 10
	// DefaultBrowserTimeout bounds headless client report collection.
	DefaultBrowserTimeout = 30 * time.Second
	// DefaultCanaryDomain hosts the random labels used for NXDOMAIN probing.
	// It must not have a wildcard record.
	DefaultCanaryDomain = "example.com"
)

// Simulated checkups resolve each check after a fixed delay.
const (
	SimulatedBaseDelay = 800 * time.Millisecond
	SimulatedStepDelay = 300 * time.Millisecond
)

const (
	// ResultsSubdir is where checkups are stored under the results directory.
	ResultsSubdir = "checkups"
	// TelemetryFile is the JSONL file receiving one record per finished checkup.
	TelemetryFile = "telemetry.jsonl"
)
