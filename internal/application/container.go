package application

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	"github.com/khanhnv2901/secheckup/internal/infrastructure/persistence/json"
)

// Options configures the services built by NewContainer.
type Options struct {
	ResultsDir     string
	Runner         *checker.Runner
	Probes         checker.ProbeConfig
	Extra          []checker.Probe
	SimulatedDelay time.Duration // 0 = staggered defaults
	Collector      checker.ClientCollector // nil disables headless browser collection
	Ephemeral      bool                    // run without saving checkups or recording telemetry
	Logger         *zap.Logger
}

// Container holds all application services and repositories
// This is a simple dependency injection container
type Container struct {
	// Repositories
	CheckupRepo checkup.Repository
	Telemetry   *json.TelemetryLog

	// Services
	Orchestrator *checkupapp.Orchestrator
}

// NewContainer creates a new application service container
func NewContainer(opts Options) (*Container, error) {
	checkupRepo, err := json.NewCheckupRepository(opts.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkup repository: %w", err)
	}

	telemetry, err := json.NewTelemetryLog(opts.ResultsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry log: %w", err)
	}

	var delay func(string) time.Duration
	if opts.SimulatedDelay > 0 {
		fixed := opts.SimulatedDelay
		delay = func(string) time.Duration { return fixed }
	}

	cfg := checkupapp.Config{
		Runner:         opts.Runner,
		Probes:         opts.Probes,
		Extra:          opts.Extra,
		SimulatedDelay: delay,
		Collector:      opts.Collector,
		Fetcher:        checker.NewFetcher(opts.Probes.Timeout, opts.Probes.Addresses),
		Repo:           checkupRepo,
		Telemetry:      telemetry,
		Logger:         opts.Logger,
	}
	if opts.Ephemeral {
		cfg.Repo = nil
		cfg.Telemetry = nil
	}
	orchestrator := checkupapp.NewOrchestrator(cfg)

	return &Container{
		CheckupRepo:  checkupRepo,
		Telemetry:    telemetry,
		Orchestrator: orchestrator,
	}, nil
}
