package checkup

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

// Request asks for one checkup.
type Request struct {
	Target string   `json:"target,omitempty"`
	Mode   string   `json:"mode,omitempty"`
	Probes []string `json:"probes,omitempty"`
	// Client is the report gathered by the checkup page.
	Client *checker.ClientReport `json:"client,omitempty"`
	// Browser collects the client report with a headless browser when
	// Client is not supplied.
	Browser bool `json:"browser,omitempty"`
	// ObservedIP is the address the caller was seen from.
	ObservedIP string `json:"-"`
}

// TelemetryRecorder receives every finished checkup.
type TelemetryRecorder interface {
	Record(c *checkup.Checkup) error
}

// Config wires the orchestrator.
type Config struct {
	Runner         *checker.Runner
	Probes         checker.ProbeConfig
	Extra          []checker.Probe // external probes appended to the live catalog
	SimulatedDelay func(id string) time.Duration
	Collector      checker.ClientCollector
	Fetcher        *checker.Fetcher
	Repo           checkup.Repository // optional; nil disables persistence
	Telemetry      TelemetryRecorder  // optional
	Logger         *zap.Logger
}

// Orchestrator coordinates a checkup: probe selection, client collection,
// the probe run, the aggregate lifecycle and persistence.
type Orchestrator struct {
	cfg       Config
	live      *checker.Catalog
	simulated *checker.Catalog
	logger    *zap.Logger
}

// NewOrchestrator creates a new checkup orchestrator
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Runner == nil {
		cfg.Runner = &checker.Runner{}
	}
	if cfg.SimulatedDelay == nil {
		cfg.SimulatedDelay = checker.DefaultSimulatedDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	live, err := checker.DefaultCatalog(cfg.Probes).WithProbes(cfg.Extra...)
	if err != nil {
		logger.Warn("external probes skipped", zap.Error(err))
	}
	return &Orchestrator{
		cfg:       cfg,
		live:      live,
		simulated: checker.SimulatedCatalog(cfg.SimulatedDelay),
		logger:    logger,
	}
}

// Catalog returns the probes run in mode.
func (o *Orchestrator) Catalog(mode checkup.Mode) *checker.Catalog {
	if mode == checkup.ModeSimulated {
		return o.simulated
	}
	return o.live
}

// Plan is a validated request ready to execute.
type Plan struct {
	Checkup *checkup.Checkup
	Catalog *checker.Catalog
	request Request
}

// Prepare validates req and creates the idle checkup.
func (o *Orchestrator) Prepare(req Request) (*Plan, error) {
	mode, err := checkup.ParseMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if req.Target != "" && mode == checkup.ModeLive {
		info, err := checker.ParseTarget(req.Target)
		if err != nil {
			return nil, err
		}
		if err := o.cfg.Probes.Addresses.CheckTarget(info); err != nil {
			return nil, err
		}
	}
	if req.Browser && req.Client == nil && mode == checkup.ModeLive && o.cfg.Collector == nil {
		return nil, sharedErrors.ErrBrowserDisabled
	}
	if req.Client != nil {
		if err := req.Client.Validate(); err != nil {
			return nil, err
		}
	}
	catalog, err := o.Catalog(mode).Select(req.Probes)
	if err != nil {
		return nil, err
	}
	c, err := checkup.New(req.Target, mode)
	if err != nil {
		return nil, err
	}
	return &Plan{Checkup: c, Catalog: catalog, request: req}, nil
}

// Execute runs a prepared checkup to completion, emitting events to
// observer as it goes. The checkup ends complete, or failed when client
// collection fails or ctx is cancelled. The returned error is the failure
// cause; persistence errors are logged.
func (o *Orchestrator) Execute(ctx context.Context, plan *Plan, observer Observer) error {
	c := plan.Checkup
	req := plan.request
	emit := func(e Event) {
		if observer != nil {
			observer(e)
		}
	}
	logger := o.logger.With(zap.String("checkup_id", c.ID()), zap.String("mode", string(c.Mode())))

	if err := c.Start(); err != nil {
		return err
	}
	emit(checkupEvent(c))
	logger.Info("checkup started", zap.String("target", c.Target()), zap.Int("probes", plan.Catalog.Len()))

	client := req.Client
	if client == nil && req.Browser && c.Mode() == checkup.ModeLive {
		collected, err := o.collect(ctx, c.Target())
		if err != nil {
			return o.fail(c, err, emit, logger)
		}
		client = collected
	}

	var in checker.Input
	if c.Mode() == checkup.ModeSimulated {
		// Simulated probes never touch the network.
		in = checker.Input{Client: client, ObservedIP: req.ObservedIP}
	} else {
		var err error
		in, err = checker.NewInput(c.Target(), client, req.ObservedIP, o.cfg.Fetcher)
		if err != nil {
			return o.fail(c, err, emit, logger)
		}
	}

	verdicts := o.cfg.Runner.Run(ctx, plan.Catalog, in, func(v checker.Verdict) {
		verdict := v
		emit(Event{Kind: EventVerdict, CheckupID: c.ID(), Verdict: &verdict})
	})
	for _, v := range verdicts {
		if err := c.Record(v); err != nil {
			logger.Warn("verdict rejected", zap.String("probe", v.ProbeID), zap.Error(err))
		}
	}

	if err := ctx.Err(); err != nil {
		return o.fail(c, fmt.Errorf("checkup cancelled: %w", err), emit, logger)
	}
	if err := c.Complete(); err != nil {
		return err
	}
	o.persist(c, logger)
	emit(checkupEvent(c))

	s := c.Summary()
	logger.Info("checkup complete",
		zap.String("grade", s.Grade),
		zap.Float64("score", s.Score),
		zap.String("overall", string(s.Overall)),
		zap.Duration("duration", c.CompletedAt().Sub(c.StartedAt())),
	)
	return nil
}

// Run prepares and executes req synchronously.
func (o *Orchestrator) Run(ctx context.Context, req Request, observer Observer) (*checkup.Checkup, error) {
	plan, err := o.Prepare(req)
	if err != nil {
		return nil, err
	}
	err = o.Execute(ctx, plan, observer)
	return plan.Checkup, err
}

// GetCheckup retrieves a saved checkup by ID
func (o *Orchestrator) GetCheckup(ctx context.Context, id string) (*checkup.Checkup, error) {
	if o.cfg.Repo == nil {
		return nil, sharedErrors.ErrCheckupNotFound
	}
	c, err := o.cfg.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get checkup: %w", err)
	}
	return c, nil
}

// ListCheckups returns up to limit saved checkups, newest first.
func (o *Orchestrator) ListCheckups(ctx context.Context, limit int) ([]*checkup.Checkup, error) {
	if o.cfg.Repo == nil {
		return nil, nil
	}
	all, err := o.cfg.Repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkups: %w", err)
	}
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// DeleteCheckup removes a saved checkup.
func (o *Orchestrator) DeleteCheckup(ctx context.Context, id string) error {
	if o.cfg.Repo == nil {
		return sharedErrors.ErrCheckupNotFound
	}
	return o.cfg.Repo.Delete(ctx, id)
}

// Purge deletes saved checkups older than retention.
func (o *Orchestrator) Purge(ctx context.Context, retention time.Duration) (int, error) {
	if o.cfg.Repo == nil {
		return 0, nil
	}
	if retention <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", sharedErrors.ErrValidation)
	}
	return o.cfg.Repo.Purge(ctx, time.Now().UTC().Add(-retention))
}

func (o *Orchestrator) collect(ctx context.Context, target string) (*checker.ClientReport, error) {
	if o.cfg.Collector == nil {
		return nil, sharedErrors.ErrBrowserDisabled
	}
	pageURL := "about:blank"
	if target != "" {
		info, err := checker.ParseTarget(target)
		if err != nil {
			return nil, err
		}
		pageURL = info.FullURL
	}
	return o.cfg.Collector.Collect(ctx, pageURL)
}

func (o *Orchestrator) fail(c *checkup.Checkup, cause error, emit Observer, logger *zap.Logger) error {
	if err := c.Fail(cause); err != nil {
		return multierr.Append(cause, err)
	}
	o.persist(c, logger)
	emit(checkupEvent(c))
	logger.Warn("checkup failed", zap.Error(cause))
	return cause
}

// persist saves c and appends telemetry. Failures are logged so a storage
// problem never discards an in-memory result.
func (o *Orchestrator) persist(c *checkup.Checkup, logger *zap.Logger) {
	// The run context may already be cancelled; saving must still happen.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if o.cfg.Repo != nil {
		if err := o.cfg.Repo.Save(ctx, c); err != nil {
			logger.Error("failed to save checkup", zap.Error(err))
		}
	}
	if o.cfg.Telemetry != nil {
		if err := o.cfg.Telemetry.Record(c); err != nil {
			logger.Warn("failed to record telemetry", zap.Error(err))
		}
	}
}
