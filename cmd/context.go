package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secheckup/internal/application"
	"github.com/khanhnv2901/secheckup/internal/checker"
	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

// AppContext carries the state resolved by the root command.
type AppContext struct {
	Logger     *zap.Logger
	DataDir    string
	ResultsDir string
	Config     *CLIConfig
}

var globalAppContext *AppContext

func storeAppContext(cmd *cobra.Command, appCtx *AppContext) {
	globalAppContext = appCtx
}

func getAppContext(cmd *cobra.Command) *AppContext {
	if globalAppContext == nil {
		globalAppContext = &AppContext{Logger: zap.NewNop(), Config: newCLIConfig()}
	}
	return globalAppContext
}

// serviceOptions adjusts the container for the command that needs it.
type serviceOptions struct {
	Ephemeral bool
	// PublicTargetsOnly refuses targets on loopback or private networks.
	PublicTargetsOnly bool
	// NoBrowser leaves headless browser collection unavailable.
	NoBrowser bool
}

// newServices builds the application container for local commands, which
// may check any target and launch a browser.
func (a *AppContext) newServices(ephemeral bool) (*application.Container, error) {
	return a.newServicesWith(serviceOptions{Ephemeral: ephemeral})
}

// newServicesWith builds the application container from the resolved
// config. External probes from the plugins directory join the live catalog.
func (a *AppContext) newServicesWith(opts serviceOptions) (*application.Container, error) {
	cfg := a.Config
	timeout := secondsOr(cfg.Run.TimeoutSecs, consts.DefaultProbeTimeout)

	var extra []checker.Probe
	if a.DataDir != "" {
		probes, err := loadProbePlugins(pluginsDir(a.DataDir), a.Logger)
		if err != nil {
			a.Logger.Warn("unable to load plugins", zap.Error(err))
		}
		extra = probes
	}

	addresses := checker.AllowAnyAddress
	if opts.PublicTargetsOnly {
		addresses = checker.PublicAddressesOnly
	}
	var collector checker.ClientCollector
	if !opts.NoBrowser {
		collector = &checker.BrowserCollector{
			ExecPath:  cfg.Browser.ExecPath,
			Timeout:   secondsOr(cfg.Browser.TimeoutSecs, consts.DefaultBrowserTimeout),
			Addresses: addresses,
			Logger:    a.Logger,
		}
	}

	services, err := application.NewContainer(application.Options{
		ResultsDir: a.ResultsDir,
		Runner: &checker.Runner{
			Concurrency: cfg.Run.Concurrency,
			RateLimit:   cfg.Run.RateLimit,
			Timeout:     timeout,
			Logger:      a.Logger,
		},
		Probes: checker.ProbeConfig{
			Timeout:      timeout,
			Resolvers:    cfg.DNS.Resolvers,
			CanaryDomain: cfg.DNS.CanaryDomain,
			Addresses:    addresses,
		},
		Extra:          extra,
		SimulatedDelay: cfg.Run.SimulatedDelay,
		Collector:      collector,
		Ephemeral:      opts.Ephemeral,
		Logger:         a.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}
	return services, nil
}
