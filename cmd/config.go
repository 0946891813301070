package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

const (
	defaultServeAddr     = "127.0.0.1:8080"
	defaultRetentionDays = 30
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Run           RunConfig
	DNS           DNSConfig
	Browser       BrowserConfig
	Server        ServerConfig
	RetentionDays int
}

// RunConfig consolidates flag-driven settings for the probe runner.
type RunConfig struct {
	Concurrency    int
	RateLimit      int
	TimeoutSecs    int
	SimulatedDelay time.Duration
}

// DNSConfig groups DNS-specific runtime options.
type DNSConfig struct {
	Resolvers    []string
	CanaryDomain string
}

// BrowserConfig configures headless client report collection.
type BrowserConfig struct {
	ExecPath    string
	TimeoutSecs int
}

// ServerConfig holds the API service settings.
type ServerConfig struct {
	Addr string
}

type defaultOverrides struct {
	TimeoutSecs    *int
	Concurrency    *int
	RateLimit      *int
	Resolvers      []string
	CanaryDomain   string
	BrowserPath    string
	BrowserTimeout *int
	ServerAddr     string
	RetentionDays  *int
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Run: RunConfig{
			Concurrency: consts.DefaultConcurrency,
			RateLimit:   consts.DefaultRateLimit,
			TimeoutSecs: int(consts.DefaultProbeTimeout / time.Second),
		},
		DNS: DNSConfig{
			Resolvers:    []string{},
			CanaryDomain: consts.DefaultCanaryDomain,
		},
		Browser: BrowserConfig{
			TimeoutSecs: int(consts.DefaultBrowserTimeout / time.Second),
		},
		Server:        ServerConfig{Addr: defaultServeAddr},
		RetentionDays: defaultRetentionDays,
	}
}

func loadDefaultOverrides() defaultOverrides {
	overrides := defaultOverrides{}

	if viper.IsSet("defaults.timeout_secs") {
		val := viper.GetInt("defaults.timeout_secs")
		overrides.TimeoutSecs = &val
	}
	if viper.IsSet("defaults.concurrency") {
		val := viper.GetInt("defaults.concurrency")
		overrides.Concurrency = &val
	}
	if viper.IsSet("defaults.rate_limit") {
		val := viper.GetInt("defaults.rate_limit")
		overrides.RateLimit = &val
	}
	if viper.IsSet("dns.resolvers") {
		overrides.Resolvers = viper.GetStringSlice("dns.resolvers")
	}
	if viper.IsSet("dns.canary_domain") {
		overrides.CanaryDomain = viper.GetString("dns.canary_domain")
	}
	if viper.IsSet("browser.exec_path") {
		overrides.BrowserPath = viper.GetString("browser.exec_path")
	}
	if viper.IsSet("browser.timeout_secs") {
		val := viper.GetInt("browser.timeout_secs")
		overrides.BrowserTimeout = &val
	}
	if viper.IsSet("server.addr") {
		overrides.ServerAddr = viper.GetString("server.addr")
	}
	if viper.IsSet("retention_days") {
		val := viper.GetInt("retention_days")
		overrides.RetentionDays = &val
	}

	return overrides
}

// applyConfigDefaults merges config file defaults into the runtime config when the user
// did not explicitly override the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	overrides := loadDefaultOverrides()
	flags := cmd.Flags()

	if overrides.TimeoutSecs != nil {
		applyIntDefault(flags, "timeout", *overrides.TimeoutSecs, func(v int) {
			cliConfig.Run.TimeoutSecs = v
		})
	}
	if overrides.Concurrency != nil {
		applyIntDefault(flags, "concurrency", *overrides.Concurrency, func(v int) {
			cliConfig.Run.Concurrency = v
		})
	}
	if overrides.RateLimit != nil {
		applyIntDefault(flags, "rate-limit", *overrides.RateLimit, func(v int) {
			cliConfig.Run.RateLimit = v
		})
	}
	if len(overrides.Resolvers) > 0 {
		cliConfig.DNS.Resolvers = overrides.Resolvers
	}
	if overrides.CanaryDomain != "" {
		cliConfig.DNS.CanaryDomain = overrides.CanaryDomain
	}
	if overrides.BrowserPath != "" {
		cliConfig.Browser.ExecPath = overrides.BrowserPath
	}
	if overrides.BrowserTimeout != nil {
		cliConfig.Browser.TimeoutSecs = *overrides.BrowserTimeout
	}
	if overrides.ServerAddr != "" {
		setStringFlagIfUnset(flags, "addr", overrides.ServerAddr)
		cliConfig.Server.Addr = overrides.ServerAddr
	}
	if overrides.RetentionDays != nil {
		applyIntDefault(flags, "days", *overrides.RetentionDays, func(v int) {
			cliConfig.RetentionDays = v
		})
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func setStringFlagIfUnset(flags *pflag.FlagSet, name, value string) {
	if flags == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag == nil || flag.Changed {
		return
	}
	_ = flag.Value.Set(value)
}

func secondsOr(secs int, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
