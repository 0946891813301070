package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

const envPrefix = "SECHECKUP"

var cfgFile string
var resultsDirFlag string
var verbose bool

var rootCmd = &cobra.Command{
	Use:   "secheckup",
	Short: "Browser and connection security checkup",
	Long: `secheckup evaluates how well a browser and its connection protect the user:
HTTPS, WebRTC leaks, DNS, JavaScript, cookies, fingerprinting and response headers.
Run it from the command line or serve the checkup page with "secheckup serve".`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()

		dataDir, err := getDataDir()
		if err != nil {
			return err
		}

		resultsDir := resultsDirFlag
		if resultsDir == "" {
			resultsDir = viper.GetString("results_dir")
		}
		if resultsDir == "" {
			resultsDir = filepath.Join(dataDir, "results")
		}
		if err := os.MkdirAll(resultsDir, consts.DefaultDirPerm); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
		// Make final resultsDir absolute (for clarity in logs)
		if abs, err := filepath.Abs(resultsDir); err == nil {
			resultsDir = abs
		}

		logger, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}

		applyConfigDefaults(cmd)
		storeAppContext(cmd, &AppContext{
			Logger:     logger,
			DataDir:    dataDir,
			ResultsDir: resultsDir,
			Config:     cliConfig,
		})
		logger.Debug("configuration loaded",
			zap.String("results_dir", resultsDir),
			zap.String("config_file", viper.ConfigFileUsed()),
		)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if globalAppContext != nil && globalAppContext.Logger != nil {
			_ = globalAppContext.Logger.Sync()
		}
	},
}

// RootCommand exposes the command tree for documentation and tests.
func RootCommand() *cobra.Command {
	return rootCmd
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

// initConfig reads the config file and SECHECKUP_* environment variables.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath("$HOME")
		viper.SetConfigName(".secheckup")
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil && cfgFile != "" {
		fmt.Fprintf(os.Stderr, "Warning: could not read config %s: %v\n", cfgFile, err)
	}
}

// newLogger builds the production logger. CLI output stays readable unless
// --verbose raises the level to info.
func newLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	return cfg.Build()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.secheckup.yaml)")
	rootCmd.PersistentFlags().StringVar(&resultsDirFlag, "results-dir", "", "directory for saved checkups and telemetry")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress details to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(probesCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(telemetryCmd)
	rootCmd.AddCommand(versionCmd)
}
