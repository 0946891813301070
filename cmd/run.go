package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/report"
)

type runOptions struct {
	simulate bool
	browser  bool
	probes   []string
	format   string
	output   string
	save     bool
	progress bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Run a security checkup",
	Long: `Run the checkup probes and print the report.

Without a target only client-side checks can run, and they need a client
report: pass --browser to collect one with headless Chrome. With a target
(a URL or host name) the HTTPS, DNS, cookie, script and header checks
inspect that site. --simulate returns canned results without touching
the network.`,
	Example: `  secheckup run --simulate
  secheckup run https://example.com
  secheckup run https://example.com --browser --format html --output report.html`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		cfg := appCtx.Config

		format, err := report.ParseFormat(runOpts.format)
		if err != nil {
			return &InvalidFlagError{Flag: "format", Value: runOpts.format, Reason: err.Error()}
		}
		if format == report.FormatPDF && runOpts.output == "" {
			return &InvalidFlagError{Flag: "format", Value: runOpts.format, Reason: "pdf output requires --output"}
		}
		if cfg.Run.Concurrency < 1 {
			return &InvalidFlagError{Flag: "concurrency", Value: strconv.Itoa(cfg.Run.Concurrency), Reason: "must be at least 1"}
		}
		if cfg.Run.RateLimit < 0 {
			return &InvalidFlagError{Flag: "rate-limit", Value: strconv.Itoa(cfg.Run.RateLimit), Reason: "must not be negative"}
		}

		services, err := appCtx.newServices(!runOpts.save)
		if err != nil {
			return err
		}

		req := checkupapp.Request{Probes: runOpts.probes, Browser: runOpts.browser}
		if len(args) == 1 {
			req.Target = args[0]
		}
		if runOpts.simulate {
			req.Mode = "simulated"
		}
		plan, err := services.Orchestrator.Prepare(req)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var progress *progressPrinter
		if runOpts.progress {
			progress = newProgressPrinter(cmd.ErrOrStderr(), plan.Catalog.Len(), "checkup")
			progress.Start()
		}
		runErr := services.Orchestrator.Execute(ctx, plan, func(e checkupapp.Event) {
			if e.Kind == checkupapp.EventVerdict && e.Verdict != nil && progress != nil {
				progress.Observe(*e.Verdict)
			}
		})
		if progress != nil {
			progress.Stop()
		}

		c := plan.Checkup
		var buf bytes.Buffer
		if err := report.Render(&buf, format, c.Document()); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if runOpts.output != "" {
			if err := writeOutputFile(runOpts.output, buf.Bytes()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", colorInfo("→"), runOpts.output)
		} else if _, err := cmd.OutOrStdout().Write(buf.Bytes()); err != nil {
			return err
		}

		if runOpts.save {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Saved checkup %s (%s)\n",
				colorInfo("→"), c.ID(), formatStatusWithColor(string(c.Status())))
		}
		if runErr != nil {
			appCtx.Logger.Warn("checkup failed", zap.String("checkup_id", c.ID()), zap.Error(runErr))
			return &CheckupFailedError{ID: c.ID(), Reason: runErr.Error()}
		}
		return nil
	},
}

func init() {
	flags := runCmd.Flags()
	flags.BoolVar(&runOpts.simulate, "simulate", false, "return canned results without network access")
	flags.BoolVar(&runOpts.browser, "browser", false, "collect a client report with headless Chrome")
	flags.StringSliceVar(&runOpts.probes, "probes", nil, fmt.Sprintf("probes to run (default all of %v)", checker.ProbeOrder))
	flags.IntVar(&cliConfig.Run.Concurrency, "concurrency", cliConfig.Run.Concurrency, "maximum probes running at once")
	flags.IntVar(&cliConfig.Run.TimeoutSecs, "timeout", cliConfig.Run.TimeoutSecs, "per-probe timeout in seconds")
	flags.IntVar(&cliConfig.Run.RateLimit, "rate-limit", cliConfig.Run.RateLimit, "probe starts per second (0 = unlimited)")
	flags.DurationVar(&cliConfig.Run.SimulatedDelay, "simulate-delay", 0, "delay of each simulated result (0 = staggered defaults)")
	flags.StringVarP(&runOpts.format, "format", "f", string(report.FormatText), "report format: text, json, md, html or pdf")
	flags.StringVar(&runOpts.output, "output", "", "write the report to this file instead of stdout")
	flags.BoolVar(&runOpts.save, "save", true, "save the checkup to the results directory")
	flags.BoolVar(&runOpts.progress, "progress", false, "show progress on stderr")
}
