package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/khanhnv2901/secheckup/internal/checker"
	"github.com/khanhnv2901/secheckup/internal/domain/checkup"
)

var probesFormat string
var probesSimulated bool

var probesCmd = &cobra.Command{
	Use:   "probes",
	Short: "List the checkup probes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.newServices(true)
		if err != nil {
			return err
		}
		mode := checkup.ModeLive
		if probesSimulated {
			mode = checkup.ModeSimulated
		}
		probes := services.Orchestrator.Catalog(mode).Describe()

		out := cmd.OutOrStdout()
		switch probesFormat {
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(probes)
		case "yaml":
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(probes); err != nil {
				return err
			}
			return enc.Close()
		case "table", "":
			printProbeTable(cmd, probes)
			if appCtx.DataDir != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "\n%s %s\n", colorInfo("→"), describePluginDir(appCtx.DataDir))
			}
			return nil
		default:
			return &InvalidFlagError{Flag: "format", Value: probesFormat, Reason: "use table, json or yaml"}
		}
	},
}

func printProbeTable(cmd *cobra.Command, probes []checker.ProbeDescriptor) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tCATEGORY\tREQUIRES")
	for _, p := range probes {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Title, p.Category, p.Requires)
	}
	_ = w.Flush()
}

func init() {
	probesCmd.Flags().StringVarP(&probesFormat, "format", "f", "table", "output format: table, json or yaml")
	probesCmd.Flags().BoolVar(&probesSimulated, "simulate", false, "list the simulated catalog")
}
