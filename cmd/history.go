package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	checkupapp "github.com/khanhnv2901/secheckup/internal/application/checkup"
)

var historyLimit int
var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List saved checkups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.newServices(false)
		if err != nil {
			return err
		}
		saved, err := services.Orchestrator.ListCheckups(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		views := make([]checkupapp.View, 0, len(saved))
		for _, c := range saved {
			views = append(views, checkupapp.NewView(c))
		}

		if historyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(views)
		}
		if len(views) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved checkups.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tMODE\tTARGET\tSTATUS\tGRADE\tSCORE")
		for _, v := range views {
			target := v.Target
			if target == "" {
				target = "-"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%.1f\n",
				v.ID,
				v.CreatedAt.Local().Format(time.DateTime),
				v.Mode,
				target,
				formatStatusWithColor(v.Status),
				formatGrade(v.Summary.Grade),
				v.Summary.Score,
			)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum checkups to list (0 = all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print JSON instead of a table")
}
