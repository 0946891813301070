package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete saved checkups older than the retention period",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		days := appCtx.Config.RetentionDays
		if days <= 0 {
			return &InvalidFlagError{Flag: "days", Value: strconv.Itoa(days), Reason: "must be positive"}
		}

		services, err := appCtx.newServices(false)
		if err != nil {
			return err
		}
		removed, err := services.Orchestrator.Purge(cmd.Context(), time.Duration(days)*24*time.Hour)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %d checkup(s) older than %d day(s)\n",
			colorSuccess("✓"), removed, days)
		return nil
	},
}

func init() {
	purgeCmd.Flags().IntVar(&cliConfig.RetentionDays, "days", cliConfig.RetentionDays, "retention period in days")
}
