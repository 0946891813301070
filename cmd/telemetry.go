package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	jsonstore "github.com/khanhnv2901/secheckup/internal/infrastructure/persistence/json"
)

var telemetryLimit int
var telemetryJSON bool

// telemetryTrend aggregates the listed records.
type telemetryTrend struct {
	Runs            int     `json:"runs"`
	Failed          int     `json:"failed"`
	AvgScore        float64 `json:"avg_score"`
	AvgDurationSecs float64 `json:"avg_duration_seconds"`
	Danger          int     `json:"danger"`
}

func summarizeTelemetry(records []jsonstore.TelemetryRecord) telemetryTrend {
	var trend telemetryTrend
	var scored int
	for _, rec := range records {
		trend.Runs++
		if rec.Status == "failed" {
			trend.Failed++
		}
		if rec.ProbeCount > 0 {
			trend.AvgScore += rec.Score
			scored++
		}
		trend.AvgDurationSecs += rec.DurationSeconds
		trend.Danger += rec.DangerCount
	}
	if scored > 0 {
		trend.AvgScore /= float64(scored)
	}
	if trend.Runs > 0 {
		trend.AvgDurationSecs /= float64(trend.Runs)
	}
	return trend
}

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Show recent checkup telemetry and the score trend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		services, err := appCtx.newServices(false)
		if err != nil {
			return err
		}
		records, err := services.Telemetry.Recent(telemetryLimit)
		if err != nil {
			return err
		}
		trend := summarizeTelemetry(records)

		out := cmd.OutOrStdout()
		if telemetryJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				Trend   telemetryTrend              `json:"trend"`
				Records []jsonstore.TelemetryRecord `json:"records"`
			}{trend, records})
		}
		if len(records) == 0 {
			fmt.Fprintln(out, "No telemetry recorded yet.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tCHECKUP\tMODE\tSTATUS\tSCORE\tDANGER\tDURATION")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%d\t%.2fs\n",
				rec.Timestamp.Local().Format(time.DateTime),
				rec.CheckupID,
				rec.Mode,
				formatStatusWithColor(rec.Status),
				rec.Score,
				rec.DangerCount,
				rec.DurationSeconds,
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s %d run(s), %d failed, average score %.1f, average duration %.2fs\n",
			colorInfo("→"), trend.Runs, trend.Failed, trend.AvgScore, trend.AvgDurationSecs)
		return nil
	},
}

func init() {
	telemetryCmd.Flags().IntVarP(&telemetryLimit, "limit", "n", 20, "number of most recent records (0 = all)")
	telemetryCmd.Flags().BoolVar(&telemetryJSON, "json", false, "print JSON instead of a table")
}
