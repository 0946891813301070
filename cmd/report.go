package cmd

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/khanhnv2901/secheckup/internal/report"
	sharedErrors "github.com/khanhnv2901/secheckup/internal/shared/errors"
)

var reportFormat string
var reportOutput string

var reportCmd = &cobra.Command{
	Use:   "report <checkup-id>",
	Short: "Render a saved checkup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		if err := validateCheckupID(id); err != nil {
			return err
		}
		format, err := report.ParseFormat(reportFormat)
		if err != nil {
			return &InvalidFlagError{Flag: "format", Value: reportFormat, Reason: err.Error()}
		}
		if format == report.FormatPDF && reportOutput == "" {
			return &InvalidFlagError{Flag: "format", Value: reportFormat, Reason: "pdf output requires --output"}
		}

		appCtx := getAppContext(cmd)
		services, err := appCtx.newServices(false)
		if err != nil {
			return err
		}
		c, err := services.Orchestrator.GetCheckup(cmd.Context(), id)
		if err != nil {
			if errors.Is(err, sharedErrors.ErrCheckupNotFound) {
				return &CheckupNotFoundError{ID: id}
			}
			return err
		}

		var buf bytes.Buffer
		if err := report.Render(&buf, format, c.Document()); err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if reportOutput == "" {
			_, err := cmd.OutOrStdout().Write(buf.Bytes())
			return err
		}
		if err := writeOutputFile(reportOutput, buf.Bytes()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s Report written to %s\n", colorInfo("→"), reportOutput)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", string(report.FormatText), "report format: text, json, md, html or pdf")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "write the report to this file instead of stdout")
}
