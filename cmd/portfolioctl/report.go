package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexastock/internal/app"
)

func newReportCommand() *cobra.Command {
	var asOf string

	cmd := &cobra.Command{
		Use:   "report <portfolioID>",
		Short: "Print a performance report as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var at time.Time
			if asOf != "" {
				parsed, err := time.Parse(time.RFC3339, asOf)
				if err != nil {
					return fmt.Errorf("--as-of must be RFC3339: %w", err)
				}
				at = parsed
			}

			return withEngine(cmd.Context(), func(engine *app.App) error {
				report, err := engine.Service.GetReport(cmd.Context(), args[0], at)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), report)
			})
		},
	}

	cmd.Flags().StringVar(&asOf, "as-of", "", "label the report with this RFC3339 time")
	return cmd
}
