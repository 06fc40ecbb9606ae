package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hexastock/internal/app"
	"github.com/hexastock/internal/service"
)

func newReplayCommand() *cobra.Command {
	var repair bool

	cmd := &cobra.Command{
		Use:   "replay <portfolioID>",
		Short: "Rebuild a portfolio from its journal and compare it with the stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(engine *app.App) error {
				run := engine.Service.VerifyReplay
				if repair {
					run = engine.Service.RepairFromJournal
				}

				result, err := run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printReplay(cmd.OutOrStdout(), result)
				if !result.Consistent && !result.Repaired {
					return fmt.Errorf("portfolio %s diverges from its journal", args[0])
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&repair, "repair", false, "overwrite the stored snapshot with the replayed one when they differ")
	return cmd
}

func printReplay(w io.Writer, result *service.ReplayResult) {
	fmt.Fprintf(w, "portfolio:  %s\n", result.PortfolioID)
	fmt.Fprintf(w, "entries:    %d\n", result.JournalEntries)
	fmt.Fprintf(w, "checked at: %s\n", result.CheckedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "consistent: %v\n", result.Consistent)
	for _, line := range result.Inconsistencies {
		fmt.Fprintf(w, "  - %s\n", line)
	}
	if result.Repaired {
		fmt.Fprintln(w, "snapshot repaired from journal")
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
