package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"mepipe/internal/ledger"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status EXAM",
		Short: "Show the latest recorded outcome of each scan in an exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			// The ledger keys exams by directory basename; accept either a
			// path or a bare name.
			exam := filepath.Base(args[0])
			if dir, err := resolveExamDir(cfg, args[0]); err == nil {
				exam = filepath.Base(dir)
			}

			store, err := ledger.Open(cfg)
			if err != nil {
				return fmt.Errorf("open ledger: %w", err)
			}
			defer store.Close()

			latest, err := store.LatestOutcomes(cmd.Context(), exam)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(latest) == 0 {
				fmt.Fprintf(out, "No recorded runs for %s\n", exam)
				return nil
			}

			scans := make([]string, 0, len(latest))
			for scan := range latest {
				scans = append(scans, scan)
			}
			sort.Strings(scans)

			rows := make([][]string, 0, len(scans))
			for _, scan := range scans {
				record := latest[scan]
				rows = append(rows, []string{
					scan,
					string(record.Outcome),
					record.Detail,
					record.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"Scan", "Outcome", "Detail", "Recorded"}, rows))
			return nil
		},
	}
}
