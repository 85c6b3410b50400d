package main

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"mepipe/internal/audit"
	"mepipe/internal/config"
	"mepipe/internal/dicommeta"
	"mepipe/internal/ledger"
	"mepipe/internal/notifications"
	"mepipe/internal/services/dimon"
	"mepipe/internal/workflow"
)

func newConcatCommand(ctx *commandContext) *cobra.Command {
	var dirFlag string
	var echoes int
	var scans []string
	var deleteDCMs bool

	cmd := &cobra.Command{
		Use:   "concat EXAM",
		Short: "Concatenate multi-echo scans of one exam into NIFTI volumes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			examDir, err := examDirFromArgs(cfg, args[0], dirFlag)
			if err != nil {
				return err
			}

			concatenator, store, err := buildConcatenator(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			summary, err := concatenator.Run(cmd.Context(), workflow.ConcatOptions{
				ExamDir:    examDir,
				Echoes:     echoes,
				Scans:      scans,
				DeleteDCMs: deleteDCMs,
			})
			if err != nil {
				return err
			}
			return printConcatSummary(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().StringVarP(&dirFlag, "dir", "d", "", "Directory containing the exam (defaults to the configured data directory)")
	cmd.Flags().IntVarP(&echoes, "echoes", "e", 0, "Echo count (defaults to the configured value)")
	cmd.Flags().StringSliceVarP(&scans, "scans", "s", nil, "Restrict processing to these scan numbers")
	cmd.Flags().BoolVar(&deleteDCMs, "delete-dcms", false, "Delete source DICOM files after verified concatenation")
	return cmd
}

func examDirFromArgs(cfg *config.Config, exam, dirFlag string) (string, error) {
	if dirFlag == "" {
		return resolveExamDir(cfg, exam)
	}
	base, err := config.ExpandPath(dirFlag)
	if err != nil {
		return "", err
	}
	return filepath.Join(base, exam), nil
}

// buildConcatenator wires the full concatenation stack. Callers own closing
// the returned ledger store.
func buildConcatenator(ctx *commandContext) (*workflow.Concatenator, *ledger.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, nil, err
	}

	tags, err := dicommeta.NewTagMap(cfg.DICOM)
	if err != nil {
		return nil, nil, err
	}
	recon, err := dimon.New(cfg.Concat.DimonBinary, cfg.Concat.DimonTimeout, logger,
		dimon.WithOutputTemplate(cfg.Concat.OutputTemplate))
	if err != nil {
		return nil, nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}

	concatenator, err := workflow.NewConcatenator(cfg, dicommeta.NewFileReader(tags), recon, store, notifications.NewService(cfg), logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return concatenator, store, nil
}

func printConcatSummary(out io.Writer, summary *workflow.Summary) error {
	if len(summary.Results) == 0 {
		fmt.Fprintf(out, "No multi-echo scans found in %s\n", summary.Exam)
		return nil
	}

	rows := make([][]string, 0, len(summary.Results))
	for _, result := range summary.Results {
		rows = append(rows, []string{result.Scan, string(result.Outcome), result.Detail})
	}
	fmt.Fprintln(out, renderTable([]string{"Scan", "Outcome", "Detail"}, rows))

	failed := summary.Count(audit.OutcomeFailed) + summary.Count(audit.OutcomeError)
	fmt.Fprintf(out, "%s: %d concatenated, %d failed, %d incomplete, %d skipped in %s\n",
		summary.Exam,
		summary.Count(audit.OutcomeConcatenated),
		failed,
		summary.Count(audit.OutcomeIncomplete),
		summary.Count(audit.OutcomeSkipped),
		summary.Duration.Round(time.Second))

	if failed > 0 {
		return fmt.Errorf("%d of %d scans did not concatenate", failed, len(summary.Results))
	}
	return nil
}
