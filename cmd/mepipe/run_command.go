package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mepipe/internal/workflow"
)

// newRunCommand chains a pull with a concatenation pass over every subject
// directory the pull populated.
func newRunCommand(ctx *commandContext) *cobra.Command {
	flags := &pullFlags{}
	var echoes int
	var deleteDCMs bool

	cmd := &cobra.Command{
		Use:   "run PROJECT",
		Short: "Pull subject data and concatenate every fetched exam",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pullSummary, err := runPull(ctx, cmd, args[0], flags)
			if err != nil {
				return err
			}
			printPullSummary(cmd.OutOrStdout(), pullSummary)
			if len(pullSummary.SubjectDirs) == 0 {
				return nil
			}

			concatenator, store, err := buildConcatenator(ctx)
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
			}

			failures := 0
			for _, examDir := range pullSummary.SubjectDirs {
				summary, err := concatenator.Run(cmd.Context(), workflow.ConcatOptions{
					ExamDir:    examDir,
					Echoes:     echoes,
					DeleteDCMs: deleteDCMs,
				})
				if err != nil {
					return err
				}
				if err := printConcatSummary(cmd.OutOrStdout(), summary); err != nil {
					failures++
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d exams had scan failures", failures, len(pullSummary.SubjectDirs))
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVar(&echoes, "echoes", 0, "Echo count (defaults to the configured value)")
	cmd.Flags().BoolVar(&deleteDCMs, "delete-dcms", false, "Delete source DICOM files after verified concatenation")
	return cmd
}
