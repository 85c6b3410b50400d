package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mepipe/internal/upload"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var project string
	var user string
	var label string
	var overwrite bool

	cmd := &cobra.Command{
		Use:   "upload EXAM",
		Short: "Upload an exam's NIFTI outputs back to XNAT",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if project == "" {
				return fmt.Errorf("project is required (use --project)")
			}
			examDir, err := resolveExamDir(cfg, args[0])
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			client, err := ctx.xnatClient(user)
			if err != nil {
				return err
			}

			resourceLabel := label
			if resourceLabel == "" {
				resourceLabel = cfg.XNAT.NiftiResourceLabel
			}

			summary, err := upload.New(client, logger).Run(cmd.Context(), upload.Options{
				Project:   project,
				ExamDir:   examDir,
				MESubdir:  cfg.Concat.MESubdir,
				Label:     resourceLabel,
				Overwrite: overwrite,
			})
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %d files, skipped %d, failed %d\n",
				summary.Uploaded, summary.Skipped, summary.Failed)
			if summary.Failed > 0 {
				return fmt.Errorf("%d uploads failed", summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&project, "project", "p", "", "XNAT project holding the exam's subject")
	cmd.Flags().StringVarP(&user, "user", "u", "", "XNAT username (defaults to the configured value)")
	cmd.Flags().StringVar(&label, "label", "", "Scan resource receiving the files (defaults to the configured label)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Re-upload files already present remotely")
	return cmd
}
