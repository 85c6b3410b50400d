package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mepipe/internal/config"
	"mepipe/internal/pull"
)

// pullFlags collect the per-command overrides for one pull run.
type pullFlags struct {
	user string
	host string
	port string
	path string

	subjects    []string
	subjectFile string

	include     []string
	includeFile string
	exclude     []string
	excludeFile string

	startDate string
	endDate   string

	skipExisting bool

	auxLabel    string
	auxFetch    []string
	auxUnzip    []string
	auxOrgRegex string
	moveAux     bool
	noAux       bool
}

func (f *pullFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.user, "user", "u", "", "XNAT username (defaults to the configured value)")
	cmd.Flags().StringVar(&f.host, "host", "", "XNAT host override")
	cmd.Flags().StringVar(&f.port, "port", "", "XNAT port override")
	cmd.Flags().StringVar(&f.path, "path", "", "XNAT base path override")

	cmd.Flags().StringSliceVar(&f.subjects, "sub-list", nil, "Restrict the pull to these subject labels")
	cmd.Flags().StringVar(&f.subjectFile, "sub-file", "", "File listing subject labels, one per line")

	cmd.Flags().StringSliceVar(&f.include, "include-list", nil, "Resource label globs to fetch (wins over exclusions)")
	cmd.Flags().StringVar(&f.includeFile, "include-file", "", "File listing resource label globs to fetch")
	cmd.Flags().StringSliceVar(&f.exclude, "exclude-list", nil, "Resource label globs to skip")
	cmd.Flags().StringVar(&f.excludeFile, "exclude-file", "", "File listing resource label globs to skip")

	cmd.Flags().StringVarP(&f.startDate, "start-date", "s", "", "Only pull experiments on or after this date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&f.endDate, "end-date", "e", "", "Only pull experiments before this date (YYYY-MM-DD)")

	cmd.Flags().BoolVar(&f.skipExisting, "skip-existing", true, "Leave scan directories that already exist untouched")

	cmd.Flags().StringVar(&f.auxLabel, "aux-label", "", "Experiment resource holding auxiliary files (defaults to the configured label)")
	cmd.Flags().StringSliceVar(&f.auxFetch, "aux-fetch-list", nil, "Auxiliary filename globs to download")
	cmd.Flags().StringSliceVar(&f.auxUnzip, "aux-unzip-list", nil, "Downloaded auxiliary globs to extract")
	cmd.Flags().StringVar(&f.auxOrgRegex, "aux-org-regex", "", "Regex whose capture group names the scan an auxiliary file belongs to")
	cmd.Flags().BoolVar(&f.moveAux, "move-aux", false, "Move auxiliary files into scan directories instead of copying")
	cmd.Flags().BoolVar(&f.noAux, "no-aux", false, "Skip auxiliary file handling entirely")
}

// options resolves flags and config into pull options.
func (f *pullFlags) options(cfg *config.Config, project string) (pull.Options, error) {
	subjects, err := mergeList(f.subjects, f.subjectFile)
	if err != nil {
		return pull.Options{}, err
	}
	include, err := mergeList(f.include, f.includeFile)
	if err != nil {
		return pull.Options{}, err
	}
	exclude, err := mergeList(f.exclude, f.excludeFile)
	if err != nil {
		return pull.Options{}, err
	}

	aux := pull.DefaultAuxOptions()
	if cfg.XNAT.AuxResourceLabel != "" {
		aux.Label = cfg.XNAT.AuxResourceLabel
	}
	if f.auxLabel != "" {
		aux.Label = f.auxLabel
	}
	if len(f.auxFetch) > 0 {
		aux.FetchGlobs = f.auxFetch
	}
	if len(f.auxUnzip) > 0 {
		aux.UnzipGlobs = f.auxUnzip
	}
	if f.auxOrgRegex != "" {
		aux.OrganizeRegex = f.auxOrgRegex
	}
	aux.RetainOriginals = !f.moveAux
	if f.noAux {
		aux = pull.AuxOptions{}
	}

	return pull.Options{
		Project:       project,
		DataDir:       cfg.Paths.DataDir,
		Subjects:      subjects,
		StartDate:     f.startDate,
		EndDate:       f.endDate,
		KeepResources: include,
		SkipResources: exclude,
		SkipExisting:  f.skipExisting,
		Aux:           aux,
	}, nil
}

// applyServerOverrides rewrites the XNAT address config from flags before
// the client is built.
func (f *pullFlags) applyServerOverrides(cfg *config.Config) {
	if f.host != "" {
		cfg.XNAT.Host = f.host
	}
	if f.port != "" {
		cfg.XNAT.Port = f.port
	}
	if f.path != "" {
		cfg.XNAT.Path = f.path
	}
}

func newPullCommand(ctx *commandContext) *cobra.Command {
	flags := &pullFlags{}

	cmd := &cobra.Command{
		Use:   "pull PROJECT",
		Short: "Download subject data from XNAT into the local exam tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := runPull(ctx, cmd, args[0], flags)
			if err != nil {
				return err
			}
			printPullSummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func runPull(ctx *commandContext, cmd *cobra.Command, project string, flags *pullFlags) (*pull.Summary, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	flags.applyServerOverrides(cfg)

	logger, err := ctx.ensureLogger()
	if err != nil {
		return nil, err
	}
	client, err := ctx.xnatClient(flags.user)
	if err != nil {
		return nil, err
	}
	opts, err := flags.options(cfg, project)
	if err != nil {
		return nil, err
	}
	return pull.New(client, logger).Run(cmd.Context(), opts)
}

func printPullSummary(out io.Writer, summary *pull.Summary) {
	fmt.Fprintf(out, "Pulled %d subjects: %d scans fetched, %d skipped, %d auxiliary files organized\n",
		len(summary.SubjectDirs), summary.ScansFetched, summary.ScansSkipped, summary.AuxOrganized)
	if len(summary.SubjectDirs) > 0 {
		fmt.Fprintln(out, strings.Join(summary.SubjectDirs, "\n"))
	}
}
