package pull

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"mepipe/internal/fileutil"
	"mepipe/internal/logging"
	"mepipe/internal/services/xnat"
)

// API is the slice of the XNAT client the puller uses.
type API interface {
	Subjects(ctx context.Context, project string) ([]xnat.Subject, error)
	Experiments(ctx context.Context, project, subject string) ([]xnat.Experiment, error)
	Scans(ctx context.Context, project, subject, experiment string) ([]xnat.Scan, error)
	ScanResources(ctx context.Context, project, subject, experiment, scanID string) ([]xnat.Resource, error)
	DownloadScanZip(ctx context.Context, project, subject, experiment, scanID, label, destPath string) error
	ExperimentResourceFiles(ctx context.Context, project, subject, experiment, label string) ([]xnat.File, error)
	DownloadFile(ctx context.Context, uri, destPath string) error
}

// Options control one pull run.
type Options struct {
	Project string
	DataDir string

	// Subjects restricts the pull to these labels or IDs; empty means all.
	Subjects []string
	// StartDate and EndDate bound the experiment date: start <= date < end.
	// Both are optional ISO dates (2006-01-02).
	StartDate string
	EndDate   string

	// KeepResources and SkipResources filter scan resources by label glob.
	// A non-empty keep list takes precedence over the skip list.
	KeepResources []string
	SkipResources []string

	// SkipExisting leaves scan directories that already exist untouched.
	SkipExisting bool

	Aux AuxOptions
}

// AuxOptions control auxiliary-file handling.
type AuxOptions struct {
	// Label is the experiment resource holding auxiliary files.
	Label string
	// FetchGlobs selects which auxiliary files to download.
	FetchGlobs []string
	// UnzipGlobs selects which downloaded files to extract. The archive is
	// removed after a successful extraction.
	UnzipGlobs []string
	// OrganizeRegex extracts a scan number (single capture group) from an
	// auxiliary filename; matching files land in that scan's directory.
	OrganizeRegex string
	// RetainOriginals copies instead of moving when organizing.
	RetainOriginals bool
}

// DefaultAuxOptions mirror the lab's standard physio/raw-file layout.
func DefaultAuxOptions() AuxOptions {
	return AuxOptions{
		Label:           "auxiliaryfiles",
		FetchGlobs:      []string{"E*.zip", "P*.zip"},
		UnzipGlobs:      []string{"E*.zip"},
		OrganizeRegex:   `_scan_([0-9]+)`,
		RetainOriginals: true,
	}
}

// Summary reports what one pull run did.
type Summary struct {
	SubjectDirs  []string
	ScansFetched int
	ScansSkipped int
	AuxOrganized int
}

// Puller drives the download of subject data into the local exam tree.
type Puller struct {
	api    API
	logger *slog.Logger
}

// New constructs a Puller.
func New(api API, logger *slog.Logger) *Puller {
	return &Puller{api: api, logger: logging.WithComponent(logger, "pull")}
}

// Run fetches every matching subject and returns the subject directories it
// populated. Per-subject failures are logged and skipped; only listing the
// project at all is fatal.
func (p *Puller) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Project == "" {
		return nil, fmt.Errorf("project required")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory required")
	}

	subjects, err := p.api.Subjects(ctx, opts.Project)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	subjects = selectSubjects(subjects, opts.Subjects)
	if len(subjects) == 0 {
		p.logger.Warn("no subjects matched the selection criteria")
	}

	summary := &Summary{}
	for _, subject := range subjects {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger := p.logger.With(slog.String(logging.FieldSubject, subject.Label))
		dir, err := p.pullSubject(ctx, logger, subject, opts, summary)
		if err != nil {
			logger.Error("subject pull failed", logging.Error(err))
			continue
		}
		if dir != "" {
			summary.SubjectDirs = append(summary.SubjectDirs, dir)
		}
	}
	return summary, nil
}

func (p *Puller) pullSubject(ctx context.Context, logger *slog.Logger, subject xnat.Subject, opts Options, summary *Summary) (string, error) {
	experiments, err := p.api.Experiments(ctx, opts.Project, subject.Label)
	if err != nil {
		return "", fmt.Errorf("list experiments: %w", err)
	}
	if len(experiments) == 0 {
		logger.Info("subject has no experiments, skipping")
		return "", nil
	}
	if len(experiments) > 1 {
		logger.Warn("subject has more than one experiment, using the first",
			slog.Int("experiments", len(experiments)))
	}
	experiment := experiments[0]

	ok, err := inDateRange(experiment.Date, opts.StartDate, opts.EndDate)
	if err != nil {
		return "", err
	}
	if !ok {
		logger.Debug("experiment outside date range", slog.String("date", experiment.Date))
		return "", nil
	}

	subjectDir := filepath.Join(opts.DataDir, subject.Label)
	if err := os.MkdirAll(subjectDir, 0o755); err != nil {
		return "", fmt.Errorf("create subject directory: %w", err)
	}

	scans, err := p.api.Scans(ctx, opts.Project, subject.Label, experiment.Label)
	if err != nil {
		return "", fmt.Errorf("list scans: %w", err)
	}
	sort.Slice(scans, func(i, j int) bool { return scanLess(scans[i].ID, scans[j].ID) })

	for _, s := range scans {
		if err := ctx.Err(); err != nil {
			return subjectDir, err
		}
		if err := p.pullScan(ctx, logger, subject.Label, experiment.Label, s, subjectDir, opts, summary); err != nil {
			logger.Error("scan pull failed", slog.String(logging.FieldScan, s.ID), logging.Error(err))
		}
	}

	organized, err := p.fetchAuxFiles(ctx, logger, subject.Label, experiment.Label, subjectDir, opts)
	if err != nil {
		logger.Error("auxiliary file handling failed", logging.Error(err))
	}
	summary.AuxOrganized += organized

	return subjectDir, nil
}

func (p *Puller) pullScan(ctx context.Context, logger *slog.Logger, subject, experiment string, s xnat.Scan, subjectDir string, opts Options, summary *Summary) error {
	scanDir := filepath.Join(subjectDir, s.ID)
	if _, err := os.Stat(scanDir); err == nil {
		if opts.SkipExisting {
			logger.Info("scan directory exists, skipping",
				slog.String(logging.FieldScan, s.ID))
			summary.ScansSkipped++
			return nil
		}
		logger.Warn("re-fetching scan that already exists",
			slog.String(logging.FieldScan, s.ID))
	}
	if err := os.MkdirAll(scanDir, 0o755); err != nil {
		return fmt.Errorf("create scan directory: %w", err)
	}

	resources, err := p.api.ScanResources(ctx, opts.Project, subject, experiment, s.ID)
	if err != nil {
		return fmt.Errorf("list resources: %w", err)
	}

	fetched := false
	for _, resource := range resources {
		if !isKeeper(resource.Label, opts.KeepResources, opts.SkipResources) {
			logger.Debug("skipping resource",
				slog.String(logging.FieldScan, s.ID), slog.String("resource", resource.Label))
			continue
		}
		if err := p.fetchResource(ctx, subject, experiment, s.ID, resource.Label, scanDir, opts); err != nil {
			return fmt.Errorf("resource %s: %w", resource.Label, err)
		}
		fetched = true
	}
	if fetched {
		logger.Info("scan fetched",
			slog.String(logging.FieldScan, s.ID), slog.String("series", s.SeriesDescription))
		summary.ScansFetched++
	}
	return nil
}

// fetchResource downloads a whole resource as a zip and settles its files
// into scanDir, diverting name collisions into a collisions_N subdirectory.
func (p *Puller) fetchResource(ctx context.Context, subject, experiment, scanID, label, scanDir string, opts Options) error {
	tempDir, err := os.MkdirTemp(scanDir, ".fetch-*")
	if err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(tempDir)

	archive := filepath.Join(tempDir, "resource.zip")
	if err := p.api.DownloadScanZip(ctx, opts.Project, subject, experiment, scanID, label, archive); err != nil {
		return err
	}

	extracted, err := fileutil.ExtractZip(archive, tempDir, true)
	if err != nil {
		return err
	}

	var collisions []string
	for _, path := range extracted {
		target := filepath.Join(scanDir, filepath.Base(path))
		if _, err := os.Stat(target); err == nil {
			collisions = append(collisions, path)
			continue
		}
		if err := os.Rename(path, target); err != nil {
			return fmt.Errorf("settle %s: %w", filepath.Base(path), err)
		}
	}
	if len(collisions) > 0 {
		collisionDir := nextCollisionDir(scanDir)
		if err := os.MkdirAll(collisionDir, 0o755); err != nil {
			return fmt.Errorf("create collision directory: %w", err)
		}
		for _, path := range collisions {
			if err := os.Rename(path, filepath.Join(collisionDir, filepath.Base(path))); err != nil {
				return fmt.Errorf("divert collision %s: %w", filepath.Base(path), err)
			}
		}
		p.logger.Warn("diverted colliding files",
			slog.Int("count", len(collisions)), slog.String("dir", collisionDir))
	}
	return nil
}

func selectSubjects(available []xnat.Subject, wanted []string) []xnat.Subject {
	if len(wanted) == 0 {
		sort.Slice(available, func(i, j int) bool { return available[i].Label < available[j].Label })
		return available
	}
	wantedSet := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		wantedSet[w] = true
	}
	var out []xnat.Subject
	for _, s := range available {
		if wantedSet[s.Label] || wantedSet[s.ID] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	return out
}

// inDateRange checks start <= date < end; either bound may be empty.
func inDateRange(date, start, end string) (bool, error) {
	if start == "" && end == "" {
		return true, nil
	}
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		return false, fmt.Errorf("experiment date %q: %w", date, err)
	}
	if start != "" {
		s, err := time.Parse("2006-01-02", start)
		if err != nil {
			return false, fmt.Errorf("start date %q: %w", start, err)
		}
		if d.Before(s) {
			return false, nil
		}
	}
	if end != "" {
		e, err := time.Parse("2006-01-02", end)
		if err != nil {
			return false, fmt.Errorf("end date %q: %w", end, err)
		}
		if !d.Before(e) {
			return false, nil
		}
	}
	return true, nil
}

// isKeeper checks a resource label against keep and skip glob lists. A
// non-empty keep list wins; otherwise anything not in the skip list passes.
func isKeeper(label string, keep, skip []string) bool {
	if len(keep) > 0 {
		for _, pattern := range keep {
			if ok, _ := filepath.Match(pattern, label); ok {
				return true
			}
		}
		return false
	}
	for _, pattern := range skip {
		if ok, _ := filepath.Match(pattern, label); ok {
			return false
		}
	}
	return true
}

func scanLess(a, b string) bool {
	na, errA := strconv.Atoi(a)
	nb, errB := strconv.Atoi(b)
	if errA == nil && errB == nil {
		return na < nb
	}
	return a < b
}

func nextCollisionDir(scanDir string) string {
	dir := filepath.Join(scanDir, "collisions")
	for n := 0; ; n++ {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return dir
		}
		dir = filepath.Join(scanDir, fmt.Sprintf("collisions_%d", n))
	}
}
