package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"mepipe/internal/audit"
	"mepipe/internal/concat"
	"mepipe/internal/config"
	"mepipe/internal/dicommeta"
	"mepipe/internal/ledger"
	"mepipe/internal/logging"
	"mepipe/internal/notifications"
	"mepipe/internal/scan"
	"mepipe/internal/services"
	"mepipe/internal/services/dimon"
)

// ConcatOptions control one per-exam concatenation run.
type ConcatOptions struct {
	// ExamDir is the exam tree holding numbered scan directories.
	ExamDir string
	// Echoes overrides the configured echo count when positive.
	Echoes int
	// Scans restricts processing to these directory names; empty means all.
	Scans []string
	// DeleteDCMs removes the source DICOM files after a verified success.
	DeleteDCMs bool
}

// ScanResult is the settled outcome of one scan.
type ScanResult struct {
	Scan    string
	Outcome audit.Outcome
	Detail  string
}

// Summary aggregates one exam's results.
type Summary struct {
	Exam     string
	RunID    string
	Results  []ScanResult
	Duration time.Duration
}

// Count returns how many scans settled with the given outcome.
func (s *Summary) Count(outcome audit.Outcome) int {
	n := 0
	for _, r := range s.Results {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

// Ledger is the slice of the outcome store the workflow writes to.
type Ledger interface {
	Record(ctx context.Context, runID, exam, scan string, outcome audit.Outcome, detail string) (*ledger.Record, error)
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// Concatenator drives the multi-echo concatenation of one exam at a time.
type Concatenator struct {
	cfg             *config.Config
	meta            dicommeta.Reader
	recon           dimon.Reconstructor
	store           Ledger
	notify          notifications.Service
	logger          *slog.Logger
	instancePattern *regexp.Regexp
}

// NewConcatenator wires the concatenation workflow. store may be nil to skip
// ledger recording; notify may be nil for silence.
func NewConcatenator(cfg *config.Config, meta dicommeta.Reader, recon dimon.Reconstructor, store Ledger, notify notifications.Service, logger *slog.Logger) (*Concatenator, error) {
	pattern, err := regexp.Compile(cfg.DICOM.InstancePattern)
	if err != nil {
		return nil, fmt.Errorf("instance pattern: %w", err)
	}
	if notify == nil {
		notify = noopNotifier{}
	}
	return &Concatenator{
		cfg:             cfg,
		meta:            meta,
		recon:           recon,
		store:           store,
		notify:          notify,
		logger:          logging.WithComponent(logger, "concat"),
		instancePattern: pattern,
	}, nil
}

// Run processes every multi-echo scan of one exam. The only fatal condition
// is an unusable exam directory (or a concurrent run holding its lock); every
// per-scan problem is contained, recorded, and reported in the summary.
func (c *Concatenator) Run(ctx context.Context, opts ConcatOptions) (*Summary, error) {
	examDir, err := filepath.Abs(opts.ExamDir)
	if err != nil {
		return nil, fmt.Errorf("resolve exam directory: %w", err)
	}
	if info, err := os.Stat(examDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("exam directory %s does not exist", examDir)
	}
	exam := filepath.Base(examDir)
	echoes := opts.Echoes
	if echoes <= 0 {
		echoes = c.cfg.Concat.Echoes
	}

	lock := flock.New(filepath.Join(examDir, ".mepipe.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire exam lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another mepipe run is already processing %s", exam)
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	ctx = services.WithRunID(services.WithExam(ctx, exam), runID)
	logger := c.logger.With(slog.String(logging.FieldExam, exam), slog.String(logging.FieldRunID, runID))

	dirs, err := scan.Discover(examDir)
	if err != nil {
		return nil, err
	}
	dirs = filterScans(dirs, opts.Scans)
	logger.Info("exam discovered", slog.Int("scan_dirs", len(dirs)), slog.Int("echoes", echoes))
	_ = c.notify.NotifyExamStarted(ctx, exam, len(dirs))

	started := time.Now()
	summary := &Summary{Exam: exam, RunID: runID}
	classifier := scan.NewClassifier(c.meta, c.cfg.DICOM.MultiEchoCode)

	for _, dir := range dirs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		scanCtx := services.WithScan(ctx, dir.Name)
		scanLogger := logger.With(slog.String(logging.FieldScan, dir.Name))

		multiEcho, err := classifier.IsMultiEcho(dir.Path)
		if err != nil {
			scanLogger.Error("classification failed", logging.Error(err))
			c.settle(scanCtx, summary, dir.Name, audit.OutcomeError, err.Error())
			continue
		}
		if !multiEcho {
			scanLogger.Debug("not multi-echo, skipping")
			continue
		}

		result := c.processScan(scanCtx, scanLogger, dir, echoes, opts.DeleteDCMs)
		c.settle(scanCtx, summary, dir.Name, result.Outcome, result.Detail)
	}
	c.pruneLedger(ctx, logger)

	summary.Duration = time.Since(started)
	logger.Info("exam finished",
		slog.Int("concatenated", summary.Count(audit.OutcomeConcatenated)),
		slog.Int("failed", summary.Count(audit.OutcomeFailed)),
		slog.Int("incomplete", summary.Count(audit.OutcomeIncomplete)),
		slog.Int("skipped", summary.Count(audit.OutcomeSkipped)),
		slog.Duration("duration", summary.Duration))
	_ = c.notify.NotifyExamCompleted(ctx, exam,
		summary.Count(audit.OutcomeConcatenated),
		summary.Count(audit.OutcomeFailed)+summary.Count(audit.OutcomeError),
		summary.Count(audit.OutcomeIncomplete),
		summary.Duration)
	return summary, nil
}

// processScan runs the full per-scan pipeline and maps every failure mode to
// an outcome. Nothing here aborts the exam.
func (c *Concatenator) processScan(ctx context.Context, logger *slog.Logger, dir scan.Dir, echoes int, deleteDCMs bool) ScanResult {
	medata := filepath.Join(dir.Path, c.cfg.Concat.MESubdir)
	template := c.cfg.Concat.OutputTemplate

	if audit.Concatenated(medata, template, dir.Number, echoes) {
		logger.Info("outputs already present, skipping")
		return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeConcatenated, Detail: "outputs already present"}
	}

	files, err := scan.ListDICOMs(dir.Path)
	if err != nil {
		return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeError, Detail: err.Error()}
	}
	if len(files) == 0 {
		return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeSkipped, Detail: "no dicom files"}
	}

	completeness, err := scan.CheckCompleteness(c.meta, files)
	if err != nil {
		return c.failure(dir.Name, err)
	}
	if !completeness.Complete() {
		detail := fmt.Sprintf("%d files on disk, %d slices x %d volumes expected",
			completeness.Files, completeness.Geometry.SliceCount, completeness.Geometry.VolumeCount)
		logger.Warn("acquisition incomplete, excluding scan", slog.String("detail", detail))
		return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeIncomplete, Detail: detail}
	}

	if err := concat.CheckEchoDivisibility(len(files), echoes); err != nil {
		return c.failure(dir.Name, err)
	}

	indices, err := concat.ExtractIndices(ctx, c.meta, files, c.cfg.Concat.Workers)
	if err != nil {
		return c.failure(dir.Name, err)
	}
	plan, err := concat.Rearrange(files, indices, echoes, c.instancePattern)
	if err != nil {
		return c.failure(dir.Name, err)
	}
	logger.Info("rearranged scan",
		slog.Int("time_points", plan.TimePoints),
		slog.Int("spatial_slices", plan.SpatialSlices))

	manifests, err := plan.WriteManifests(medata)
	if err != nil {
		return c.failure(dir.Name, err)
	}

	// Echo failures are contained: siblings still get their chance.
	for echo := 0; echo < echoes; echo++ {
		req := dimon.Request{
			ScanNumber: dir.Number,
			Echo:       echo,
			Manifest:   manifests[echo],
			OutputDir:  medata,
		}
		if err := c.recon.Reconstruct(ctx, req); err != nil {
			logger.Error("reconstruction failed",
				slog.Int(logging.FieldEcho, echo), logging.Error(err))
		}
	}

	if missing := audit.Missing(medata, template, dir.Number, echoes); len(missing) > 0 {
		detail := fmt.Sprintf("missing outputs: %v", missing)
		return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeFailed, Detail: detail}
	}

	if deleteDCMs {
		c.deleteSources(logger, files)
	}
	return ScanResult{Scan: dir.Name, Outcome: audit.OutcomeConcatenated}
}

// failure maps an error to the outcome class it represents.
func (c *Concatenator) failure(scanName string, err error) ScanResult {
	var geoErr *concat.GeometryError
	switch {
	case errors.As(err, &geoErr),
		errors.Is(err, services.ErrExternalTool),
		errors.Is(err, services.ErrTimeout):
		return ScanResult{Scan: scanName, Outcome: audit.OutcomeFailed, Detail: err.Error()}
	case errors.Is(err, scan.ErrNoFiles):
		return ScanResult{Scan: scanName, Outcome: audit.OutcomeSkipped, Detail: err.Error()}
	default:
		return ScanResult{Scan: scanName, Outcome: audit.OutcomeError, Detail: err.Error()}
	}
}

// settle appends the outcome, records it, and raises the matching
// notification: scan failures for expected failure modes, the error channel
// for unclassified ones.
func (c *Concatenator) settle(ctx context.Context, summary *Summary, scanName string, outcome audit.Outcome, detail string) {
	summary.Results = append(summary.Results, ScanResult{Scan: scanName, Outcome: outcome, Detail: detail})

	switch outcome {
	case audit.OutcomeFailed:
		_ = c.notify.NotifyScanFailure(ctx, summary.Exam, scanName, errors.New(detail))
	case audit.OutcomeError:
		_ = c.notify.NotifyError(ctx, errors.New(detail), fmt.Sprintf("%s scan %s", summary.Exam, scanName))
	}

	if c.store == nil {
		return
	}
	if _, err := c.store.Record(ctx, summary.RunID, summary.Exam, scanName, outcome, detail); err != nil {
		c.logger.Error("ledger write failed", logging.Error(err))
	}
}

// pruneLedger trims records older than the configured retention after each
// run so the ledger tracks the same window as the log files.
func (c *Concatenator) pruneLedger(ctx context.Context, logger *slog.Logger) {
	if c.store == nil || c.cfg.Logging.RetentionDays <= 0 {
		return
	}
	retention := time.Duration(c.cfg.Logging.RetentionDays) * 24 * time.Hour
	pruned, err := c.store.Prune(ctx, retention)
	if err != nil {
		logger.Warn("ledger prune failed", logging.Error(err))
		return
	}
	if pruned > 0 {
		logger.Debug("pruned ledger records", slog.Int64("count", pruned))
	}
}

func (c *Concatenator) deleteSources(logger *slog.Logger, files []string) {
	removed := 0
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			logger.Warn("could not delete source file",
				slog.String("file", filepath.Base(file)), logging.Error(err))
			continue
		}
		removed++
	}
	logger.Info("deleted source dicom files", slog.Int("count", removed))
}

func filterScans(dirs []scan.Dir, wanted []string) []scan.Dir {
	if len(wanted) == 0 {
		return dirs
	}
	wantedSet := make(map[string]bool, len(wanted))
	for _, w := range wanted {
		wantedSet[w] = true
	}
	var out []scan.Dir
	for _, dir := range dirs {
		if wantedSet[dir.Name] || wantedSet[fmt.Sprint(dir.Number)] {
			out = append(out, dir)
		}
	}
	return out
}

type noopNotifier struct{}

func (noopNotifier) NotifyExamStarted(context.Context, string, int) error { return nil }
func (noopNotifier) NotifyExamCompleted(context.Context, string, int, int, int, time.Duration) error {
	return nil
}
func (noopNotifier) NotifyScanFailure(context.Context, string, string, error) error { return nil }
func (noopNotifier) NotifyError(context.Context, error, string) error               { return nil }
func (noopNotifier) TestNotification(context.Context) error                         { return nil }
