// Package upload pushes derived NIFTI volumes from an exam tree back to XNAT
// as scan resources.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mepipe/internal/logging"
	"mepipe/internal/scan"
	"mepipe/internal/services"
	"mepipe/internal/services/xnat"
)

// API is the slice of the XNAT client the uploader uses.
type API interface {
	Experiments(ctx context.Context, project, subject string) ([]xnat.Experiment, error)
	ScanResourceFiles(ctx context.Context, project, subject, experiment, scanID, label string) ([]xnat.File, error)
	UploadScanFile(ctx context.Context, project, subject, experiment, scanID, label, name string, body io.Reader) error
}

// Options control one upload run.
type Options struct {
	Project string
	// ExamDir is the local exam tree; its basename is the subject label.
	ExamDir string
	// MESubdir is the per-scan subdirectory holding NIFTI outputs.
	MESubdir string
	// Label is the scan resource receiving the files.
	Label string
	// Overwrite re-uploads files already present remotely.
	Overwrite bool
}

// Summary reports what one upload run did.
type Summary struct {
	Uploaded int
	Skipped  int
	Failed   int
}

// Uploader walks an exam tree and uploads each scan's NIFTI outputs.
type Uploader struct {
	api    API
	logger *slog.Logger
}

// New constructs an Uploader.
func New(api API, logger *slog.Logger) *Uploader {
	return &Uploader{api: api, logger: logging.WithComponent(logger, "upload")}
}

// Run uploads every NIFTI under the exam tree's per-scan output directories.
// Per-file failures are logged and counted; only resolving the exam's
// experiment is fatal.
func (u *Uploader) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.Project == "" {
		return nil, fmt.Errorf("project required")
	}
	subject := filepath.Base(strings.TrimRight(opts.ExamDir, "/"))
	if subject == "" || subject == "." {
		return nil, fmt.Errorf("exam directory required")
	}
	if opts.MESubdir == "" {
		opts.MESubdir = "medata"
	}
	if opts.Label == "" {
		opts.Label = "NIFTI"
	}

	experiments, err := u.api.Experiments(ctx, opts.Project, subject)
	if err != nil {
		return nil, fmt.Errorf("resolve experiment for %s: %w", subject, err)
	}
	if len(experiments) == 0 {
		return nil, fmt.Errorf("subject %s has no experiments", subject)
	}
	experiment := experiments[0].Label

	scanDirs, err := scan.Discover(opts.ExamDir)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	logger := u.logger.With(slog.String(logging.FieldExam, subject))
	for _, dir := range scanDirs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		u.uploadScan(ctx, logger, subject, experiment, dir, opts, summary)
	}
	logger.Info("upload finished",
		slog.Int("uploaded", summary.Uploaded),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed))
	return summary, nil
}

func (u *Uploader) uploadScan(ctx context.Context, logger *slog.Logger, subject, experiment string, dir scan.Dir, opts Options, summary *Summary) {
	outputs, err := listNiftis(filepath.Join(dir.Path, opts.MESubdir))
	if err != nil || len(outputs) == 0 {
		return
	}
	scanID := strconv.Itoa(dir.Number)

	existing := make(map[string]bool)
	remote, err := u.api.ScanResourceFiles(ctx, opts.Project, subject, experiment, scanID, opts.Label)
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		logger.Error("listing remote files failed",
			slog.String(logging.FieldScan, dir.Name), logging.Error(err))
		summary.Failed += len(outputs)
		return
	}
	for _, f := range remote {
		existing[f.Name] = true
	}

	for _, path := range outputs {
		name := filepath.Base(path)
		if existing[name] && !opts.Overwrite {
			logger.Debug("already uploaded, skipping",
				slog.String(logging.FieldScan, dir.Name), slog.String("file", name))
			summary.Skipped++
			continue
		}
		if err := u.uploadFile(ctx, opts.Project, subject, experiment, scanID, opts.Label, path); err != nil {
			logger.Error("upload failed",
				slog.String(logging.FieldScan, dir.Name), slog.String("file", name), logging.Error(err))
			summary.Failed++
			continue
		}
		logger.Info("uploaded",
			slog.String(logging.FieldScan, dir.Name), slog.String("file", name))
		summary.Uploaded++
	}
}

func (u *Uploader) uploadFile(ctx context.Context, project, subject, experiment, scanID, label, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer file.Close()
	return u.api.UploadScanFile(ctx, project, subject, experiment, scanID, label, filepath.Base(path), file)
}

func listNiftis(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var outputs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".nii") || strings.HasSuffix(name, ".nii.gz") {
			outputs = append(outputs, filepath.Join(dir, name))
		}
	}
	sort.Strings(outputs)
	return outputs, nil
}
