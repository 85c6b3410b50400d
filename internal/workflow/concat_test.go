package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"mepipe/internal/audit"
	"mepipe/internal/config"
	"mepipe/internal/dicommeta"
	"mepipe/internal/ledger"
	"mepipe/internal/services/dimon"
)

// nameMeta derives everything from filenames so tests run on empty files:
// instance i carries slice index ((i-1) mod 4)+1, geometry is 4 slices x 2
// volumes. Scan directories with a "9" in the name classify as localizers.
type nameMeta struct{}

func (nameMeta) AcquisitionType(path string) (string, error) {
	if strings.Contains(filepath.Base(filepath.Dir(path)), "9") {
		return "localizer", nil
	}
	return "epiRTme", nil
}

func (nameMeta) Geometry(path string) (dicommeta.Geometry, error) {
	return dicommeta.Geometry{SliceCount: 4, VolumeCount: 2}, nil
}

func (nameMeta) SliceIndex(path string) (int, error) {
	base := filepath.Base(path)
	var instance int
	if _, err := fmt.Sscanf(base, "img-%d-", &instance); err != nil {
		return 0, err
	}
	return (instance-1)%4 + 1, nil
}

// fakeRecon writes the expected NIFTI unless the echo is marked to fail.
type fakeRecon struct {
	failEchoes map[int]bool
	template   string
	calls      int
}

func (f *fakeRecon) Reconstruct(ctx context.Context, req dimon.Request) error {
	f.calls++
	if f.failEchoes[req.Echo] {
		return fmt.Errorf("dimon exit status 1 (echo %d)", req.Echo)
	}
	name := audit.OutputName(f.template, req.ScanNumber, req.Echo)
	return os.WriteFile(filepath.Join(req.OutputDir, name), []byte("nifti"), 0o644)
}

// fakeLedger records settle and prune calls.
type fakeLedger struct {
	records    []string
	retentions []time.Duration
}

func (f *fakeLedger) Record(ctx context.Context, runID, exam, scan string, outcome audit.Outcome, detail string) (*ledger.Record, error) {
	f.records = append(f.records, scan+"="+string(outcome))
	return &ledger.Record{RunID: runID, Exam: exam, Scan: scan, Outcome: outcome, Detail: detail}, nil
}

func (f *fakeLedger) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	f.retentions = append(f.retentions, retention)
	return 0, nil
}

// recordingNotifier captures which notification channel each outcome used.
type recordingNotifier struct {
	scanFailures []string
	errorLabels  []string
}

func (r *recordingNotifier) NotifyExamStarted(context.Context, string, int) error { return nil }
func (r *recordingNotifier) NotifyExamCompleted(context.Context, string, int, int, int, time.Duration) error {
	return nil
}
func (r *recordingNotifier) NotifyScanFailure(_ context.Context, _ string, scan string, _ error) error {
	r.scanFailures = append(r.scanFailures, scan)
	return nil
}
func (r *recordingNotifier) NotifyError(_ context.Context, _ error, label string) error {
	r.errorLabels = append(r.errorLabels, label)
	return nil
}
func (r *recordingNotifier) TestNotification(context.Context) error { return nil }

// writeScan creates a scan directory with count synthetic DICOM files.
func writeScan(t *testing.T, examDir, name string, count int) string {
	t.Helper()
	dir := filepath.Join(examDir, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= count; i++ {
		path := filepath.Join(dir, fmt.Sprintf("img-%d-ab.dcm", i))
		if err := os.WriteFile(path, []byte("dcm"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestConcatenator(t *testing.T, recon dimon.Reconstructor, store Ledger) *Concatenator {
	t.Helper()
	cfg := config.Default()
	cfg.Concat.Echoes = 2
	cfg.Concat.Workers = 2
	c, err := NewConcatenator(&cfg, nameMeta{}, recon, store, nil, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}
	return c
}

func TestRunConcatenatesScan(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	recon := &fakeRecon{}
	store, err := ledger.OpenAt(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	c := newTestConcatenator(t, recon, store)
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Results) != 1 || summary.Results[0].Outcome != audit.OutcomeConcatenated {
		t.Fatalf("unexpected results: %+v", summary.Results)
	}
	if recon.calls != 2 {
		t.Fatalf("expected 2 echo invocations, got %d", recon.calls)
	}

	medata := filepath.Join(examDir, "0005", "medata")
	for _, name := range []string{"_me0_infilelist", "_me1_infilelist", "run0005.e00.nii", "run0005.e01.nii"} {
		if _, err := os.Stat(filepath.Join(medata, name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	latest, err := store.LatestOutcomes(context.Background(), "exam01")
	if err != nil {
		t.Fatal(err)
	}
	if latest["0005"].Outcome != audit.OutcomeConcatenated {
		t.Fatalf("ledger not updated: %+v", latest)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	recon := &fakeRecon{}
	c := newTestConcatenator(t, recon, nil)

	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err != nil {
		t.Fatal(err)
	}
	callsAfterFirst := recon.calls

	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatal(err)
	}
	if recon.calls != callsAfterFirst {
		t.Fatalf("second run re-invoked reconstruction: %d -> %d", callsAfterFirst, recon.calls)
	}
	if summary.Results[0].Detail != "outputs already present" {
		t.Fatalf("unexpected detail: %q", summary.Results[0].Detail)
	}
}

func TestRunMarksIncompleteScan(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 7) // geometry expects 8

	recon := &fakeRecon{}
	c := newTestConcatenator(t, recon, nil)
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Results[0].Outcome != audit.OutcomeIncomplete {
		t.Fatalf("expected incomplete, got %+v", summary.Results[0])
	}
	if recon.calls != 0 {
		t.Fatal("incomplete scan must not reach reconstruction")
	}
}

func TestRunContainsEchoFailure(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)
	writeScan(t, examDir, "0007", 8)

	recon := &fakeRecon{failEchoes: map[int]bool{1: true}}
	c := newTestConcatenator(t, recon, nil)
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(summary.Results) != 2 {
		t.Fatalf("one bad echo must not halt siblings: %+v", summary.Results)
	}
	for _, result := range summary.Results {
		if result.Outcome != audit.OutcomeFailed {
			t.Fatalf("expected failed outcome, got %+v", result)
		}
		if !strings.Contains(result.Detail, "missing outputs") {
			t.Fatalf("unexpected detail: %q", result.Detail)
		}
	}
	// Echo 0 still produced output in both scans.
	if _, err := os.Stat(filepath.Join(examDir, "0005", "medata", "run0005.e00.nii")); err != nil {
		t.Fatalf("sibling echo output missing: %v", err)
	}
}

func TestRunSkipsNonMultiEchoScans(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)
	writeScan(t, examDir, "0009", 3) // classifies as localizer

	c := newTestConcatenator(t, &fakeRecon{}, nil)
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Scan != "0005" {
		t.Fatalf("localizer should not appear in results: %+v", summary.Results)
	}
}

func TestRunDeleteDCMs(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	scanDir := writeScan(t, examDir, "0005", 8)

	c := newTestConcatenator(t, &fakeRecon{}, nil)
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir, DeleteDCMs: true}); err != nil {
		t.Fatal(err)
	}

	leftover, err := filepath.Glob(filepath.Join(scanDir, "*.dcm"))
	if err != nil {
		t.Fatal(err)
	}
	if len(leftover) != 0 {
		t.Fatalf("source files should be deleted, found %v", leftover)
	}
}

func TestRunRefusesConcurrentExam(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	lock := flock.New(filepath.Join(examDir, ".mepipe.lock"))
	locked, err := lock.TryLock()
	if err != nil || !locked {
		t.Fatalf("could not pre-acquire lock: %v", err)
	}
	defer lock.Unlock()

	c := newTestConcatenator(t, &fakeRecon{}, nil)
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err == nil {
		t.Fatal("expected error while lock is held")
	}
}

func TestRunMissingExamDirIsFatal(t *testing.T) {
	c := newTestConcatenator(t, &fakeRecon{}, nil)
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: filepath.Join(t.TempDir(), "absent")}); err == nil {
		t.Fatal("expected error for missing exam directory")
	}
}

// indexErrMeta classifies everything as multi-echo but cannot read slice
// indices, forcing the unclassified-error path.
type indexErrMeta struct{ nameMeta }

func (indexErrMeta) SliceIndex(path string) (int, error) {
	return 0, fmt.Errorf("tag missing in %s", filepath.Base(path))
}

func TestRunHonorsOutputTemplate(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	cfg := config.Default()
	cfg.Concat.Echoes = 2
	cfg.Concat.Workers = 2
	cfg.Concat.OutputTemplate = "vol%03d_echo%d"

	recon := &fakeRecon{template: cfg.Concat.OutputTemplate}
	c, err := NewConcatenator(&cfg, nameMeta{}, recon, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}

	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Results[0].Outcome != audit.OutcomeConcatenated {
		t.Fatalf("unexpected results: %+v", summary.Results)
	}
	for _, name := range []string{"vol005_echo0.nii", "vol005_echo1.nii"} {
		if _, err := os.Stat(filepath.Join(examDir, "0005", "medata", name)); err != nil {
			t.Fatalf("expected templated output %s: %v", name, err)
		}
	}

	// The second run must recognize the templated outputs and skip.
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err != nil {
		t.Fatal(err)
	}
	if recon.calls != 2 {
		t.Fatalf("templated outputs not recognized as complete: %d calls", recon.calls)
	}
}

func TestRunPrunesLedgerAfterRun(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	cfg := config.Default()
	cfg.Concat.Echoes = 2
	cfg.Concat.Workers = 2
	cfg.Logging.RetentionDays = 30

	store := &fakeLedger{}
	c, err := NewConcatenator(&cfg, nameMeta{}, &fakeRecon{}, store, nil, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.retentions) != 1 || store.retentions[0] != 30*24*time.Hour {
		t.Fatalf("expected one prune at 30 days, got %v", store.retentions)
	}
	if len(store.records) != 1 {
		t.Fatalf("outcome not recorded: %v", store.records)
	}
}

func TestRunSkipsPruneWithoutRetention(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	cfg := config.Default()
	cfg.Concat.Echoes = 2
	cfg.Concat.Workers = 2
	cfg.Logging.RetentionDays = 0

	store := &fakeLedger{}
	c, err := NewConcatenator(&cfg, nameMeta{}, &fakeRecon{}, store, nil, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.retentions) != 0 {
		t.Fatalf("retention disabled, prune should not run: %v", store.retentions)
	}
}

func TestRunRoutesNotificationsByOutcome(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)

	// A failed echo raises a scan-failure notification.
	notify := &recordingNotifier{}
	recon := &fakeRecon{failEchoes: map[int]bool{0: true, 1: true}}
	cfg := config.Default()
	cfg.Concat.Echoes = 2
	cfg.Concat.Workers = 2
	c, err := NewConcatenator(&cfg, nameMeta{}, recon, nil, notify, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}
	if _, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(notify.scanFailures) != 1 || notify.scanFailures[0] != "0005" {
		t.Fatalf("expected scan failure notification, got %+v", notify)
	}
	if len(notify.errorLabels) != 0 {
		t.Fatalf("failed outcome must not use the error channel: %+v", notify)
	}

	// An unclassified error raises the error notification instead.
	notify = &recordingNotifier{}
	c, err = NewConcatenator(&cfg, indexErrMeta{}, &fakeRecon{}, nil, notify, nil)
	if err != nil {
		t.Fatalf("NewConcatenator: %v", err)
	}
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Results[0].Outcome != audit.OutcomeError {
		t.Fatalf("expected error outcome, got %+v", summary.Results)
	}
	if len(notify.errorLabels) != 1 || !strings.Contains(notify.errorLabels[0], "0005") {
		t.Fatalf("expected error notification, got %+v", notify)
	}
	if len(notify.scanFailures) != 0 {
		t.Fatalf("error outcome must not use the scan-failure channel: %+v", notify)
	}
}

func TestRunRestrictsToRequestedScans(t *testing.T) {
	examDir := filepath.Join(t.TempDir(), "exam01")
	writeScan(t, examDir, "0005", 8)
	writeScan(t, examDir, "0007", 8)

	recon := &fakeRecon{}
	c := newTestConcatenator(t, recon, nil)
	summary, err := c.Run(context.Background(), ConcatOptions{ExamDir: examDir, Scans: []string{"7"}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Scan != "0007" {
		t.Fatalf("scan filter not applied: %+v", summary.Results)
	}
}
