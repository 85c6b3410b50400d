package scan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"mepipe/internal/dicommeta"
)

type stubReader struct {
	code     string
	codeErr  error
	geometry dicommeta.Geometry
	geoErr   error
	indices  map[string]int
}

func (s *stubReader) AcquisitionType(path string) (string, error) {
	return s.code, s.codeErr
}

func (s *stubReader) Geometry(path string) (dicommeta.Geometry, error) {
	return s.geometry, s.geoErr
}

func (s *stubReader) SliceIndex(path string) (int, error) {
	if idx, ok := s.indices[filepath.Base(path)]; ok {
		return idx, nil
	}
	return 0, errors.New("no index for " + path)
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverSortsNumericallyAndSkipsNonScans(t *testing.T) {
	exam := t.TempDir()
	for _, name := range []string{"10", "2", "0005", "medata", "notes"} {
		if err := os.Mkdir(filepath.Join(exam, name), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	touch(t, filepath.Join(exam, "7")) // plain file, not a scan dir

	dirs, err := Discover(exam)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	var numbers []int
	for _, d := range dirs {
		numbers = append(numbers, d.Number)
	}
	if len(numbers) != 3 || numbers[0] != 2 || numbers[1] != 5 || numbers[2] != 10 {
		t.Fatalf("unexpected scan numbers: %v", numbers)
	}
	if dirs[1].Name != "0005" {
		t.Fatalf("expected on-disk name preserved, got %q", dirs[1].Name)
	}
}

func TestDiscoverMissingExamDir(t *testing.T) {
	if _, err := Discover(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatal("expected error for missing exam directory")
	}
}

func TestListDICOMsSortedCaseInsensitive(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b-2-abc.DCM"))
	touch(t, filepath.Join(dir, "a-1-abc.dcm"))
	touch(t, filepath.Join(dir, "ignore.txt"))

	files, err := ListDICOMs(dir)
	if err != nil {
		t.Fatalf("ListDICOMs: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 dicoms, got %d", len(files))
	}
	if filepath.Base(files[0]) != "a-1-abc.dcm" {
		t.Fatalf("expected sorted order, got %v", files)
	}
}

func TestClassifierMatchesCode(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "s-1-a.dcm"))

	c := NewClassifier(&stubReader{code: "epiRTme"}, "epiRTme")
	ok, err := c.IsMultiEcho(dir)
	if err != nil || !ok {
		t.Fatalf("expected multi-echo, got %v, %v", ok, err)
	}

	c = NewClassifier(&stubReader{code: "localizer"}, "epiRTme")
	ok, err = c.IsMultiEcho(dir)
	if err != nil || ok {
		t.Fatalf("expected not multi-echo, got %v, %v", ok, err)
	}
}

func TestClassifierEmptyDirIsNotMultiEcho(t *testing.T) {
	c := NewClassifier(&stubReader{code: "epiRTme"}, "epiRTme")
	ok, err := c.IsMultiEcho(t.TempDir())
	if err != nil {
		t.Fatalf("IsMultiEcho: %v", err)
	}
	if ok {
		t.Fatal("empty directory must not classify as multi-echo")
	}
}

func TestCheckCompleteness(t *testing.T) {
	meta := &stubReader{geometry: dicommeta.Geometry{SliceCount: 120, VolumeCount: 10}}

	files := make([]string, 1200)
	for i := range files {
		files[i] = "f.dcm"
	}
	report, err := CheckCompleteness(meta, files)
	if err != nil {
		t.Fatalf("CheckCompleteness: %v", err)
	}
	if !report.Complete() || report.Expected() != 1200 {
		t.Fatalf("expected complete scan, got %+v", report)
	}

	report, err = CheckCompleteness(meta, files[:900])
	if err != nil {
		t.Fatalf("CheckCompleteness: %v", err)
	}
	if report.Complete() {
		t.Fatalf("expected incomplete scan, got %+v", report)
	}
}

func TestCheckCompletenessNoFiles(t *testing.T) {
	_, err := CheckCompleteness(&stubReader{}, nil)
	if !errors.Is(err, ErrNoFiles) {
		t.Fatalf("expected ErrNoFiles, got %v", err)
	}
}
