package fileutil

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, entries map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := zip.NewWriter(f)
	for name, content := range entries {
		entry, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	if err := os.WriteFile(src, []byte("payload"), 0o755); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(dir, "nested", "dst.sh")
	if err := CopyFile(src, dst); err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "payload" {
		t.Fatalf("copied content mismatch: %v", err)
	}

	info, err := os.Stat(dst)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("permissions not carried over: %v", info.Mode())
	}
}

func TestCopyFileRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := CopyFile(dir, filepath.Join(dir, "dst")); err == nil {
		t.Fatal("expected error copying a directory")
	}
}

func TestExtractZipFlatten(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "scan.zip")
	writeZip(t, archive, map[string]string{
		"deep/nested/a-1-x.dcm": "one",
		"deep/other/a-2-x.dcm":  "two",
	})

	dest := filepath.Join(dir, "out")
	files, err := ExtractZip(archive, dest, true)
	if err != nil {
		t.Fatalf("ExtractZip: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("extracted %d files, want 2", len(files))
	}
	for _, f := range files {
		if filepath.Dir(f) != dest {
			t.Fatalf("flattened entry not in dest: %s", f)
		}
	}
}

func TestExtractZipNested(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "aux.zip")
	writeZip(t, archive, map[string]string{"inner/physio.dat": "x"})

	dest := filepath.Join(dir, "out")
	files, err := ExtractZip(archive, dest, false)
	if err != nil {
		t.Fatalf("ExtractZip: %v", err)
	}
	if len(files) != 1 || files[0] != filepath.Join(dest, "inner", "physio.dat") {
		t.Fatalf("unexpected layout: %v", files)
	}
}

func TestExtractZipRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "evil.zip")
	writeZip(t, archive, map[string]string{"../escape.txt": "x"})

	if _, err := ExtractZip(archive, filepath.Join(dir, "out"), false); err == nil {
		t.Fatal("expected error for path escape")
	}
}
