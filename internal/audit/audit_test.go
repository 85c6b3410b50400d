package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpectedOutputs(t *testing.T) {
	names := ExpectedOutputs("", 5, 3)
	want := []string{"run0005.e00.nii", "run0005.e01.nii", "run0005.e02.nii"}
	if len(names) != len(want) {
		t.Fatalf("got %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("output %d = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestOutputNameCustomTemplate(t *testing.T) {
	if got := OutputName("vol%03d_echo%d", 7, 2); got != "vol007_echo2.nii" {
		t.Fatalf("OutputName = %q", got)
	}
	if got := OutputName("", 7, 2); got != "run0007.e02.nii" {
		t.Fatalf("default OutputName = %q", got)
	}
}

func TestConcatenated(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"run0012.e00.nii", "run0012.e01.nii"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if !Concatenated(dir, "", 12, 2) {
		t.Fatal("expected concatenated with all outputs present")
	}
	if Concatenated(dir, "", 12, 3) {
		t.Fatal("missing third echo should not count as concatenated")
	}

	missing := Missing(dir, "", 12, 3)
	if len(missing) != 1 || missing[0] != "run0012.e02.nii" {
		t.Fatalf("missing = %v", missing)
	}
}

func TestOutcomeValid(t *testing.T) {
	for _, o := range []Outcome{OutcomeConcatenated, OutcomeFailed, OutcomeIncomplete, OutcomeSkipped, OutcomeError} {
		if !o.Valid() {
			t.Fatalf("%s should be valid", o)
		}
	}
	if Outcome("done").Valid() {
		t.Fatal("unknown outcome should be invalid")
	}
}
