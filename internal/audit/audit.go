// Package audit decides what happened to a scan: it knows the NIFTI names a
// successful concatenation produces and classifies per-scan outcomes.
package audit

import (
	"fmt"
	"os"
	"path/filepath"
)

// Outcome classifies the result of processing one scan.
type Outcome string

const (
	// OutcomeConcatenated means every expected NIFTI output exists.
	OutcomeConcatenated Outcome = "concatenated"
	// OutcomeFailed means reconstruction ran but outputs are missing.
	OutcomeFailed Outcome = "failed"
	// OutcomeIncomplete means the acquisition was aborted partway through.
	OutcomeIncomplete Outcome = "incomplete"
	// OutcomeSkipped means the scan was not a concatenation candidate.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeError means processing stopped on an unclassified error.
	OutcomeError Outcome = "error"
)

// Valid reports whether o is a known outcome value.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeConcatenated, OutcomeFailed, OutcomeIncomplete, OutcomeSkipped, OutcomeError:
		return true
	}
	return false
}

// DefaultOutputTemplate names outputs the way Dimon's to3d prefix does:
// zero-padded scan number, two-digit echo.
const DefaultOutputTemplate = "run%04d.e%02d"

// OutputName is the NIFTI filename for one echo of a scan. The template must
// carry a scan verb followed by an echo verb; empty means the default.
func OutputName(template string, scanNumber, echo int) string {
	if template == "" {
		template = DefaultOutputTemplate
	}
	return fmt.Sprintf(template, scanNumber, echo) + ".nii"
}

// ExpectedOutputs lists the NIFTI filenames a finished concatenation leaves
// behind, in echo order.
func ExpectedOutputs(template string, scanNumber, echoes int) []string {
	names := make([]string, 0, echoes)
	for echo := 0; echo < echoes; echo++ {
		names = append(names, OutputName(template, scanNumber, echo))
	}
	return names
}

// Missing returns the expected outputs absent from medataDir.
func Missing(medataDir, template string, scanNumber, echoes int) []string {
	var missing []string
	for _, name := range ExpectedOutputs(template, scanNumber, echoes) {
		if _, err := os.Stat(filepath.Join(medataDir, name)); err != nil {
			missing = append(missing, name)
		}
	}
	return missing
}

// Concatenated reports whether every expected NIFTI exists under medataDir.
// Used before invocation for the idempotent skip and after invocation to
// detect a silent Dimon failure.
func Concatenated(medataDir, template string, scanNumber, echoes int) bool {
	return len(Missing(medataDir, template, scanNumber, echoes)) == 0
}
