package concat

import "fmt"

// GeometryError reports a scan whose file count cannot be reconciled with the
// configured echo count. The affected scan is excluded from concatenation;
// sibling scans continue.
type GeometryError struct {
	Reason string
}

func (e *GeometryError) Error() string {
	return "geometry inconsistency: " + e.Reason
}

func geometryErrorf(format string, args ...any) *GeometryError {
	return &GeometryError{Reason: fmt.Sprintf(format, args...)}
}

// CheckEchoDivisibility verifies that fileCount splits evenly across echoes.
// Called before tag extraction so a misconfigured echo count fails fast.
func CheckEchoDivisibility(fileCount, echoes int) error {
	if echoes < 2 {
		return geometryErrorf("echo count %d must be at least 2", echoes)
	}
	if fileCount == 0 {
		return geometryErrorf("no dicom files to concatenate")
	}
	if fileCount%echoes != 0 {
		return geometryErrorf("%d files do not divide evenly across %d echoes", fileCount, echoes)
	}
	return nil
}
