package scan

import (
	"errors"

	"mepipe/internal/dicommeta"
)

// ErrNoFiles is returned when a completeness check is asked about a scan with
// no DICOM files at all.
var ErrNoFiles = errors.New("scan has no dicom files")

// Completeness compares a scan's on-disk file count against the acquisition
// shape declared in its headers. A mismatch means the scanner aborted partway
// through the acquisition.
type Completeness struct {
	Files    int
	Geometry dicommeta.Geometry
}

// Expected is the file count a finished acquisition would have produced.
func (c Completeness) Expected() int {
	return c.Geometry.SliceCount * c.Geometry.VolumeCount
}

// Complete reports whether every expected file is present.
func (c Completeness) Complete() bool {
	return c.Expected() > 0 && c.Files == c.Expected()
}

// CheckCompleteness reads the acquisition geometry from the first file and
// compares it against the file count. files must be the full sorted DICOM
// list for the scan.
func CheckCompleteness(meta dicommeta.Reader, files []string) (Completeness, error) {
	if len(files) == 0 {
		return Completeness{}, ErrNoFiles
	}
	geo, err := meta.Geometry(files[0])
	if err != nil {
		return Completeness{}, err
	}
	return Completeness{Files: len(files), Geometry: geo}, nil
}
