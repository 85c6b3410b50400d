package scan

import (
	"fmt"

	"mepipe/internal/dicommeta"
)

// Classifier decides whether a scan directory holds a multi-echo acquisition
// by reading the sequence code from a single representative file.
type Classifier struct {
	meta   dicommeta.Reader
	meCode string
}

// NewClassifier builds a Classifier that matches against meCode.
func NewClassifier(meta dicommeta.Reader, meCode string) *Classifier {
	return &Classifier{meta: meta, meCode: meCode}
}

// IsMultiEcho reports whether dir holds a multi-echo scan. A directory with
// no DICOM files is simply not multi-echo; an unreadable representative file
// is an error.
func (c *Classifier) IsMultiEcho(dir string) (bool, error) {
	files, err := ListDICOMs(dir)
	if err != nil {
		return false, err
	}
	if len(files) == 0 {
		return false, nil
	}
	code, err := c.meta.AcquisitionType(files[0])
	if err != nil {
		return false, fmt.Errorf("classify %s: %w", dir, err)
	}
	return code == c.meCode, nil
}
