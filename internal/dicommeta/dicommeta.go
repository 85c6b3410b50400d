package dicommeta

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"mepipe/internal/config"
)

// TagMap holds the resolved vendor tag addresses the pipeline reads. It is
// built once from configuration and passed explicitly to every consumer.
type TagMap struct {
	AcquisitionType tag.Tag
	SliceIndex      tag.Tag
	SliceCount      tag.Tag
	VolumeCount     tag.Tag
}

// NewTagMap resolves the configured tag addresses.
func NewTagMap(cfg config.DICOM) (TagMap, error) {
	var tm TagMap
	var err error
	if tm.AcquisitionType, err = ParseTag(cfg.AcquisitionTypeTag); err != nil {
		return TagMap{}, fmt.Errorf("acquisition type tag: %w", err)
	}
	if tm.SliceIndex, err = ParseTag(cfg.SliceIndexTag); err != nil {
		return TagMap{}, fmt.Errorf("slice index tag: %w", err)
	}
	if tm.SliceCount, err = ParseTag(cfg.SliceCountTag); err != nil {
		return TagMap{}, fmt.Errorf("slice count tag: %w", err)
	}
	if tm.VolumeCount, err = ParseTag(cfg.VolumeCountTag); err != nil {
		return TagMap{}, fmt.Errorf("volume count tag: %w", err)
	}
	return tm, nil
}

// ParseTag converts a "GGGG,EEEE" hex address into a DICOM tag.
func ParseTag(address string) (tag.Tag, error) {
	parts := strings.Split(strings.TrimSpace(address), ",")
	if len(parts) != 2 {
		return tag.Tag{}, fmt.Errorf("tag address %q must be GGGG,EEEE", address)
	}
	group, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 16, 16)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("tag group %q: %w", parts[0], err)
	}
	element, err := strconv.ParseUint(strings.TrimSpace(parts[1]), 16, 16)
	if err != nil {
		return tag.Tag{}, fmt.Errorf("tag element %q: %w", parts[1], err)
	}
	return tag.Tag{Group: uint16(group), Element: uint16(element)}, nil
}

// Geometry carries the acquisition-shape counts read from one representative
// file of a scan.
type Geometry struct {
	SliceCount  int
	VolumeCount int
}

// Reader reads pipeline-relevant header values from DICOM files. The
// production implementation parses files with the suyashkumar/dicom library;
// tests substitute stubs.
type Reader interface {
	// AcquisitionType returns the sequence code, or "" when the tag is
	// absent. Localizers and other non-EPI scans routinely lack it.
	AcquisitionType(path string) (string, error)
	Geometry(path string) (Geometry, error)
	SliceIndex(path string) (int, error)
}

// FileReader implements Reader against on-disk DICOM files.
type FileReader struct {
	tags TagMap
}

// NewFileReader constructs a Reader for the given tag map.
func NewFileReader(tags TagMap) *FileReader {
	return &FileReader{tags: tags}
}

// AcquisitionType reads the sequence code from one file. An absent tag is not
// an error; it simply means the scan is not a multi-echo acquisition.
func (r *FileReader) AcquisitionType(path string) (string, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return "", fmt.Errorf("parse dicom %s: %w", path, err)
	}
	element, err := dataset.FindElementByTag(r.tags.AcquisitionType)
	if err != nil {
		return "", nil
	}
	value, err := coerceString(element.Value)
	if err != nil {
		return "", fmt.Errorf("acquisition type in %s: %w", path, err)
	}
	return value, nil
}

// Geometry reads the slice and volume counts from one file. Missing count
// tags surface as errors because a multi-echo scan always carries both.
func (r *FileReader) Geometry(path string) (Geometry, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return Geometry{}, fmt.Errorf("parse dicom %s: %w", path, err)
	}

	geo := Geometry{}
	if geo.SliceCount, err = intForTag(dataset, r.tags.SliceCount); err != nil {
		return geo, fmt.Errorf("slice count in %s: %w", path, err)
	}
	if geo.VolumeCount, err = intForTag(dataset, r.tags.VolumeCount); err != nil {
		return geo, fmt.Errorf("volume count in %s: %w", path, err)
	}
	return geo, nil
}

// SliceIndex reads the slice-ordering tag from one file.
func (r *FileReader) SliceIndex(path string) (int, error) {
	dataset, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return 0, fmt.Errorf("parse dicom %s: %w", path, err)
	}
	index, err := intForTag(dataset, r.tags.SliceIndex)
	if err != nil {
		return 0, fmt.Errorf("slice index in %s: %w", path, err)
	}
	return index, nil
}

func intForTag(dataset dicom.Dataset, t tag.Tag) (int, error) {
	element, err := dataset.FindElementByTag(t)
	if err != nil {
		return 0, fmt.Errorf("tag (%04X,%04X) not present", t.Group, t.Element)
	}
	return coerceInt(element.Value)
}
