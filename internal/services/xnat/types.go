package xnat

import "strconv"

// Subject is one row of a subject listing.
type Subject struct {
	ID    string `json:"ID"`
	Label string `json:"label"`
}

// Experiment is one imaging session of a subject.
type Experiment struct {
	ID    string `json:"ID"`
	Label string `json:"label"`
	Date  string `json:"date"`
}

// Scan is one row of a scan listing. ID is the scan number as the server
// reports it, typically unpadded digits.
type Scan struct {
	ID                string `json:"ID"`
	SeriesDescription string `json:"series_description"`
	Quality           string `json:"quality"`
}

// Resource is a named file collection attached to a scan or experiment.
type Resource struct {
	Label string `json:"label"`
}

// File is one row of a resource file listing. Size comes over the wire as a
// string.
type File struct {
	Name string `json:"Name"`
	URI  string `json:"URI"`
	Size string `json:"Size"`
}

// SizeBytes parses the reported file size, zero when absent or malformed.
func (f File) SizeBytes() int64 {
	n, err := strconv.ParseInt(f.Size, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
