// Package pull fetches subject data from an XNAT server into the local exam
// tree: scan DICOM resources arrive as zip archives and are flattened into
// numbered scan directories, auxiliary files are fetched, optionally
// extracted, and organized into the scans they name.
package pull
