// Package xnat wraps the XNAT REST API surface the pipeline needs: listing
// the project/subject/experiment/scan hierarchy, downloading scan resources
// as zip archives, fetching single files, and uploading derived outputs.
package xnat
