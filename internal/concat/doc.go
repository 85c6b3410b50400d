// Package concat turns an unordered pile of multi-echo DICOM slice files into
// per-echo Dimon input manifests: parallel slice-index extraction, geometry
// validation against the configured echo count, and the echo-major
// rearrangement that assigns every file a (echo, time, slice) position.
package concat
