// Package scan discovers numbered scan directories inside an exam tree,
// classifies them as multi-echo or not, and checks whether an acquisition
// finished by comparing header geometry against the on-disk file count.
package scan
