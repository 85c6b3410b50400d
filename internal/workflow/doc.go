// Package workflow orchestrates the per-exam concatenation run: it walks the
// numbered scan directories, classifies and validates each scan, drives the
// rearrangement and reconstruction, and settles every scan into a recorded
// outcome. Error containment is layered: a bad echo never kills its scan, a
// bad scan never kills its exam.
package workflow
