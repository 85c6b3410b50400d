// Package services holds shared plumbing for the pipeline's service clients:
// sentinel error markers for outcome classification and context annotations
// that carry exam/scan/run identity across component boundaries.
package services
