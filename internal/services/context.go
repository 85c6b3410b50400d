package services

import "context"

type contextKey string

const (
	examKey  contextKey = "exam"
	scanKey  contextKey = "scan"
	runIDKey contextKey = "run_id"
)

// WithExam annotates context with the exam identifier being processed.
func WithExam(ctx context.Context, exam string) context.Context {
	if exam == "" {
		return ctx
	}
	return context.WithValue(ctx, examKey, exam)
}

// ExamFromContext returns the exam identifier if present.
func ExamFromContext(ctx context.Context) (string, bool) {
	if s, ok := ctx.Value(examKey).(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// WithScan annotates context with the scan directory name.
func WithScan(ctx context.Context, scan string) context.Context {
	if scan == "" {
		return ctx
	}
	return context.WithValue(ctx, scanKey, scan)
}

// ScanFromContext returns the scan directory name if present.
func ScanFromContext(ctx context.Context) (string, bool) {
	if s, ok := ctx.Value(scanKey).(string); ok && s != "" {
		return s, true
	}
	return "", false
}

// WithRunID annotates context with the pipeline run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext returns the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if s, ok := ctx.Value(runIDKey).(string); ok && s != "" {
		return s, true
	}
	return "", false
}
