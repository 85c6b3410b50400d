// Package notifications delivers pipeline events to an ntfy topic when one is
// configured. Exam lifecycle, scan failures, and errors are individually
// toggleable; with no topic configured every call is a no-op.
package notifications
