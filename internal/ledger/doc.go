// Package ledger persists per-scan processing outcomes in a SQLite database
// under the log directory. It backs the status command and lets reruns report
// what earlier runs already settled.
package ledger
