// Package task implements the asynchronous execution core: a process-local
// Supervisor that runs independent units of work concurrently, bounds
// per-category concurrency with capacity pools, supports cancellation by
// caller-chosen id, enforces per-unit and per-batch timeouts, and reports
// completion status without blocking the submitter.
package task
