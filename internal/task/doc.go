// Package task runs the batch: it feeds pending dataset items through the
// assemble, call and post-process callbacks and appends each resulting record
// to the output log.
//
// A Runner scans the output log for completed identifiers, then either
// processes the remaining items sequentially or dispatches them over a
// TaskQueue to a fixed WorkerPool. Each item is handled by Pipeline.Process,
// which holds the store's append lock only for the single append of its
// record. Item failures are collected rather than aborting the run, unless
// fail-fast is configured.
package task
