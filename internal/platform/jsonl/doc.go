// Package jsonl implements the append-only output log as a newline-delimited
// JSON file, plus the plain read/write helpers used for datasets.
//
// Appends from any number of goroutines or processes serialise on a lock file
// next to the log (<path>.lock). Each append writes all of its lines with a
// single write on an O_APPEND descriptor and fsyncs before the lock is
// released, so a reader never observes a partially written record.
package jsonl
