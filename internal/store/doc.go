// Package store defines the record log abstraction the batch engine persists
// results through. It keeps the scheduler and resume logic independent of the
// backing medium: a newline-delimited JSON file (platform/jsonl) or a
// PostgreSQL table (platform/postgres).
package store
