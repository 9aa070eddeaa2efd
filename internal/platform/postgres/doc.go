// Package postgres provides a PostgreSQL implementation of store.RecordStore.
// Records of every output location share one table; each location is a
// logical log ordered by insertion sequence. Appends to the same location
// serialise on a transaction-scoped advisory lock.
package postgres
