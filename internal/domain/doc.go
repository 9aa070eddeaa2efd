// Package domain contains the entities every batch component shares: dataset
// items, persisted records and their identifiers. It is independent of any
// specific storage or remote service.
package domain
