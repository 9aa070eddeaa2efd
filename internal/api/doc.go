// Package api serves the read-only status endpoints of a running batch:
// liveness, run progress and Prometheus metrics.
package api
