// Package metric provides Prometheus metrics for rafter.
//
// Metrics include:
//
//   - Leadership status and transitions
//   - Arbitration verdicts by status
//   - Link lifecycle: established, active, duplicates, handshake and dispatch failures
//
// Metrics are exposed at /metrics by the admin server.
package metric
