// Package httpserver provides the rafter-node admin HTTP endpoint.
//
// It serves GET /healthz, GET /status and the Prometheus GET /metrics on a
// separate address from the peer mesh, using the standard library net/http
// with a small middleware chain (request id, panic recovery, access log and
// an optional network allowlist).
package httpserver
