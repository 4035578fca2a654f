// Package handler implements the rafter-node admin JSON endpoints:
// GET /healthz and GET /status. Responses use the Response envelope.
package handler
