// Package connection provides the rafterctl client for the rafter-node
// admin HTTP endpoint.
package connection
