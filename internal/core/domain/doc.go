// Package domain defines the core domain models for rafter.
//
// The types here carry no behaviour beyond validation and are shared by the
// arbitration services and the mesh transport:
//
//   - PeerID / PeerTable: static cluster identity, built once at startup
//   - LeadershipStatus: the local node's belief about leading the cluster
//   - Attempt: a single connection attempt between two peers
//   - DomainError: structured errors with stable codes
package domain
