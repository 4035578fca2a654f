// Package service provides the connection-direction services for rafter.
//
// This package contains:
//
//   - LeadershipTracker: the local node's leadership belief, fed by the
//     consensus engine's role transitions
//   - Arbiter: decides, per connection attempt, whether the local side dials
//     or waits to accept
//
// Both are safe for concurrent use. The Arbiter never performs I/O and never
// holds a lock beyond a single status read.
package service
