// Package meshserver maintains one transport link per peer pair.
//
// The server runs one link loop per remote peer. Each loop asks the
// connection arbiter whether the local side should dial or wait, establishes
// the link, and hands it to the protocol Handler. Inbound sockets go through
// a rate-limited accept loop. Both directions finish with a fixed-size hello
// handshake that identifies the remote PeerID (optionally authenticated with
// a BLAKE2b MAC over a shared secret).
//
// When both ends dial at the same time, the Registry keeps the link opened
// by the peer with the larger id and closes the other one; both ends reach
// the same verdict without exchanging messages.
//
// The package also carries the consensus engine wiring (RaftNode) and the
// optional gossip layer (Discovery) that wakes link loops early when a peer
// reappears.
package meshserver
