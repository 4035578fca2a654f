// Command rafter-node runs one member of a rafter cluster.
//
// It starts the raft engine, tracks its leadership, and keeps exactly one
// mesh link to every other configured member, with the link direction
// chosen by leadership and peer id. The node to run is named on the command
// line and looked up in the shared cluster configuration file:
//
//	rafter-node -c cluster.yaml alpha
package main
