package domain

// LeadershipStatus is the local node's belief about whether it leads the
// cluster. It says nothing about which other node leads.
type LeadershipStatus uint8

const (
	// StatusUnknown is the initial state, before any leader transition was observed.
	StatusUnknown LeadershipStatus = iota
	// StatusLeader means the local node is the leader.
	StatusLeader
	// StatusFollower means the local node led at some point and has since stepped
	// down, or was told by the engine that it is not leading.
	StatusFollower
)

// String returns the lowercase name of the status.
func (s LeadershipStatus) String() string {
	switch s {
	case StatusLeader:
		return "leader"
	case StatusFollower:
		return "follower"
	default:
		return "unknown"
	}
}
