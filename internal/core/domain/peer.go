package domain

import (
	"net"
	"sort"
	"strconv"
)

// PeerID identifies a cluster member. IDs are assigned by configuration and
// are totally ordered; 0 is reserved as "no peer".
type PeerID uint64

// String returns the decimal form of the id.
func (id PeerID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParsePeerID parses a decimal peer id.
func ParsePeerID(s string) (PeerID, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, ErrConfiguration.Detailf("peer id %q", s).Wrap(err)
	}
	if v == 0 {
		return 0, ErrConfiguration.WithDetails("peer id 0 is reserved")
	}
	return PeerID(v), nil
}

// PeerTable maps peer ids to their transport addresses.
//
// A PeerTable is immutable once built and may be shared freely between
// goroutines without synchronization.
type PeerTable struct {
	addrs map[PeerID]string
	ids   []PeerID
}

// NewPeerTable validates and copies addrs into a new PeerTable.
func NewPeerTable(addrs map[PeerID]string) (*PeerTable, error) {
	if len(addrs) == 0 {
		return nil, ErrConfiguration.WithDetails("peer table is empty")
	}

	t := &PeerTable{
		addrs: make(map[PeerID]string, len(addrs)),
		ids:   make([]PeerID, 0, len(addrs)),
	}
	for id, addr := range addrs {
		if id == 0 {
			return nil, ErrConfiguration.WithDetails("peer id 0 is reserved")
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return nil, ErrConfiguration.Detailf("peer %s address %q", id, addr).Wrap(err)
		}
		t.addrs[id] = addr
		t.ids = append(t.ids, id)
	}
	sort.Slice(t.ids, func(i, j int) bool { return t.ids[i] < t.ids[j] })

	return t, nil
}

// Addr returns the address of a peer.
func (t *PeerTable) Addr(id PeerID) (string, bool) {
	addr, ok := t.addrs[id]
	return addr, ok
}

// Contains reports whether id is a member of the table.
func (t *PeerTable) Contains(id PeerID) bool {
	_, ok := t.addrs[id]
	return ok
}

// IDs returns all peer ids in ascending order.
func (t *PeerTable) IDs() []PeerID {
	out := make([]PeerID, len(t.ids))
	copy(out, t.ids)
	return out
}

// Others returns every peer id except self, in ascending order.
func (t *PeerTable) Others(self PeerID) []PeerID {
	out := make([]PeerID, 0, len(t.ids))
	for _, id := range t.ids {
		if id != self {
			out = append(out, id)
		}
	}
	return out
}

// Len returns the number of peers.
func (t *PeerTable) Len() int {
	return len(t.ids)
}

// Attempt describes one connection attempt between two peers.
type Attempt struct {
	Local  PeerID
	Remote PeerID
	// Initiating is true when the local side opened the connection.
	Initiating bool
}

// Initiator returns the id of the peer that opened the connection.
func (a Attempt) Initiator() PeerID {
	if a.Initiating {
		return a.Local
	}
	return a.Remote
}

// Direction returns "outbound" or "inbound" for logging.
func (a Attempt) Direction() string {
	if a.Initiating {
		return "outbound"
	}
	return "inbound"
}
