package meshserver

import (
	"crypto/rand"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

// Link is an established, handshaken connection to one peer.
type Link struct {
	// ID is unique per link and sortable by creation time.
	ID string

	// Attempt records which side opened the link.
	Attempt domain.Attempt

	// Established is when the handshake completed.
	Established time.Time

	conn      net.Conn
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

func newLinkID(now time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// NewLink wraps a handshaken connection.
func NewLink(conn net.Conn, attempt domain.Attempt) *Link {
	now := time.Now()
	return &Link{
		ID:          newLinkID(now),
		Attempt:     attempt,
		Established: now,
		conn:        conn,
		done:        make(chan struct{}),
	}
}

// Peer returns the remote end of the link.
func (l *Link) Peer() domain.PeerID {
	return l.Attempt.Remote
}

// Conn returns the underlying connection.
func (l *Link) Conn() net.Conn {
	return l.conn
}

// Done is closed once the link has been closed.
func (l *Link) Done() <-chan struct{} {
	return l.done
}

// Closed reports whether Close has been called.
func (l *Link) Closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Close closes the connection. It is safe to call more than once.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = l.conn.Close()
		close(l.done)
	})
	return l.closeErr
}

// LinkInfo is a point-in-time description of a link.
type LinkInfo struct {
	ID          string        `json:"id"`
	Peer        domain.PeerID `json:"peer_id"`
	Initiator   domain.PeerID `json:"initiator"`
	Direction   string        `json:"direction"`
	RemoteAddr  string        `json:"remote_addr"`
	Established time.Time     `json:"established"`
}

// Info returns a snapshot of the link for status reporting.
func (l *Link) Info() LinkInfo {
	info := LinkInfo{
		ID:          l.ID,
		Peer:        l.Peer(),
		Initiator:   l.Attempt.Initiator(),
		Direction:   l.Attempt.Direction(),
		Established: l.Established,
	}
	if addr := l.conn.RemoteAddr(); addr != nil {
		info.RemoteAddr = addr.String()
	}
	return info
}
