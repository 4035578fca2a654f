package meshserver

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

type peerRecorder struct {
	mu  sync.Mutex
	ids []domain.PeerID
}

func (r *peerRecorder) record(id domain.PeerID) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *peerRecorder) seen(id domain.PeerID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, got := range r.ids {
		if got == id {
			return true
		}
	}
	return false
}

func newTestDiscovery(t *testing.T, peers *domain.PeerTable, local domain.PeerID, seeds []string, rec *peerRecorder) *Discovery {
	t.Helper()
	d, err := NewDiscovery(DiscoveryConfig{
		Local:    local,
		Peers:    peers,
		BindAddr: "127.0.0.1:0",
		Seeds:    seeds,
		OnPeerUp: rec.record,
		Logger:   testLogger(),
	})
	if err != nil {
		t.Fatalf("NewDiscovery(%d) error = %v", local, err)
	}
	t.Cleanup(func() { d.Shutdown() })
	return d
}

func TestNewDiscovery_Validation(t *testing.T) {
	peers := testPeers(t, 1, 2)

	tests := []struct {
		name string
		cfg  DiscoveryConfig
	}{
		{name: "local not in table", cfg: DiscoveryConfig{Local: 5, Peers: peers, BindAddr: "127.0.0.1:0"}},
		{name: "no table", cfg: DiscoveryConfig{Local: 1, BindAddr: "127.0.0.1:0"}},
		{name: "bad bind address", cfg: DiscoveryConfig{Local: 1, Peers: peers, BindAddr: "localhost"}},
		{name: "bad bind port", cfg: DiscoveryConfig{Local: 1, Peers: peers, BindAddr: "127.0.0.1:gossip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.cfg.Logger = testLogger()
			if _, err := NewDiscovery(tt.cfg); !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("NewDiscovery() error = %v, want ErrConfiguration", err)
			}
		})
	}
}

func TestDiscovery_AdvertisesPeerID(t *testing.T) {
	peers := testPeers(t, 1, 2)
	d := newTestDiscovery(t, peers, 1, nil, &peerRecorder{})

	var meta nodeMetadata
	if err := json.Unmarshal(d.LocalNode().Meta, &meta); err != nil {
		t.Fatalf("decode local metadata: %v", err)
	}
	if meta.PeerID != 1 {
		t.Errorf("advertised peer id = %d, want 1", meta.PeerID)
	}
	want, _ := peers.Addr(1)
	if meta.MeshAddr != want {
		t.Errorf("advertised mesh addr = %q, want %q", meta.MeshAddr, want)
	}
}

func TestDiscovery_JoinWakesKnownPeer(t *testing.T) {
	peers := testPeers(t, 1, 2)
	rec1, rec2 := &peerRecorder{}, &peerRecorder{}

	d1 := newTestDiscovery(t, peers, 1, nil, rec1)
	d2 := newTestDiscovery(t, peers, 2, []string{d1.Addr()}, rec2)

	eventually(t, "both members see each other", func() bool {
		return rec1.seen(2) && rec2.seen(1)
	})
	if got := len(d2.Members()); got != 2 {
		t.Errorf("members = %d, want 2", got)
	}
	if rec1.seen(1) || rec2.seen(2) {
		t.Error("local node reported as a peer")
	}
}

func TestDiscovery_IgnoresForeignMembers(t *testing.T) {
	peers := testPeers(t, 1, 2)
	rec := &peerRecorder{}
	d := newTestDiscovery(t, peers, 1, nil, rec)
	delegate := d.config.Events.(*eventDelegate)

	meta := func(id domain.PeerID) []byte {
		b, _ := json.Marshal(nodeMetadata{PeerID: id})
		return b
	}

	tests := []struct {
		name string
		node *memberlist.Node
		want bool
	}{
		{name: "known peer", node: &memberlist.Node{Name: "a", Meta: meta(2)}, want: true},
		{name: "unknown id", node: &memberlist.Node{Name: "b", Meta: meta(9)}},
		{name: "self", node: &memberlist.Node{Name: "c", Meta: meta(1)}},
		{name: "garbage metadata", node: &memberlist.Node{Name: "d", Meta: []byte("{")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec.mu.Lock()
			rec.ids = nil
			rec.mu.Unlock()

			delegate.NotifyJoin(tt.node)
			delegate.NotifyUpdate(tt.node)
			delegate.NotifyLeave(tt.node)

			rec.mu.Lock()
			got := len(rec.ids)
			rec.mu.Unlock()
			if tt.want && got != 2 {
				t.Errorf("callbacks = %d, want 2 (join and update)", got)
			}
			if !tt.want && got != 0 {
				t.Errorf("callbacks = %d, want 0", got)
			}
		})
	}
}

func TestDiscovery_ShutdownIsIdempotent(t *testing.T) {
	peers := testPeers(t, 1, 2)
	d := newTestDiscovery(t, peers, 1, nil, &peerRecorder{})

	if err := d.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := d.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}
