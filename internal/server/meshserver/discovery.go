package meshserver

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/memberlist"

	"github.com/yndnr/rafter-go/internal/core/domain"
)

// Discovery runs LAN gossip between the mesh nodes.
//
// Membership stays static: gossip only tells the local node that a known
// peer is up again, so its link loop can retry without waiting out the
// backoff. Members that are not in the peer table are ignored.
type Discovery struct {
	config     *memberlist.Config
	memberList *memberlist.Memberlist
	peers      *domain.PeerTable
	local      domain.PeerID
	logger     *slog.Logger

	mu       sync.Mutex
	shutdown bool
	onPeerUp func(domain.PeerID)
}

// DiscoveryConfig configures gossip.
type DiscoveryConfig struct {
	// Local is this node's id, advertised in gossip metadata.
	Local domain.PeerID

	// Peers is used to drop members outside the cluster.
	Peers *domain.PeerTable

	// BindAddr is the gossip host:port. Port 0 picks a free port.
	BindAddr string

	// Seeds are gossip addresses of other nodes to join at startup.
	Seeds []string

	// OnPeerUp is called when a known peer joins or updates.
	OnPeerUp func(domain.PeerID)

	Logger *slog.Logger
}

// nodeMetadata is gossiped with every member.
type nodeMetadata struct {
	PeerID   domain.PeerID `json:"peer_id"`
	MeshAddr string        `json:"mesh_addr,omitempty"`
}

// NewDiscovery starts gossip and joins the seeds. A failed join is logged,
// not returned: seeds that are down will find us once they start.
func NewDiscovery(cfg DiscoveryConfig) (*Discovery, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Peers == nil || !cfg.Peers.Contains(cfg.Local) {
		return nil, domain.ErrConfiguration.Detailf("gossip: local id %s is not in the peer table", cfg.Local)
	}

	host, portStr, err := net.SplitHostPort(cfg.BindAddr)
	if err != nil {
		return nil, domain.ErrConfiguration.Detailf("gossip bind address %q", cfg.BindAddr).Wrap(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, domain.ErrConfiguration.Detailf("gossip bind port %q", portStr).Wrap(err)
	}

	meshAddr, _ := cfg.Peers.Addr(cfg.Local)
	meta, err := json.Marshal(nodeMetadata{PeerID: cfg.Local, MeshAddr: meshAddr})
	if err != nil {
		return nil, fmt.Errorf("encode gossip metadata: %w", err)
	}

	logger := cfg.Logger.With("component", "gossip")

	mlConfig := memberlist.DefaultLANConfig()
	mlConfig.Name = "rafter-" + cfg.Local.String()
	mlConfig.BindAddr = host
	mlConfig.BindPort = port
	mlConfig.AdvertisePort = port
	mlConfig.Delegate = &metadataDelegate{meta: meta}
	mlConfig.LogOutput = &slogWriter{logger: logger}

	d := &Discovery{
		config:   mlConfig,
		peers:    cfg.Peers,
		local:    cfg.Local,
		logger:   logger,
		onPeerUp: cfg.OnPeerUp,
	}
	mlConfig.Events = &eventDelegate{discovery: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, domain.ErrIO.WithDetails("create memberlist").Wrap(err)
	}
	d.memberList = ml

	if len(cfg.Seeds) > 0 {
		n, err := ml.Join(cfg.Seeds)
		if err != nil {
			logger.Warn("gossip join incomplete", "seeds", cfg.Seeds, "joined", n, "error", err)
		} else {
			logger.Info("joined gossip", "seeds", cfg.Seeds, "joined", n)
		}
	} else {
		logger.Info("started gossip without seeds")
	}

	return d, nil
}

// OnPeerUp replaces the peer-up callback.
func (d *Discovery) OnPeerUp(fn func(domain.PeerID)) {
	d.mu.Lock()
	d.onPeerUp = fn
	d.mu.Unlock()
}

// Members returns the current gossip members.
func (d *Discovery) Members() []*memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.Members()
}

// LocalNode returns the local gossip member.
func (d *Discovery) LocalNode() *memberlist.Node {
	if d.memberList == nil {
		return nil
	}
	return d.memberList.LocalNode()
}

// Addr returns the bound gossip address.
func (d *Discovery) Addr() string {
	n := d.LocalNode()
	if n == nil {
		return ""
	}
	return net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port)))
}

// Shutdown leaves the gossip pool and stops memberlist.
func (d *Discovery) Shutdown() error {
	d.mu.Lock()
	if d.shutdown || d.memberList == nil {
		d.mu.Unlock()
		return nil
	}
	d.shutdown = true
	d.mu.Unlock()

	if err := d.memberList.Leave(0); err != nil {
		d.logger.Warn("leave gossip failed", "error", err)
	}
	if err := d.memberList.Shutdown(); err != nil {
		return fmt.Errorf("shutdown memberlist: %w", err)
	}
	d.logger.Info("gossip stopped")
	return nil
}

// peerFromNode extracts a cluster peer id from gossip metadata.
func (d *Discovery) peerFromNode(node *memberlist.Node) (domain.PeerID, bool) {
	var meta nodeMetadata
	if err := json.Unmarshal(node.Meta, &meta); err != nil {
		d.logger.Debug("ignoring member with unreadable metadata", "member", node.Name, "error", err)
		return 0, false
	}
	if meta.PeerID == d.local || !d.peers.Contains(meta.PeerID) {
		return 0, false
	}
	return meta.PeerID, true
}

func (d *Discovery) peerUp(node *memberlist.Node, event string) {
	id, ok := d.peerFromNode(node)
	if !ok {
		return
	}
	d.logger.Debug("peer seen by gossip", "peer_id", id, "event", event, "member", node.Name)

	d.mu.Lock()
	fn := d.onPeerUp
	d.mu.Unlock()
	if fn != nil {
		fn(id)
	}
}

// eventDelegate implements memberlist.EventDelegate.
type eventDelegate struct {
	discovery *Discovery
}

func (e *eventDelegate) NotifyJoin(node *memberlist.Node) {
	e.discovery.peerUp(node, "join")
}

func (e *eventDelegate) NotifyLeave(node *memberlist.Node) {
	if id, ok := e.discovery.peerFromNode(node); ok {
		e.discovery.logger.Info("peer left gossip", "peer_id", id)
	}
}

func (e *eventDelegate) NotifyUpdate(node *memberlist.Node) {
	e.discovery.peerUp(node, "update")
}

// slogWriter feeds memberlist's log lines into slog at debug level.
type slogWriter struct {
	logger *slog.Logger
}

func (w *slogWriter) Write(p []byte) (int, error) {
	w.logger.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

// metadataDelegate serves the local node metadata.
type metadataDelegate struct {
	meta []byte
}

func (m *metadataDelegate) NodeMeta(limit int) []byte {
	if len(m.meta) > limit {
		return nil
	}
	return m.meta
}

func (m *metadataDelegate) NotifyMsg([]byte)                           {}
func (m *metadataDelegate) GetBroadcasts(overhead, limit int) [][]byte { return nil }
func (m *metadataDelegate) LocalState(join bool) []byte                { return nil }
func (m *metadataDelegate) MergeRemoteState(buf []byte, join bool)     {}
