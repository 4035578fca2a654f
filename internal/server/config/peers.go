package config

import (
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/time/rate"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
)

// LocalNode returns the entry and peer id of the node called name.
func LocalNode(cfg *NodeConfig, name string) (NodeEntry, domain.PeerID, error) {
	n, ok := cfg.Nodes[name]
	if !ok {
		return NodeEntry{}, 0, domain.ErrConfiguration.Detailf("node %q is not defined in nodes", name)
	}
	if n.ID == 0 {
		return NodeEntry{}, 0, domain.ErrConfiguration.Detailf("nodes.%s.id is missing or 0", name)
	}
	return n, domain.PeerID(n.ID), nil
}

// ToPeerTable builds the mesh peer table from the listen addresses of all
// configured nodes.
func ToPeerTable(cfg *NodeConfig) (*domain.PeerTable, error) {
	addrs := make(map[domain.PeerID]string, len(cfg.Nodes))
	for name, n := range cfg.Nodes {
		id := domain.PeerID(n.ID)
		if _, dup := addrs[id]; dup {
			return nil, domain.ErrConfiguration.Detailf("node %s reuses id %d", name, n.ID)
		}
		addrs[id] = n.Listen
	}
	return domain.NewPeerTable(addrs)
}

// ToMeshConfig converts the mesh section into a meshserver.Config for the
// node called name. Arbiter, Handler and Metrics are left for the caller.
func ToMeshConfig(cfg *NodeConfig, name string, peers *domain.PeerTable, logger *slog.Logger) (meshserver.Config, error) {
	_, local, err := LocalNode(cfg, name)
	if err != nil {
		return meshserver.Config{}, err
	}

	m := cfg.Mesh
	mc := meshserver.Config{
		Local:            local,
		Peers:            peers,
		BindDialToListen: m.BindDialToListen,
		DialTimeout:      m.DialTimeout,
		HandshakeTimeout: m.HandshakeTimeout,
		AcceptWait:       m.AcceptWait,
		AcceptRate:       rate.Limit(m.AcceptRate),
		AcceptBurst:      m.AcceptBurst,
		BackoffMin:       m.BackoffMin,
		BackoffMax:       m.BackoffMax,
		Logger:           logger,
	}
	if m.Secret != "" {
		mc.Secret = []byte(m.Secret)
	}
	if m.ReuseAddr {
		mc.ListenerHook = meshserver.ReuseAddrHook
	}
	return mc, nil
}

// ToRaftConfig converts the raft section into a meshserver.RaftConfig with
// every configured node as a voter. Each node keeps its state in its own
// directory under raft.data_dir so one file can describe a whole cluster.
func ToRaftConfig(cfg *NodeConfig, name string, logger *slog.Logger) (meshserver.RaftConfig, error) {
	_, local, err := LocalNode(cfg, name)
	if err != nil {
		return meshserver.RaftConfig{}, err
	}

	voters := make(map[domain.PeerID]string, len(cfg.Nodes))
	for _, n := range cfg.Nodes {
		voters[domain.PeerID(n.ID)] = n.Raft
	}

	return meshserver.RaftConfig{
		Local:            local,
		Voters:           voters,
		DataDir:          filepath.Join(cfg.Raft.DataDir, name),
		Bootstrap:        cfg.Raft.Bootstrap,
		HeartbeatTimeout: cfg.Raft.HeartbeatTimeout,
		ElectionTimeout:  cfg.Raft.ElectionTimeout,
		Logger:           logger,
	}, nil
}

// ToDiscoveryConfig converts the gossip settings into a
// meshserver.DiscoveryConfig. The gossip addresses of the other nodes are
// the join seeds.
func ToDiscoveryConfig(cfg *NodeConfig, name string, peers *domain.PeerTable, logger *slog.Logger) (meshserver.DiscoveryConfig, error) {
	self, local, err := LocalNode(cfg, name)
	if err != nil {
		return meshserver.DiscoveryConfig{}, err
	}

	var seeds []string
	for other, n := range cfg.Nodes {
		if other != name && n.Gossip != "" {
			seeds = append(seeds, n.Gossip)
		}
	}
	sort.Strings(seeds)

	return meshserver.DiscoveryConfig{
		Local:    local,
		Peers:    peers,
		BindAddr: self.Gossip,
		Seeds:    seeds,
		Logger:   logger,
	}, nil
}
