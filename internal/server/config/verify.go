package config

import (
	"net"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
	"github.com/yndnr/rafter-go/internal/telemetry/logger"
)

// Verify validates the configuration for the node called name.
//
// All failures are domain.ErrConfiguration; the node refuses to start on
// any of them.
func Verify(cfg *NodeConfig, name string) error {
	if err := verifyNodes(cfg.Nodes, cfg.Gossip.Enabled); err != nil {
		return err
	}
	if _, ok := cfg.Nodes[name]; !ok {
		return domain.ErrConfiguration.Detailf("node %q is not defined in nodes", name)
	}
	if err := verifyMesh(&cfg.Mesh); err != nil {
		return err
	}
	if err := verifyRaft(&cfg.Raft); err != nil {
		return err
	}
	if cfg.Admin.Addr != "" {
		if _, _, err := net.SplitHostPort(cfg.Admin.Addr); err != nil {
			return domain.ErrConfiguration.Detailf("admin.addr %q", cfg.Admin.Addr).Wrap(err)
		}
	}
	if _, err := logger.ParseLevel(cfg.Log.Level); err != nil {
		return domain.ErrConfiguration.Detailf("log.level %q", cfg.Log.Level).Wrap(err)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return domain.ErrConfiguration.Detailf("log.format %q must be json or text", cfg.Log.Format)
	}
	return nil
}

func verifyNodes(nodes map[string]NodeEntry, gossip bool) error {
	if len(nodes) == 0 {
		return domain.ErrConfiguration.WithDetails("nodes is empty")
	}

	seen := make(map[uint64]string, len(nodes))
	for name, n := range nodes {
		if n.ID == 0 {
			return domain.ErrConfiguration.Detailf("nodes.%s.id is missing or 0", name)
		}
		if other, dup := seen[n.ID]; dup {
			return domain.ErrConfiguration.Detailf("nodes %s and %s share id %d", other, name, n.ID)
		}
		seen[n.ID] = name

		if _, _, err := net.SplitHostPort(n.Listen); err != nil {
			return domain.ErrConfiguration.Detailf("nodes.%s.listen %q", name, n.Listen).Wrap(err)
		}
		if _, _, err := net.SplitHostPort(n.Raft); err != nil {
			return domain.ErrConfiguration.Detailf("nodes.%s.raft %q", name, n.Raft).Wrap(err)
		}
		if gossip {
			if _, _, err := net.SplitHostPort(n.Gossip); err != nil {
				return domain.ErrConfiguration.Detailf("nodes.%s.gossip %q", name, n.Gossip).Wrap(err)
			}
		}
	}
	return nil
}

func verifyMesh(m *MeshSection) error {
	if len(m.Secret) > meshserver.MaxSecretSize {
		return domain.ErrConfiguration.Detailf("mesh.secret is longer than %d bytes", meshserver.MaxSecretSize)
	}
	if m.BackoffMin > 0 && m.BackoffMax > 0 && m.BackoffMin > m.BackoffMax {
		return domain.ErrConfiguration.Detailf("mesh.backoff_min %s exceeds mesh.backoff_max %s", m.BackoffMin, m.BackoffMax)
	}
	if m.BindDialToListen && !m.ReuseAddr {
		return domain.ErrConfiguration.WithDetails("mesh.bind_dial_to_listen requires mesh.reuse_addr")
	}
	if m.KeepaliveInterval <= 0 {
		return domain.ErrConfiguration.Detailf("mesh.keepalive_interval must be positive, got %s", m.KeepaliveInterval)
	}
	if m.AcceptRate < 0 || m.AcceptBurst < 0 {
		return domain.ErrConfiguration.WithDetails("mesh.accept_rate and mesh.accept_burst must not be negative")
	}
	return nil
}

func verifyRaft(r *RaftSection) error {
	if r.DataDir == "" {
		return domain.ErrConfiguration.WithDetails("raft.data_dir is required")
	}
	if r.HeartbeatTimeout <= 0 || r.ElectionTimeout <= 0 {
		return domain.ErrConfiguration.WithDetails("raft timeouts must be positive")
	}
	return nil
}
