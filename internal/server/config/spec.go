package config

import "time"

// NodeConfig is the root configuration for rafter-node.
//
// One file describes the whole cluster; the node to run is picked by name
// on the command line. Node names must not contain dots because koanf uses
// "." as its key delimiter.
type NodeConfig struct {
	Nodes  map[string]NodeEntry `koanf:"nodes"`
	Mesh   MeshSection          `koanf:"mesh"`
	Raft   RaftSection          `koanf:"raft"`
	Gossip GossipSection        `koanf:"gossip"`
	Admin  AdminSection         `koanf:"admin"`
	Log    LogSection           `koanf:"log"`
}

// NodeEntry describes one cluster member.
type NodeEntry struct {
	// ID is the member's peer id. It must be unique and non-zero.
	ID uint64 `koanf:"id"`

	// Listen is the mesh transport address (host:port).
	Listen string `koanf:"listen"`

	// Raft is the consensus transport address (host:port).
	Raft string `koanf:"raft"`

	// Gossip is the memberlist bind address (host:port). Optional.
	Gossip string `koanf:"gossip"`
}

// MeshSection configures the peer mesh transport.
type MeshSection struct {
	// Secret authenticates the link handshake. Empty disables authentication.
	Secret string `koanf:"secret"`

	DialTimeout      time.Duration `koanf:"dial_timeout"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	AcceptWait       time.Duration `koanf:"accept_wait"`

	// AcceptRate is the number of inbound connections accepted per second.
	AcceptRate  float64 `koanf:"accept_rate"`
	AcceptBurst int     `koanf:"accept_burst"`

	BackoffMin time.Duration `koanf:"backoff_min"`
	BackoffMax time.Duration `koanf:"backoff_max"`

	// ReuseAddr sets SO_REUSEADDR and SO_REUSEPORT on mesh sockets.
	ReuseAddr bool `koanf:"reuse_addr"`

	// BindDialToListen dials peers from the listen address. Requires ReuseAddr.
	BindDialToListen bool `koanf:"bind_dial_to_listen"`

	// KeepaliveInterval is the heartbeat period on established links.
	KeepaliveInterval time.Duration `koanf:"keepalive_interval"`
}

// RaftSection configures the consensus engine.
type RaftSection struct {
	DataDir string `koanf:"data_dir"`

	// Bootstrap makes this node bootstrap the cluster with every configured
	// node as a voter. It is a no-op once raft state exists.
	Bootstrap bool `koanf:"bootstrap"`

	HeartbeatTimeout time.Duration `koanf:"heartbeat_timeout"`
	ElectionTimeout  time.Duration `koanf:"election_timeout"`
}

// GossipSection configures memberlist wake-ups.
type GossipSection struct {
	Enabled bool `koanf:"enabled"`
}

// AdminSection configures the admin HTTP endpoint.
type AdminSection struct {
	// Addr is the listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`

	// AllowList restricts /status and /metrics to these IPs or CIDR blocks.
	AllowList []string `koanf:"allow_list"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}
