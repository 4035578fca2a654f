package config

import (
	"time"

	"github.com/yndnr/rafter-go/internal/server/meshserver"
)

// Default configuration values.
const (
	DefaultKeepaliveInterval = time.Second

	DefaultDataDir          = "/var/lib/rafter-node"
	DefaultHeartbeatTimeout = time.Second
	DefaultElectionTimeout  = time.Second

	DefaultAdminAddr = "127.0.0.1:5090"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Default returns the default node configuration. It has no nodes; those
// always come from the configuration file.
func Default() *NodeConfig {
	return &NodeConfig{
		Mesh: MeshSection{
			DialTimeout:       meshserver.DefaultDialTimeout,
			HandshakeTimeout:  meshserver.DefaultHandshakeTimeout,
			AcceptWait:        meshserver.DefaultAcceptWait,
			AcceptRate:        float64(meshserver.DefaultAcceptRate),
			AcceptBurst:       meshserver.DefaultAcceptBurst,
			BackoffMin:        meshserver.DefaultBackoffMin,
			BackoffMax:        meshserver.DefaultBackoffMax,
			KeepaliveInterval: DefaultKeepaliveInterval,
		},
		Raft: RaftSection{
			DataDir:          DefaultDataDir,
			HeartbeatTimeout: DefaultHeartbeatTimeout,
			ElectionTimeout:  DefaultElectionTimeout,
		},
		Admin: AdminSection{
			Addr: DefaultAdminAddr,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
