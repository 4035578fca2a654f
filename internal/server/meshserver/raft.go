package meshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/telemetry/logger"
)

// RaftConfig configures the consensus engine of a node.
type RaftConfig struct {
	// Local is this node's id; it doubles as the raft server id.
	Local domain.PeerID

	// Voters maps every cluster member to its raft address.
	Voters map[domain.PeerID]string

	// DataDir holds the bolt log/stable stores and snapshots.
	DataDir string

	// Bootstrap seeds the cluster configuration with every voter. It is a
	// no-op when the data directory already holds raft state.
	Bootstrap bool

	HeartbeatTimeout time.Duration
	ElectionTimeout  time.Duration

	Logger *slog.Logger
}

// RaftNode runs hashicorp/raft over a null state machine; it exists to give
// the mesh a leader.
type RaftNode struct {
	raft      *raft.Raft
	transport *raft.NetworkTransport
	logger    *slog.Logger

	logStore    *raftboltdb.BoltStore
	stableStore *raftboltdb.BoltStore
}

// NewRaftNode opens the stores, starts raft and bootstraps if asked to.
func NewRaftNode(cfg RaftConfig) (*RaftNode, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.DataDir == "" {
		return nil, domain.ErrConfiguration.WithDetails("raft data_dir is required")
	}
	bindAddr, ok := cfg.Voters[cfg.Local]
	if !ok {
		return nil, domain.ErrConfiguration.Detailf("raft address for local id %s is missing", cfg.Local)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, domain.ErrIO.WithDetails("create raft data dir").Wrap(err)
	}

	conf := raft.DefaultConfig()
	conf.LocalID = raft.ServerID(cfg.Local.String())
	conf.Logger = newHCLogger(cfg.Logger.With("component", "raft"))
	if cfg.HeartbeatTimeout > 0 {
		conf.HeartbeatTimeout = cfg.HeartbeatTimeout
		conf.LeaderLeaseTimeout = cfg.HeartbeatTimeout
	}
	if cfg.ElectionTimeout > 0 {
		conf.ElectionTimeout = cfg.ElectionTimeout
	}

	advertise, err := net.ResolveTCPAddr("tcp", bindAddr)
	if err != nil {
		return nil, domain.ErrConfiguration.Detailf("raft address %q", bindAddr).Wrap(err)
	}
	transport, err := raft.NewTCPTransportWithLogger(bindAddr, advertise, 3, 10*time.Second, conf.Logger)
	if err != nil {
		return nil, domain.ErrConsensus.WithDetails("create transport").Wrap(err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		transport.Close()
		return nil, domain.ErrIO.WithDetails("open raft log store").Wrap(err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		logStore.Close()
		transport.Close()
		return nil, domain.ErrIO.WithDetails("open raft stable store").Wrap(err)
	}
	snapshots, err := raft.NewFileSnapshotStoreWithLogger(cfg.DataDir, 2, conf.Logger)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, domain.ErrIO.WithDetails("open raft snapshot store").Wrap(err)
	}

	r, err := raft.NewRaft(conf, nullFSM{}, logStore, stableStore, snapshots, transport)
	if err != nil {
		stableStore.Close()
		logStore.Close()
		transport.Close()
		return nil, domain.ErrConsensus.WithDetails("start raft").Wrap(err)
	}

	node := &RaftNode{
		raft:        r,
		transport:   transport,
		logger:      cfg.Logger,
		logStore:    logStore,
		stableStore: stableStore,
	}

	if cfg.Bootstrap {
		if err := node.bootstrap(cfg.Voters); err != nil {
			node.Close()
			return nil, err
		}
	}

	cfg.Logger.Info("raft node started",
		"local_id", cfg.Local,
		"raft_addr", bindAddr,
		"bootstrap", cfg.Bootstrap)

	return node, nil
}

func (n *RaftNode) bootstrap(voters map[domain.PeerID]string) error {
	ids := make([]domain.PeerID, 0, len(voters))
	for id := range voters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	servers := make([]raft.Server, 0, len(ids))
	for _, id := range ids {
		servers = append(servers, raft.Server{
			Suffrage: raft.Voter,
			ID:       raft.ServerID(id.String()),
			Address:  raft.ServerAddress(voters[id]),
		})
	}

	err := n.raft.BootstrapCluster(raft.Configuration{Servers: servers}).Error()
	switch {
	case err == nil:
		n.logger.Info("raft cluster bootstrapped", "voters", len(servers))
	case errors.Is(err, raft.ErrCantBootstrap):
		n.logger.Info("raft state exists, skipping bootstrap")
	default:
		return domain.ErrConsensus.WithDetails("bootstrap cluster").Wrap(err)
	}
	return nil
}

// State returns the current raft role.
func (n *RaftNode) State() raft.RaftState {
	return n.raft.State()
}

// LeaderID returns the id of the current leader, if one is known.
func (n *RaftNode) LeaderID() (domain.PeerID, bool) {
	_, id := n.raft.LeaderWithID()
	if id == "" {
		return 0, false
	}
	peer, err := domain.ParsePeerID(string(id))
	if err != nil {
		return 0, false
	}
	return peer, true
}

// RegisterObserver forwards to raft.
func (n *RaftNode) RegisterObserver(o *raft.Observer) {
	n.raft.RegisterObserver(o)
}

// DeregisterObserver forwards to raft.
func (n *RaftNode) DeregisterObserver(o *raft.Observer) {
	n.raft.DeregisterObserver(o)
}

// Stats returns raft's diagnostic counters.
func (n *RaftNode) Stats() map[string]string {
	return n.raft.Stats()
}

// WaitForLeader blocks until some node is leader or ctx is done.
func (n *RaftNode) WaitForLeader(ctx context.Context) (domain.PeerID, error) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if id, ok := n.LeaderID(); ok {
			return id, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close shuts raft down and releases the stores.
func (n *RaftNode) Close() error {
	var errs []error
	if err := n.raft.Shutdown().Error(); err != nil {
		errs = append(errs, fmt.Errorf("raft shutdown: %w", err))
	}
	if err := n.transport.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transport: %w", err))
	}
	if err := n.stableStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stable store: %w", err))
	}
	if err := n.logStore.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close log store: %w", err))
	}
	n.logger.Info("raft node stopped")
	return errors.Join(errs...)
}

// nullFSM discards every applied entry; the mesh only needs elections.
type nullFSM struct{}

func (nullFSM) Apply(*raft.Log) interface{}         { return nil }
func (nullFSM) Snapshot() (raft.FSMSnapshot, error) { return nullSnapshot{}, nil }
func (nullFSM) Restore(rc io.ReadCloser) error      { return rc.Close() }

type nullSnapshot struct{}

func (nullSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (nullSnapshot) Release()                             {}

// hcLogger adapts *slog.Logger to hclog.Logger for raft.
type hcLogger struct {
	logger *slog.Logger
	name   string
	args   []any
}

func newHCLogger(l *slog.Logger) *hcLogger {
	return &hcLogger{logger: l}
}

func toSlogLevel(level hclog.Level) slog.Level {
	switch level {
	case hclog.Trace:
		return logger.LevelTrace
	case hclog.Debug:
		return slog.LevelDebug
	case hclog.Warn:
		return slog.LevelWarn
	case hclog.Error:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *hcLogger) Log(level hclog.Level, msg string, args ...any) {
	if level == hclog.Off {
		return
	}
	l.logger.Log(context.Background(), toSlogLevel(level), msg, args...)
}

func (l *hcLogger) Trace(msg string, args ...any) { l.Log(hclog.Trace, msg, args...) }
func (l *hcLogger) Debug(msg string, args ...any) { l.Log(hclog.Debug, msg, args...) }
func (l *hcLogger) Info(msg string, args ...any)  { l.Log(hclog.Info, msg, args...) }
func (l *hcLogger) Warn(msg string, args ...any)  { l.Log(hclog.Warn, msg, args...) }
func (l *hcLogger) Error(msg string, args ...any) { l.Log(hclog.Error, msg, args...) }

func (l *hcLogger) enabled(level hclog.Level) bool {
	return l.logger.Enabled(context.Background(), toSlogLevel(level))
}

func (l *hcLogger) IsTrace() bool { return l.enabled(hclog.Trace) }
func (l *hcLogger) IsDebug() bool { return l.enabled(hclog.Debug) }
func (l *hcLogger) IsInfo() bool  { return l.enabled(hclog.Info) }
func (l *hcLogger) IsWarn() bool  { return l.enabled(hclog.Warn) }
func (l *hcLogger) IsError() bool { return l.enabled(hclog.Error) }

func (l *hcLogger) ImpliedArgs() []any { return l.args }

func (l *hcLogger) With(args ...any) hclog.Logger {
	return &hcLogger{
		logger: l.logger.With(args...),
		name:   l.name,
		args:   append(append([]any{}, l.args...), args...),
	}
}

func (l *hcLogger) Name() string { return l.name }

func (l *hcLogger) Named(name string) hclog.Logger {
	if l.name != "" {
		name = l.name + "." + name
	}
	return l.ResetNamed(name)
}

func (l *hcLogger) ResetNamed(name string) hclog.Logger {
	return &hcLogger{
		logger: l.logger.With("subsystem", name),
		name:   name,
		args:   l.args,
	}
}

// SetLevel is a no-op; the level follows the process-wide slog level.
func (l *hcLogger) SetLevel(hclog.Level) {}

func (l *hcLogger) GetLevel() hclog.Level {
	switch {
	case l.IsTrace():
		return hclog.Trace
	case l.IsDebug():
		return hclog.Debug
	case l.IsInfo():
		return hclog.Info
	case l.IsWarn():
		return hclog.Warn
	default:
		return hclog.Error
	}
}

func (l *hcLogger) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(l.StandardWriter(opts), "", 0)
}

func (l *hcLogger) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return &slogWriter{logger: l.logger}
}
