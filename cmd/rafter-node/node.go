package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/core/service"
	"github.com/yndnr/rafter-go/internal/infra/buildinfo"
	"github.com/yndnr/rafter-go/internal/infra/confloader"
	"github.com/yndnr/rafter-go/internal/infra/shutdown"
	"github.com/yndnr/rafter-go/internal/server/config"
	"github.com/yndnr/rafter-go/internal/server/httpserver"
	"github.com/yndnr/rafter-go/internal/server/httpserver/handler"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
	"github.com/yndnr/rafter-go/internal/telemetry/logger"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

type options struct {
	Name       string
	ConfigPath string
	Verbosity  string

	// LogOutput defaults to os.Stderr.
	LogOutput io.Writer
}

// node holds every running component of one cluster member.
type node struct {
	name  string
	local domain.PeerID
	cfg   *config.NodeConfig
	peers *domain.PeerTable

	logger   *slog.Logger
	metrics  *metric.Registry
	raft     *meshserver.RaftNode
	tracker  *service.LeadershipTracker
	arbiter  *service.Arbiter
	mesh     *meshserver.Server
	gossip   *meshserver.Discovery
	admin    *httpserver.Server
	watcher  *confloader.Watcher
	shutdown *shutdown.Handler
}

// start loads the configuration and brings up raft, the mesh and the
// optional gossip, admin and config-watch components. On failure everything
// already started is stopped again.
func start(ctx context.Context, opts options) (*node, error) {
	loader := confloader.NewLoader(confloader.WithConfigFile(opts.ConfigPath))
	if opts.Verbosity != "" {
		loader.LoadMap(map[string]any{"log.level": opts.Verbosity})
	}

	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return nil, domain.ErrConfiguration.Wrap(err)
	}
	if err := config.Verify(cfg, opts.Name); err != nil {
		return nil, err
	}

	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	base, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: out})
	if err != nil {
		return nil, domain.ErrConfiguration.Wrap(err)
	}
	log := base.With("node", opts.Name)
	log.Info("starting rafter-node", "version", buildinfo.String(), "config", opts.ConfigPath)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	n := &node{
		name:     opts.Name,
		cfg:      cfg,
		logger:   log,
		metrics:  metric.NewRegistry(),
		shutdown: shutdown.NewHandler(shutdownTimeout, log),
	}
	if err := n.build(ctx, loader); err != nil {
		if serr := n.shutdown.Shutdown(); serr != nil {
			log.Warn("cleanup after failed start", "error", serr)
		}
		return nil, err
	}
	return n, nil
}

func (n *node) build(ctx context.Context, loader *confloader.Loader) error {
	var err error
	if _, n.local, err = config.LocalNode(n.cfg, n.name); err != nil {
		return err
	}
	if n.peers, err = config.ToPeerTable(n.cfg); err != nil {
		return err
	}

	rc, err := config.ToRaftConfig(n.cfg, n.name, n.logger)
	if err != nil {
		return err
	}
	if n.raft, err = meshserver.NewRaftNode(rc); err != nil {
		return fmt.Errorf("start raft: %w", err)
	}
	n.shutdown.OnShutdown("raft", func(context.Context) error { return n.raft.Close() })

	n.tracker = service.NewLeadershipTracker(n.logger, n.metrics)
	observeCtx, stopObserving := context.WithCancel(ctx)
	go n.tracker.Observe(observeCtx, n.raft)
	go n.reportLeader(observeCtx)
	n.shutdown.OnShutdown("leadership", func(context.Context) error {
		stopObserving()
		return nil
	})

	n.arbiter = service.NewArbiter(n.tracker, n.logger, n.metrics)

	mc, err := config.ToMeshConfig(n.cfg, n.name, n.peers, n.logger)
	if err != nil {
		return err
	}
	mc.Arbiter = n.arbiter
	mc.Handler = meshserver.NewKeepaliveHandler(n.cfg.Mesh.KeepaliveInterval, n.logger)
	mc.Metrics = n.metrics
	if n.mesh, err = meshserver.New(mc); err != nil {
		return err
	}
	if err := n.mesh.Start(ctx); err != nil {
		return fmt.Errorf("start mesh: %w", err)
	}
	n.shutdown.OnShutdown("mesh", func(context.Context) error { return n.mesh.Close() })
	n.logger.Info("mesh listening", "addr", n.mesh.Addr().String(), "peer_id", n.local)

	if n.cfg.Gossip.Enabled {
		dc, err := config.ToDiscoveryConfig(n.cfg, n.name, n.peers, n.logger)
		if err != nil {
			return err
		}
		dc.OnPeerUp = n.mesh.Wake
		if n.gossip, err = meshserver.NewDiscovery(dc); err != nil {
			return fmt.Errorf("start gossip: %w", err)
		}
		n.shutdown.OnShutdown("gossip", func(context.Context) error { return n.gossip.Shutdown() })
	}

	if n.cfg.Admin.Addr != "" {
		router := httpserver.NewRouter(&httpserver.RouterConfig{
			Status:    handler.StatusFunc(n.status),
			Metrics:   n.metrics,
			Version:   buildinfo.Version,
			AllowList: n.cfg.Admin.AllowList,
			Logger:    n.logger,
		})
		n.admin = httpserver.New(n.cfg.Admin.Addr, router, n.logger)
		if err := n.admin.Start(); err != nil {
			return fmt.Errorf("start admin server: %w", err)
		}
		n.shutdown.OnShutdown("admin", n.admin.Shutdown)
		n.logger.Info("admin server listening", "addr", n.admin.Addr().String())
	}

	n.watchConfig(loader)
	return nil
}

// reportLeader logs once when the cluster has a leader.
func (n *node) reportLeader(ctx context.Context) {
	leader, err := n.raft.WaitForLeader(ctx)
	if err != nil {
		return
	}
	n.logger.Info("cluster leader elected", "leader_id", leader, "local", leader == n.local)
}

// watchConfig applies log level changes from the configuration file without
// a restart. A watcher that cannot be set up only costs hot reload.
func (n *node) watchConfig(loader *confloader.Loader) {
	path := loader.FilePath()
	if path == "" {
		return
	}
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(n.logger))
	if err != nil {
		n.logger.Warn("config hot reload disabled", "error", err)
		return
	}
	if err := w.Watch(path); err != nil {
		n.logger.Warn("config hot reload disabled", "path", path, "error", err)
		_ = w.Stop()
		return
	}
	confloader.WatchKey(w, loader, "log.level", logger.SetLevel, n.logger)
	w.StartAsync()
	n.watcher = w
	n.shutdown.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
}

// status assembles the admin view of this node.
func (n *node) status() handler.NodeStatus {
	st := handler.NodeStatus{
		Node:        n.name,
		PeerID:      n.local,
		Leadership:  n.tracker.Status().String(),
		Transitions: n.tracker.Transitions(),
		RaftState:   n.raft.State().String(),
	}
	if leader, ok := n.raft.LeaderID(); ok {
		st.RaftLeader = leader
	}

	for _, id := range n.peers.Others(n.local) {
		addr, _ := n.peers.Addr(id)
		_, connected := n.mesh.Link(id)
		st.Peers = append(st.Peers, handler.PeerStatus{
			PeerID:    id,
			Addr:      addr,
			Connected: connected,
			Initiate:  n.arbiter.Verdict(n.local, id),
		})
	}
	for _, l := range n.mesh.Links() {
		st.Links = append(st.Links, l.Info())
	}
	return st
}
