package meshserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

// Decider chooses the connection direction for a peer pair.
type Decider interface {
	Decide(local, remote domain.PeerID) bool
}

// Handler takes ownership of established links.
//
// HandleLink may block for the lifetime of the link. A returned error means
// the link was refused; the server closes and unregisters it.
type Handler interface {
	HandleLink(ctx context.Context, l *Link) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, l *Link) error

// HandleLink calls f(ctx, l).
func (f HandlerFunc) HandleLink(ctx context.Context, l *Link) error {
	return f(ctx, l)
}

// Config configures a mesh server.
type Config struct {
	// Local is this node's id. It must be present in Peers.
	Local domain.PeerID

	// Peers is the static cluster membership.
	Peers *domain.PeerTable

	// Arbiter decides whether the local side dials a given peer.
	Arbiter Decider

	// Handler receives every established link.
	Handler Handler

	// ListenAddr overrides the listen address from Peers.
	ListenAddr string

	// ListenerHook runs on the listening socket before bind.
	ListenerHook ListenerHook

	// BindDialToListen makes outgoing dials use the listen address as their
	// source address. ListenerHook also runs on the dialing socket, so it
	// usually needs to enable address reuse (see ReuseAddrHook).
	BindDialToListen bool

	DialTimeout      time.Duration
	HandshakeTimeout time.Duration

	// AcceptWait bounds how long a link loop waits for an inbound link
	// before asking the arbiter again.
	AcceptWait time.Duration

	// Secret, when set, authenticates the handshake. Every node must use
	// the same secret.
	Secret []byte

	// AcceptRate and AcceptBurst limit inbound connection attempts.
	AcceptRate  rate.Limit
	AcceptBurst int

	// BackoffMin and BackoffMax bound the retry delay after a failed attempt.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// OnDuplicate is called after a duplicate link was removed.
	OnDuplicate func(*domain.DuplicateConnectionError)

	Logger  *slog.Logger
	Metrics *metric.Registry
}

// Defaults for zero-valued Config fields.
const (
	DefaultDialTimeout      = 3 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultAcceptWait       = 2 * time.Second
	DefaultAcceptRate       = rate.Limit(100)
	DefaultAcceptBurst      = 20
	DefaultBackoffMin       = 100 * time.Millisecond
	DefaultBackoffMax       = 10 * time.Second
)

func (c *Config) setDefaults() {
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.AcceptWait <= 0 {
		c.AcceptWait = DefaultAcceptWait
	}
	if c.AcceptRate <= 0 {
		c.AcceptRate = DefaultAcceptRate
	}
	if c.AcceptBurst <= 0 {
		c.AcceptBurst = DefaultAcceptBurst
	}
	if c.BackoffMin <= 0 {
		c.BackoffMin = DefaultBackoffMin
	}
	if c.BackoffMax < c.BackoffMin {
		c.BackoffMax = DefaultBackoffMax
		if c.BackoffMax < c.BackoffMin {
			c.BackoffMax = c.BackoffMin
		}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Metrics == nil {
		c.Metrics = metric.NewRegistry()
	}
}

func (c *Config) validate() error {
	if c.Peers == nil {
		return domain.ErrConfiguration.WithDetails("peer table is required")
	}
	if !c.Peers.Contains(c.Local) {
		return domain.ErrConfiguration.Detailf("local id %s is not in the peer table", c.Local)
	}
	if c.Arbiter == nil {
		return domain.ErrConfiguration.WithDetails("arbiter is required")
	}
	if c.Handler == nil {
		return domain.ErrConfiguration.WithDetails("link handler is required")
	}
	if len(c.Secret) > MaxSecretSize {
		return domain.ErrConfiguration.Detailf("secret is %d bytes, at most %d allowed", len(c.Secret), MaxSecretSize)
	}
	return nil
}

// Server owns the listener and one link loop per remote peer.
type Server struct {
	cfg      Config
	hs       *handshaker
	registry *Registry
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *metric.Registry

	// wake has a 1-slot channel per remote peer; a send skips the backoff.
	wake map[domain.PeerID]chan struct{}

	mu        sync.Mutex
	started   bool
	listener  net.Listener
	cancel    context.CancelFunc
	group     *errgroup.Group
	ctx       context.Context
	closeOnce sync.Once

	// conns tracks handshake and dispatch goroutines.
	conns sync.WaitGroup
}

// New validates cfg and creates a server. Configuration errors match
// domain.ErrConfiguration.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.setDefaults()

	if cfg.ListenAddr == "" {
		cfg.ListenAddr, _ = cfg.Peers.Addr(cfg.Local)
	}

	logger := cfg.Logger.With("local_id", cfg.Local)

	wake := make(map[domain.PeerID]chan struct{})
	for _, id := range cfg.Peers.Others(cfg.Local) {
		wake[id] = make(chan struct{}, 1)
	}

	return &Server{
		cfg: cfg,
		hs: &handshaker{
			local:   cfg.Local,
			peers:   cfg.Peers,
			secret:  cfg.Secret,
			timeout: cfg.HandshakeTimeout,
		},
		registry: NewRegistry(logger, cfg.Metrics),
		limiter:  rate.NewLimiter(cfg.AcceptRate, cfg.AcceptBurst),
		logger:   logger,
		metrics:  cfg.Metrics,
		wake:     wake,
	}, nil
}

// Start binds the listener and starts the accept loop and link loops.
//
// The listener hook runs before bind; if it fails, Start returns the error
// and no listener exists. Start does not block; use Wait or Close.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("mesh server already started")
	}

	lc := net.ListenConfig{}
	if s.cfg.ListenerHook != nil {
		lc.Control = s.cfg.ListenerHook
	}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return domain.ErrIO.Detailf("listen on %s", s.cfg.ListenAddr).Wrap(err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	s.started = true
	s.listener = ln
	s.cancel = cancel
	s.group = g
	s.ctx = gctx

	s.logger.Info("mesh server listening",
		"addr", ln.Addr().String(),
		"peers", s.cfg.Peers.Len())

	g.Go(func() error {
		<-gctx.Done()
		s.closeListener()
		return nil
	})
	g.Go(func() error {
		return s.acceptLoop(gctx, ln)
	})
	for _, peer := range s.cfg.Peers.Others(s.cfg.Local) {
		g.Go(func() error {
			s.linkLoop(gctx, peer)
			return nil
		})
	}

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Links returns the currently registered links ordered by peer id.
func (s *Server) Links() []*Link {
	return s.registry.Links()
}

// Link returns the live link to peer, if any.
func (s *Server) Link(peer domain.PeerID) (*Link, bool) {
	return s.registry.Get(peer)
}

// WaitForLink blocks until a live link to peer exists or ctx is done.
func (s *Server) WaitForLink(ctx context.Context, peer domain.PeerID) (*Link, error) {
	return s.registry.Wait(ctx, peer)
}

// Wake interrupts the backoff of peer's link loop so it retries now.
func (s *Server) Wake(peer domain.PeerID) {
	ch, ok := s.wake[peer]
	if !ok {
		return
	}
	select {
	case ch <- struct{}{}:
	default:
	}
}

// Wait blocks until the server stops.
func (s *Server) Wait() error {
	s.mu.Lock()
	g := s.group
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	err := g.Wait()
	s.conns.Wait()
	return err
}

// Close stops all loops, closes the listener and every link, and waits for
// the server's goroutines to exit.
func (s *Server) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeListener()
	s.registry.Close()

	err := s.Wait()
	s.logger.Info("mesh server stopped")
	return err
}

func (s *Server) closeListener() {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()
	if ln == nil {
		return
	}
	s.closeOnce.Do(func() {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			s.logger.Warn("close listener failed", "error", err)
		}
	})
}

// linkLoop keeps one link to peer alive until ctx is done.
//
// A link that dies sooner than BackoffMax after it was established counts
// as a failed attempt, so a peer that keeps refusing links is not hammered.
func (s *Server) linkLoop(ctx context.Context, peer domain.PeerID) {
	b := &backoff.Backoff{
		Min:    s.cfg.BackoffMin,
		Max:    s.cfg.BackoffMax,
		Factor: 2,
		Jitter: true,
	}

	for ctx.Err() == nil {
		l, ok := s.registry.Get(peer)
		if !ok {
			if !s.cfg.Arbiter.Decide(s.cfg.Local, peer) {
				s.awaitPeer(ctx, peer)
				continue
			}

			var err error
			l, err = s.dialPeer(ctx, peer)
			if err != nil {
				if ctx.Err() != nil || !s.pause(ctx, peer, b, err) {
					return
				}
				continue
			}
			if l.Closed() {
				// Lost duplicate resolution; the winner is registered.
				continue
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-l.Done():
		}

		if time.Since(l.Established) >= s.cfg.BackoffMax {
			b.Reset()
			continue
		}
		if !s.pause(ctx, peer, b, domain.ErrLinkClosed.Detailf("link %s lived %s", l.ID, time.Since(l.Established).Round(time.Millisecond))) {
			return
		}
	}
}

// pause sleeps for the next backoff delay. A wake-up for peer cuts the
// sleep short and resets the backoff. It returns false if ctx is done.
func (s *Server) pause(ctx context.Context, peer domain.PeerID, b *backoff.Backoff, cause error) bool {
	attempt := int(b.Attempt()) + 1
	delay := b.Duration()
	s.logger.Debug("link attempt failed, backing off",
		"peer_id", peer,
		"attempt", attempt,
		"delay", delay,
		"error", cause)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-s.wake[peer]:
		b.Reset()
	case <-timer.C:
	}
	return true
}

// awaitPeer waits up to AcceptWait for peer to connect to us.
func (s *Server) awaitPeer(ctx context.Context, peer domain.PeerID) {
	wctx, cancel := context.WithTimeout(ctx, s.cfg.AcceptWait)
	defer cancel()

	if _, err := s.registry.Wait(wctx, peer); err != nil && ctx.Err() == nil {
		s.logger.Debug("no inbound link yet, re-arbitrating", "peer_id", peer)
	}
}

// dialPeer connects to peer and registers the link. The returned link is
// already closed if it lost duplicate resolution.
func (s *Server) dialPeer(ctx context.Context, peer domain.PeerID) (*Link, error) {
	addr, _ := s.cfg.Peers.Addr(peer)

	dialer := net.Dialer{Timeout: s.cfg.DialTimeout}
	if s.cfg.BindDialToListen {
		if la, ok := s.Addr().(*net.TCPAddr); ok {
			dialer.LocalAddr = la
		}
		if s.cfg.ListenerHook != nil {
			dialer.Control = s.cfg.ListenerHook
		}
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		s.metrics.DialFailures.Inc()
		return nil, domain.ErrIO.Detailf("dial peer %s at %s", peer, addr).Wrap(err)
	}

	if err := s.hs.client(conn, peer); err != nil {
		conn.Close()
		s.metrics.RecordHandshakeFailure("client")
		s.logger.Warn("handshake failed", "peer_id", peer, "addr", addr, "error", err)
		return nil, err
	}

	l := NewLink(conn, domain.Attempt{Local: s.cfg.Local, Remote: peer, Initiating: true})
	s.establish(l)
	return l, nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.acceptConn(conn)
		}()
	}
}

func (s *Server) acceptConn(conn net.Conn) {
	peer, err := s.hs.server(conn)
	if err != nil {
		conn.Close()
		s.metrics.RecordHandshakeFailure("server")
		s.logger.Warn("handshake failed", "remote_addr", conn.RemoteAddr().String(), "error", err)
		return
	}

	s.establish(NewLink(conn, domain.Attempt{Local: s.cfg.Local, Remote: peer, Initiating: false}))
}

// establish registers l and dispatches it to the handler if it survives
// duplicate resolution.
func (s *Server) establish(l *Link) {
	accepted, err := s.registry.Register(l)
	var dup *domain.DuplicateConnectionError
	if errors.As(err, &dup) && s.cfg.OnDuplicate != nil {
		s.cfg.OnDuplicate(dup)
	}
	if !accepted {
		return
	}

	s.metrics.RecordLinkEstablished(l.Attempt.Direction())
	s.logger.Info("link established",
		"link_id", l.ID,
		"peer_id", l.Peer(),
		"direction", l.Attempt.Direction())

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.conns.Add(1)
	go func() {
		defer s.conns.Done()
		s.dispatch(ctx, l)
	}()
}

func (s *Server) dispatch(ctx context.Context, l *Link) {
	if err := s.cfg.Handler.HandleLink(ctx, l); err != nil {
		derr := domain.ErrDispatch.Detailf("link %s to peer %s", l.ID, l.Peer()).Wrap(err)
		s.metrics.DispatchFailures.Inc()
		s.logger.Error("link dispatch failed", "link_id", l.ID, "peer_id", l.Peer(), "error", derr)
		l.Close()
	}

	select {
	case <-l.Done():
	case <-ctx.Done():
		l.Close()
	}
	s.registry.Unregister(l)
	s.logger.Info("link closed", "link_id", l.ID, "peer_id", l.Peer())
}
