package meshserver

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/core/service"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

// Registry tracks the live link to each peer and resolves duplicates.
type Registry struct {
	mu      sync.Mutex
	links   map[domain.PeerID]*Link
	changed map[domain.PeerID]chan struct{}
	closed  bool

	logger  *slog.Logger
	metrics *metric.Registry
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, metrics *metric.Registry) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	return &Registry{
		links:   make(map[domain.PeerID]*Link),
		changed: make(map[domain.PeerID]chan struct{}),
		logger:  logger,
		metrics: metrics,
	}
}

// Register records l as the link to its peer.
//
// If a live link to the same peer already exists, the link whose initiator
// has the larger id is kept. When both links were opened by the same side,
// the newer one is kept: the older one belongs to a session the initiator
// has already abandoned. The losing link is closed and described by the
// returned *domain.DuplicateConnectionError. accepted reports whether l is
// now the registered link.
func (r *Registry) Register(l *Link) (accepted bool, err error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		l.Close()
		return false, domain.ErrLinkClosed.WithDetails("registry closed")
	}

	peer := l.Peer()
	existing, ok := r.links[peer]
	if ok && existing.Closed() {
		ok = false
	}
	if !ok {
		r.links[peer] = l
		r.notifyLocked(peer)
		r.metrics.LinksActive.Set(float64(len(r.links)))
		r.mu.Unlock()
		return true, nil
	}

	loser := l
	if keepsPriority(l, existing) {
		loser = existing
		r.links[peer] = l
		r.notifyLocked(peer)
	}
	r.mu.Unlock()

	loser.Close()
	r.metrics.DuplicatesResolved.Inc()

	dup := &domain.DuplicateConnectionError{
		LinkID:    loser.ID,
		Initiator: loser.Attempt.Initiator(),
		Peer:      peer,
	}
	r.logger.Warn("duplicate connection removed",
		"link_id", loser.ID,
		"initiator", dup.Initiator,
		"peer_id", peer,
		"error", dup)

	return loser != l, dup
}

// keepsPriority reports whether candidate should replace existing.
func keepsPriority(candidate, existing *Link) bool {
	ci, ei := candidate.Attempt.Initiator(), existing.Attempt.Initiator()
	if ci == ei {
		return true
	}
	return service.TieBreak(ci, ei)
}

// Unregister removes l if it is still the registered link to its peer.
func (r *Registry) Unregister(l *Link) {
	r.mu.Lock()
	defer r.mu.Unlock()

	peer := l.Peer()
	if current, ok := r.links[peer]; ok && current == l {
		delete(r.links, peer)
		r.notifyLocked(peer)
		r.metrics.LinksActive.Set(float64(len(r.links)))
	}
}

// Get returns the live link to peer, if any.
func (r *Registry) Get(peer domain.PeerID) (*Link, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.links[peer]
	if !ok || l.Closed() {
		return nil, false
	}
	return l, true
}

// Wait blocks until a live link to peer is registered or ctx is done.
func (r *Registry) Wait(ctx context.Context, peer domain.PeerID) (*Link, error) {
	for {
		r.mu.Lock()
		if l, ok := r.links[peer]; ok && !l.Closed() {
			r.mu.Unlock()
			return l, nil
		}
		ch := r.changedLocked(peer)
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ch:
		}
	}
}

// Links returns the registered links ordered by peer id.
func (r *Registry) Links() []*Link {
	r.mu.Lock()
	out := make([]*Link, 0, len(r.links))
	for _, l := range r.links {
		out = append(out, l)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Peer() < out[j].Peer() })
	return out
}

// Len returns the number of registered links.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.links)
}

// Close closes every registered link and rejects later registrations.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	links := r.links
	r.links = make(map[domain.PeerID]*Link)
	for peer := range r.changed {
		r.notifyLocked(peer)
	}
	r.mu.Unlock()

	for _, l := range links {
		l.Close()
	}
	r.metrics.LinksActive.Set(0)
}

func (r *Registry) changedLocked(peer domain.PeerID) chan struct{} {
	ch, ok := r.changed[peer]
	if !ok {
		ch = make(chan struct{})
		r.changed[peer] = ch
	}
	return ch
}

func (r *Registry) notifyLocked(peer domain.PeerID) {
	if ch, ok := r.changed[peer]; ok {
		close(ch)
		delete(r.changed, peer)
	}
}
