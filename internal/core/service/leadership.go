package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/raft"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

// ObserverRegistrar is the part of *raft.Raft the tracker needs to follow
// role transitions.
type ObserverRegistrar interface {
	RegisterObserver(or *raft.Observer)
	DeregisterObserver(or *raft.Observer)
	State() raft.RaftState
}

// LeadershipTracker holds the local node's belief about whether it leads the
// cluster.
//
// The status starts as StatusUnknown and only moves across the leader
// boundary: Unknown→Leader, Unknown→Follower (after stepping down) and
// Leader↔Follower. It never returns to Unknown.
type LeadershipTracker struct {
	mu          sync.RWMutex
	status      domain.LeadershipStatus
	transitions uint64

	logger  *slog.Logger
	metrics *metric.Registry
}

// NewLeadershipTracker creates a tracker in StatusUnknown.
func NewLeadershipTracker(logger *slog.Logger, metrics *metric.Registry) *LeadershipTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	return &LeadershipTracker{
		status:  domain.StatusUnknown,
		logger:  logger,
		metrics: metrics,
	}
}

// Status returns the latest leadership snapshot.
func (t *LeadershipTracker) Status() domain.LeadershipStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Transitions returns how many leader-boundary transitions were applied.
func (t *LeadershipTracker) Transitions() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.transitions
}

// OnStateChange records a consensus role transition.
//
// Only transitions that enter or leave the leader role change the status;
// moves between non-leader roles (follower, candidate) are ignored, as are
// repeated notifications with old == new.
func (t *LeadershipTracker) OnStateChange(old, new raft.RaftState) {
	if old == new {
		return
	}

	var next domain.LeadershipStatus
	switch {
	case new == raft.Leader:
		next = domain.StatusLeader
	case old == raft.Leader:
		next = domain.StatusFollower
	default:
		return
	}

	t.mu.Lock()
	t.status = next
	t.transitions++
	t.mu.Unlock()

	t.metrics.SetLeadershipStatus(int(next), next.String())
	if next == domain.StatusLeader {
		t.logger.Warn("leader now", "from", old.String())
	} else {
		t.logger.Warn("lost leader", "to", new.String())
	}
}

// Observe follows the role transitions of a raft node until ctx is done.
//
// hashicorp/raft reports only the new state, so the tracker remembers the
// previous one. The observer is registered before the current state is
// read: a node that already leads is applied as Follower→Leader, and any
// later change is delivered through the observer.
func (t *LeadershipTracker) Observe(ctx context.Context, src ObserverRegistrar) {
	// Non-blocking: a slow tracker must never stall the consensus engine.
	// Role changes are rare, so the buffer absorbs bursts.
	ch := make(chan raft.Observation, 64)
	observer := raft.NewObserver(ch, false, func(o *raft.Observation) bool {
		_, ok := o.Data.(raft.RaftState)
		return ok
	})
	src.RegisterObserver(observer)
	defer func() {
		src.DeregisterObserver(observer)
		if n := observer.GetNumDropped(); n > 0 {
			t.logger.Error("raft state observations dropped", "count", n)
		}
	}()

	current := src.State()
	if current == raft.Leader {
		t.OnStateChange(raft.Follower, raft.Leader)
	}
	t.consume(ctx, ch, current)
}

// consume applies RaftState observations from ch in arrival order.
func (t *LeadershipTracker) consume(ctx context.Context, ch <-chan raft.Observation, prev raft.RaftState) {
	for {
		select {
		case <-ctx.Done():
			return
		case o, ok := <-ch:
			if !ok {
				return
			}
			state, ok := o.Data.(raft.RaftState)
			if !ok {
				continue
			}
			t.OnStateChange(prev, state)
			prev = state
		}
	}
}
