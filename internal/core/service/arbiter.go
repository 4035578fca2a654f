package service

import (
	"context"
	"log/slog"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/telemetry/logger"
	"github.com/yndnr/rafter-go/internal/telemetry/metric"
)

// StatusReader provides the current leadership snapshot.
type StatusReader interface {
	Status() domain.LeadershipStatus
}

// Arbiter decides which side of a peer pair opens the transport link.
//
// A leader always initiates, a node that knows it is a follower always waits,
// and without leadership information the peer with the larger id initiates.
// The result depends only on (local, remote, status).
type Arbiter struct {
	leadership StatusReader
	logger     *slog.Logger
	metrics    *metric.Registry
}

// NewArbiter creates an arbiter reading leadership from the given source.
func NewArbiter(leadership StatusReader, logger *slog.Logger, metrics *metric.Registry) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = metric.NewRegistry()
	}
	return &Arbiter{
		leadership: leadership,
		logger:     logger,
		metrics:    metrics,
	}
}

// Decide returns true when the local side should actively connect to remote,
// false when it should wait for remote to connect.
//
// Decide performs one status read and a comparison. It never blocks on I/O.
func (a *Arbiter) Decide(local, remote domain.PeerID) bool {
	status := a.leadership.Status()
	initiate := verdict(status, local, remote)

	a.metrics.RecordDecision(status.String(), initiate)
	if a.logger.Enabled(context.Background(), logger.LevelTrace) {
		a.logger.Log(context.Background(), logger.LevelTrace, "connection direction decided",
			"local_id", local,
			"remote_id", remote,
			"leadership", status.String(),
			"initiate", initiate)
	}

	return initiate
}

// Verdict returns what Decide would return without recording the decision.
// It is meant for status reporting.
func (a *Arbiter) Verdict(local, remote domain.PeerID) bool {
	return verdict(a.leadership.Status(), local, remote)
}

func verdict(status domain.LeadershipStatus, local, remote domain.PeerID) bool {
	switch status {
	case domain.StatusLeader:
		return true
	case domain.StatusFollower:
		return false
	default:
		return TieBreak(local, remote)
	}
}

// TieBreak is the identity ordering used when leadership is unknown and for
// duplicate resolution: the larger id wins. It is antisymmetric, so both ends
// of a pair reach complementary answers without talking to each other.
func TieBreak(local, remote domain.PeerID) bool {
	return local > remote
}
