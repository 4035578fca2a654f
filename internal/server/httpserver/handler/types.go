package handler

import (
	"time"

	"github.com/yndnr/rafter-go/internal/core/domain"
	"github.com/yndnr/rafter-go/internal/server/meshserver"
)

// Response is the standard API response envelope. Every JSON endpoint uses
// it; /metrics is served in the Prometheus text format instead.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NodeStatus is the body of GET /status.
type NodeStatus struct {
	Node        string                `json:"node"`
	PeerID      domain.PeerID         `json:"peer_id"`
	Leadership  string                `json:"leadership"`
	Transitions uint64                `json:"transitions"`
	RaftState   string                `json:"raft_state"`
	RaftLeader  domain.PeerID         `json:"raft_leader,omitempty"`
	Peers       []PeerStatus          `json:"peers"`
	Links       []meshserver.LinkInfo `json:"links"`
}

// PeerStatus describes one remote member as seen from this node.
type PeerStatus struct {
	PeerID    domain.PeerID `json:"peer_id"`
	Addr      string        `json:"addr"`
	Connected bool          `json:"connected"`

	// Initiate is the arbiter's current verdict for this pair: true when
	// this node is the one that dials.
	Initiate bool `json:"initiate"`
}

// HealthStatus is the body of GET /healthz.
type HealthStatus struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	Version   string `json:"version"`
	Connected int    `json:"connected"`
	Peers     int    `json:"peers"`
}
