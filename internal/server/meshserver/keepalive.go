package meshserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const heartbeatByte = 0x01

// KeepaliveHandler is the default link handler for a node that has no other
// protocol to run over the mesh. Both ends send a one-byte heartbeat every
// Interval and drop the link after IdleTimeout without receiving anything,
// so a dead peer is noticed and the link loop re-establishes the link.
type KeepaliveHandler struct {
	Interval    time.Duration
	IdleTimeout time.Duration
	Logger      *slog.Logger
}

// NewKeepaliveHandler creates a handler with the given heartbeat interval.
// The idle timeout is three intervals.
func NewKeepaliveHandler(interval time.Duration, logger *slog.Logger) *KeepaliveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &KeepaliveHandler{
		Interval:    interval,
		IdleTimeout: 3 * interval,
		Logger:      logger,
	}
}

// HandleLink runs heartbeats on l until it closes. It fails immediately if
// the first heartbeat cannot be sent.
func (h *KeepaliveHandler) HandleLink(ctx context.Context, l *Link) error {
	if h.Interval <= 0 {
		return fmt.Errorf("keepalive interval must be positive, got %s", h.Interval)
	}
	idle := h.IdleTimeout
	if idle <= h.Interval {
		idle = 3 * h.Interval
	}
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	go h.readLoop(l, idle, logger)

	if err := h.beat(l, idle); err != nil {
		return fmt.Errorf("first heartbeat: %w", err)
	}

	ticker := time.NewTicker(h.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-l.Done():
			return nil
		case <-ticker.C:
			if err := h.beat(l, idle); err != nil {
				if !l.Closed() {
					logger.Debug("heartbeat send failed", "link_id", l.ID, "peer_id", l.Peer(), "error", err)
				}
				l.Close()
				return nil
			}
		}
	}
}

func (h *KeepaliveHandler) beat(l *Link, timeout time.Duration) error {
	conn := l.Conn()
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	_, err := conn.Write([]byte{heartbeatByte})
	return err
}

func (h *KeepaliveHandler) readLoop(l *Link, idle time.Duration, logger *slog.Logger) {
	conn := l.Conn()
	buf := make([]byte, 64)
	for {
		if err := conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			l.Close()
			return
		}
		if _, err := conn.Read(buf); err != nil {
			if !l.Closed() {
				logger.Info("link idle or broken, closing", "link_id", l.ID, "peer_id", l.Peer(), "error", err)
			}
			l.Close()
			return
		}
	}
}
