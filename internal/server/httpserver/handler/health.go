package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /healthz. The node is healthy as long as it
// serves requests; peer connectivity is reported but does not change the
// status code.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := h.source.NodeStatus()

	connected := 0
	for _, p := range st.Peers {
		if p.Connected {
			connected++
		}
	}

	h.writeJSON(w, r, http.StatusOK, HealthStatus{
		Status:    "healthy",
		Time:      time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Connected: connected,
		Peers:     len(st.Peers),
	})
}
