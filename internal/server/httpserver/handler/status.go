package handler

import (
	"net/http"

	"github.com/yndnr/rafter-go/internal/server/meshserver"
)

// handleStatus handles GET /status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := h.source.NodeStatus()
	if st.Peers == nil {
		st.Peers = []PeerStatus{}
	}
	if st.Links == nil {
		st.Links = []meshserver.LinkInfo{}
	}
	h.writeJSON(w, r, http.StatusOK, st)
}
