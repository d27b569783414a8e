package handlers

import "net/http"

// StatsResponse represents aggregate counters for the dashboard.
type StatsResponse struct {
	TotalMessages      int64  `json:"total_messages"`
	TotalRegistrations int64  `json:"total_registrations"`
	Subscribers        int    `json:"subscribers"`
	Session            string `json:"session"`
}

// Stats returns aggregate counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalMessages, err := h.store.CountMessages(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count messages")
		return
	}

	totalRegistrations, err := h.store.CountRegistrations(ctx)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to count registrations")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalMessages:      totalMessages,
		TotalRegistrations: totalRegistrations,
		Subscribers:        h.hub.Subscribers(),
		Session:            h.transport.OwnAddress(),
	})
}
