package handlers

import (
	"net/http"
	"strconv"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// MessagesResponse represents the message list response.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
	Count    int              `json:"count"`
}

// ListMessages returns stored messages oldest-first, optionally filtered by
// the "address" query parameter (any phone spelling; it is normalized before
// the lookup).
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	if address != "" {
		address = h.normalizer.Normalize(address).Address()
	}

	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxListLimit {
			n = maxListLimit
		}
		limit = n
	}

	messages, err := h.store.ListMessages(r.Context(), address, limit)
	if err != nil {
		h.logger.Error().Err(err).Msg("list messages failed")
		h.Error(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, MessagesResponse{Messages: messages, Count: len(messages)})
}
