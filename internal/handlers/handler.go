package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/broadcast"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/media"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/transport"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store      store.DataStore
	transport  transport.Transport
	ingestor   *media.Ingestor
	hub        *broadcast.Hub
	normalizer *phone.Normalizer
	logger     zerolog.Logger
}

// NewHandler creates a new Handler with the given collaborators.
func NewHandler(
	st store.DataStore,
	tr transport.Transport,
	ingestor *media.Ingestor,
	hub *broadcast.Hub,
	normalizer *phone.Normalizer,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		store:      st,
		transport:  tr,
		ingestor:   ingestor,
		hub:        hub,
		normalizer: normalizer,
		logger:     logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}
