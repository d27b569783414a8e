package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/metrics"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
)

const maxMediaUpload = 32 << 20 // 32 MiB

// SendTextRequest represents the send-text request body.
type SendTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// SendResponse represents the response to both send surfaces.
type SendResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"` // "sent" or "recorded"
}

// SendText sends a text message through the transport and records the
// outbound Message with the transport's post-send identifier. The transport's
// later self-sent echo of this message is absorbed by the unique constraint.
func (h *Handler) SendText(w http.ResponseWriter, r *http.Request) {
	var req SendTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	to := h.normalizer.Normalize(req.To).Address()
	if to == "" {
		h.Error(w, http.StatusBadRequest, "to is required")
		return
	}
	if strings.TrimSpace(req.Body) == "" {
		h.Error(w, http.StatusBadRequest, "body is required")
		return
	}

	messageID, err := h.transport.SendText(r.Context(), to, req.Body)
	if err != nil {
		// Transient transport errors surface to the caller; no retry here.
		h.logger.Error().Err(err).Str("to", to).Msg("send text failed")
		h.Error(w, http.StatusBadGateway, "transport send failed")
		return
	}

	h.recordOutbound(w, r, &models.Message{
		MessageID: messageID,
		Direction: models.DirectionOutbound,
		Sender:    h.transport.OwnAddress(),
		Receiver:  to,
		Body:      req.Body,
		CreatedAt: time.Now().UTC(),
	})
}

// SendMedia sends binary media with an optional caption. The attachment is
// ingested into the blob store first, then sent; the outbound Message is
// recorded here exclusively (the classifier skips self-sent media events).
func (h *Handler) SendMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxMediaUpload); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}

	to := h.normalizer.Normalize(r.FormValue("to")).Address()
	if to == "" {
		h.Error(w, http.StatusBadRequest, "to is required")
		return
	}
	caption := r.FormValue("caption")

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "failed to read file")
		return
	}

	mimeType := r.FormValue("mime_type")
	if mimeType == "" {
		mimeType = header.Header.Get("Content-Type")
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	attachment, err := h.ingestor.Ingest(r.Context(), data, mimeType)
	if err != nil {
		h.Error(w, http.StatusInternalServerError, "failed to store media")
		return
	}

	messageID, err := h.transport.SendMedia(r.Context(), to, data, mimeType, caption)
	if err != nil {
		h.logger.Error().Err(err).Str("to", to).Msg("send media failed")
		h.Error(w, http.StatusBadGateway, "transport send failed")
		return
	}

	h.recordOutbound(w, r, &models.Message{
		MessageID:  messageID,
		Direction:  models.DirectionOutbound,
		Sender:     h.transport.OwnAddress(),
		Receiver:   to,
		Body:       caption,
		Attachment: attachment,
		CreatedAt:  time.Now().UTC(),
	})
}

func (h *Handler) recordOutbound(w http.ResponseWriter, r *http.Request, msg *models.Message) {
	result, err := h.store.InsertMessage(r.Context(), msg)
	if err != nil {
		// The message left the transport; report success but flag that the
		// durable record failed.
		h.logger.Error().Err(err).Str("id", msg.MessageID).Msg("outbound message insert failed")
		h.JSON(w, http.StatusAccepted, SendResponse{MessageID: msg.MessageID, Status: "sent"})
		return
	}

	if result == store.Inserted {
		metrics.MessagesRecorded.WithLabelValues(string(msg.Direction)).Inc()
		metrics.EventsBroadcast.WithLabelValues("message").Inc()
		h.hub.PublishMessage(msg)
	} else {
		metrics.DuplicatesSuppressed.WithLabelValues("store").Inc()
	}

	h.JSON(w, http.StatusCreated, SendResponse{MessageID: msg.MessageID, Status: "recorded"})
}
