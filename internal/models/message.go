package models

import "time"

// Direction indicates whether a message was received by or sent from the
// local session.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Attachment describes stored media belonging to a message.
type Attachment struct {
	Name     string `json:"name"`
	Locator  string `json:"locator"`
	MIMEType string `json:"mime_type"`
}

// Message is the canonical record of one transport event. MessageID is the
// transport-assigned identifier, unique across all stored messages; it is
// the idempotency key for inserts. Rows are append-only.
type Message struct {
	MessageID  string      `json:"message_id"`
	Direction  Direction   `json:"direction"`
	Sender     string      `json:"sender"`
	Receiver   string      `json:"receiver"`
	Body       string      `json:"body,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}
