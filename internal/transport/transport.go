// Package transport defines the boundary to the external messaging-transport
// collaborator: the sidecar process that holds the live session with the
// messaging network. Events cross the boundary on a single channel and are
// consumed serially; sends go back over the sidecar's HTTP API.
package transport

import "context"

// EventKind distinguishes the two kinds of event the transport emits.
type EventKind string

const (
	// EventDelivered is a message delivered to the session. It may be
	// inbound from a peer or an echo of something the session itself sent.
	EventDelivered EventKind = "delivered"
	// EventSelfSent is a message the session itself sent, reported by the
	// transport after the fact. It may duplicate a delivered echo.
	EventSelfSent EventKind = "self_sent"
)

// MediaFetcher lazily retrieves an event's attachment bytes and declared
// MIME type. It is only set when the event carries media.
type MediaFetcher func(ctx context.Context) (data []byte, mimeType string, err error)

// Event is one raw message event from the transport.
type Event struct {
	Kind       EventKind
	ID         string
	From       string
	To         string
	Body       string
	HasMedia   bool
	FetchMedia MediaFetcher
}

// Transport is the messaging collaborator as seen by the classifier and the
// send surfaces.
type Transport interface {
	// OwnAddress returns the canonical address of the local session.
	OwnAddress() string
	// Events returns the serial stream of raw events. The channel is
	// closed when the session is torn down.
	Events() <-chan Event
	// SendText sends a text message and returns the transport-assigned
	// message id. Errors are surfaced to the caller, not retried.
	SendText(ctx context.Context, to, body string) (string, error)
	// SendMedia sends media with an optional caption and returns the
	// transport-assigned message id.
	SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) (string, error)
}
