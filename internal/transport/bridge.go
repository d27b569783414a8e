package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	bridgeTokenHeader = "X-Bridge-Token"
	requestIDHeader   = "X-Request-ID"

	// eventBuffer absorbs webhook bursts while the classifier drains the
	// channel one event at a time.
	eventBuffer = 256
)

// Bridge is a Transport backed by the sidecar's HTTP API. Outbound sends are
// POSTs to the sidecar; inbound events arrive on the webhook handler and are
// queued on a single channel for serial consumption.
type Bridge struct {
	baseURL    string
	token      string
	ownAddress string
	client     *http.Client
	logger     zerolog.Logger

	mu     sync.Mutex
	closed bool
	events chan Event
}

// NewBridge connects to the sidecar and resolves the session's own address.
func NewBridge(ctx context.Context, baseURL, token string, logger zerolog.Logger) (*Bridge, error) {
	b := &Bridge{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		events:  make(chan Event, eventBuffer),
		logger:  logger,
	}

	addr, err := b.fetchOwnAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve session address: %w", err)
	}
	b.ownAddress = addr

	logger.Info().Str("address", addr).Msg("bridge session resolved")
	return b, nil
}

// OwnAddress returns the canonical address of the local session.
func (b *Bridge) OwnAddress() string {
	return b.ownAddress
}

// Events returns the serial event stream.
func (b *Bridge) Events() <-chan Event {
	return b.events
}

// Close closes the event stream. The webhook handler answers 503 for any
// event arriving after this point.
func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.events)
}

type enqueueResult int

const (
	enqueued enqueueResult = iota
	queueFull
	queueClosed
)

// enqueue hands one event to the classifier loop without blocking.
func (b *Bridge) enqueue(ev Event) enqueueResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return queueClosed
	}
	select {
	case b.events <- ev:
		return enqueued
	default:
		return queueFull
	}
}

type sessionResponse struct {
	Address string `json:"address"`
}

func (b *Bridge) fetchOwnAddress(ctx context.Context) (string, error) {
	var resp sessionResponse
	if err := b.do(ctx, http.MethodGet, "/session", nil, &resp); err != nil {
		return "", err
	}
	if resp.Address == "" {
		return "", fmt.Errorf("sidecar reported empty session address")
	}
	return resp.Address, nil
}

type sendTextRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

type sendMediaRequest struct {
	To       string `json:"to"`
	Caption  string `json:"caption,omitempty"`
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type sendResponse struct {
	MessageID string `json:"messageId"`
}

// SendText sends a text message through the sidecar.
func (b *Bridge) SendText(ctx context.Context, to, body string) (string, error) {
	var resp sendResponse
	if err := b.do(ctx, http.MethodPost, "/send", sendTextRequest{To: to, Body: body}, &resp); err != nil {
		return "", err
	}
	if resp.MessageID == "" {
		return "", fmt.Errorf("sidecar send returned no messageId")
	}
	return resp.MessageID, nil
}

// SendMedia sends media bytes through the sidecar.
func (b *Bridge) SendMedia(ctx context.Context, to string, data []byte, mimeType, caption string) (string, error) {
	req := sendMediaRequest{
		To:       to,
		Caption:  caption,
		MIMEType: mimeType,
		Data:     base64.StdEncoding.EncodeToString(data),
	}
	var resp sendResponse
	if err := b.do(ctx, http.MethodPost, "/send-media", req, &resp); err != nil {
		return "", err
	}
	if resp.MessageID == "" {
		return "", fmt.Errorf("sidecar send-media returned no messageId")
	}
	return resp.MessageID, nil
}

func (b *Bridge) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set(bridgeTokenHeader, b.token)
	}
	req.Header.Set(requestIDHeader, uuid.NewString())

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sidecar %s %s: status %d body=%q", method, path, resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode sidecar response: %w body=%q", err, raw)
	}
	return nil
}

// webhookEvent is the sidecar's wire format for one message event.
type webhookEvent struct {
	Kind     string `json:"kind"`
	ID       string `json:"id"`
	From     string `json:"from"`
	To       string `json:"to"`
	Body     string `json:"body,omitempty"`
	HasMedia bool   `json:"hasMedia,omitempty"`
	MediaURL string `json:"mediaUrl,omitempty"`
	MIMEType string `json:"mimeType,omitempty"`
}

// WebhookHandler returns the http.Handler the sidecar posts events to. The
// handler validates the shared token, decodes the event, and queues it; it
// never processes the event inline, so slow classification backpressures the
// sidecar through the bounded queue rather than racing it.
func (b *Bridge) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.token != "" && r.Header.Get(bridgeTokenHeader) != b.token {
			http.Error(w, `{"error":"invalid bridge token"}`, http.StatusUnauthorized)
			return
		}

		var we webhookEvent
		if err := json.NewDecoder(r.Body).Decode(&we); err != nil {
			http.Error(w, `{"error":"invalid JSON body"}`, http.StatusBadRequest)
			return
		}

		ev, err := b.toEvent(we)
		if err != nil {
			http.Error(w, fmt.Sprintf(`{"error":%q}`, err.Error()), http.StatusBadRequest)
			return
		}

		switch b.enqueue(ev) {
		case enqueued:
			w.WriteHeader(http.StatusAccepted)
		case queueClosed:
			http.Error(w, `{"error":"session closed"}`, http.StatusServiceUnavailable)
		default:
			// Queue full: the sidecar redelivers after reconnection, so
			// shedding here loses nothing durable.
			b.logger.Warn().Str("id", ev.ID).Msg("event queue full, asking sidecar to redeliver")
			http.Error(w, `{"error":"event queue full"}`, http.StatusServiceUnavailable)
		}
	})
}

func (b *Bridge) toEvent(we webhookEvent) (Event, error) {
	var kind EventKind
	switch EventKind(we.Kind) {
	case EventDelivered, EventSelfSent:
		kind = EventKind(we.Kind)
	default:
		return Event{}, fmt.Errorf("unknown event kind %q", we.Kind)
	}
	if we.ID == "" {
		return Event{}, fmt.Errorf("event missing id")
	}

	ev := Event{
		Kind:     kind,
		ID:       we.ID,
		From:     we.From,
		To:       we.To,
		Body:     we.Body,
		HasMedia: we.HasMedia,
	}
	if we.HasMedia {
		url, mime := we.MediaURL, we.MIMEType
		ev.FetchMedia = func(ctx context.Context) ([]byte, string, error) {
			data, err := b.fetchMedia(ctx, url)
			return data, mime, err
		}
	}
	return ev, nil
}

func (b *Bridge) fetchMedia(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if b.token != "" {
		req.Header.Set(bridgeTokenHeader, b.token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
