// Package classifier reconciles the transport's noisy, at-least-once event
// stream into canonical, directionally-correct messages with exactly-once
// storage and broadcast semantics.
package classifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/dedup"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/metrics"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/transport"
)

// Ingestor persists attachment bytes and returns their stored metadata.
type Ingestor interface {
	Ingest(ctx context.Context, data []byte, mimeType string) (*models.Attachment, error)
}

// Registrar evaluates inbound text for the registration command flow.
type Registrar interface {
	Evaluate(ctx context.Context, sender phone.Number, body string) error
}

// Recorder is the idempotent Persistence Writer.
type Recorder interface {
	InsertMessage(ctx context.Context, msg *models.Message) (store.InsertResult, error)
}

// Broadcaster fans newly stored messages out to live subscribers.
type Broadcaster interface {
	PublishMessage(msg *models.Message)
}

// Classifier consumes raw transport events serially and drives the dedup,
// media, registration, persistence, and broadcast steps for each one. One
// event's side effects complete (or fail) before the next event is read;
// this serial discipline is what keeps "no duplicate credential per phone"
// true without cross-event locking.
type Classifier struct {
	transport   transport.Transport
	dedup       dedup.Deduper
	media       Ingestor
	registrar   Registrar
	recorder    Recorder
	broadcaster Broadcaster
	normalizer  *phone.Normalizer
	logger      zerolog.Logger
	now         func() time.Time
}

// New creates a Classifier.
func New(
	tr transport.Transport,
	dd dedup.Deduper,
	media Ingestor,
	registrar Registrar,
	recorder Recorder,
	broadcaster Broadcaster,
	normalizer *phone.Normalizer,
	logger zerolog.Logger,
) *Classifier {
	return &Classifier{
		transport:   tr,
		dedup:       dd,
		media:       media,
		registrar:   registrar,
		recorder:    recorder,
		broadcaster: broadcaster,
		normalizer:  normalizer,
		logger:      logger,
		now:         time.Now,
	}
}

// Run consumes the transport's event stream until the context is cancelled
// or the stream is closed. No error in event handling is fatal; each event's
// failures are isolated to that event.
func (c *Classifier) Run(ctx context.Context) {
	c.logger.Info().Str("own_address", c.transport.OwnAddress()).Msg("classifier started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info().Msg("classifier stopping")
			return
		case ev, ok := <-c.transport.Events():
			if !ok {
				c.logger.Info().Msg("transport event stream closed")
				return
			}
			c.Handle(ctx, ev)
		}
	}
}

// Handle classifies one raw event. Exported so the webhook-driven tests and
// the loop share one entry point.
func (c *Classifier) Handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventDelivered:
		c.handleDelivered(ctx, ev)
	case transport.EventSelfSent:
		c.handleSelfSent(ctx, ev)
	default:
		c.logger.Warn().Str("kind", string(ev.Kind)).Str("id", ev.ID).Msg("unknown event kind dropped")
	}
}

func (c *Classifier) handleDelivered(ctx context.Context, ev transport.Event) {
	log := c.logger.With().Str("id", ev.ID).Logger()

	own := c.transport.OwnAddress()
	sender := c.normalizer.Normalize(ev.From)

	// Echo of something this session sent: outgoing messages are recorded
	// exclusively via the self-sent path, so counting the echo too would
	// double-record them.
	if sender.Address() == own {
		metrics.EchoesDiscarded.Inc()
		log.Debug().Msg("own echo discarded")
		return
	}

	if c.dedup.Seen(ctx, ev.ID) {
		metrics.DuplicatesSuppressed.WithLabelValues("cache").Inc()
		log.Debug().Msg("duplicate event suppressed by cache")
		return
	}

	var attachment *models.Attachment
	if ev.HasMedia {
		attachment = c.ingestMedia(ctx, ev, log)
	}

	// Command-shaped text runs the registration flow, but the original
	// command text is still stored as an ordinary inbound message below.
	if ev.Body != "" && !ev.HasMedia {
		if err := c.registrar.Evaluate(ctx, sender, ev.Body); err != nil {
			log.Error().Err(err).Msg("registration evaluation failed")
		}
	}

	receiver := c.normalizer.Normalize(ev.To).Address()
	if receiver == "" {
		receiver = own
	}

	c.record(ctx, &models.Message{
		MessageID:  ev.ID,
		Direction:  models.DirectionInbound,
		Sender:     sender.Address(),
		Receiver:   receiver,
		Body:       ev.Body,
		Attachment: attachment,
		CreatedAt:  c.now().UTC(),
	}, log)
}

func (c *Classifier) handleSelfSent(ctx context.Context, ev transport.Event) {
	log := c.logger.With().Str("id", ev.ID).Logger()

	// Attachment-bearing outbound messages are recorded exclusively through
	// the explicit send-media path, avoiding a race between the API
	// response and this asynchronous event.
	if ev.HasMedia {
		log.Debug().Msg("self-sent media event skipped")
		return
	}

	// No dedup and no registration here: a self-sent command must never be
	// treated as a registration request.
	receiver := c.normalizer.Normalize(ev.To).Address()

	c.record(ctx, &models.Message{
		MessageID: ev.ID,
		Direction: models.DirectionOutbound,
		Sender:    c.transport.OwnAddress(),
		Receiver:  receiver,
		Body:      ev.Body,
		CreatedAt: c.now().UTC(),
	}, log)
}

// ingestMedia fetches and stores the event's attachment. Any failure is
// logged and reported as a nil attachment; the message is recorded anyway.
func (c *Classifier) ingestMedia(ctx context.Context, ev transport.Event, log zerolog.Logger) *models.Attachment {
	if ev.FetchMedia == nil {
		log.Warn().Msg("event marked hasMedia without a fetcher")
		metrics.MediaIngestFailures.Inc()
		return nil
	}

	data, mimeType, err := ev.FetchMedia(ctx)
	if err != nil {
		log.Error().Err(err).Msg("media download failed, recording message without attachment")
		metrics.MediaIngestFailures.Inc()
		return nil
	}

	attachment, err := c.media.Ingest(ctx, data, mimeType)
	if err != nil {
		log.Error().Err(err).Msg("media ingest failed, recording message without attachment")
		metrics.MediaIngestFailures.Inc()
		return nil
	}
	return attachment
}

// record writes the canonical message and broadcasts it only on a fresh
// insert, so subscribers never see duplicates even after a cache clear.
func (c *Classifier) record(ctx context.Context, msg *models.Message, log zerolog.Logger) {
	result, err := c.recorder.InsertMessage(ctx, msg)
	if err != nil {
		log.Error().Err(err).Msg("message insert failed")
		return
	}
	if result == store.DuplicateIgnored {
		metrics.DuplicatesSuppressed.WithLabelValues("store").Inc()
		log.Debug().Msg("duplicate message absorbed by store")
		return
	}

	metrics.MessagesRecorded.WithLabelValues(string(msg.Direction)).Inc()
	metrics.EventsBroadcast.WithLabelValues("message").Inc()
	c.broadcaster.PublishMessage(msg)
}
