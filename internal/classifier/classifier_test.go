package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/dedup"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/transport"
)

const ownAddress = "911234567890"

type fakeTransport struct {
	events chan transport.Event
}

func (f *fakeTransport) OwnAddress() string { return ownAddress }

func (f *fakeTransport) Events() <-chan transport.Event { return f.events }
func (f *fakeTransport) SendText(context.Context, string, string) (string, error) {
	return "", errors.New("not used")
}
func (f *fakeTransport) SendMedia(context.Context, string, []byte, string, string) (string, error) {
	return "", errors.New("not used")
}

// memRecorder mimics the durable store's unique constraint on message_id.
type memRecorder struct {
	mu       sync.Mutex
	messages []*models.Message
	byID     map[string]bool
	err      error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{byID: make(map[string]bool)}
}

func (r *memRecorder) InsertMessage(_ context.Context, msg *models.Message) (store.InsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return store.DuplicateIgnored, r.err
	}
	if r.byID[msg.MessageID] {
		return store.DuplicateIgnored, nil
	}
	r.byID[msg.MessageID] = true
	r.messages = append(r.messages, msg)
	return store.Inserted, nil
}

type countingBroadcaster struct {
	mu     sync.Mutex
	events []*models.Message
}

func (b *countingBroadcaster) PublishMessage(msg *models.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, msg)
}

func (b *countingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

type fakeIngestor struct {
	err  error
	last string
}

func (f *fakeIngestor) Ingest(_ context.Context, data []byte, mimeType string) (*models.Attachment, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.last = mimeType
	return &models.Attachment{Name: "stored.bin", Locator: "/media/stored.bin", MIMEType: mimeType}, nil
}

type recordingRegistrar struct {
	calls []string
	from  []phone.Number
}

func (r *recordingRegistrar) Evaluate(_ context.Context, sender phone.Number, body string) error {
	r.from = append(r.from, sender)
	r.calls = append(r.calls, body)
	return nil
}

type fixture struct {
	classifier  *Classifier
	recorder    *memRecorder
	broadcaster *countingBroadcaster
	ingestor    *fakeIngestor
	registrar   *recordingRegistrar
}

func newFixture() *fixture {
	f := &fixture{
		recorder:    newMemRecorder(),
		broadcaster: &countingBroadcaster{},
		ingestor:    &fakeIngestor{},
		registrar:   &recordingRegistrar{},
	}
	f.classifier = New(
		&fakeTransport{events: make(chan transport.Event, 8)},
		dedup.NewCache(100),
		f.ingestor,
		f.registrar,
		f.recorder,
		f.broadcaster,
		phone.NewNormalizer("91", nil),
		zerolog.Nop(),
	)
	return f
}

func delivered(id, from, body string) transport.Event {
	return transport.Event{
		Kind: transport.EventDelivered,
		ID:   id,
		From: from,
		To:   ownAddress,
		Body: body,
	}
}

func TestDeliveredRecordedOnceAndBroadcastOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ctx := context.Background()

	// The transport redelivers the same event several times.
	for i := 0; i < 5; i++ {
		f.classifier.Handle(ctx, delivered("wa-1", "919876543210", "hello"))
	}

	if len(f.recorder.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(f.recorder.messages))
	}
	if f.broadcaster.count() != 1 {
		t.Fatalf("broadcast %d events, want 1", f.broadcaster.count())
	}

	msg := f.recorder.messages[0]
	if msg.Direction != models.DirectionInbound {
		t.Fatalf("direction = %q", msg.Direction)
	}
	if msg.Sender != "919876543210" || msg.Receiver != ownAddress {
		t.Fatalf("sender/receiver = %q/%q", msg.Sender, msg.Receiver)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestEchoOfOwnSendDiscarded(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ev := delivered("wa-echo", ownAddress, "sent by me")
	ev.To = "919876543210"

	f.classifier.Handle(context.Background(), ev)

	if len(f.recorder.messages) != 0 {
		t.Fatalf("echo recorded: %+v", f.recorder.messages)
	}
	if f.broadcaster.count() != 0 {
		t.Fatal("echo broadcast")
	}
}

func TestStoreConstraintBacksUpClearedCache(t *testing.T) {
	t.Parallel()

	// Two classifier instances (restarted deployment) share one store but
	// have independent dedup caches.
	recorder := newMemRecorder()
	broadcaster := &countingBroadcaster{}

	build := func() *Classifier {
		return New(
			&fakeTransport{events: make(chan transport.Event, 1)},
			dedup.NewCache(100),
			&fakeIngestor{},
			&recordingRegistrar{},
			recorder,
			broadcaster,
			phone.NewNormalizer("91", nil),
			zerolog.Nop(),
		)
	}

	a, b := build(), build()
	ctx := context.Background()
	a.Handle(ctx, delivered("wa-2", "919876543210", "hi"))
	b.Handle(ctx, delivered("wa-2", "919876543210", "hi"))

	if len(recorder.messages) != 1 {
		t.Fatalf("stored %d messages, want 1", len(recorder.messages))
	}
	// The duplicate insert is absorbed silently and its broadcast is
	// suppressed, so subscribers see the message exactly once.
	if broadcaster.count() != 1 {
		t.Fatalf("broadcast %d events, want 1", broadcaster.count())
	}
}

func TestMediaIngestSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ev := delivered("wa-3", "919876543210", "")
	ev.HasMedia = true
	ev.FetchMedia = func(context.Context) ([]byte, string, error) {
		return []byte("bytes"), "image/jpeg", nil
	}

	f.classifier.Handle(context.Background(), ev)

	if len(f.recorder.messages) != 1 {
		t.Fatal("message not recorded")
	}
	att := f.recorder.messages[0].Attachment
	if att == nil || att.MIMEType != "image/jpeg" {
		t.Fatalf("attachment = %+v", att)
	}
}

func TestMediaFailureStillRecordsMessage(t *testing.T) {
	t.Parallel()

	for name, ev := range map[string]transport.Event{
		"download fails": func() transport.Event {
			ev := delivered("wa-4", "919876543210", "see photo")
			ev.HasMedia = true
			ev.FetchMedia = func(context.Context) ([]byte, string, error) {
				return nil, "", errors.New("media server gone")
			}
			return ev
		}(),
		"fetcher missing": func() transport.Event {
			ev := delivered("wa-5", "919876543210", "see photo")
			ev.HasMedia = true
			return ev
		}(),
	} {
		f := newFixture()
		f.classifier.Handle(context.Background(), ev)

		if len(f.recorder.messages) != 1 {
			t.Fatalf("%s: message dropped", name)
		}
		if f.recorder.messages[0].Attachment != nil {
			t.Fatalf("%s: attachment recorded despite failure", name)
		}
		if f.broadcaster.count() != 1 {
			t.Fatalf("%s: broadcast %d", name, f.broadcaster.count())
		}
	}
}

func TestIngestStoreFailureStillRecordsMessage(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.ingestor.err = errors.New("disk full")

	ev := delivered("wa-6", "919876543210", "")
	ev.HasMedia = true
	ev.FetchMedia = func(context.Context) ([]byte, string, error) {
		return []byte("bytes"), "image/png", nil
	}

	f.classifier.Handle(context.Background(), ev)

	if len(f.recorder.messages) != 1 || f.recorder.messages[0].Attachment != nil {
		t.Fatal("message must be recorded without attachment when ingest fails")
	}
}

func TestCommandTextEvaluatedAndStillRecorded(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.classifier.Handle(context.Background(), delivered("wa-7", "+91 98765 43210", "Register Alice"))

	if len(f.registrar.calls) != 1 || f.registrar.calls[0] != "Register Alice" {
		t.Fatalf("registrar calls = %v", f.registrar.calls)
	}
	if f.registrar.from[0].Address() != "919876543210" {
		t.Fatalf("registrar sender = %+v", f.registrar.from[0])
	}

	// The command itself remains an ordinary inbound message.
	if len(f.recorder.messages) != 1 || f.recorder.messages[0].Body != "Register Alice" {
		t.Fatalf("messages = %+v", f.recorder.messages)
	}
}

func TestMediaEventSkipsRegistration(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ev := delivered("wa-8", "919876543210", "register Alice")
	ev.HasMedia = true
	ev.FetchMedia = func(context.Context) ([]byte, string, error) {
		return []byte("x"), "image/png", nil
	}

	f.classifier.Handle(context.Background(), ev)

	if len(f.registrar.calls) != 0 {
		t.Fatal("attachment-bearing event must not reach the registrar")
	}
}

func TestSelfSentRecordedWithoutDedupOrRegistration(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ev := transport.Event{
		Kind: transport.EventSelfSent,
		ID:   "wa-9",
		From: ownAddress,
		To:   "919876543210",
		Body: "register Alice",
	}

	f.classifier.Handle(context.Background(), ev)

	if len(f.registrar.calls) != 0 {
		t.Fatal("self-sent command must never run the registration flow")
	}
	if len(f.recorder.messages) != 1 {
		t.Fatal("self-sent message not recorded")
	}
	msg := f.recorder.messages[0]
	if msg.Direction != models.DirectionOutbound || msg.Sender != ownAddress {
		t.Fatalf("message = %+v", msg)
	}
}

func TestSelfSentMediaSkippedEntirely(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ev := transport.Event{
		Kind:     transport.EventSelfSent,
		ID:       "wa-10",
		From:     ownAddress,
		To:       "919876543210",
		HasMedia: true,
	}

	f.classifier.Handle(context.Background(), ev)

	// Outbound media is recorded by the send-media API path, not here.
	if len(f.recorder.messages) != 0 {
		t.Fatalf("messages = %+v", f.recorder.messages)
	}
}

func TestInsertErrorSuppressesBroadcast(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.recorder.err = errors.New("db down")

	f.classifier.Handle(context.Background(), delivered("wa-11", "919876543210", "hi"))

	if f.broadcaster.count() != 0 {
		t.Fatal("broadcast must not happen when the insert fails")
	}
}

func TestRunConsumesStreamSerially(t *testing.T) {
	t.Parallel()

	tr := &fakeTransport{events: make(chan transport.Event, 8)}
	recorder := newMemRecorder()
	c := New(tr, dedup.NewCache(100), &fakeIngestor{}, &recordingRegistrar{}, recorder,
		&countingBroadcaster{}, phone.NewNormalizer("91", nil), zerolog.Nop())

	for i := 0; i < 3; i++ {
		tr.events <- delivered("wa-run-"+string(rune('a'+i)), "919876543210", "hi")
	}
	close(tr.events)

	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()
	<-done

	if len(recorder.messages) != 3 {
		t.Fatalf("stored %d messages, want 3", len(recorder.messages))
	}
	for i, want := range []string{"wa-run-a", "wa-run-b", "wa-run-c"} {
		if recorder.messages[i].MessageID != want {
			t.Fatalf("messages out of order: %v", recorder.messages)
		}
	}
}
