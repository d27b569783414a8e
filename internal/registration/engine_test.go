package registration

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
)

type fakeStore struct {
	regs      map[string]*models.Registration
	findErr   error
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{regs: make(map[string]*models.Registration)}
}

func key(cc, num string) string { return cc + ":" + num }

func (f *fakeStore) FindRegistration(_ context.Context, cc, num string) (*models.Registration, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.regs[key(cc, num)], nil
}

func (f *fakeStore) CreateRegistration(_ context.Context, reg *models.Registration) (store.CreateResult, error) {
	if f.createErr != nil {
		return store.AlreadyExists, f.createErr
	}
	k := key(reg.CountryCode, reg.PhoneNumber)
	if _, ok := f.regs[k]; ok {
		return store.AlreadyExists, nil
	}
	f.regs[k] = reg
	return store.Created, nil
}

type fakeReplier struct {
	sent []string
	to   []string
	err  error
}

func (f *fakeReplier) SendText(_ context.Context, to, body string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.to = append(f.to, to)
	f.sent = append(f.sent, body)
	return "reply-id", nil
}

type fakeNotifier struct{ phones []string }

func (f *fakeNotifier) PublishRegistered(phone string) { f.phones = append(f.phones, phone) }

var alice = phone.Number{CountryCode: "91", Subscriber: "9876543210"}

func newTestEngine(st Store, rep Replier, n Notifier) *Engine {
	return NewEngine(st, rep, n, zerolog.Nop(), Options{})
}

func TestRegisterCreatesRecordAndReplies(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	rep := &fakeReplier{}
	not := &fakeNotifier{}
	e := newTestEngine(st, rep, not)

	before := time.Now()
	if err := e.Evaluate(context.Background(), alice, "Register Alice"); err != nil {
		t.Fatal(err)
	}

	reg := st.regs[key("91", "9876543210")]
	if reg == nil {
		t.Fatal("no registration created")
	}
	if reg.Name != "Alice" {
		t.Fatalf("Name = %q", reg.Name)
	}
	if !reg.Active {
		t.Fatal("registration should be active")
	}

	if len(reg.Credential) != DefaultCredentialLength {
		t.Fatalf("credential %q, want %d chars", reg.Credential, DefaultCredentialLength)
	}
	for _, r := range reg.Credential {
		if r < 'A' || r > 'Z' {
			t.Fatalf("credential %q contains non-uppercase rune %q", reg.Credential, r)
		}
	}

	wantExp := before.Add(DefaultCredentialTTL)
	if reg.CredentialExp.Before(wantExp.Add(-time.Minute)) || reg.CredentialExp.After(wantExp.Add(time.Minute)) {
		t.Fatalf("CredentialExp = %v, want about %v", reg.CredentialExp, wantExp)
	}

	if len(rep.sent) != 1 {
		t.Fatalf("replies = %d, want 1", len(rep.sent))
	}
	if rep.to[0] != "919876543210" {
		t.Fatalf("reply to %q", rep.to[0])
	}
	if !strings.Contains(rep.sent[0], reg.Credential) {
		t.Fatalf("reply %q does not contain credential %q", rep.sent[0], reg.Credential)
	}

	if len(not.phones) != 1 || not.phones[0] != "919876543210" {
		t.Fatalf("notifications = %v", not.phones)
	}
}

func TestRegisterIdempotentPerPhone(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	rep := &fakeReplier{}
	e := newTestEngine(st, rep, nil)

	if err := e.Evaluate(context.Background(), alice, "register Alice"); err != nil {
		t.Fatal(err)
	}
	first := st.regs[key("91", "9876543210")]

	// Second attempt from the same phone: no new record, no second reply.
	if err := e.Evaluate(context.Background(), alice, "register Bob"); err != nil {
		t.Fatal(err)
	}

	if got := st.regs[key("91", "9876543210")]; got != first || got.Name != "Alice" {
		t.Fatalf("registration changed: %+v", got)
	}
	if len(rep.sent) != 1 {
		t.Fatalf("replies = %d, want 1", len(rep.sent))
	}
}

func TestRegisterInvalidNameSilentlyRejected(t *testing.T) {
	t.Parallel()

	// Digits, punctuation, and names shorter than two characters are all
	// rejected without a reply.
	tests := []string{
		"Register A1",
		"register B",
		"register  ",
		"register Bob$",
		"register 42",
	}

	for _, body := range tests {
		st := newFakeStore()
		rep := &fakeReplier{}
		e := newTestEngine(st, rep, nil)

		if err := e.Evaluate(context.Background(), alice, body); err != nil {
			t.Fatalf("Evaluate(%q): %v", body, err)
		}
		if len(st.regs) != 0 {
			t.Fatalf("Evaluate(%q) created a record", body)
		}
		if len(rep.sent) != 0 {
			t.Fatalf("Evaluate(%q) sent a reply", body)
		}
	}
}

func TestNonCommandTextIgnored(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	rep := &fakeReplier{}
	e := newTestEngine(st, rep, nil)

	for _, body := range []string{"hello there", "", "registering tomorrow", "registered"} {
		if err := e.Evaluate(context.Background(), alice, body); err != nil {
			t.Fatal(err)
		}
	}
	if len(st.regs) != 0 || len(rep.sent) != 0 {
		t.Fatal("non-command text must not touch the registration flow")
	}
}

func TestCommandPrefixCaseInsensitive(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	e := newTestEngine(st, &fakeReplier{}, nil)

	if err := e.Evaluate(context.Background(), alice, "REGISTER Carol Anne"); err != nil {
		t.Fatal(err)
	}
	reg := st.regs[key("91", "9876543210")]
	if reg == nil || reg.Name != "Carol Anne" {
		t.Fatalf("registration = %+v", reg)
	}
}

func TestConcurrentCreateSuppressesReply(t *testing.T) {
	t.Parallel()

	// racingStore simulates another instance creating the record between
	// this instance's Find and Create.
	rep := &fakeReplier{}
	e := newTestEngine(&racingStore{}, rep, nil)

	if err := e.Evaluate(context.Background(), alice, "register Alice"); err != nil {
		t.Fatal(err)
	}
	if len(rep.sent) != 0 {
		t.Fatal("losing the create race must not issue a credential reply")
	}
}

type racingStore struct{}

func (r *racingStore) FindRegistration(ctx context.Context, cc, num string) (*models.Registration, error) {
	return nil, nil
}

func (r *racingStore) CreateRegistration(ctx context.Context, reg *models.Registration) (store.CreateResult, error) {
	return store.AlreadyExists, nil
}

func TestStoreErrorSurfaced(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	st.findErr = errors.New("db down")
	e := newTestEngine(st, &fakeReplier{}, nil)

	if err := e.Evaluate(context.Background(), alice, "register Alice"); err == nil {
		t.Fatal("expected store error to surface")
	}
}

func TestReplyFailureDoesNotFailEvaluate(t *testing.T) {
	t.Parallel()

	st := newFakeStore()
	rep := &fakeReplier{err: errors.New("session dropped")}
	e := newTestEngine(st, rep, nil)

	if err := e.Evaluate(context.Background(), alice, "register Alice"); err != nil {
		t.Fatalf("reply failure must be best-effort, got %v", err)
	}
	if st.regs[key("91", "9876543210")] == nil {
		t.Fatal("registration should exist despite failed reply")
	}
}

func TestGenerateCredential(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		c, err := generateCredential(4)
		if err != nil {
			t.Fatal(err)
		}
		if len(c) != 4 {
			t.Fatalf("len(%q) = %d", c, len(c))
		}
		for _, r := range c {
			if !strings.ContainsRune(credentialAlphabet, r) {
				t.Fatalf("credential %q outside alphabet", c)
			}
		}
		seen[c] = true
	}
	// 26^4 combinations; 200 draws colliding into one bucket would mean a
	// broken generator.
	if len(seen) < 150 {
		t.Fatalf("only %d distinct credentials in 200 draws", len(seen))
	}
}
