// Package registration implements the message-driven sign-up flow: a user
// registers by sending "register <name>" from their own number, and the
// service replies on the same channel with a short-lived credential.
package registration

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/metrics"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/phone"
	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/store"
)

const (
	// DefaultCommandPrefix triggers the flow, matched case-insensitively.
	DefaultCommandPrefix = "register "
	// DefaultCredentialTTL is the validity window of an issued credential.
	DefaultCredentialTTL = 10 * time.Minute
	// DefaultCredentialLength is the issued credential length.
	DefaultCredentialLength = 4

	// credentialAlphabet avoids digits and lowercase so the code survives
	// being read aloud or retyped.
	credentialAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// Store is the slice of the persistence boundary the engine needs.
type Store interface {
	FindRegistration(ctx context.Context, countryCode, phoneNumber string) (*models.Registration, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) (store.CreateResult, error)
}

// Replier sends the credential reply back over the transport, best-effort.
type Replier interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// Notifier announces completed registrations to live subscribers.
type Notifier interface {
	PublishRegistered(phone string)
}

// Options tune the engine; zero values fall back to the defaults above.
type Options struct {
	CommandPrefix    string
	CredentialTTL    time.Duration
	CredentialLength int
}

// Engine is the registration state machine. A phone is either Unknown (no
// record) or Registered (a record exists); Registered is terminal here, and
// the credential expiry is the only pending-ness signal downstream verifiers
// consult.
type Engine struct {
	store    Store
	replier  Replier
	notifier Notifier
	logger   zerolog.Logger

	prefix  string
	ttl     time.Duration
	credLen int
	now     func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(st Store, replier Replier, notifier Notifier, logger zerolog.Logger, opts Options) *Engine {
	if opts.CommandPrefix == "" {
		opts.CommandPrefix = DefaultCommandPrefix
	}
	if opts.CredentialTTL <= 0 {
		opts.CredentialTTL = DefaultCredentialTTL
	}
	if opts.CredentialLength <= 0 {
		opts.CredentialLength = DefaultCredentialLength
	}
	return &Engine{
		store:    st,
		replier:  replier,
		notifier: notifier,
		logger:   logger,
		prefix:   opts.CommandPrefix,
		ttl:      opts.CredentialTTL,
		credLen:  opts.CredentialLength,
		now:      time.Now,
	}
}

// Evaluate inspects inbound text from the given sender and runs the
// registration flow when it is a command. The caller records the original
// message regardless of the outcome; every rejection here is silent by
// policy, so Evaluate only returns an error for store failures.
func (e *Engine) Evaluate(ctx context.Context, sender phone.Number, body string) error {
	name, ok := e.parseCommand(body)
	if !ok {
		return nil
	}

	log := e.logger.With().Str("phone", sender.Address()).Logger()

	if !validName(name) {
		// Deliberate policy: bad names are dropped without a reply.
		log.Debug().Msg("registration name rejected")
		metrics.RegistrationsRejected.WithLabelValues("invalid_name").Inc()
		return nil
	}

	existing, err := e.store.FindRegistration(ctx, sender.CountryCode, sender.Subscriber)
	if err != nil {
		return fmt.Errorf("find registration: %w", err)
	}
	if existing != nil {
		log.Info().Msg("phone already registered, ignoring command")
		metrics.RegistrationsRejected.WithLabelValues("already_registered").Inc()
		return nil
	}

	credential, err := generateCredential(e.credLen)
	if err != nil {
		return fmt.Errorf("generate credential: %w", err)
	}

	reg := &models.Registration{
		CountryCode:   sender.CountryCode,
		PhoneNumber:   sender.Subscriber,
		Name:          name,
		Credential:    credential,
		CredentialExp: e.now().Add(e.ttl).UTC(),
		Active:        true,
	}

	result, err := e.store.CreateRegistration(ctx, reg)
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	if result == store.AlreadyExists {
		// Another instance won the race; its credential stands.
		log.Info().Msg("registration created concurrently elsewhere, ignoring command")
		metrics.RegistrationsRejected.WithLabelValues("already_registered").Inc()
		return nil
	}

	metrics.CredentialsIssued.Inc()
	log.Info().Str("name", name).Msg("registration created")

	reply := fmt.Sprintf("Hi %s! Your verification code is %s. It expires in %d minutes.",
		name, credential, int(e.ttl.Minutes()))
	if _, err := e.replier.SendText(ctx, sender.Address(), reply); err != nil {
		// Best-effort: the record exists either way and the transport is
		// not retried from here.
		log.Warn().Err(err).Msg("credential reply failed")
	}

	if e.notifier != nil {
		e.notifier.PublishRegistered(sender.Address())
	}
	return nil
}

// parseCommand returns the candidate name if body starts with the command
// prefix (case-insensitive).
func (e *Engine) parseCommand(body string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	if len(trimmed) < len(e.prefix) {
		return "", false
	}
	if !strings.EqualFold(trimmed[:len(e.prefix)], e.prefix) {
		return "", false
	}
	return strings.TrimSpace(trimmed[len(e.prefix):]), true
}

// validName accepts names of at least two characters containing only letters
// and whitespace.
func validName(name string) bool {
	if len([]rune(name)) < 2 {
		return false
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// generateCredential draws length characters from the unambiguous alphabet
// using crypto/rand.
func generateCredential(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = credentialAlphabet[int(b)%len(credentialAlphabet)]
	}
	return string(out), nil
}
