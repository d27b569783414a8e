package store

import (
	"context"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

// InsertResult is the outcome of an idempotent message insert.
type InsertResult int

const (
	// Inserted means a new row was written.
	Inserted InsertResult = iota
	// DuplicateIgnored means the unique constraint on message_id absorbed
	// the insert. This is a benign signal, not an error.
	DuplicateIgnored
)

// CreateResult is the outcome of a registration create.
type CreateResult int

const (
	// Created means a new registration row was written.
	Created CreateResult = iota
	// AlreadyExists means a row for the phone existed; no new credential
	// was issued.
	AlreadyExists
)

// DataStore defines the persistence boundary for messages and registrations.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Message operations. InsertMessage is the idempotent Persistence
	// Writer: the unique constraint on message_id turns concurrent or
	// redelivered inserts of the same event into DuplicateIgnored.
	InsertMessage(ctx context.Context, msg *models.Message) (InsertResult, error)
	// ListMessages returns messages oldest-first, optionally filtered to
	// those sent to or from the canonical address. address == "" lists all.
	ListMessages(ctx context.Context, address string, limit int) ([]models.Message, error)
	CountMessages(ctx context.Context) (int64, error)

	// Registration operations
	FindRegistration(ctx context.Context, countryCode, phoneNumber string) (*models.Registration, error)
	CreateRegistration(ctx context.Context, reg *models.Registration) (CreateResult, error)
	CountRegistrations(ctx context.Context) (int64, error)
}
