package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS messages (
	id BIGSERIAL PRIMARY KEY,
	message_id TEXT UNIQUE NOT NULL,
	direction TEXT NOT NULL,
	sender TEXT NOT NULL,
	receiver TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	attachment_name TEXT,
	attachment_locator TEXT,
	attachment_mime TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender);
CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver);

CREATE TABLE IF NOT EXISTS registrations (
	country_code TEXT NOT NULL,
	phone_number TEXT NOT NULL,
	name TEXT NOT NULL,
	credential TEXT,
	credential_expires_at TIMESTAMPTZ,
	active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (country_code, phone_number)
);
`

// Migrate creates the schema if it does not exist. Run once at startup.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresSchema)
	return err
}

// InsertMessage writes a message exactly once. A second insert with the same
// message_id returns DuplicateIgnored; the caller suppresses its broadcast.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg *models.Message) (InsertResult, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var name, locator, mime *string
	if msg.Attachment != nil {
		name = &msg.Attachment.Name
		locator = &msg.Attachment.Locator
		mime = &msg.Attachment.MIMEType
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO messages (message_id, direction, sender, receiver, body,
			attachment_name, attachment_locator, attachment_mime, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (message_id) DO NOTHING
	`, msg.MessageID, string(msg.Direction), msg.Sender, msg.Receiver, msg.Body,
		name, locator, mime, msg.CreatedAt)
	if err != nil {
		return DuplicateIgnored, err
	}
	if tag.RowsAffected() == 0 {
		return DuplicateIgnored, nil
	}
	return Inserted, nil
}

// ListMessages returns messages oldest-first, optionally filtered by
// canonical address on either side of the conversation.
func (s *PostgresStore) ListMessages(ctx context.Context, address string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT message_id, direction, sender, receiver, body,
		       attachment_name, attachment_locator, attachment_mime, created_at
		FROM messages
		WHERE $1 = '' OR sender = $1 OR receiver = $1
		ORDER BY id ASC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func scanMessages(rows pgx.Rows) ([]models.Message, error) {
	var out []models.Message
	for rows.Next() {
		var m models.Message
		var direction string
		var name, locator, mime *string

		if err := rows.Scan(
			&m.MessageID,
			&direction,
			&m.Sender,
			&m.Receiver,
			&m.Body,
			&name,
			&locator,
			&mime,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}

		m.Direction = models.Direction(direction)
		if name != nil {
			m.Attachment = &models.Attachment{Name: *name}
			if locator != nil {
				m.Attachment.Locator = *locator
			}
			if mime != nil {
				m.Attachment.MIMEType = *mime
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessages returns the total number of stored messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// FindRegistration retrieves a registration by canonical phone key, or nil
// if none exists.
func (s *PostgresStore) FindRegistration(ctx context.Context, countryCode, phoneNumber string) (*models.Registration, error) {
	reg := &models.Registration{}
	var credential *string
	var expires *time.Time

	err := s.pool.QueryRow(ctx, `
		SELECT country_code, phone_number, name, credential, credential_expires_at, active, created_at
		FROM registrations
		WHERE country_code = $1 AND phone_number = $2
	`, countryCode, phoneNumber).Scan(
		&reg.CountryCode,
		&reg.PhoneNumber,
		&reg.Name,
		&credential,
		&expires,
		&reg.Active,
		&reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if credential != nil {
		reg.Credential = *credential
	}
	if expires != nil {
		reg.CredentialExp = *expires
	}
	return reg, nil
}

// CreateRegistration writes a registration once per canonical phone. A
// concurrent create for the same phone reports AlreadyExists so the caller
// never issues a second credential.
func (s *PostgresStore) CreateRegistration(ctx context.Context, reg *models.Registration) (CreateResult, error) {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO registrations (country_code, phone_number, name, credential, credential_expires_at, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (country_code, phone_number) DO NOTHING
	`, reg.CountryCode, reg.PhoneNumber, reg.Name, reg.Credential, reg.CredentialExp, reg.Active, reg.CreatedAt)
	if err != nil {
		return AlreadyExists, err
	}
	if tag.RowsAffected() == 0 {
		return AlreadyExists, nil
	}
	return Created, nil
}

// CountRegistrations returns the total number of registrations.
func (s *PostgresStore) CountRegistrations(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, err
}
