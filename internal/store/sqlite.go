package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vikrantchavan9/whatsapp-web-messenger/internal/models"
)

// SQLiteStore handles SQLite database operations. It backs single-node
// deployments that run without a PostgreSQL server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/messenger.db".
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/messenger.db"
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT UNIQUE NOT NULL,
		direction TEXT NOT NULL,
		sender TEXT NOT NULL,
		receiver TEXT NOT NULL,
		body TEXT NOT NULL DEFAULT '',
		attachment_name TEXT,
		attachment_locator TEXT,
		attachment_mime TEXT,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages (sender);
	CREATE INDEX IF NOT EXISTS idx_messages_receiver ON messages (receiver);

	CREATE TABLE IF NOT EXISTS registrations (
		country_code TEXT NOT NULL,
		phone_number TEXT NOT NULL,
		name TEXT NOT NULL,
		credential TEXT,
		credential_expires_at DATETIME,
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (country_code, phone_number)
	);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// InsertMessage writes a message exactly once; INSERT OR IGNORE plus the
// unique index on message_id supplies the duplicate signal.
func (s *SQLiteStore) InsertMessage(ctx context.Context, msg *models.Message) (InsertResult, error) {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	var name, locator, mime *string
	if msg.Attachment != nil {
		name = &msg.Attachment.Name
		locator = &msg.Attachment.Locator
		mime = &msg.Attachment.MIMEType
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (message_id, direction, sender, receiver, body,
			attachment_name, attachment_locator, attachment_mime, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, msg.MessageID, string(msg.Direction), msg.Sender, msg.Receiver, msg.Body,
		name, locator, mime, msg.CreatedAt)
	if err != nil {
		return DuplicateIgnored, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return DuplicateIgnored, err
	}
	if n == 0 {
		return DuplicateIgnored, nil
	}
	return Inserted, nil
}

// ListMessages returns messages oldest-first, optionally filtered by address.
func (s *SQLiteStore) ListMessages(ctx context.Context, address string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message_id, direction, sender, receiver, body,
		       attachment_name, attachment_locator, attachment_mime, created_at
		FROM messages
		WHERE ? = '' OR sender = ? OR receiver = ?
		ORDER BY id ASC
		LIMIT ?
	`, address, address, address, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Message
	for rows.Next() {
		var m models.Message
		var direction string
		var name, locator, mime sql.NullString

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
		if name.Valid {
			m.Attachment = &models.Attachment{
				Name:     name.String,
				Locator:  locator.String,
				MIMEType: mime.String,
			}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountMessages returns the total number of stored messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}

// FindRegistration retrieves a registration by canonical phone key, or nil
// if none exists.
func (s *SQLiteStore) FindRegistration(ctx context.Context, countryCode, phoneNumber string) (*models.Registration, error) {
	reg := &models.Registration{}
	var credential sql.NullString
	var expires sql.NullTime
	var active int

	err := s.db.QueryRowContext(ctx, `
		SELECT country_code, phone_number, name, credential, credential_expires_at, active, created_at
		FROM registrations
		WHERE country_code = ? AND phone_number = ?
	`, countryCode, phoneNumber).Scan(
		&reg.CountryCode,
		&reg.PhoneNumber,
		&reg.Name,
		&credential,
		&expires,
		&active,
		&reg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	reg.Credential = credential.String
	if expires.Valid {
		reg.CredentialExp = expires.Time
	}
	reg.Active = active != 0
	return reg, nil
}

// CreateRegistration writes a registration once per canonical phone.
func (s *SQLiteStore) CreateRegistration(ctx context.Context, reg *models.Registration) (CreateResult, error) {
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO registrations (country_code, phone_number, name, credential, credential_expires_at, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, reg.CountryCode, reg.PhoneNumber, reg.Name, reg.Credential, reg.CredentialExp, reg.Active, reg.CreatedAt)
	if err != nil {
		return AlreadyExists, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return AlreadyExists, err
	}
	if n == 0 {
		return AlreadyExists, nil
	}
	return Created, nil
}

// CountRegistrations returns the total number of registrations.
func (s *SQLiteStore) CountRegistrations(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&n)
	return n, err
}
