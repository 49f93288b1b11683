package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gennadis/apiclient/internal/session"
	"github.com/jmoiron/sqlx"
)

// Tokens is a storage for signed-in sessions and their token pairs
type Tokens struct {
	db *sqlx.DB
}

// NewTokens creates a new Tokens storage
func NewTokens(db *sqlx.DB) (*Tokens, error) {
	createTokensTable := `
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		access_token TEXT NOT NULL,
		refresh_token TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`
	if _, err := db.Exec(createTokensTable); err != nil {
		return nil, fmt.Errorf("failed to create tokens table: %w", err)
	}

	return &Tokens{db: db}, nil
}

// Write inserts the session or replaces the stored tokens of the same id
func (t *Tokens) Write(s session.Session) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	upsertQuery := `
	INSERT INTO tokens (id, email, access_token, refresh_token, timestamp) VALUES (:id, :email, :access_token, :refresh_token, :timestamp)
	ON CONFLICT(id) DO UPDATE SET access_token = excluded.access_token, refresh_token = excluded.refresh_token, timestamp = excluded.timestamp
	`
	if _, err := t.db.NamedExec(upsertQuery, s); err != nil {
		return fmt.Errorf("failed to write tokens for %s: %w", s.Email, err)
	}

	slog.Debug("tokens stored",
		slog.String("id", s.ID),
		slog.String("email", s.Email),
		slog.Time("timestamp", s.Timestamp),
	)
	return nil
}

// Latest returns the newest stored session for email, or for anyone when email is empty
func (t *Tokens) Latest(email string) (*session.Session, error) {
	var s session.Session
	var err error
	if email == "" {
		err = t.db.Get(&s, "SELECT id, email, access_token, refresh_token, timestamp FROM tokens ORDER BY timestamp DESC LIMIT 1")
	} else {
		err = t.db.Get(&s, "SELECT id, email, access_token, refresh_token, timestamp FROM tokens WHERE email = ? ORDER BY timestamp DESC LIMIT 1", email)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens for %q: %w", email, err)
	}
	return &s, nil
}

// Delete removes the stored session by id
func (t *Tokens) Delete(id string) error {
	if _, err := t.db.Exec("DELETE FROM tokens WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete tokens by id %s: %w", id, err)
	}

	slog.Debug("tokens deleted",
		slog.String("id", id),
	)
	return nil
}
