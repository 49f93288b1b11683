package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gennadis/apiclient/internal/chat"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a looked up row does not exist
var ErrNotFound = errors.New("not found")

// Sessions is a storage for chat sessions
type Sessions struct {
	db *sqlx.DB
}

// NewSessions creates a new Sessions storage
func NewSessions(db *sqlx.DB) (*Sessions, error) {
	createSessionsTable := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	)
	`
	if _, err := db.Exec(createSessionsTable); err != nil {
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Sessions{db: db}, nil
}

// Read returns all sessions, newest first
func (s *Sessions) Read() ([]chat.Session, error) {
	var sessions []chat.Session
	err := s.db.Select(&sessions, "SELECT id, name, timestamp FROM sessions ORDER BY timestamp DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}

	slog.Debug("read sessions",
		slog.Int("count", len(sessions)),
	)
	return sessions, nil
}

// ByName returns the newest session with the given name
func (s *Sessions) ByName(name string) (*chat.Session, error) {
	var session chat.Session
	err := s.db.Get(&session, "SELECT id, name, timestamp FROM sessions WHERE name = ? ORDER BY timestamp DESC LIMIT 1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %q: %w", name, err)
	}
	return &session, nil
}

// Write writes new session to the storage
func (s *Sessions) Write(session chat.Session) error {
	if session.Timestamp.IsZero() {
		session.Timestamp = time.Now()
	}
	insertQuery := "INSERT OR IGNORE INTO sessions (id, name, timestamp) VALUES (?, ?, ?)"
	if _, err := s.db.Exec(insertQuery, session.ID, session.Name, session.Timestamp); err != nil {
		return fmt.Errorf("failed to insert session %+v: %w", session, err)
	}

	slog.Debug("session added to sessions",
		slog.String("id", session.ID),
		slog.String("name", session.Name),
		slog.Time("timestamp", session.Timestamp),
	)
	return nil
}

// Delete deletes the session and its messages in one transaction
func (s *Sessions) Delete(id string) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin delete of session %s: %w", id, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session by id %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.Exec("DELETE FROM messages WHERE session_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete messages of session %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete of session %s: %w", id, err)
	}

	slog.Debug("session deleted from sessions",
		slog.String("id", id),
	)
	return nil
}
