package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gennadis/apiclient/internal/chat"
	"github.com/jmoiron/sqlx"
)

const selectMessages = "SELECT id, session_id, sender_id, content, timestamp FROM messages"

// Messages is a storage for broadcast messages received in chat sessions
type Messages struct {
	db *sqlx.DB
}

// NewMessages creates a new Messages storage
func NewMessages(db *sqlx.DB) (*Messages, error) {
	createMessagesTable := `
	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		sender_id TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	)
	`
	if _, err := db.Exec(createMessagesTable); err != nil {
		return nil, fmt.Errorf("failed to create messages table: %w", err)
	}
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS messages_session_id ON messages (session_id, timestamp)"); err != nil {
		return nil, fmt.Errorf("failed to create messages index: %w", err)
	}

	return &Messages{db: db}, nil
}

// ReadBySessionID returns the messages of a session, oldest first
func (m *Messages) ReadBySessionID(sessionID string) ([]chat.Message, error) {
	var messages []chat.Message
	err := m.db.Select(&messages, selectMessages+" WHERE session_id = ? ORDER BY timestamp ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages for session_id %s: %w", sessionID, err)
	}

	slog.Debug("read messages by session_id",
		slog.String("session_id", sessionID),
		slog.Int("count", len(messages)),
	)
	return messages, nil
}

// Recent returns up to limit of the newest messages of a session, oldest first
func (m *Messages) Recent(sessionID string, limit int) ([]chat.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	var messages []chat.Message
	query := "SELECT * FROM (" + selectMessages + " WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?) ORDER BY timestamp ASC"
	if err := m.db.Select(&messages, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to get recent messages for session_id %s: %w", sessionID, err)
	}
	return messages, nil
}

// Write stores a received message. Writing the same id twice is a no-op.
func (m *Messages) Write(message chat.Message) error {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}
	insertQuery := "INSERT OR IGNORE INTO messages (id, session_id, sender_id, content, timestamp) VALUES (?, ?, ?, ?, ?)"
	if _, err := m.db.Exec(insertQuery, message.ID, message.SessionID, message.SenderID, message.Content, message.Timestamp); err != nil {
		return fmt.Errorf("failed to insert message %s: %w", message.ID, err)
	}

	slog.Debug("message added to messages",
		slog.String("id", message.ID),
		slog.String("session_id", message.SessionID),
		slog.String("sender_id", message.SenderID),
		slog.Int("content_length", len(message.Content)),
	)
	return nil
}

// DeleteBySessionID removes every message of a session and reports how many were removed
func (m *Messages) DeleteBySessionID(sessionID string) (int64, error) {
	res, err := m.db.Exec("DELETE FROM messages WHERE session_id = ?", sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages for session_id %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted messages: %w", err)
	}

	slog.Debug("messages deleted",
		slog.String("session_id", sessionID),
		slog.Int64("count", n),
	)
	return n, nil
}
