package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Broadcast frames look like "ID: <sender key> | Message: <text>".
const (
	senderPrefix     = "ID: "
	contentSeparator = " | Message: "
)

// Message is one frame received on the broadcast socket
type Message struct {
	ID        string    `db:"id"`
	SessionID string    `db:"session_id"`
	SenderID  string    `db:"sender_id"`
	Content   string    `db:"content"`
	Timestamp time.Time `db:"timestamp"`
}

// ParseBroadcast splits a raw frame into sender and content. Frames that do
// not follow the broadcast format are kept whole as content.
func ParseBroadcast(sessionID, raw string) Message {
	msg := Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Content:   raw,
		Timestamp: time.Now(),
	}
	rest, ok := strings.CutPrefix(raw, senderPrefix)
	if !ok {
		return msg
	}
	sender, content, ok := strings.Cut(rest, contentSeparator)
	if !ok {
		return msg
	}
	msg.SenderID = sender
	msg.Content = content
	return msg
}
