package chat

import (
	"time"

	"github.com/google/uuid"
)

// Session names a local history of the /ws broadcast. Messages received
// while joined under a session are stored against its ID, so rejoining by
// name replays them.
type Session struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Timestamp time.Time `db:"timestamp"`
}

// NewSession starts a fresh history under name.
func NewSession(name string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Name:      name,
		Timestamp: time.Now(),
	}
}
