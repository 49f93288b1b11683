package session

import (
	"time"

	"github.com/gennadis/apiclient/internal/api"
	"github.com/google/uuid"
)

// Session represents a signed-in identity and its token pair
type Session struct {
	ID           string    `db:"id"`
	Email        string    `db:"email"`
	AccessToken  string    `db:"access_token"`
	RefreshToken string    `db:"refresh_token"`
	Timestamp    time.Time `db:"timestamp"`
}

// NewSession creates a new Session instance
func NewSession(email string, token api.Token) *Session {
	return &Session{
		ID:           uuid.NewString(),
		Email:        email,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Timestamp:    time.Now(),
	}
}
