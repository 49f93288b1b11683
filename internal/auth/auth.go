package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gennadis/apiclient/internal/api"
	"github.com/gennadis/apiclient/internal/session"
)

const (
	errorChanBufferSize       = 100
	rotateTokenTickerInterval = time.Minute * 20
)

// ErrSessionChanged is returned by Refresh when the session it started from
// was replaced or signed out before the new token arrived.
var ErrSessionChanged = errors.New("session changed during token refresh")

// Backend is the part of the API the handler talks to.
type Backend interface {
	SignUp(ctx context.Context, in api.SignUpRequest) (*api.AuthResponse, error)
	SignIn(ctx context.Context, in api.SignInRequest) (*api.AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (string, error)
}

// Store persists signed-in sessions between runs.
type Store interface {
	Write(s session.Session) error
	Latest(email string) (*session.Session, error)
	Delete(id string) error
}

// AuthenticationHandler keeps the current session and rotates its access
// token. It is safe for concurrent use and serves as an api.TokenSource.
type AuthenticationHandler struct {
	backend Backend
	store   Store

	mu      sync.RWMutex
	current *session.Session

	interval  time.Duration
	ErrorChan chan error
}

var _ api.TokenSource = (*AuthenticationHandler)(nil)

// NewAuthenticationHandler creates a handler. store may be nil, in which case
// sessions live only in memory.
func NewAuthenticationHandler(backend Backend, store Store) *AuthenticationHandler {
	return &AuthenticationHandler{
		backend:   backend,
		store:     store,
		interval:  rotateTokenTickerInterval,
		ErrorChan: make(chan error, errorChanBufferSize),
	}
}

// AccessToken returns the current access token or "" when signed out.
func (ah *AuthenticationHandler) AccessToken() string {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	if ah.current == nil {
		return ""
	}
	return ah.current.AccessToken
}

// Session returns a copy of the current session.
func (ah *AuthenticationHandler) Session() (session.Session, bool) {
	ah.mu.RLock()
	defer ah.mu.RUnlock()
	if ah.current == nil {
		return session.Session{}, false
	}
	return *ah.current, true
}

func (ah *AuthenticationHandler) SignIn(ctx context.Context, email, password string) (*api.User, error) {
	res, err := ah.backend.SignIn(ctx, api.SignInRequest{Email: email, Password: password})
	if err != nil {
		return nil, err
	}
	if err := ah.setSession(session.NewSession(email, res.Token)); err != nil {
		return nil, err
	}
	slog.Info("Signed in", slog.String("email", email))
	return &res.User, nil
}

func (ah *AuthenticationHandler) SignUp(ctx context.Context, in api.SignUpRequest) (*api.User, error) {
	res, err := ah.backend.SignUp(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := ah.setSession(session.NewSession(in.Email, res.Token)); err != nil {
		return nil, err
	}
	slog.Info("Signed up", slog.String("email", in.Email))
	return &res.User, nil
}

// Restore loads the newest stored session for email ("" for any user).
func (ah *AuthenticationHandler) Restore(email string) error {
	if ah.store == nil {
		return errors.New("no session store configured")
	}
	s, err := ah.store.Latest(email)
	if err != nil {
		return fmt.Errorf("failed to restore session: %w", err)
	}
	ah.mu.Lock()
	ah.current = s
	ah.mu.Unlock()
	slog.Debug("session restored", slog.String("email", s.Email))
	return nil
}

// Refresh exchanges the refresh token of the current session for a new access token.
func (ah *AuthenticationHandler) Refresh(ctx context.Context) error {
	current, ok := ah.Session()
	if !ok || current.RefreshToken == "" {
		return api.ErrUnauthenticated
	}
	accessToken, err := ah.backend.RefreshToken(ctx, current.RefreshToken)
	if err != nil {
		return err
	}

	ah.mu.Lock()
	defer ah.mu.Unlock()
	if ah.current == nil || ah.current.ID != current.ID {
		return ErrSessionChanged
	}
	current.AccessToken = accessToken
	current.Timestamp = time.Now()
	return ah.setSessionLocked(&current)
}

// SignOut forgets the current session and removes it from the store.
func (ah *AuthenticationHandler) SignOut() error {
	ah.mu.Lock()
	defer ah.mu.Unlock()
	current := ah.current
	ah.current = nil

	if current == nil || ah.store == nil {
		return nil
	}
	return ah.store.Delete(current.ID)
}

// Run rotates the access token on a ticker until ctx is done. Rotation
// errors are sent to ErrorChan without blocking.
func (ah *AuthenticationHandler) Run(ctx context.Context) *sync.WaitGroup {
	ticker := time.NewTicker(ah.interval)
	wg := &sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ah.rotateToken(ctx)

			case <-ctx.Done():
				return
			}
		}
	}()

	return wg
}

func (ah *AuthenticationHandler) rotateToken(ctx context.Context) {
	if err := ah.Refresh(ctx); err != nil {
		slog.Error("Failed to rotate access token", "error", err)
		select {
		case ah.ErrorChan <- err:
		default:
		}
		return
	}
	slog.Info("Access token rotated successfully")
}

func (ah *AuthenticationHandler) setSession(s *session.Session) error {
	ah.mu.Lock()
	defer ah.mu.Unlock()
	return ah.setSessionLocked(s)
}

// setSessionLocked must be called with ah.mu held.
func (ah *AuthenticationHandler) setSessionLocked(s *session.Session) error {
	ah.current = s
	if ah.store == nil {
		return nil
	}
	if err := ah.store.Write(*s); err != nil {
		slog.Error("Failed to persist session", "email", s.Email, "error", err)
		return err
	}
	return nil
}
