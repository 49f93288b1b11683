package chat

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

const socketPath = "ws"

// Conn is a connection to the broadcast socket. Send and Receive may be
// called from different goroutines.
type Conn struct {
	ws      *websocket.Conn
	session *Session
	writeMu sync.Mutex
}

// SocketURL maps an http(s) base URL to the ws(s) URL of the broadcast socket.
func SocketURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", fmt.Errorf("failed to parse base url %q: %w", baseURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q in base url %q", u.Scheme, baseURL)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	u.Path += socketPath
	u.RawQuery = ""
	return u.String(), nil
}

// Dial opens the broadcast socket of the backend at baseURL for session.
func Dial(ctx context.Context, baseURL string, session *Session, header http.Header) (*Conn, error) {
	target, err := SocketURL(baseURL)
	if err != nil {
		return nil, err
	}
	ws, res, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if res != nil {
			slog.Error("Failed to open chat socket", "url", target, "status", res.StatusCode, "error", err)
		} else {
			slog.Error("Failed to open chat socket", "url", target, "error", err)
		}
		return nil, err
	}
	slog.Debug("chat socket opened",
		slog.String("url", target),
		slog.String("session_id", session.ID),
	)
	return &Conn{ws: ws, session: session}, nil
}

func (c *Conn) Session() *Session {
	return c.session
}

func (c *Conn) Send(text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}
	return nil
}

// Receive blocks until the next broadcast frame arrives.
func (c *Conn) Receive() (Message, error) {
	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return Message{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return ParseBroadcast(c.session.ID, string(data)), nil
	}
}

// Close sends a normal close frame and releases the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// IsClosed reports whether err marks a normally closed socket.
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
