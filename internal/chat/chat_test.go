package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBroadcast(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		sender  string
		content string
	}{
		{name: "broadcast frame", raw: "ID: abc== | Message: hello", sender: "abc==", content: "hello"},
		{name: "separator inside content", raw: "ID: k | Message: a | Message: b", sender: "k", content: "a | Message: b"},
		{name: "empty content", raw: "ID: k | Message: ", sender: "k", content: ""},
		{name: "no prefix", raw: "hello", sender: "", content: "hello"},
		{name: "prefix without separator", raw: "ID: k hello", sender: "", content: "ID: k hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := ParseBroadcast("s1", tt.raw)
			assert.Equal(t, tt.sender, msg.SenderID)
			assert.Equal(t, tt.content, msg.Content)
			assert.Equal(t, "s1", msg.SessionID)
			assert.NotEmpty(t, msg.ID)
			assert.False(t, msg.Timestamp.IsZero())
		})
	}
}

func TestSocketURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8000", want: "ws://localhost:8000/ws"},
		{base: "https://api.example.com/", want: "wss://api.example.com/ws"},
		{base: "https://api.example.com/prefix", want: "wss://api.example.com/prefix/ws"},
		{base: "ws://localhost:8000", want: "ws://localhost:8000/ws"},
		{base: "ftp://localhost", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			got, err := SocketURL(tt.base)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// broadcastServer relays every text frame to all connected clients,
// prefixed with the sender's websocket key.
func broadcastServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	var mu sync.Mutex
	clients := map[string]*websocket.Conn{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			http.NotFound(w, r)
			return
		}
		key := r.Header.Get("Sec-WebSocket-Key")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		mu.Lock()
		clients[key] = ws
		mu.Unlock()
		defer func() {
			mu.Lock()
			delete(clients, key)
			mu.Unlock()
			ws.Close()
		}()
		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			mu.Lock()
			for _, c := range clients {
				_ = c.WriteMessage(websocket.TextMessage, []byte(fmt.Sprintf("ID: %s | Message: %s", key, data)))
			}
			mu.Unlock()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestConn_SendReceive(t *testing.T) {
	srv := broadcastServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session := NewSession("general")
	conn, err := Dial(ctx, srv.URL, session, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send("hello"))
	msg, err := conn.Receive()
	require.NoError(t, err)

	assert.Equal(t, "hello", msg.Content)
	assert.NotEmpty(t, msg.SenderID)
	assert.Equal(t, session.ID, msg.SessionID)
	assert.Same(t, session, conn.Session())
}

func TestConn_BroadcastReachesOtherClients(t *testing.T) {
	srv := broadcastServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice, err := Dial(ctx, srv.URL, NewSession("alice"), nil)
	require.NoError(t, err)
	defer alice.Close()
	// an echo proves the server registered the connection
	require.NoError(t, alice.Send("alice ready"))
	_, err = alice.Receive()
	require.NoError(t, err)

	bob, err := Dial(ctx, srv.URL, NewSession("bob"), nil)
	require.NoError(t, err)
	defer bob.Close()
	require.NoError(t, bob.Send("bob ready"))
	_, err = bob.Receive()
	require.NoError(t, err)
	msg, err := alice.Receive()
	require.NoError(t, err)
	assert.Equal(t, "bob ready", msg.Content)

	require.NoError(t, alice.Send("hi bob"))
	msg, err = bob.Receive()
	require.NoError(t, err)
	assert.Equal(t, "hi bob", msg.Content)
}

func TestDial_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := Dial(context.Background(), srv.URL, NewSession("x"), nil)
	assert.Error(t, err)
}
