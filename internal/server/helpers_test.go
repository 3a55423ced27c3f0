package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/presence-gateway/internal/auth"
	"github.com/Tyrowin/presence-gateway/internal/identity"
	"github.com/Tyrowin/presence-gateway/internal/presence"
)

const (
	testSecret = "test-secret"
	testOrigin = "http://localhost:8080"
	readWait   = 2 * time.Second
)

// testEnv is a running gateway behind an httptest server. Connection ids
// are assigned sequentially as conn-1, conn-2, ...
type testEnv struct {
	gw     *Gateway
	server *httptest.Server
	wsURL  string
	tokens *auth.JWTManager
}

func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.JWTSecret = testSecret
	cfg.IdentityFile = "unused.yaml"
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	dir := identity.NewDirectory(
		identity.User{ID: "u1", FullName: "Ana", IsActive: true},
		identity.User{ID: "u2", FullName: "Bob", IsActive: true},
		identity.User{ID: "u3", FullName: "Cy", IsActive: true},
		identity.User{ID: "inactive", FullName: "Gone", IsActive: false},
	)
	tokens := auth.NewJWTManager(testSecret, "", time.Hour)

	gw := NewGateway(cfg, tokens, dir, zerolog.Nop())
	var seq atomic.Int64
	gw.newID = func() string { return fmt.Sprintf("conn-%d", seq.Add(1)) }
	gw.Start()

	srv := httptest.NewServer(gw.Routes())
	t.Cleanup(func() {
		_ = gw.Shutdown(2 * time.Second)
		srv.Close()
	})

	return &testEnv{
		gw:     gw,
		server: srv,
		wsURL:  "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
		tokens: tokens,
	}
}

func (e *testEnv) token(t *testing.T, subject string) string {
	t.Helper()
	token, err := e.tokens.Generate(subject)
	require.NoError(t, err)
	return token
}

// dial opens a WebSocket with the token in the authentication header.
func (e *testEnv) dial(token string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Origin", testOrigin)
	if token != "" {
		headers.Set(auth.DefaultHeader, token)
	}
	return dialWebSocket(e.wsURL, headers)
}

// connect dials as subject and consumes the presence snapshot that every
// admitted connection receives first.
func (e *testEnv) connect(t *testing.T, subject string) (*websocket.Conn, []presence.Entry) {
	t.Helper()

	conn, err := e.dial(e.token(t, subject))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, readClientsUpdated(t, conn)
}

func dialWebSocket(url string, headers http.Header) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func readClientsUpdated(t *testing.T, conn *websocket.Conn) []presence.Entry {
	t.Helper()

	env := readEnvelope(t, conn)
	require.Equal(t, EventClientsUpdated, env.Event)

	var entries []presence.Entry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	return entries
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()

	env := readEnvelope(t, conn)
	require.Equal(t, EventMessageFromServer, env.Event)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	return msg
}

func sendChat(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()

	data, err := json.Marshal(ClientMessage{Message: text})
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(Envelope{Event: EventMessageFromClient, Data: data}))
}

// expectNoMessage asserts nothing arrives within d. The connection cannot be
// read from afterwards.
func expectNoMessage(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("expected no message, got %s", data)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Fatalf("expected read timeout, got %v", err)
	}
}

// expectPolicyClose asserts the server closed the connection with 1008.
func expectPolicyClose(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readWait)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected close: %v", err)
}

func closeWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
