package server

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatroom/internal/snapshot"
)

const frameTimeout = 2 * time.Second

type frame map[string]any

// testEnv is a running hub behind an httptest server.
type testEnv struct {
	server *httptest.Server
	hub    *Hub
	store  *snapshot.MemoryStore
}

// newTestEnv starts a hub and HTTP server whose origin is allowed. customize
// may adjust the configuration before it is applied.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	store := snapshot.NewMemory()
	hub := NewHub(store)
	testServer := httptest.NewServer(SetupRoutes(hub))
	t.Cleanup(testServer.Close)

	cfg := NewConfig()
	cfg.AllowedOrigins = append([]string{testServer.URL}, cfg.AllowedOrigins...)
	cfg.Store = snapshot.Config{Backend: snapshot.BackendMemory}
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })

	StartHub(hub)
	t.Cleanup(func() { _ = hub.Shutdown(5 * time.Second) })

	return &testEnv{server: testServer, hub: hub, store: store}
}

func (e *testEnv) wsURL(query url.Values) string {
	u, _ := url.Parse(e.server.URL)
	u.Scheme = "ws"
	u.Path = "/ws"
	u.RawQuery = query.Encode()
	return u.String()
}

func newOriginHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// dial opens a connection to room and waits for its settings frame, the last
// frame of the connect sequence. It returns the assigned identity.
func (e *testEnv) dial(t *testing.T, roomName, id string) (*websocket.Conn, string) {
	t.Helper()

	query := url.Values{}
	if roomName != "" {
		query.Set("room", roomName)
	}
	if id != "" {
		query.Set("id", id)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(query), newOriginHeader(e.server.URL))
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })

	identity := readFrame(t, conn)
	if identity["action"] != "identity" {
		t.Fatalf("Expected identity frame first, got %v", identity)
	}
	userID, _ := identity["userId"].(string)
	readUntil(t, conn, func(f frame) bool { return f["type"] == "settingsUpdate" })
	return conn, userID
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to marshal frame: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send frame: %v", err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	var f frame
	if err := json.Unmarshal(payload, &f); err != nil {
		t.Fatalf("Failed to decode frame %s: %v", payload, err)
	}
	return f
}

// readUntil reads frames until match accepts one and returns it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(frameTimeout)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if match(f) {
			return f
		}
	}
	t.Fatalf("No matching frame before deadline")
	return nil
}

// expectClosed waits for the server to close conn.
func expectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(frameTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			t.Fatalf("Connection was not closed: %v", err)
		}
		return
	}
}
