package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collab-hub/relay/internal/model"
	"github.com/collab-hub/relay/internal/relay"
)

// echoDispatcher answers every event by sending it back to its sender and
// records the connection lifecycle.
type echoDispatcher struct {
	hub *Hub

	mu           sync.Mutex
	connected    map[string]relay.Namespace
	disconnected []string
	events       []string
}

func (d *echoDispatcher) Connect(connID string, ns relay.Namespace) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected[connID] = ns
}

func (d *echoDispatcher) Handle(connID string, ns relay.Namespace, env model.Envelope) {
	d.mu.Lock()
	d.events = append(d.events, env.Event)
	d.mu.Unlock()
	d.hub.SendTo(connID, env.Event, env.Data)
}

func (d *echoDispatcher) Disconnect(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.disconnected = append(d.disconnected, connID)
}

func (d *echoDispatcher) disconnectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.disconnected)
}

func newTestServer(t *testing.T, origins ...string) (*httptest.Server, *Hub, *echoDispatcher) {
	t.Helper()
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	hub := NewHub()
	d := &echoDispatcher{hub: hub, connected: make(map[string]relay.Namespace)}
	h := NewHandler(hub, d, NewOriginPolicy(origins), Config{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		h.HandleConnection(w, r, relay.NamespaceMain)
	})
	mux.HandleFunc("/ws/terminal", func(w http.ResponseWriter, r *http.Request) {
		h.HandleConnection(w, r, relay.NamespaceTerminal)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return srv, hub, d
}

func dial(t *testing.T, srv *httptest.Server, path string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) model.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env model.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestConnectionRoundTrip(t *testing.T) {
	srv, hub, d := newTestServer(t)
	conn := dial(t, srv, "/ws", nil)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteJSON(map[string]any{"data": "no event"}))
	for _, code := range []string{"a", "b", "c"} {
		require.NoError(t, conn.WriteJSON(model.Frame{Event: model.EventCodeChange, Data: model.CodeChangeEvent{Code: code}}))
	}

	for _, code := range []string{"a", "b", "c"} {
		env := readEnvelope(t, conn)
		assert.Equal(t, model.EventCodeChange, env.Event)
		assert.JSONEq(t, `{"code":"`+code+`"}`, string(env.Data))
	}

	d.mu.Lock()
	assert.Equal(t, []string{model.EventCodeChange, model.EventCodeChange, model.EventCodeChange}, d.events)
	for _, ns := range d.connected {
		assert.Equal(t, relay.NamespaceMain, ns)
	}
	d.mu.Unlock()
}

func TestDisconnectRunsCleanup(t *testing.T) {
	srv, hub, d := newTestServer(t)
	conn := dial(t, srv, "/ws/terminal", nil)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	require.Eventually(t, func() bool { return d.disconnectCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.ClientCount())

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Equal(t, relay.NamespaceTerminal, d.connected[d.disconnected[0]])
}

func TestOriginRejected(t *testing.T) {
	srv, _, _ := newTestServer(t, "http://localhost:5173")
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{}
	header.Set("Origin", "http://evil.test")
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:5173")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()

	// Non-browser clients send no Origin.
	conn, _, err = websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	conn.Close()
}
