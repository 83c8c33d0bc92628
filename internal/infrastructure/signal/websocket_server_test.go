package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairlink/internal/core/domain"
	"pairlink/internal/core/ports"
	"pairlink/internal/core/services"
	"pairlink/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type testHarness struct {
	server *httptest.Server
	auth   services.AuthService
	ws     *WebSocketServer
	broker ports.BrokerService
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	auth := services.NewAuthService("test-secret", time.Hour)
	ws := NewWebSocketServer(auth, Config{}, zap.NewNop().Sugar())

	registry := memory.NewSessionRegistry(time.Minute, nil, nil)
	t.Cleanup(registry.Close)

	broker := services.NewBrokerService(
		registry,
		memory.NewConnectionTable(),
		memory.NewPresenceTracker(time.Minute),
		ws,
		nil,
		zap.NewNop().Sugar(),
	)
	ws.AttachBroker(broker)

	server := httptest.NewServer(http.HandlerFunc(ws.HandleWebSocket))
	t.Cleanup(server.Close)

	return &testHarness{server: server, auth: auth, ws: ws, broker: broker}
}

func (h *testHarness) dial(t *testing.T, identity domain.Identity, roles ...domain.Role) *websocket.Conn {
	t.Helper()

	if len(roles) == 0 {
		roles = []domain.Role{domain.RoleUser}
	}
	token, err := h.auth.GenerateToken(identity, roles)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMessage(t *testing.T, conn *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		raw = data
	}
	require.NoError(t, conn.WriteJSON(SignalMessage{Type: msgType, Payload: raw}))
}

func readMessage(t *testing.T, conn *websocket.Conn) outboundMessage {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg outboundMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketServer_RejectsMissingToken(t *testing.T) {
	h := newTestHarness(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketServer_RejectsInvalidToken(t *testing.T) {
	h := newTestHarness(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketServer_SessionRoundTrip(t *testing.T) {
	h := newTestHarness(t)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	sendMessage(t, alice, "create_session", CreateSessionPayload{Code: "4321", AudioEnabled: true})
	created := readMessage(t, alice)
	require.Equal(t, string(domain.EventCreated), created.Type)

	var createdEvent domain.CreatedEvent
	require.NoError(t, json.Unmarshal(created.Payload, &createdEvent))
	assert.Equal(t, domain.SessionCode("4321"), createdEvent.Code)

	sendMessage(t, bob, "join_session", JoinSessionPayload{Code: "4321", AudioEnabled: true})

	aliceConnected := readMessage(t, alice)
	require.Equal(t, string(domain.EventConnected), aliceConnected.Type)
	var aliceEvent domain.ConnectedEvent
	require.NoError(t, json.Unmarshal(aliceConnected.Payload, &aliceEvent))
	assert.Equal(t, domain.Identity("bob"), aliceEvent.Peer)
	assert.True(t, aliceEvent.Capabilities.Audio)

	bobConnected := readMessage(t, bob)
	require.Equal(t, string(domain.EventConnected), bobConnected.Type)

	// Media flows only to the peer, tagged with the sender.
	sendMessage(t, alice, "camera_frame", FramePayload{Data: []byte{0x01, 0x02}})
	frame := readMessage(t, bob)
	require.Equal(t, "camera_frame", frame.Type)
	assert.Equal(t, domain.Identity("alice"), frame.From)

	var framePayload FramePayload
	require.NoError(t, json.Unmarshal(frame.Payload, &framePayload))
	assert.Equal(t, []byte{0x01, 0x02}, framePayload.Data)

	// Ending notifies the peer.
	sendMessage(t, alice, "end_session", nil)
	disconnected := readMessage(t, bob)
	require.Equal(t, string(domain.EventDisconnected), disconnected.Type)
	var disconnectedEvent domain.DisconnectedEvent
	require.NoError(t, json.Unmarshal(disconnected.Payload, &disconnectedEvent))
	assert.Equal(t, domain.ReasonEnded, disconnectedEvent.Reason)
}

func TestWebSocketServer_JoinUnknownCodeSendsError(t *testing.T) {
	h := newTestHarness(t)

	bob := h.dial(t, "bob")
	sendMessage(t, bob, "join_session", JoinSessionPayload{Code: "9999"})

	msg := readMessage(t, bob)
	assert.Equal(t, string(domain.EventError), msg.Type)
}

func TestWebSocketServer_UnknownMessageType(t *testing.T) {
	h := newTestHarness(t)

	alice := h.dial(t, "alice")
	sendMessage(t, alice, "bogus", nil)

	msg := readMessage(t, alice)
	assert.Equal(t, string(domain.EventError), msg.Type)
}

func TestWebSocketServer_DisconnectEndsSession(t *testing.T) {
	h := newTestHarness(t)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	sendMessage(t, alice, "create_session", CreateSessionPayload{Code: "4321"})
	readMessage(t, alice) // created

	sendMessage(t, bob, "join_session", JoinSessionPayload{Code: "4321"})
	readMessage(t, alice) // connected
	readMessage(t, bob)   // connected

	// Bob drops the socket without an explicit end_session.
	bob.Close()

	disconnected := readMessage(t, alice)
	require.Equal(t, string(domain.EventDisconnected), disconnected.Type)
	var event domain.DisconnectedEvent
	require.NoError(t, json.Unmarshal(disconnected.Payload, &event))
	assert.Equal(t, domain.Identity("bob"), event.Peer)
}

func TestWebSocketServer_ReconnectKeepsSession(t *testing.T) {
	h := newTestHarness(t)

	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	sendMessage(t, alice, "create_session", CreateSessionPayload{Code: "4321", AudioEnabled: true})
	readMessage(t, alice) // created

	sendMessage(t, bob, "join_session", JoinSessionPayload{Code: "4321", AudioEnabled: true})
	readMessage(t, alice) // connected
	readMessage(t, bob)   // connected

	// Alice re-dials; the server replaces her connection and closes the old
	// one. The replaced connection's teardown must not end the live session.
	alice2 := h.dial(t, "alice")

	// Give the replaced connection's handler time to observe the close.
	time.Sleep(100 * time.Millisecond)

	pairings, err := h.broker.PairingSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Identity("bob"), pairings["alice"])

	// Relay still works across the new socket, and bob's next message is a
	// frame, not a spurious disconnect.
	sendMessage(t, alice2, "camera_frame", FramePayload{Data: []byte{0xAA}})
	frame := readMessage(t, bob)
	require.Equal(t, "camera_frame", frame.Type)
	assert.Equal(t, domain.Identity("alice"), frame.From)

	sendMessage(t, bob, "camera_frame", FramePayload{Data: []byte{0xBB}})
	frame = readMessage(t, alice2)
	require.Equal(t, "camera_frame", frame.Type)
	assert.Equal(t, domain.Identity("bob"), frame.From)
}

func TestWebSocketServer_AbruptCloseWithQueuedMessages(t *testing.T) {
	h := newTestHarness(t)

	alice := h.dial(t, "alice")

	// Flood past the inbound buffer, then drop the socket without reading
	// anything back. Cleanup must still complete.
	for i := 0; i < 64; i++ {
		sendMessage(t, alice, "heartbeat", nil)
	}
	alice.Close()

	assert.Eventually(t, func() bool {
		return !h.ws.IsConnected("alice")
	}, time.Second, 10*time.Millisecond)
}

func TestWebSocketServer_ConnectionCount(t *testing.T) {
	h := newTestHarness(t)

	assert.Equal(t, 0, h.ws.ConnectionCount())
	h.dial(t, "alice")

	assert.Eventually(t, func() bool {
		return h.ws.IsConnected("alice")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.ws.ConnectionCount())
}
