package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabekah/farmkonnect-tracking/internal/config"
	"github.com/nabekah/farmkonnect-tracking/internal/domain"
	"github.com/nabekah/farmkonnect-tracking/internal/tracking"
)

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:         "test",
		Port:           "0",
		LogLevel:       "error",
		LogFormat:      "text",
		MaxConnections: 100,
		MaxPerIP:       50,
		ConnRate:       1000,
		ConnBurst:      1000,
	}
}

type testServer struct {
	srv *Server
	hub *tracking.Hub
	ts  *httptest.Server
}

func newTestServer(t *testing.T, limits *ConnectionLimits) *testServer {
	t.Helper()

	cfg := testConfig()
	hub := tracking.NewHub(clockwork.NewRealClock())
	t.Cleanup(func() { hub.Stop() })

	if limits == nil {
		limits = NewConnectionLimits(cfg.MaxConnections, cfg.MaxPerIP, cfg.ConnRate, cfg.ConnBurst)
	}

	srv := NewServer(cfg, hub, limits, nil)
	ts := httptest.NewServer(srv.echo)
	t.Cleanup(func() { ts.Close() })

	return &testServer{srv: srv, hub: hub, ts: ts}
}

func (s *testServer) dial(t *testing.T) *ws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/tracking"
	conn, _, err := ws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *ws.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(ws.TextMessage, []byte(raw)))
}

func readReply(t *testing.T, conn *ws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var reply map[string]any
	require.NoError(t, json.Unmarshal(data, &reply))
	return reply
}

func waitForLiveConnections(hub *tracking.Hub, expected int) bool {
	for i := 0; i < 100; i++ {
		if hub.Stats().LiveConnections == expected {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestHandleTracking_SubscribeAckAndDelivery(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"subscribe","stakeholderId":"farmer-1","productIds":["P1"],"batchNumbers":[]}`)

	ack := readReply(t, conn)
	assert.Equal(t, "subscribed", ack["type"])
	assert.Equal(t, true, ack["subscribed"])
	assert.Equal(t, []any{"P1"}, ack["productIds"])

	report := s.hub.Broadcast(domain.TrackingEvent{
		ID:          "evt-1",
		ProductID:   "P1",
		BatchNumber: "B1",
		EventType:   domain.EventProduction,
		Location:    "Green Valley Farm",
		Actor:       "farm-operator",
		Timestamp:   time.Now().UTC(),
	})
	assert.Equal(t, 1, report.ConnectionsReached)

	event := readReply(t, conn)
	assert.Equal(t, "product-event", event["type"])
}

func TestHandleTracking_PingPong(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"ping"}`)
	reply := readReply(t, conn)
	assert.Equal(t, "pong", reply["type"])
}

func TestHandleTracking_MalformedKeepsConnectionOpen(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `this is not json`)
	reply := readReply(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.NotEmpty(t, reply["message"])

	// The connection survives the bad message
	send(t, conn, `{"type":"ping"}`)
	reply = readReply(t, conn)
	assert.Equal(t, "pong", reply["type"])
}

func TestHandleTracking_UnknownTypeIgnored(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"teleport"}`)

	// No reply for unknown types; the next round-trip still works
	send(t, conn, `{"type":"ping"}`)
	reply := readReply(t, conn)
	assert.Equal(t, "pong", reply["type"])
}

func TestHandleTracking_UnsubscribeAck(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"subscribe","stakeholderId":"farmer-1","productIds":["P1"],"batchNumbers":["B1"]}`)
	readReply(t, conn)

	send(t, conn, `{"type":"unsubscribe","stakeholderId":"farmer-1","productIds":["P1"],"batchNumbers":[]}`)
	ack := readReply(t, conn)
	assert.Equal(t, "unsubscribed", ack["type"])
	assert.Equal(t, []any{"P1"}, ack["productIds"])
}

func TestHandleTracking_IdentitySwitchRejected(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"subscribe","stakeholderId":"farmer-1","productIds":["P1"],"batchNumbers":[]}`)
	readReply(t, conn)

	send(t, conn, `{"type":"subscribe","stakeholderId":"buyer-2","productIds":["P2"],"batchNumbers":[]}`)
	reply := readReply(t, conn)
	assert.Equal(t, "error", reply["type"])
	assert.Contains(t, reply["message"], "already bound")

	// Connection stays open under the original identity
	send(t, conn, `{"type":"ping"}`)
	reply = readReply(t, conn)
	assert.Equal(t, "pong", reply["type"])
}

func TestHandleTracking_DisconnectCleansUp(t *testing.T) {
	s := newTestServer(t, nil)
	conn := s.dial(t)

	send(t, conn, `{"type":"subscribe","stakeholderId":"farmer-1","productIds":["P1"],"batchNumbers":[]}`)
	readReply(t, conn)
	require.True(t, waitForLiveConnections(s.hub, 1))

	require.NoError(t, conn.Close())
	require.True(t, waitForLiveConnections(s.hub, 0), "read pump should deregister on disconnect")

	// Nothing left to deliver to, and nothing dropped
	report := s.hub.Broadcast(domain.TrackingEvent{
		ID:        "evt-2",
		ProductID: "P1",
		EventType: domain.EventTransport,
		Timestamp: time.Now().UTC(),
	})
	assert.Equal(t, 1, report.Targeted, "subscription outlives the connection")
	assert.Equal(t, 0, report.ConnectionsReached)
	assert.Equal(t, 0, report.Dropped)
}

func TestHandleTracking_PerIPLimit(t *testing.T) {
	limits := NewConnectionLimits(100, 1, 1000, 1000)
	s := newTestServer(t, limits)

	s.dial(t)
	require.True(t, waitForLiveConnections(s.hub, 1))

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/tracking"
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHandleTracking_RateLimit(t *testing.T) {
	limits := NewConnectionLimits(100, 50, 0.001, 1)
	s := newTestServer(t, limits)

	s.dial(t)

	url := "ws" + strings.TrimPrefix(s.ts.URL, "http") + "/ws/tracking"
	_, resp, err := ws.DefaultDialer.Dial(url, nil)
	assert.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}
