package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/radieske/stock-bet-settlement/pkg/contracts/events"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func pingPong(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping"}))
	var pong map[string]string
	require.NoError(t, conn.ReadJSON(&pong))
	require.Equal(t, "pong", pong["type"])
}

func TestHub_ReplayAndBroadcast(t *testing.T) {
	cached := events.WagerSettled{BetID: "bet-1", Status: "SETTLED", Winner: "A"}
	replay := func(_ context.Context, betID string) (events.WagerSettled, bool, error) {
		if betID == "bet-1" {
			return cached, true, nil
		}
		return events.WagerSettled{}, false, nil
	}
	hub := NewHub(func(*http.Request) bool { return true }, replay, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", BetID: "bet-1"}))

	var got events.WagerSettled
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "bet-1", got.BetID)
	assert.Equal(t, "A", got.Winner)
	assert.Equal(t, 1, hub.Subscribers("bet-1"))

	hub.Broadcast(events.WagerSettled{BetID: "bet-2", Status: "INVALID"})
	hub.Broadcast(events.WagerSettled{BetID: "bet-1", Status: "SETTLED", Winner: "B"})

	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "bet-1", got.BetID)
	assert.Equal(t, "B", got.Winner)
}

func TestHub_WildcardReceivesEverything(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", BetID: AllBets}))
	pingPong(t, conn)
	assert.Equal(t, 1, hub.Subscribers(AllBets))

	hub.Broadcast(events.WagerSettled{BetID: "bet-9", Status: "INVALID", Reason: "no data found for symbol ZZZZ"})

	var got events.WagerSettled
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "bet-9", got.BetID)
	assert.Equal(t, "INVALID", got.Status)
}

func TestHub_UnsubscribeAndDisconnect(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", BetID: "bet-1"}))
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", BetID: "bet-2"}))
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "unsubscribe", BetID: "bet-1"}))
	pingPong(t, conn)

	assert.Equal(t, 0, hub.Subscribers("bet-1"))
	assert.Equal(t, 1, hub.Subscribers("bet-2"))

	_ = conn.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers("bet-2") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_SubscribeRequiresBetID(t *testing.T) {
	hub := NewHub(func(*http.Request) bool { return true }, nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe"}))

	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
}
