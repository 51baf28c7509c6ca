package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bidding-core/internal/domain"
	"bidding-core/pkg/logger"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func expect(t *testing.T, conn *websocket.Conn, msgType string) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg map[string]interface{}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, msgType, msg["type"])
	return msg
}

func TestWebSocketHandler_ObserverProtocol(t *testing.T) {
	hub := newTestHub(t, DefaultOptions())
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, logger.NewNop()).HandleConnection))
	defer srv.Close()

	watcher := dial(t, srv)
	other := dial(t, srv)

	require.NoError(t, watcher.WriteJSON(map[string]string{"type": "JOIN_AUCTION", "auctionId": "A1"}))
	joined := expect(t, watcher, MsgJoined)
	require.Equal(t, "A1", joined["auctionId"])

	require.NoError(t, other.WriteJSON(map[string]string{"type": "JOIN_AUCTION", "auctionId": "B1"}))
	expect(t, other, MsgJoined)

	hub.OnAuctionEvent("A1", priceUpdate("A1", 150, 1))
	ev := expect(t, watcher, string(domain.PriceUpdated))
	require.Equal(t, 150.0, ev["newPrice"])
	require.Equal(t, "U1", ev["bidderId"])

	require.NoError(t, watcher.WriteJSON(map[string]string{"type": "PING"}))
	expect(t, watcher, MsgPong)

	require.NoError(t, watcher.WriteJSON(map[string]string{"type": "JOIN_AUCTION"}))
	expect(t, watcher, MsgError)

	require.NoError(t, watcher.WriteMessage(websocket.TextMessage, []byte("{")))
	expect(t, watcher, MsgError)

	require.NoError(t, watcher.WriteJSON(map[string]string{"type": "LEAVE_AUCTION", "auctionId": "A1"}))
	expect(t, watcher, MsgLeft)
	require.Equal(t, 0, hub.SubscriberCount("A1"))

	// The other session only ever sees its own topic.
	require.NoError(t, other.WriteJSON(map[string]string{"type": "PING"}))
	expect(t, other, MsgPong)

	require.NoError(t, other.Close())
	require.Eventually(t, func() bool { return hub.SubscriberCount("B1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketHandler_RateLimit(t *testing.T) {
	opts := DefaultOptions()
	opts.MessageRate = 0.001
	opts.MessageBurst = 1
	hub := newTestHub(t, opts)
	srv := httptest.NewServer(http.HandlerFunc(NewWebSocketHandler(hub, logger.NewNop()).HandleConnection))
	defer srv.Close()

	conn := dial(t, srv)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	expect(t, conn, MsgPong)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "PING"}))
	msg := expect(t, conn, MsgError)
	require.Equal(t, "rate limit exceeded", msg["message"])
}
