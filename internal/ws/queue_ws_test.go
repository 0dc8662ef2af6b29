package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qline/internal/events"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/queues/:id/ws", hub.Handler())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, queueID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/queues/" + queueID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversEventsToQueueSubscribers(t *testing.T) {
	hub, srv := startHub(t)
	a := dial(t, srv, "q1")
	b := dial(t, srv, "q2")
	require.Eventually(t, func() bool {
		return hub.Subscribers("q1") == 1 && hub.Subscribers("q2") == 1
	}, time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), events.Event{Type: events.EntryServed, QueueID: "q1", EntryID: "e1", Position: 1})

	require.NoError(t, a.SetReadDeadline(time.Now().Add(time.Second)))
	_, msg, err := a.ReadMessage()
	require.NoError(t, err)
	var got events.Event
	require.NoError(t, json.Unmarshal(msg, &got))
	assert.Equal(t, events.EntryServed, got.Type)
	assert.Equal(t, "e1", got.EntryID)

	// подписчик другой очереди ничего не получает
	require.NoError(t, b.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = b.ReadMessage()
	assert.Error(t, err)
}

func TestHubForgetsClosedConnections(t *testing.T) {
	hub, srv := startHub(t)
	conn := dial(t, srv, "q1")
	require.Eventually(t, func() bool { return hub.Subscribers("q1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Subscribers("q1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	hub, _ := startHub(t)
	for i := 0; i < sendBuffer*2; i++ {
		hub.Publish(context.Background(), events.Event{Type: events.EntryJoined, QueueID: "nobody"})
	}
	assert.Zero(t, hub.Subscribers("nobody"))
}
