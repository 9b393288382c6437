package sinks

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/progress-overlay/internal/event"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readDisplay(t *testing.T, conn *websocket.Conn) event.Display {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var d event.Display
	require.NoError(t, json.Unmarshal(data, &d))
	return d
}

func TestWebSocketSinkBroadcasts(t *testing.T) {
	t.Parallel()

	sink := NewWebSocketSink(WebSocketConfig{})
	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)

	first := dial(t, srv)
	require.Eventually(t, func() bool { return sink.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	shown := event.Display{ID: "d", PackageID: "com.store", Kind: event.KindDownload, Progress: 700, Priority: 2, At: at}
	require.NoError(t, sink.Consume(context.Background(), []event.Display{shown}))
	require.Equal(t, shown, readDisplay(t, first))

	late := dial(t, srv)
	require.Equal(t, shown, readDisplay(t, late), "new subscribers get the latest display")
}

func TestWebSocketSinkCloseDisconnects(t *testing.T) {
	t.Parallel()

	sink := NewWebSocketSink(WebSocketConfig{})
	srv := httptest.NewServer(sink)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return sink.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, sink.Close(context.Background()))
	require.Equal(t, 0, sink.Subscribers())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
}
