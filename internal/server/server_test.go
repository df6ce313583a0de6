// ABOUTME: Tests for the stats server
// ABOUTME: Exercises the WebSocket stream, health endpoint and shutdown
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/framepace-go/internal/version"
)

func dialStats(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + StatsPath
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStats(t *testing.T, conn *websocket.Conn) StatsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg StatsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestNewGeneratesSessionID(t *testing.T) {
	srv := New(Config{Name: "test"}, func() PlaybackStats { return PlaybackStats{} })
	assert.Len(t, srv.SessionID(), 36)

	fixed := New(Config{Name: "test", SessionID: "session-1"}, func() PlaybackStats { return PlaybackStats{} })
	assert.Equal(t, "session-1", fixed.SessionID())
}

func TestStatsStream(t *testing.T) {
	rendered := int64(0)
	srv := New(Config{Name: "living-room", SessionID: "abc", Interval: time.Hour}, func() PlaybackStats {
		rendered++
		return PlaybackStats{Rendered: rendered, Playing: true, Speed: 1}
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialStats(t, ts.URL)

	first := readStats(t, conn)
	assert.Equal(t, StatsMessageType, first.Type)
	assert.Equal(t, "abc", first.SessionID)
	assert.Equal(t, "living-room", first.Name)
	assert.Equal(t, version.Version, first.Version)
	assert.Equal(t, int64(1), first.Payload.Rendered)
	assert.True(t, first.Payload.Playing)

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)
	srv.Broadcast()

	second := readStats(t, conn)
	assert.Equal(t, int64(2), second.Payload.Rendered)

	conn.Close()
	require.Eventually(t, func() bool { return srv.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHealth(t *testing.T) {
	srv := New(Config{SessionID: "abc"}, func() PlaybackStats { return PlaybackStats{} })
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "abc", body["session_id"])
}

func TestServeUntilCancelled(t *testing.T) {
	srv := New(Config{Name: "test", Interval: 5 * time.Millisecond}, func() PlaybackStats {
		return PlaybackStats{Rendered: 7}
	})
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- srv.Serve(ctx, listener) }()

	conn := dialStats(t, "http://"+listener.Addr().String())
	readStats(t, conn)
	// Periodic broadcasts arrive without an explicit Broadcast call.
	assert.Equal(t, int64(7), readStats(t, conn).Payload.Rendered)

	cancel()
	select {
	case err := <-errChan:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	assert.Equal(t, 0, srv.Clients())
}

func TestRefusesClientsAfterShutdown(t *testing.T) {
	srv := New(Config{Name: "test"}, func() PlaybackStats { return PlaybackStats{} })
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, srv.Serve(ctx, listener))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialStats(t, ts.URL)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Equal(t, 0, srv.Clients())
}
