package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kwv/mrrlens/lens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, lens.Summary) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string       `json:"type"`
		Data lens.Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg.Type, msg.Data
}

func TestHub_InitialAndBroadcast(t *testing.T) {
	st := populatedTracker(t)
	hub := NewHub(4)
	defer hub.Close()
	st.Subscribe(hub.BroadcastSummary)

	srv := httptest.NewServer(newHTTPServer(st, hub))
	defer srv.Close()

	conn := dialWS(t, srv)
	typ, sum := readMessage(t, conn)
	assert.Equal(t, "summary", typ)
	assert.Equal(t, 4, sum.Visible)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(srv.URL+"/api/churn", "application/json", strings.NewReader(`{"value":"exclude"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	typ, sum = readMessage(t, conn)
	assert.Equal(t, "summary", typ)
	assert.Equal(t, 3, sum.Visible)
}

func TestHub_NoInitialWithoutData(t *testing.T) {
	hub := NewHub(4)
	defer hub.Close()
	srv := httptest.NewServer(newHTTPServer(emptyTracker(), hub))
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "no message expected before any update")
}

func TestHub_MaxClients(t *testing.T) {
	hub := NewHub(1)
	defer hub.Close()
	srv := httptest.NewServer(newHTTPServer(populatedTracker(t), hub))
	defer srv.Close()

	dialWS(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHub_ConcurrentReservations(t *testing.T) {
	hub := NewHub(3)
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if hub.reserve() {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(3), granted.Load())
	assert.False(t, hub.reserve(), "slots held by upgrading connections count")

	// A failed upgrade hands its slot back
	hub.register(nil)
	assert.True(t, hub.reserve())

	hub.register(&wsClient{})
	assert.Equal(t, 1, hub.ClientCount())
	assert.False(t, hub.reserve())
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(4)
	srv := httptest.NewServer(newHTTPServer(emptyTracker(), hub))
	defer srv.Close()

	conn := dialWS(t, srv)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_BroadcastWithoutClients(t *testing.T) {
	hub := NewHub(4)
	// Must not block or panic
	hub.BroadcastSummary(lens.Summary{Visible: 1})
	assert.Equal(t, 0, hub.ClientCount())
}
