package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil, nil)
	hub.Start()
	server := httptest.NewServer(Handler(hub, origins, nil))
	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})
	return hub, server
}

func dial(t *testing.T, server *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial(url, header)
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHubBroadcastsSnapshots(t *testing.T) {
	hub, server := startHub(t, nil)

	conn, _, err := dial(t, server, "")
	require.NoError(t, err)
	defer conn.Close()

	hello := readMessage(t, conn)
	assert.Equal(t, TypeConnection, hello["type"])
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate(TypeSnapshot, "op-1", "running", map[string]interface{}{"operation_id": "op-1", "progress": 40})
	msg := readMessage(t, conn)
	assert.Equal(t, TypeSnapshot, msg["type"])
	assert.NotContains(t, msg, "subtype")
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "op-1", data["operation_id"])
	assert.Equal(t, float64(40), data["progress"])

	hub.BroadcastUpdate("data_update", "results", "refresh", nil)
	msg = readMessage(t, conn)
	assert.Equal(t, "results", msg["subtype"])
	assert.Equal(t, "refresh", msg["action"])

	stats := hub.Stats()
	assert.Equal(t, int64(1), stats["total_connections"])
}

func TestHubUnregistersClosedClients(t *testing.T) {
	hub, server := startHub(t, nil)

	conn, _, err := dial(t, server, "")
	require.NoError(t, err)
	readMessage(t, conn)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHandlerChecksOrigin(t *testing.T) {
	_, server := startHub(t, []string{"http://localhost:3000"})

	conn, _, err := dial(t, server, "http://localhost:3000")
	require.NoError(t, err)
	conn.Close()

	_, resp, err := dial(t, server, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBroadcastWithoutRunningHubDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			hub.BroadcastUpdate(TypeSnapshot, "op", "running", nil)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastUpdate blocked")
	}
}
