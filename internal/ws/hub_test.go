package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cala2mqtt/internal/model"
)

func testState(id string) model.State {
	top := 55.0
	return model.State{
		Heater:    model.Heater{ID: id, Name: "Heater " + id},
		Telemetry: model.Telemetry{TopTankTemp: &top},
		UpdatedAt: time.Now(),
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUpdate(t *testing.T, conn *websocket.Conn) Update {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var u Update
	require.NoError(t, conn.ReadJSON(&u))
	return u
}

func TestSnapshotOnConnect(t *testing.T) {
	hub := NewHub(func() []model.State {
		return []model.State{testState("wh-1"), testState("wh-2")}
	})
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)

	first := readUpdate(t, conn)
	assert.Equal(t, "snapshot", first.Type)
	assert.Equal(t, "wh-1", first.State.Heater.ID)

	second := readUpdate(t, conn)
	assert.Equal(t, "wh-2", second.State.Heater.ID)
}

func TestBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(func() []model.State { return nil })
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)

	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.conns) == 2
	}, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(testState("wh-1"))

	for _, conn := range []*websocket.Conn{a, b} {
		u := readUpdate(t, conn)
		assert.Equal(t, "update", u.Type)
		assert.Equal(t, "wh-1", u.State.Heater.ID)
		require.NotNil(t, u.State.Telemetry.TopTankTemp)
		assert.Equal(t, 55.0, *u.State.Telemetry.TopTankTemp)
	}
}

func TestBrokenClientDropped(t *testing.T) {
	hub := NewHub(func() []model.State { return nil })
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dial(t, srv)
	conn.Close()

	// Give the reader loop a moment to notice the close.
	require.Eventually(t, func() bool {
		hub.mu.Lock()
		defer hub.mu.Unlock()
		return len(hub.conns) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Broadcasting with no clients must not panic.
	hub.Broadcast(testState("wh-1"))
}
