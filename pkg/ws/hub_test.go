package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/tronity-connector/internal/models"
)

func newTestServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		client.Register()
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)
	return srv
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_InitAndBroadcast(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	hub.SetInitDataProvider(func() *InitData {
		return &InitData{
			Vehicles: []*models.Vehicle{models.NewVehicle("VIN1", time.Now())},
			Health:   []models.Health{{ConnectorID: "tronity", Healthy: true}},
		}
	})
	go hub.Run(ctx)

	srv := newTestServer(t, hub)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	msg := readMessage(t, conn)
	assert.Equal(t, MsgTypeInit, msg.Type)
	assert.Equal(t, 1, hub.ClientCount())

	hub.BroadcastVehicles([]*models.Vehicle{models.NewVehicle("VIN2", time.Now())}, []string{"VIN1"})
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeVehiclesUpdate, msg.Type)

	data, ok := msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"VIN1"}, data["removed"])

	hub.BroadcastHealth(models.Health{ConnectorID: "tronity", State: models.ConnectionError})
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeHealthUpdate, msg.Type)

	hub.BroadcastError("tronity", "rate limited")
	msg = readMessage(t, conn)
	assert.Equal(t, MsgTypeError, msg.Type)
	data, ok = msg.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "tronity", data["connector_id"])
	assert.Equal(t, "rate limited", data["message"])
}

func TestHub_ClientDisconnect(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(zap.NewNop())
	go hub.Run(ctx)

	srv := newTestServer(t, hub)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 5*time.Second, 10*time.Millisecond)
}
