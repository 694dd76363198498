package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/conflux/bus"
	"github.com/BaSui01/conflux/cache"
	"github.com/BaSui01/conflux/engine"
	"github.com/BaSui01/conflux/store"
	"github.com/BaSui01/conflux/types"
)

func setupServer(t *testing.T) (*engine.Engine, *httptest.Server) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	eng := engine.New(
		store.NewMemoryStore(),
		cache.NewMemoryCache(100, time.Minute),
		bus.NewChangeBus(bus.DefaultConfig(), logger),
		engine.DefaultConfig(),
		logger,
		nil,
	)
	srv := httptest.NewServer(NewHandler(eng, logger))
	t.Cleanup(func() {
		srv.Close()
		_ = eng.Close()
	})
	return eng, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg ServerMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func writeFrame(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestHandlerConnectAndPing(t *testing.T) {
	_, srv := setupServer(t)
	conn := dial(t, srv)

	hello := readFrame(t, conn)
	assert.Equal(t, TypeConnected, hello.Type)
	assert.NotEmpty(t, hello.SubscriberID)

	writeFrame(t, conn, ClientMessage{Type: TypePing})
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestHandlerChangeDelivery(t *testing.T) {
	eng, srv := setupServer(t)
	conn := dial(t, srv)

	require.Equal(t, TypeConnected, readFrame(t, conn).Type)

	writeFrame(t, conn, ClientMessage{Type: TypeSubscribe, Keys: []string{"cpa_level_amounts"}})
	ack := readFrame(t, conn)
	require.Equal(t, TypeSubscribed, ack.Type)
	assert.Equal(t, []string{"cpa_level_amounts"}, ack.Keys)

	_, err := eng.CreateConfig(context.Background(), &types.ConfigEntry{
		Key:       "cpa_level_amounts",
		Value:     map[string]any{"level_1": 100.0},
		Kind:      types.KindCPA,
		Category:  "payouts",
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	change := readFrame(t, conn)
	assert.Equal(t, TypeConfigChanged, change.Type)
	assert.Equal(t, "cpa_level_amounts", change.Key)
	assert.Equal(t, string(types.ActionCreate), change.Action)
	assert.Equal(t, 1, change.Version)

	_, err = eng.UpdateConfig(context.Background(), "cpa_level_amounts", engine.UpdateParams{
		Value: map[string]any{"level_1": 150.0},
		Actor: "ops",
	})
	require.NoError(t, err)

	change = readFrame(t, conn)
	assert.Equal(t, string(types.ActionUpdate), change.Action)
	assert.Equal(t, 2, change.Version)
}

func TestHandlerUnsubscribeStopsDelivery(t *testing.T) {
	eng, srv := setupServer(t)
	conn := dial(t, srv)

	require.Equal(t, TypeConnected, readFrame(t, conn).Type)

	writeFrame(t, conn, ClientMessage{Type: TypeSubscribe, Keys: []string{"maintenance_mode"}})
	require.Equal(t, TypeSubscribed, readFrame(t, conn).Type)

	writeFrame(t, conn, ClientMessage{Type: TypeUnsubscribe, Keys: []string{"maintenance_mode"}})
	require.Equal(t, TypeUnsubscribed, readFrame(t, conn).Type)

	_, err := eng.CreateConfig(context.Background(), &types.ConfigEntry{
		Key:       "maintenance_mode",
		Value:     false,
		Kind:      types.KindSystem,
		Category:  "ops",
		CreatedBy: "admin",
	})
	require.NoError(t, err)

	// Nothing should arrive; a ping round trip proves the connection is
	// drained without a change frame in between.
	writeFrame(t, conn, ClientMessage{Type: TypePing})
	assert.Equal(t, TypePong, readFrame(t, conn).Type)
}

func TestHandlerMalformedMessage(t *testing.T) {
	_, srv := setupServer(t)
	conn := dial(t, srv)

	require.Equal(t, TypeConnected, readFrame(t, conn).Type)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("not-json")))

	errFrame := readFrame(t, conn)
	assert.Equal(t, TypeError, errFrame.Type)

	writeFrame(t, conn, ClientMessage{Type: "bogus"})
	errFrame = readFrame(t, conn)
	assert.Equal(t, TypeError, errFrame.Type)
}

func TestHandlerDisconnectDropsSubscriber(t *testing.T) {
	eng, srv := setupServer(t)
	conn := dial(t, srv)

	require.Equal(t, TypeConnected, readFrame(t, conn).Type)

	writeFrame(t, conn, ClientMessage{Type: TypeSubscribe, Keys: []string{"session_ttl"}})
	require.Equal(t, TypeSubscribed, readFrame(t, conn).Type)
	require.Equal(t, 1, eng.SubscriptionStats().ConnectedSubscribers)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng.SubscriptionStats().ConnectedSubscribers == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 0, eng.SubscriptionStats().ConnectedSubscribers)
}
