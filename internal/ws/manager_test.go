package ws

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zigaf/car-auction-sub000/internal/auth"
)

type wsFixture struct {
	manager  *Manager
	verifier *auth.Verifier
	server   *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &wsFixture{
		manager:  NewManager(log),
		verifier: auth.NewVerifier("test-secret"),
	}
	go f.manager.Run()

	router := mux.NewRouter()
	NewHandler(f.manager, f.verifier, log).Register(router)
	f.server = httptest.NewServer(router)
	t.Cleanup(f.server.Close)
	return f
}

func (f *wsFixture) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	token := f.verifier.Mint(uuid.New(), auth.RoleUser, time.Hour)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + path + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvent reads frames until one of the wanted type arrives. Welcome and
// presence frames can interleave, so callers filter by type.
func readEvent(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg map[string]any
		require.NoError(t, json.Unmarshal(payload, &msg))
		if msg["type"] == wantType {
			return msg
		}
		require.False(t, time.Now().After(deadline), "no %s frame before deadline", wantType)
	}
}

func TestItemRoomPresence(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()

	first := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, first, "connected")
	msg := readEvent(t, first, "watcher_count")
	assert.Equal(t, float64(1), msg["count"])

	second := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, second, "connected")

	// Both members see the count rise.
	msg = readEvent(t, first, "watcher_count")
	assert.Equal(t, float64(2), msg["count"])

	second.Close()
	msg = readEvent(t, first, "watcher_count")
	assert.Equal(t, float64(1), msg["count"], "disconnect announces the drop")
}

func TestWelcomeIsFirstFrame(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()

	// The welcome is queued before the client registers, so it precedes
	// the join's presence frame.
	conn := f.dial(t, "/ws/items/"+itemID)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(payload, &msg))
	assert.Equal(t, "connected", msg["type"])
	assert.NotEmpty(t, msg["client_id"])
}

func TestImmediateDisconnectAfterDial(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()

	// A peer that drops right after the handshake must not disturb the
	// room; a second client still joins and sees a clean count.
	first := f.dial(t, "/ws/items/"+itemID)
	first.Close()

	second := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, second, "connected")
	msg := readEvent(t, second, "watcher_count")
	assert.LessOrEqual(t, msg["count"], float64(2))

	f.manager.Broadcast(ItemScope(itemID), []byte(`{"type":"bid_placed","seq":1}`))
	got := readEvent(t, second, "bid_placed")
	assert.Equal(t, float64(1), got["seq"])
}

func TestBroadcastReachesRoomInOrder(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()
	scope := ItemScope(itemID)

	conn := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, conn, "connected")
	readEvent(t, conn, "watcher_count")

	f.manager.Broadcast(scope, []byte(`{"type":"bid_placed","seq":1}`))
	f.manager.Broadcast(scope, []byte(`{"type":"bid_placed","seq":2}`))

	first := readEvent(t, conn, "bid_placed")
	assert.Equal(t, float64(1), first["seq"])
	second := readEvent(t, conn, "bid_placed")
	assert.Equal(t, float64(2), second["seq"], "delivery preserves publish order")
}

func TestBroadcastScopesAreIsolated(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()

	itemConn := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, itemConn, "connected")
	feedConn := f.dial(t, "/ws/feed")
	readEvent(t, feedConn, "connected")

	f.manager.Broadcast(GlobalScope, []byte(`{"type":"bid_placed","seq":9}`))
	msg := readEvent(t, feedConn, "bid_placed")
	assert.Equal(t, float64(9), msg["seq"])

	// The item room must not see the global frame.
	require.NoError(t, itemConn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	for {
		_, payload, err := itemConn.ReadMessage()
		if err != nil {
			break
		}
		var stray map[string]any
		require.NoError(t, json.Unmarshal(payload, &stray))
		assert.NotEqual(t, "bid_placed", stray["type"])
	}
}

func TestUnauthenticatedDialRejected(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/feed?token=garbage"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInvalidItemIDRejected(t *testing.T) {
	f := newWSFixture(t)
	token := f.verifier.Mint(uuid.New(), auth.RoleUser, time.Hour)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/items/not-a-uuid?token=" + token
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatcherStatsEndpoint(t *testing.T) {
	f := newWSFixture(t)
	itemID := uuid.New().String()

	conn := f.dial(t, "/ws/items/"+itemID)
	readEvent(t, conn, "connected")
	readEvent(t, conn, "watcher_count")

	resp, err := http.Get(f.server.URL + "/stats/items/" + itemID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		ItemID   string `json:"item_id"`
		Watchers int    `json:"watchers"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, itemID, body.ItemID)
	assert.Equal(t, 1, body.Watchers)
}
