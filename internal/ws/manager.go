// Package ws is the real-time fan-out layer: per-item rooms plus one global
// activity room, fed by the Redis subscription and drained to clients in
// order. It holds no authoritative state; it only republishes what the
// transactional layer already committed.
package ws

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zigaf/car-auction-sub000/internal/models"
)

// Scope names. Per-item scopes are "item:{uuid}"; the cross-item feed is
// "global".
const GlobalScope = "global"

// ItemScope returns the room name for one item.
func ItemScope(itemID string) string { return "item:" + itemID }

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 256
)

// Client is one authenticated websocket connection joined to a single scope.
type Client struct {
	ID      string
	Subject string
	Scope   string
	conn    *websocket.Conn
	send    chan []byte
}

type broadcastMsg struct {
	scope   string
	payload []byte
}

// Manager owns every room. All room state is touched only by the Run loop
// goroutine, so delivery order within a scope is a structural guarantee:
// messages enter one channel and leave in the same sequence.
type Manager struct {
	rooms      map[string]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastMsg
	count      chan chan map[string]int
	log        *slog.Logger
}

// NewManager returns an idle manager; call Run in a goroutine.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastMsg, sendBuffer),
		count:      make(chan chan map[string]int),
		log:        log,
	}
}

// Run is the manager's single event loop.
func (m *Manager) Run() {
	for {
		select {
		case c := <-m.register:
			m.add(c)
		case c := <-m.unregister:
			m.remove(c)
		case msg := <-m.broadcast:
			m.deliver(msg.scope, msg.payload)
		case reply := <-m.count:
			counts := make(map[string]int, len(m.rooms))
			for scope, room := range m.rooms {
				counts[scope] = len(room)
			}
			reply <- counts
		}
	}
}

// Join registers a client and starts its pumps.
func (m *Manager) Join(c *Client) { m.register <- c }

// Leave removes a client; safe to call more than once.
func (m *Manager) Leave(c *Client) { m.unregister <- c }

// Broadcast queues a payload for every client in the scope.
func (m *Manager) Broadcast(scope string, payload []byte) {
	m.broadcast <- broadcastMsg{scope: scope, payload: payload}
}

// WatcherCount returns the live connection count for a scope.
func (m *Manager) WatcherCount(scope string) int {
	reply := make(chan map[string]int, 1)
	m.count <- reply
	return (<-reply)[scope]
}

func (m *Manager) add(c *Client) {
	room, ok := m.rooms[c.Scope]
	if !ok {
		room = make(map[*Client]struct{})
		m.rooms[c.Scope] = room
	}
	room[c] = struct{}{}
	go c.writePump()
	m.log.Info("client joined", "client_id", c.ID, "scope", c.Scope, "watchers", len(room))
	m.announcePresence(c.Scope, len(room))
}

func (m *Manager) remove(c *Client) {
	room, ok := m.rooms[c.Scope]
	if !ok {
		return
	}
	if _, member := room[c]; !member {
		return
	}
	delete(room, c)
	close(c.send)
	c.conn.Close()
	if len(room) == 0 {
		delete(m.rooms, c.Scope)
	}
	m.log.Info("client left", "client_id", c.ID, "scope", c.Scope, "watchers", len(room))
	m.announcePresence(c.Scope, len(room))
}

// announcePresence rebroadcasts the watcher count to an item scope whenever
// membership changes. The global feed carries no presence events.
func (m *Manager) announcePresence(scope string, count int) {
	itemID, ok := strings.CutPrefix(scope, "item:")
	if !ok {
		return
	}
	id, err := uuid.Parse(itemID)
	if err != nil {
		return
	}
	payload, err := json.Marshal(models.WatcherCountEvent{
		Type:   models.EventWatcherCount,
		ItemID: id,
		Count:  count,
	})
	if err != nil {
		return
	}
	m.deliver(scope, payload)
}

// deliver fans a payload out to one room. A client whose send buffer is full
// is evicted so one slow reader cannot block the room.
func (m *Manager) deliver(scope string, payload []byte) {
	room, ok := m.rooms[scope]
	if !ok {
		return
	}
	for c := range room {
		select {
		case c.send <- payload:
		default:
			delete(room, c)
			close(c.send)
			c.conn.Close()
			m.log.Warn("evicted slow client", "client_id", c.ID, "scope", scope)
		}
	}
}

// writePump pumps queued messages to the connection and keeps it alive with
// pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump drains client frames until the connection drops, then
// unregisters.
func (c *Client) readPump(m *Manager) {
	defer func() { m.Leave(c) }()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.log.Warn("websocket read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}
