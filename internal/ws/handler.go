package ws

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/zigaf/car-auction-sub000/internal/auth"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades authenticated connections into manager clients.
type Handler struct {
	manager  *Manager
	verifier *auth.Verifier
	log      *slog.Logger
}

// NewHandler builds the websocket handler.
func NewHandler(manager *Manager, verifier *auth.Verifier, log *slog.Logger) *Handler {
	return &Handler{manager: manager, verifier: verifier, log: log}
}

// Register mounts the websocket routes on the router.
func (h *Handler) Register(router *mux.Router) {
	router.HandleFunc("/ws/items/{id}", h.handleItem)
	router.HandleFunc("/ws/feed", h.handleFeed)
	router.HandleFunc("/stats/items/{id}", h.handleStats).Methods(http.MethodGet)
}

// handleItem joins the caller to one item's room.
func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	if _, err := uuid.Parse(itemID); err != nil {
		http.Error(w, "invalid item id", http.StatusBadRequest)
		return
	}
	h.join(w, r, ItemScope(itemID))
}

// handleFeed joins the caller to the global activity room.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	h.join(w, r, GlobalScope)
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request, scope string) {
	// A connection without a resolvable subject is terminated immediately.
	identity, err := h.verifier.Verify(r.URL.Query().Get("token"), time.Now())
	if err != nil {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		ID:      uuid.New().String(),
		Subject: identity.Subject.String(),
		Scope:   scope,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}
	// Queue the welcome before the client is registered: once Join runs,
	// an immediate disconnect may close send from the manager loop.
	welcome := fmt.Sprintf(`{"type":"connected","scope":%q,"client_id":%q}`, scope, client.ID)
	client.send <- []byte(welcome)

	h.manager.Join(client)
	go client.readPump(h.manager)
}

// handleStats reports the live watcher count for an item.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	itemID := mux.Vars(r)["id"]
	count := h.manager.WatcherCount(ItemScope(itemID))

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"item_id":%q,"watchers":%d}`, itemID, count)
}
