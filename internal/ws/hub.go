package ws

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"messaging-service/internal/observability"
)

type client struct {
	handle string
	userID string
	conn   Conn
	info   ConnInfo
}

// Hub is the presence registry: user id to the set of live connections on
// this instance. Socket writes happen outside the hub lock.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client
	users   map[string]map[string]*client
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*client),
		users:   make(map[string]map[string]*client),
		logger:  logger,
	}
}

// Register adds a connection for userID. first is true when it is the user's
// only connection after the call.
func (h *Hub) Register(userID string, conn Conn, info ConnInfo) (handle string, first bool) {
	handle = uuid.NewString()
	info.ConnID = handle
	info.UserID = userID

	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{handle: handle, userID: userID, conn: conn, info: info}
	h.clients[handle] = c
	conns, ok := h.users[userID]
	if !ok {
		conns = make(map[string]*client)
		h.users[userID] = conns
	}
	conns[handle] = c
	return handle, len(conns) == 1
}

// Unregister removes a connection. It is idempotent; an unknown handle
// returns an empty user id. last is true when the user has no connection left.
func (h *Hub) Unregister(handle string) (userID string, last bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[handle]
	if !ok {
		return "", false
	}
	delete(h.clients, handle)
	conns := h.users[c.userID]
	delete(conns, handle)
	if len(conns) == 0 {
		delete(h.users, c.userID)
		return c.userID, true
	}
	return c.userID, false
}

// IsOnline reports whether the user has at least one connection here.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// OnlineUsers returns the users with a live connection, sorted.
func (h *Hub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.users))
	for id := range h.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// PushToUser encodes one frame and writes it to every connection of userID.
// It returns the number of successful writes.
func (h *Hub) PushToUser(userID, eventName string, payload any) int {
	frame, err := EncodeFrame(eventName, payload)
	if err != nil {
		h.logger.Error("encode push frame", "event", eventName, "error", err)
		return 0
	}
	return h.PushFrame(userID, frame)
}

// PushFrame writes an already encoded frame to every connection of userID.
// A failed connection is closed and unregistered; the remaining ones still
// receive the frame.
func (h *Hub) PushFrame(userID string, frame []byte) int {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.users[userID]))
	for _, c := range h.users[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			h.logger.Warn("websocket write error",
				"user_id", userID,
				"conn_id", c.handle,
				"error", err,
			)
			_ = c.conn.Close()
			h.Unregister(c.handle)
			observability.IncWSEvent("ws_write_error")
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll closes every connection. Used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*client)
	h.users = make(map[string]map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close()
	}
}
