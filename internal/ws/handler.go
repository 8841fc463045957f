package ws

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"messaging-service/internal/models"
	"messaging-service/internal/observability"
)

const (
	pongWait        = 60 * time.Second
	pingPeriod      = (pongWait * 9) / 10
	maxMessageSize  = 64 * 1024
	presenceStripes = 64
)

// Client acknowledgement events.
const (
	AckDelivered = "delivered"
	AckSeen      = "seen"
)

// Acknowledger applies read receipts sent over the socket.
type Acknowledger interface {
	MarkDelivered(ctx context.Context, actorID string, ids []string) ([]models.Message, error)
	MarkSeen(ctx context.Context, actorID string, ids []string) ([]models.Message, error)
}

// PresenceStore persists the online flag.
type PresenceStore interface {
	SetOnline(ctx context.Context, userID string, online bool) error
}

type ackPayload struct {
	IDs []string `json:"ids"`
}

// Handler upgrades authenticated requests and keeps the connection registered
// in the hub until it closes.
type Handler struct {
	hub      *Hub
	presence PresenceStore
	acks     Acknowledger
	logger   *slog.Logger
	upgrader websocket.Upgrader
	// presence writes for one user are serialized so the stored flag ends
	// up matching the hub
	presenceMu [presenceStripes]sync.Mutex
}

// NewHandler constructs a Handler. checkOrigin may be nil to accept any origin.
func NewHandler(hub *Hub, presence PresenceStore, acks Acknowledger, logger *slog.Logger, checkOrigin func(*http.Request) bool) *Handler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hub:      hub,
		presence: presence,
		acks:     acks,
		logger:   logger,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
	}
}

// Handle expects the auth middleware to have set userID.
func (h *Handler) Handle(c *gin.Context) {
	userID := c.GetString("userID")
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ctx, span := otel.Tracer("messaging-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}
	conn := newLockedConn(raw)

	info := ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now(),
	}
	handle, first := h.hub.Register(userID, conn, info)
	if first {
		h.syncPresence(userID)
	}
	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	h.logger.Info("websocket connected", "user_id", userID, "conn_id", handle, "ip", info.IP)

	go h.serve(userID, handle, conn, raw, info)
}

func (h *Handler) serve(userID, handle string, conn *lockedConn, raw *websocket.Conn, info ConnInfo) {
	done := make(chan struct{})
	var closeReason string
	defer func() {
		close(done)
		h.hub.Unregister(handle)
		_ = conn.Close()
		// A failed push may have unregistered the handle already.
		if !h.hub.IsOnline(userID) {
			h.syncPresence(userID)
		}
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		h.logger.Info("websocket disconnected",
			"user_id", userID,
			"conn_id", handle,
			"duration_ms", time.Since(info.ConnectedAt).Milliseconds(),
			"reason", closeReason,
		)
	}()

	raw.SetReadLimit(maxMessageSize)
	_ = raw.SetReadDeadline(time.Now().Add(pongWait))
	raw.SetPongHandler(func(string) error {
		return raw.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.ping(); err != nil {
					_ = conn.Close()
					return
				}
			}
		}
	}()

	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("ws_error")
			}
			return
		}
		h.handleClientFrame(userID, data)
	}
}

func (h *Handler) handleClientFrame(userID string, data []byte) {
	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.logger.Debug("ignoring malformed client frame", "user_id", userID, "error", err)
		return
	}

	var payload ackPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil || len(payload.IDs) == 0 {
		h.logger.Debug("ignoring client frame without ids", "user_id", userID, "event", frame.Event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	switch frame.Event {
	case AckDelivered:
		_, err = h.acks.MarkDelivered(ctx, userID, payload.IDs)
	case AckSeen:
		_, err = h.acks.MarkSeen(ctx, userID, payload.IDs)
	default:
		h.logger.Debug("ignoring unknown client event", "user_id", userID, "event", frame.Event)
		return
	}
	if err != nil {
		h.logger.Debug("ack rejected", "user_id", userID, "event", frame.Event, "error", err)
	}
}

// syncPresence writes the hub's current view of userID to the presence
// store. The hub is read under the user's stripe lock, so a racing connect
// and disconnect cannot leave a stale flag behind.
func (h *Handler) syncPresence(userID string) {
	if h.presence == nil {
		return
	}
	mu := &h.presenceMu[presenceStripe(userID)]
	mu.Lock()
	defer mu.Unlock()
	h.setOnline(userID, h.hub.IsOnline(userID))
}

func presenceStripe(userID string) uint32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(userID))
	return f.Sum32() % presenceStripes
}

func (h *Handler) setOnline(userID string, online bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.presence.SetOnline(ctx, userID, online); err != nil {
		h.logger.Warn("update online flag", "user_id", userID, "online", online, "error", err)
	}
}
