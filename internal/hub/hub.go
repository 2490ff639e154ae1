// Package hub maintains the registry of live subscriber connections and fans
// alerts out to them. The hub owns connection lifecycle exclusively: nothing
// else reads or mutates registered connections.
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"camera-alert-service/internal/logging"
	"camera-alert-service/internal/models"
)

// writeWait bounds each connection write. A subscriber whose socket buffer
// is full fails the write at the deadline and is evicted instead of stalling
// fan-out to everyone else.
const writeWait = time.Second

// Conn is the send side of a subscriber connection. *websocket.Conn
// satisfies it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Hub is safe for concurrent Register/Unregister/Publish. A single mutex
// guards the membership map; all operations under it are O(connections).
type Hub struct {
	mu          sync.Mutex
	connections map[int64]map[uuid.UUID]Conn // userID -> handle -> connection
	logger      *logging.Logger
}

func New(logger *logging.Logger) *Hub {
	return &Hub{
		connections: make(map[int64]map[uuid.UUID]Conn),
		logger:      logger,
	}
}

// Register adds a connection for a subscriber and returns its handle.
func (h *Hub) Register(userID int64, conn Conn) uuid.UUID {
	handle := uuid.New()

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.connections[userID]; !exists {
		h.connections[userID] = make(map[uuid.UUID]Conn)
	}
	h.connections[userID][handle] = conn
	h.logger.Infof("Registered connection %s for user %d (total: %d)", handle, userID, len(h.connections[userID]))
	return handle
}

// Unregister removes a connection. Unregistering an already-removed
// connection is a no-op.
func (h *Hub) Unregister(userID int64, handle uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, exists := h.connections[userID]
	if !exists {
		return
	}
	if _, exists := conns[handle]; !exists {
		return
	}
	delete(conns, handle)
	if len(conns) == 0 {
		delete(h.connections, userID)
	}
	h.logger.Infof("Unregistered connection %s for user %d (remaining: %d)", handle, userID, len(conns))
}

// Publish sends the alert to every connection of the alert's owner. A
// connection whose send fails is closed and dropped from the registry; the
// failure never affects delivery to the remaining connections.
func (h *Hub) Publish(alert models.Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		h.logger.Errorf("Failed to marshal alert %d: %v", alert.ID, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	conns, exists := h.connections[alert.UserID]
	if !exists {
		return
	}
	for handle, conn := range conns {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Errorf("Failed to send alert %d to connection %s: %v", alert.ID, handle, err)
			_ = conn.Close()
			delete(conns, handle)
		}
	}
	if len(conns) == 0 {
		delete(h.connections, alert.UserID)
	}
}

// Count reports the number of live connections across all subscribers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, conns := range h.connections {
		total += len(conns)
	}
	return total
}
