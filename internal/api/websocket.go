package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"camera-alert-service/internal/hub"
)

// Close codes for rejected subscription handshakes. The transport cannot
// carry an Authorization header at connect time, so the credential arrives as
// a query parameter and rejection happens over the websocket close frame.
const (
	CloseNoToken      = 4001
	CloseInvalidToken = 4002
)

// Registry is the hub surface the subscription endpoint needs. *hub.Hub
// satisfies it.
type Registry interface {
	Register(userID int64, conn hub.Conn) uuid.UUID
	Unregister(userID int64, handle uuid.UUID)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscribe authenticates a long-lived connection and registers it with the
// hub until it disconnects. Unregistration is deferred so it runs on every
// exit path.
func (h *Handler) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	token := c.Query("token")
	if token == "" {
		h.logger.Warnf("WebSocket connection rejected: no token provided")
		closeWith(conn, CloseNoToken, "no token provided")
		return
	}

	userID, err := h.verifier.Verify(token)
	if err != nil {
		h.logger.Warnf("WebSocket connection rejected: %v", err)
		closeWith(conn, CloseInvalidToken, "invalid token")
		return
	}

	handle := h.hub.Register(userID, conn)
	defer h.hub.Unregister(userID, handle)
	defer conn.Close()

	h.logger.Infof("WebSocket connection accepted for user %d", userID)

	// Drain and discard inbound frames until the remote end closes or errors.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warnf("WebSocket error for user %d: %v", userID, err)
			}
			break
		}
	}

	h.logger.Infof("WebSocket connection closed for user %d", userID)
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
