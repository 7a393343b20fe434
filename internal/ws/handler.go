// Package ws exposes the broker message protocol over a WebSocket
// channel for callers that hold a long-lived connection to the agent.
package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/broker"
	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The agent binds to loopback; origin enforcement happens there.
		return true
	},
}

// Handler bridges WebSocket connections to the broker.
type Handler struct {
	broker *broker.Broker
	log    *logging.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(b *broker.Broker, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handler{broker: b, log: log}
}

// HandleConnection upgrades the connection and relays messages. Every
// message receives exactly one reply; unknown kinds get a structured
// error rather than being dropped.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()

	for {
		var req broker.Request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("websocket read ended", zap.Error(err))
			}
			return
		}

		resp := h.broker.Dispatch(ctx, req)
		if err := conn.WriteJSON(resp); err != nil {
			h.log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
