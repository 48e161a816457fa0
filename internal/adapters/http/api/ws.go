package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/okian/aiweather/internal/broadcast"
	"github.com/okian/aiweather/pkg/logger"
)

// Observers is the registration side of the broadcast hub.
type Observers interface {
	Connect(ctx context.Context, c broadcast.Conn) (string, error)
	Disconnect(ctx context.Context, c broadcast.Conn)
}

// WSHandler upgrades observers to websocket connections.
type WSHandler struct {
	observers      Observers
	log            logger.Logger
	originPatterns []string
}

// NewWSHandler creates a new websocket handler.
func NewWSHandler(o Observers, l logger.Logger, originPatterns []string) *WSHandler {
	return &WSHandler{observers: o, log: l, originPatterns: originPatterns}
}

// wsConn adapts a websocket connection to broadcast.Conn.
type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) Send(ctx context.Context, msg any) error {
	return wsjson.Write(ctx, w.c, msg)
}

func (w *wsConn) Close() error {
	return w.c.Close(websocket.StatusNormalClosure, "")
}

// HandleWS handles GET /ws. The connection is server-push only: client
// frames are read and discarded, and a close from the client ends it.
func (h *WSHandler) HandleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		// Accept has already written the response.
		h.log.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	c.SetReadLimit(ReadLimit)

	ctx := context.WithoutCancel(r.Context())
	conn := &wsConn{c: c}
	if _, err := h.observers.Connect(ctx, conn); err != nil {
		h.log.Warn(ctx, "observer rejected", logger.Error(err))
		_ = c.Close(websocket.StatusGoingAway, "unavailable")
		return
	}

	for {
		if _, _, err := c.Read(ctx); err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				h.log.Debug(ctx, "observer read ended", logger.Error(err))
			}
			break
		}
	}
	h.observers.Disconnect(ctx, conn)
}

// ReadLimit bounds a single client frame; clients have nothing to say.
const ReadLimit = 4096
