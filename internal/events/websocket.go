package events

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 10 * time.Second

// ServeWebsocket upgrades the request and streams ownerID's events until the
// client goes away or the request context ends. Client messages are ignored.
func (h *Hub) ServeWebsocket(w http.ResponseWriter, r *http.Request, ownerID string, originPatterns []string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.CloseNow()

	events, unsubscribe := h.Subscribe(ownerID)
	defer unsubscribe()

	// CloseRead discards client frames and cancels ctx when the peer closes.
	ctx := conn.CloseRead(r.Context())

	h.logger.Debug("event stream opened", slog.String("owner", ownerID))
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := write(ctx, conn, ev); err != nil {
				h.logger.Debug("event stream closed", slog.String("owner", ownerID), slog.String("error", err.Error()))
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, ev)
}
