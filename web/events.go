package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	keepAlivePingInterval = 10 * time.Second
	writeWait             = 5 * time.Second
)

func newUpgrader(dev bool, allowOrigins []string) websocket.Upgrader {
	allowAll := dev || len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*")
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowOrigins {
				if o == origin {
					return true
				}
			}
			return false
		},
	}
}

// events streams the changes of a group over a websocket until either side closes it.
func (h *handler) events(upgrader websocket.Upgrader) gin.HandlerFunc {
	return func(c *gin.Context) {
		groupID, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		user := CurrentUser(c)

		ctx, cancel := context.WithCancel(c.Request.Context())
		defer cancel()
		stream, err := h.svc.Events(ctx, user, groupID)
		if err != nil {
			respondError(c, err)
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade has already written the error response
			slog.Warn("websocket upgrade", "group", groupID, "error", err)
			return
		}
		defer conn.Close()

		// the reader only watches for the client going away
		go func() {
			defer cancel()
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		ticker := time.NewTicker(keepAlivePingInterval)
		defer ticker.Stop()
		for {
			select {
			case event, ok := <-stream:
				if !ok {
					_ = conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "stream closed"),
						time.Now().Add(writeWait))
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteJSON(event); err != nil {
					slog.Debug("websocket write", "group", groupID, "user_id", user, "error", err)
					return
				}
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}
}
