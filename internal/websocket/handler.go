package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"
)

// HandleWebSocket upgrades the request and streams billing events to it.
// The optional organization_id query parameter narrows the stream.
func HandleWebSocket(hub *Hub, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, nil)
		if err != nil {
			logger.Warn("websocket accept failed", "error", err)
			return
		}

		orgID := r.URL.Query().Get("organization_id")
		logger.Debug("event stream connected", "organization_id", orgID)
		client := NewClient(hub, conn, orgID)
		client.Run(r.Context())
	}
}
