package websocket

import (
	"smartpdf-web/internal/session"

	"github.com/gofiber/websocket/v2"
)

// ServeWs streams workspaceID's state until the peer disconnects. The first
// frame is read from current once the hub has registered the connection, so
// no change between that read and later deliveries is lost.
func ServeWs(hub *Hub, c *websocket.Conn, workspaceID string, current func() session.Snapshot) {
	client := &Client{
		Hub:         hub,
		Conn:        c,
		WorkspaceID: workspaceID,
		Send:        make(chan []byte, 256),
		current:     current,
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		return
	}

	go client.writePump()
	client.readPump() // Run readPump in current goroutine (handler)
}
