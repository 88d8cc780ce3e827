package handler

import (
	"smartpdf-web/internal/pkg/logger"
	internalWS "smartpdf-web/internal/websocket"
	"smartpdf-web/internal/workspace"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// SnapshotHandler upgrades to a websocket that streams a workspace's state.
type SnapshotHandler struct {
	registry *workspace.Registry
	hub      *internalWS.Hub
	logger   logger.ILogger
}

func NewSnapshotHandler(registry *workspace.Registry, hub *internalWS.Hub, log logger.ILogger) *SnapshotHandler {
	return &SnapshotHandler{
		registry: registry,
		hub:      hub,
		logger:   log,
	}
}

// ServeWs handles websocket requests from the peer.
func (h *SnapshotHandler) ServeWs(c *fiber.Ctx) error {
	workspaceID := c.Query("workspace")
	if workspaceID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "Missing query parameter 'workspace'")
	}

	ws, err := h.registry.Get(workspaceID)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, "Workspace not found")
	}

	if websocket.IsWebSocketUpgrade(c) {
		return websocket.New(func(conn *websocket.Conn) {
			h.logger.Info("SnapshotHandler", "Starting WebSocket session", map[string]interface{}{"workspace_id": workspaceID})
			internalWS.ServeWs(h.hub, conn, workspaceID, ws.Store.Snapshot)
			h.logger.Info("SnapshotHandler", "WebSocket session ended", map[string]interface{}{"workspace_id": workspaceID})
		})(c)
	}
	return fiber.ErrUpgradeRequired
}

func (h *SnapshotHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/ws", h.ServeWs)
}
