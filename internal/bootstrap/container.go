package bootstrap

import (
	"context"
	"time"

	"smartpdf-web/internal/config"
	"smartpdf-web/internal/controller"
	"smartpdf-web/internal/events"
	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/handler"
	"smartpdf-web/internal/lifecycle"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/websocket"
	"smartpdf-web/internal/workspace"
)

type Container struct {
	Logger logger.ILogger

	Gateway  *gateway.HTTPGateway
	Guard    *lifecycle.Guard
	Registry *workspace.Registry

	// Event bus & snapshot push
	EventBus      *events.Bus
	NatsPublisher *events.NatsPublisher // nil when NATS_URL is unset or unreachable
	WebSocketHub  *websocket.Hub

	// Controllers
	WorkspaceController controller.IWorkspaceController
	PageController      controller.IPageController
	SnapshotHandler     *handler.SnapshotHandler
}

func NewContainer(cfg *config.Config, sysLogger logger.ILogger) *Container {
	// 1. Backend gateway & lifecycle guard
	gw := gateway.NewHTTPGateway(cfg.Backend.BaseURL, cfg.Backend.DetachedTimeout, sysLogger)
	guard := lifecycle.NewGuard(gw, sysLogger)

	// 2. Event Bus
	bus := events.NewBus(sysLogger)

	var natsPub *events.NatsPublisher
	if cfg.App.NatsURL != "" {
		pub, err := events.NewNatsPublisher(cfg.App.NatsURL, sysLogger)
		if err != nil {
			sysLogger.Warn("Bootstrap", "Failed to connect to NATS Publisher", map[string]interface{}{"error": err.Error()})
		} else {
			natsPub = pub
		}
	}

	// 3. Workspaces
	registry := workspace.NewRegistry(gw, guard, sysLogger, workspace.Options{
		IdleTTL:           cfg.Workspace.IdleTTL,
		SingleFile:        cfg.Workspace.SingleFileMode,
		UploadTimeout:     cfg.Backend.UploadTimeout,
		ChatTimeout:       cfg.Backend.ChatTimeout,
		EndSessionTimeout: cfg.Backend.EndSessionTimeout,
		Notifiers:         bus.Notifier,
	})

	// 4. WebSockets
	hub := websocket.NewHub(sysLogger, func(workspaceID string) {
		if ws, err := registry.Get(workspaceID); err == nil {
			guard.Release(lifecycle.ReasonGoingAway, ws.Store)
		}
	})

	return &Container{
		Logger:              sysLogger,
		Gateway:             gw,
		Guard:               guard,
		Registry:            registry,
		EventBus:            bus,
		NatsPublisher:       natsPub,
		WebSocketHub:        hub,
		WorkspaceController: controller.NewWorkspaceController(registry, sysLogger),
		PageController:      controller.NewPageController(registry),
		SnapshotHandler:     handler.NewSnapshotHandler(registry, hub, sysLogger),
	}
}

// Start runs the background consumers of the event bus until ctx ends.
func (c *Container) Start(ctx context.Context) error {
	changes, err := c.EventBus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go c.WebSocketHub.Run(ctx, changes)

	if c.NatsPublisher != nil {
		if err := c.EventBus.StartMirror(ctx, c.NatsPublisher); err != nil {
			return err
		}
	}
	return nil
}

// Shutdown releases every live session, gives the detached terminates up to
// grace to leave, then closes the bus.
func (c *Container) Shutdown(grace time.Duration) {
	released := c.Registry.ReleaseAll(lifecycle.ReasonShutdown)
	drained := c.Guard.Wait(grace)

	c.Logger.Info("Bootstrap", "Sessions released on shutdown", map[string]interface{}{
		"released": released,
		"drained":  drained,
	})

	if err := c.EventBus.Close(); err != nil {
		c.Logger.Warn("Bootstrap", "Failed to close event bus", map[string]interface{}{"error": err.Error()})
	}
	if c.NatsPublisher != nil {
		c.NatsPublisher.Close()
	}
}
