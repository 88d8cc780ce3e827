package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"smartpdf-web/internal/events"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/session"
)

// Frame is the JSON message pushed to browsers.
type Frame struct {
	Type        string           `json:"type"`
	WorkspaceID string           `json:"workspace_id"`
	Reason      session.Reason   `json:"reason,omitempty"`
	Data        session.Snapshot `json:"data"`
}

// Hub fans Store snapshots out to every connection of a workspace.
type Hub struct {
	// Registered clients map: WorkspaceID -> connections (one per open tab)
	clients map[string][]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	// Called when the last connection of a workspace closed with 1001.
	onGoingAway func(workspaceID string)

	logger logger.ILogger
}

func NewHub(log logger.ILogger, onGoingAway func(workspaceID string)) *Hub {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Hub{
		clients:     make(map[string][]*Client),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		done:        make(chan struct{}),
		onGoingAway: onGoingAway,
		logger:      log,
	}
}

// Run owns the client map until ctx is cancelled. changes may be nil.
func (h *Hub) Run(ctx context.Context, changes <-chan events.SessionChanged) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.WorkspaceID] = append(h.clients[client.WorkspaceID], client)
			h.mu.Unlock()
			h.sendInitial(client)
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"workspace_id": client.WorkspaceID})

		case client := <-h.unregister:
			last := h.remove(client)
			if last && client.goingAway && h.onGoingAway != nil {
				h.logger.Info("Hub", "Workspace went away", map[string]interface{}{"workspace_id": client.WorkspaceID})
				go h.onGoingAway(client.WorkspaceID)
			}

		case evt, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			h.deliver(evt)

		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for _, c := range clients {
					close(c.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Connections counts open connections for a workspace.
func (h *Hub) Connections(workspaceID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[workspaceID])
}

// remove drops client and reports whether it was the workspace's last one.
func (h *Hub) remove(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.WorkspaceID]
	if !ok {
		return false
	}
	for i, c := range clients {
		if c == client {
			h.clients[client.WorkspaceID] = append(clients[:i], clients[i+1:]...)
			close(client.Send)
			break
		}
	}
	if len(h.clients[client.WorkspaceID]) == 0 {
		delete(h.clients, client.WorkspaceID)
		return true
	}
	return false
}

// sendInitial pushes the state as of registration. Deliveries run on the same
// goroutine, so every later change is either in this frame or newer than it.
func (h *Hub) sendInitial(client *Client) {
	if client.current == nil {
		return
	}
	snap := client.current()

	data, err := json.Marshal(Frame{Type: "snapshot", WorkspaceID: client.WorkspaceID, Data: snap})
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal snapshot", map[string]interface{}{"error": err.Error()})
		return
	}
	select {
	case client.Send <- data:
		client.lastVersion = snap.Version
	default:
		h.remove(client)
	}
}

func (h *Hub) deliver(evt events.SessionChanged) {
	h.mu.RLock()
	clients := append([]*Client(nil), h.clients[evt.WorkspaceID]...)
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(Frame{
		Type:        "snapshot",
		WorkspaceID: evt.WorkspaceID,
		Reason:      evt.Reason,
		Data:        evt.Snapshot,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to marshal snapshot", map[string]interface{}{"error": err.Error()})
		return
	}

	for _, client := range clients {
		// Changes can arrive out of order; never push an older snapshot.
		if evt.Snapshot.Version <= client.lastVersion {
			continue
		}
		select {
		case client.Send <- data:
			client.lastVersion = evt.Snapshot.Version
		default:
			h.logger.Warn("Hub", "Client Send buffer full, dropping connection", map[string]interface{}{
				"workspace_id": client.WorkspaceID,
			})
			h.remove(client)
		}
	}
}
