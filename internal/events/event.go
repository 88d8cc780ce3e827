// Package events carries session lifecycle changes to in-process consumers
// and, optionally, to NATS for audit.
package events

import (
	"time"

	"smartpdf-web/internal/session"
)

// TopicSessionChanged is the in-process topic every Store change is published on.
const TopicSessionChanged = "session.changed"

// Event defines the contract for all published events.
type Event interface {
	// EventType returns the unique code for this event (e.g. "session.session_created").
	EventType() string

	Payload() map[string]interface{}

	Timestamp() time.Time
}

// SessionChanged is one committed Store mutation in one workspace.
type SessionChanged struct {
	WorkspaceID string           `json:"workspace_id"`
	Reason      session.Reason   `json:"reason"`
	Snapshot    session.Snapshot `json:"snapshot"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

func (e SessionChanged) EventType() string {
	return "session." + string(e.Reason)
}

// Payload omits the transcript text; audit consumers only need the shape.
func (e SessionChanged) Payload() map[string]interface{} {
	return map[string]interface{}{
		"workspace_id":  e.WorkspaceID,
		"reason":        string(e.Reason),
		"phase":         e.Snapshot.Phase.String(),
		"session_id":    e.Snapshot.SessionID,
		"version":       e.Snapshot.Version,
		"pending_files": len(e.Snapshot.PendingFiles),
		"messages":      len(e.Snapshot.Transcript),
		"last_error":    e.Snapshot.LastError,
		"occurred_at":   e.OccurredAt,
	}
}

func (e SessionChanged) Timestamp() time.Time {
	return e.OccurredAt
}
