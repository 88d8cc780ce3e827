package events_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"smartpdf-web/internal/events"
	"smartpdf-web/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan events.SessionChanged) events.SessionChanged {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return events.SessionChanged{}
	}
}

func TestNotifierPublishesChanges(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	notifier := bus.Notifier("ws-1")
	notifier.Notify(session.Change{
		Reason: session.ReasonSessionCreated,
		Snapshot: session.Snapshot{
			Version:   3,
			Phase:     session.PhaseActive,
			SessionID: "s1",
		},
	})

	evt := receive(t, changes)
	assert.Equal(t, "ws-1", evt.WorkspaceID)
	assert.Equal(t, session.ReasonSessionCreated, evt.Reason)
	assert.Equal(t, session.PhaseActive, evt.Snapshot.Phase)
	assert.Equal(t, "s1", evt.Snapshot.SessionID)
	assert.EqualValues(t, 3, evt.Snapshot.Version)
	assert.False(t, evt.OccurredAt.IsZero())
}

type recordingMirror struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (m *recordingMirror) Publish(_ context.Context, evt events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *recordingMirror) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func TestMirror(t *testing.T) {
	bus := events.NewBus(nil)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror := &recordingMirror{err: errors.New("nats unavailable")}
	require.NoError(t, bus.StartMirror(ctx, mirror))

	require.NoError(t, bus.Publish(events.SessionChanged{WorkspaceID: "ws-1", Reason: session.ReasonFilesSelected}))
	require.NoError(t, bus.Publish(events.SessionChanged{WorkspaceID: "ws-1", Reason: session.ReasonUploadStarted}))

	assert.Eventually(t, func() bool { return mirror.count() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionChangedContract(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	evt := events.SessionChanged{
		WorkspaceID: "ws-1",
		Reason:      session.ReasonSessionEnded,
		Snapshot: session.Snapshot{
			Version:    9,
			Phase:      session.PhaseIdle,
			Transcript: []session.Message{{Text: "secret"}},
		},
		OccurredAt: now,
	}

	assert.Equal(t, "session.session_ended", evt.EventType())
	assert.Equal(t, "events.session.session_ended", events.Subject(evt))
	assert.Equal(t, now, evt.Timestamp())

	payload := evt.Payload()
	assert.Equal(t, "idle", payload["phase"])
	assert.Equal(t, 1, payload["messages"])
	assert.NotContains(t, payload, "transcript")
}
