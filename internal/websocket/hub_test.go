package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"smartpdf-web/internal/events"
	"smartpdf-web/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, onGoingAway func(string)) (*Hub, chan events.SessionChanged) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan events.SessionChanged)
	hub := NewHub(nil, onGoingAway)
	go hub.Run(ctx, changes)
	t.Cleanup(func() {
		cancel()
		<-hub.done
	})
	return hub, changes
}

func newClient(hub *Hub, workspaceID string) *Client {
	c := &Client{Hub: hub, WorkspaceID: workspaceID, Send: make(chan []byte, 8)}
	hub.register <- c
	return c
}

func change(workspaceID string, version uint64, phase session.Phase) events.SessionChanged {
	return events.SessionChanged{
		WorkspaceID: workspaceID,
		Reason:      session.ReasonFilesSelected,
		Snapshot:    session.Snapshot{Version: version, Phase: phase},
	}
}

func readFrame(t *testing.T, c *Client) Frame {
	t.Helper()
	select {
	case data := <-c.Send:
		var f Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
		return Frame{}
	}
}

func TestDeliverToWorkspaceOnly(t *testing.T) {
	hub, changes := startHub(t, nil)
	a1 := newClient(hub, "a")
	a2 := newClient(hub, "a")
	b := newClient(hub, "b")

	changes <- change("a", 1, session.PhaseSelectingFiles)

	for _, c := range []*Client{a1, a2} {
		f := readFrame(t, c)
		assert.Equal(t, "snapshot", f.Type)
		assert.Equal(t, "a", f.WorkspaceID)
		assert.Equal(t, session.PhaseSelectingFiles, f.Data.Phase)
	}

	// Round-trip through the hub so delivery of the first change is done.
	changes <- change("b", 1, session.PhaseIdle)
	assert.Equal(t, "b", readFrame(t, b).WorkspaceID)
	assert.Empty(t, b.Send)
	assert.Equal(t, 2, hub.Connections("a"))
}

func TestStaleSnapshotsAreSkipped(t *testing.T) {
	hub, changes := startHub(t, nil)
	c := newClient(hub, "a")

	changes <- change("a", 3, session.PhaseUploading)
	changes <- change("a", 2, session.PhaseSelectingFiles)
	changes <- change("a", 4, session.PhaseActive)

	assert.EqualValues(t, 3, readFrame(t, c).Data.Version)
	assert.EqualValues(t, 4, readFrame(t, c).Data.Version)
}

func TestGoingAwayReportedForLastConnection(t *testing.T) {
	gone := make(chan string, 1)
	hub, _ := startHub(t, func(id string) { gone <- id })

	first := newClient(hub, "a")
	second := newClient(hub, "a")

	first.goingAway = true
	hub.unregister <- first

	select {
	case <-gone:
		t.Fatal("reported while another tab is still connected")
	case <-time.After(50 * time.Millisecond):
	}

	second.goingAway = true
	hub.unregister <- second

	select {
	case id := <-gone:
		assert.Equal(t, "a", id)
	case <-time.After(2 * time.Second):
		t.Fatal("going away not reported")
	}
	assert.Equal(t, 0, hub.Connections("a"))
}

func TestNormalCloseIsNotAnUnload(t *testing.T) {
	gone := make(chan string, 1)
	hub, _ := startHub(t, func(id string) { gone <- id })

	c := newClient(hub, "a")
	hub.unregister <- c

	select {
	case <-gone:
		t.Fatal("normal close treated as unload")
	case <-time.After(50 * time.Millisecond):
	}

	_, open := <-c.Send
	assert.False(t, open)
}

func TestInitialSnapshotTakenAtRegistration(t *testing.T) {
	hub, changes := startHub(t, nil)

	var mu sync.Mutex
	state := session.Snapshot{Version: 1, Phase: session.PhaseUploading}
	current := func() session.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		return state
	}

	// The upload finishes after the connection was accepted but before it
	// registered; the hub has nobody to deliver it to.
	mu.Lock()
	state = session.Snapshot{Version: 2, Phase: session.PhaseActive, SessionID: "s1"}
	mu.Unlock()
	changes <- change("a", 2, session.PhaseActive)

	c := &Client{Hub: hub, WorkspaceID: "a", Send: make(chan []byte, 8), current: current}
	hub.register <- c

	first := readFrame(t, c)
	assert.EqualValues(t, 2, first.Data.Version)
	assert.Equal(t, session.PhaseActive, first.Data.Phase)
	assert.Equal(t, "s1", first.Data.SessionID)

	// A late delivery of the same version is not repeated; newer ones flow.
	changes <- change("a", 2, session.PhaseActive)
	changes <- change("a", 3, session.PhaseEndingSession)
	assert.EqualValues(t, 3, readFrame(t, c).Data.Version)
	assert.Empty(t, c.Send)
}
