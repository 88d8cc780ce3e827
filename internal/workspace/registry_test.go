package workspace_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/gateway/gatewaytest"
	"smartpdf-web/internal/lifecycle"
	"smartpdf-web/internal/session"
	"smartpdf-web/internal/workspace"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, opts workspace.Options) (*workspace.Registry, *gatewaytest.Backend, *lifecycle.Guard) {
	t.Helper()
	backend := gatewaytest.NewBackend(t)
	gw := backend.Gateway()
	guard := lifecycle.NewGuard(gw, nil)
	return workspace.NewRegistry(gw, guard, nil, opts), backend, guard
}

func activate(t *testing.T, ws *workspace.Workspace) {
	t.Helper()
	_, err := ws.Upload.ChooseFiles([]gateway.Document{{Name: "report.pdf", Data: []byte("%PDF")}})
	require.NoError(t, err)
	_, err = ws.Upload.Process(context.Background())
	require.NoError(t, err)
}

func TestCreateAndGet(t *testing.T) {
	reg, _, _ := newRegistry(t, workspace.Options{})

	ws := reg.Create()
	require.NotEmpty(t, ws.ID)

	got, err := reg.Get(ws.ID)
	require.NoError(t, err)
	assert.Same(t, ws, got)

	_, err = reg.Get("missing")
	assert.ErrorIs(t, err, workspace.ErrNotFound)
	assert.Equal(t, 1, reg.Count())
}

func TestWorkspacesAreIsolated(t *testing.T) {
	reg, _, _ := newRegistry(t, workspace.Options{})

	a := reg.Create()
	b := reg.Create()
	activate(t, a)
	activate(t, b)

	assert.Equal(t, "s1", a.Store.Snapshot().SessionID)
	assert.Equal(t, "s2", b.Store.Snapshot().SessionID)
}

func TestRemoveReleasesSession(t *testing.T) {
	reg, backend, guard := newRegistry(t, workspace.Options{})

	ws := reg.Create()
	activate(t, ws)

	reg.Remove(ws.ID, lifecycle.ReasonBeacon)

	assert.True(t, guard.Wait(2*time.Second))
	assert.Equal(t, []string{"s1"}, backend.Ended())
	assert.Equal(t, 0, reg.Count())
}

func TestIdleExpiryReleasesSession(t *testing.T) {
	reg, backend, guard := newRegistry(t, workspace.Options{
		IdleTTL:         20 * time.Millisecond,
		CleanupInterval: time.Hour,
	})

	ws := reg.Create()
	activate(t, ws)

	time.Sleep(40 * time.Millisecond)
	reg.DeleteExpired()

	assert.True(t, guard.Wait(2*time.Second))
	assert.Equal(t, []string{"s1"}, backend.Ended())
	assert.Equal(t, session.PhaseIdle, ws.Store.Snapshot().Phase)

	_, err := reg.Get(ws.ID)
	assert.ErrorIs(t, err, workspace.ErrNotFound)
}

func TestReleaseAll(t *testing.T) {
	reg, backend, guard := newRegistry(t, workspace.Options{})

	activate(t, reg.Create())
	activate(t, reg.Create())
	reg.Create()

	assert.Equal(t, 2, reg.ReleaseAll(lifecycle.ReasonShutdown))
	assert.True(t, guard.Wait(2*time.Second))
	assert.ElementsMatch(t, []string{"s1", "s2"}, backend.Ended())
	assert.Equal(t, 3, reg.Count())
}

func TestReleaseAllIncludesExpiredWorkspaces(t *testing.T) {
	reg, backend, guard := newRegistry(t, workspace.Options{
		IdleTTL:         20 * time.Millisecond,
		CleanupInterval: time.Hour,
	})

	ws := reg.Create()
	activate(t, ws)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 1, reg.ReleaseAll(lifecycle.ReasonShutdown))
	assert.True(t, guard.Wait(2*time.Second))
	assert.Equal(t, []string{"s1"}, backend.Ended())

	snap := ws.Store.Snapshot()
	assert.Equal(t, session.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.SessionID)
	assert.Equal(t, 0, reg.Count())
}

func TestGetDoesNotReviveExpiredWorkspace(t *testing.T) {
	reg, _, _ := newRegistry(t, workspace.Options{
		IdleTTL:         20 * time.Millisecond,
		CleanupInterval: time.Hour,
	})

	ws := reg.Create()
	time.Sleep(40 * time.Millisecond)

	_, err := reg.Get(ws.ID)
	assert.ErrorIs(t, err, workspace.ErrNotFound)
	reg.DeleteExpired()
	assert.Equal(t, 0, reg.Count())
}

func TestNotifierFactory(t *testing.T) {
	var (
		mu   sync.Mutex
		seen = map[string][]session.Reason{}
	)
	reg, _, _ := newRegistry(t, workspace.Options{
		Notifiers: func(id string) session.Notifier {
			return session.NotifierFunc(func(c session.Change) {
				mu.Lock()
				defer mu.Unlock()
				seen[id] = append(seen[id], c.Reason)
			})
		},
	})

	ws := reg.Create()
	activate(t, ws)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []session.Reason{
		session.ReasonFilesSelected,
		session.ReasonUploadStarted,
		session.ReasonSessionCreated,
	}, seen[ws.ID])
}
