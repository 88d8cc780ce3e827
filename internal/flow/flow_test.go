package flow_test

import (
	"context"
	"testing"

	"smartpdf-web/internal/flow"
	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/gateway/gatewaytest"
	"smartpdf-web/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(name, contentType string) gateway.Document {
	return gateway.Document{Name: name, ContentType: contentType, Data: []byte("%PDF-1.7")}
}

type fixture struct {
	backend *gatewaytest.Backend
	store   *session.Store
	upload  *flow.UploadController
	chat    *flow.ChatController
}

func newFixture(t *testing.T, opts flow.UploadOptions) *fixture {
	t.Helper()
	backend := gatewaytest.NewBackend(t)
	store := session.NewStore(backend.Gateway(), session.Options{})
	return &fixture{
		backend: backend,
		store:   store,
		upload:  flow.NewUploadController(store, opts),
		chat:    flow.NewChatController(store),
	}
}

func TestChooseFilesGuards(t *testing.T) {
	tests := []struct {
		name    string
		files   []gateway.Document
		wantErr error
	}{
		{
			name:    "nothing chosen",
			files:   nil,
			wantErr: session.ErrNoFilesSelected,
		},
		{
			name:    "not a pdf by extension",
			files:   []gateway.Document{doc("notes.txt", "")},
			wantErr: session.ErrNotPDF,
		},
		{
			name:    "not a pdf by content type",
			files:   []gateway.Document{doc("scan.pdf", "image/png")},
			wantErr: session.ErrNotPDF,
		},
		{
			name:    "empty file",
			files:   []gateway.Document{{Name: "empty.pdf"}},
			wantErr: session.ErrPreconditionViolation,
		},
		{
			name:    "unnamed file",
			files:   []gateway.Document{{Data: []byte("%PDF")}},
			wantErr: session.ErrPreconditionViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, flow.UploadOptions{})

			_, err := f.upload.ChooseFiles(tt.files)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, session.ErrPreconditionViolation)

			snap := f.store.Snapshot()
			assert.Equal(t, session.PhaseIdle, snap.Phase)
			assert.Empty(t, snap.LastError)
		})
	}
}

func TestChooseFilesAcceptsPDFs(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{})

	snap, err := f.upload.ChooseFiles([]gateway.Document{
		doc("a.pdf", "application/pdf"),
		doc("B.PDF", "application/octet-stream"),
		doc("c.pdf", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, session.PhaseSelectingFiles, snap.Phase)
	assert.Len(t, snap.PendingFiles, 3)
}

func TestSingleFileKeepsLatest(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{SingleFile: true})

	snap, err := f.upload.ChooseFiles([]gateway.Document{doc("old.pdf", ""), doc("new.pdf", "")})
	require.NoError(t, err)
	require.Len(t, snap.PendingFiles, 1)
	assert.Equal(t, "new.pdf", snap.PendingFiles[0].Name)

	snap, err = f.upload.ChooseFiles([]gateway.Document{doc("newest.pdf", "")})
	require.NoError(t, err)
	require.Len(t, snap.PendingFiles, 1)
	assert.Equal(t, "newest.pdf", snap.PendingFiles[0].Name)
}

func TestProcessAndEnd(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{})
	ctx := context.Background()

	_, err := f.upload.Process(ctx)
	assert.ErrorIs(t, err, session.ErrNoFilesSelected)

	_, err = f.upload.End(ctx)
	assert.ErrorIs(t, err, session.ErrNoActiveSession)

	_, err = f.upload.ChooseFiles([]gateway.Document{doc("report.pdf", "application/pdf")})
	require.NoError(t, err)

	snap, err := f.upload.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, "s1", snap.SessionID)

	_, err = f.upload.Process(ctx)
	assert.ErrorIs(t, err, session.ErrSessionActive)

	snap, err = f.upload.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseIdle, snap.Phase)

	assert.Equal(t, 1, f.backend.Calls(gatewaytest.UploadPath))
	assert.Equal(t, 1, f.backend.Calls(gatewaytest.EndPath))
}

func TestClear(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{})

	_, err := f.upload.ChooseFiles([]gateway.Document{doc("a.pdf", "")})
	require.NoError(t, err)

	snap, err := f.upload.Clear()
	require.NoError(t, err)
	assert.Equal(t, session.PhaseIdle, snap.Phase)
	assert.Empty(t, snap.PendingFiles)
}

func TestSendGuards(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{})
	ctx := context.Background()

	_, err := f.chat.Send(ctx, "What is the total?")
	assert.ErrorIs(t, err, session.ErrNoActiveSession)

	_, err = f.upload.ChooseFiles([]gateway.Document{doc("report.pdf", "")})
	require.NoError(t, err)
	_, err = f.upload.Process(ctx)
	require.NoError(t, err)

	for _, blank := range []string{"", "   ", "\n\t"} {
		_, err = f.chat.Send(ctx, blank)
		assert.ErrorIs(t, err, session.ErrEmptyQuery)
	}

	assert.Equal(t, 0, f.backend.Calls(gatewaytest.ChatPath))
	assert.Empty(t, f.store.Snapshot().Transcript)
	assert.Empty(t, f.store.Snapshot().LastError)
}

func TestSendTrimsQuery(t *testing.T) {
	f := newFixture(t, flow.UploadOptions{})
	ctx := context.Background()

	_, err := f.upload.ChooseFiles([]gateway.Document{doc("report.pdf", "")})
	require.NoError(t, err)
	_, err = f.upload.Process(ctx)
	require.NoError(t, err)

	answer, err := f.chat.Send(ctx, "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "echo: hello", answer.Text)

	queries := f.backend.Queries()
	require.Len(t, queries, 1)
	assert.Equal(t, "hello", queries[0].Get("query"))
	assert.Equal(t, "s1", queries[0].Get("session_id"))
}
