package flow

import (
	"context"
	"fmt"

	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/session"
)

type UploadOptions struct {
	// SingleFile keeps only the most recently chosen file.
	SingleFile bool
	Logger     logger.ILogger
}

type UploadController struct {
	store *session.Store
	opts  UploadOptions
}

func NewUploadController(store *session.Store, opts UploadOptions) *UploadController {
	if opts.Logger == nil {
		opts.Logger = logger.NewNopLogger()
	}
	return &UploadController{store: store, opts: opts}
}

// ChooseFiles replaces the pending selection with files. Only PDFs are
// accepted; in single-file mode the last one wins.
func (c *UploadController) ChooseFiles(files []gateway.Document) (session.Snapshot, error) {
	in := chooseFilesInput{Files: make([]fileInput, len(files))}
	for i, f := range files {
		in.Files[i] = fileInput{Name: f.Name, ContentType: f.ContentType, Data: f.Data}
	}
	if err := validate.Struct(in); err != nil {
		return session.Snapshot{}, precondition(err, session.ErrNoFilesSelected)
	}

	for _, f := range files {
		if !isPDFName(f.Name) {
			return session.Snapshot{}, fmt.Errorf("%w: %s", session.ErrNotPDF, f.Name)
		}
	}

	if c.opts.SingleFile && len(files) > 1 {
		files = files[len(files)-1:]
	}

	snap, err := c.store.SelectFiles(files)
	if err != nil {
		return snap, err
	}

	c.opts.Logger.Debug("UploadFlow", "Files chosen", map[string]interface{}{
		"count": len(files),
	})
	return snap, nil
}

// Process submits the pending selection.
func (c *UploadController) Process(ctx context.Context) (session.Snapshot, error) {
	snap := c.store.Snapshot()
	if snap.IsLoading {
		return snap, session.ErrBusy
	}
	if len(snap.PendingFiles) == 0 {
		if snap.HasSession() {
			return snap, session.ErrSessionActive
		}
		return snap, session.ErrNoFilesSelected
	}
	return c.store.Upload(ctx)
}

// End terminates the active session.
func (c *UploadController) End(ctx context.Context) (session.Snapshot, error) {
	snap := c.store.Snapshot()
	if snap.IsLoading {
		return snap, session.ErrBusy
	}
	if !snap.HasSession() {
		return snap, session.ErrNoActiveSession
	}
	return c.store.EndSession(ctx)
}

// Clear drops the pending selection.
func (c *UploadController) Clear() (session.Snapshot, error) {
	return c.store.ClearFiles()
}

// DismissError clears the last reported failure.
func (c *UploadController) DismissError() session.Snapshot {
	return c.store.ClearError()
}
