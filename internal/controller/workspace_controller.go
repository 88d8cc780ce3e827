package controller

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"smartpdf-web/internal/dto"
	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/lifecycle"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/pkg/serverutils"
	"smartpdf-web/internal/session"
	"smartpdf-web/internal/workspace"

	"github.com/gofiber/fiber/v2"
)

type IWorkspaceController interface {
	RegisterRoutes(r fiber.Router)
	Create(ctx *fiber.Ctx) error
	Show(ctx *fiber.Ctx) error
	SelectFiles(ctx *fiber.Ctx) error
	ClearFiles(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
	Chat(ctx *fiber.Ctx) error
	End(ctx *fiber.Ctx) error
	ClearError(ctx *fiber.Ctx) error
	Unload(ctx *fiber.Ctx) error
}

type workspaceController struct {
	registry *workspace.Registry
	logger   logger.ILogger
}

func NewWorkspaceController(registry *workspace.Registry, log logger.ILogger) IWorkspaceController {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &workspaceController{registry: registry, logger: log}
}

func (c *workspaceController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/workspace/v1")
	h.Post("", c.Create)
	h.Get(":id", c.Show)
	h.Put(":id/files", c.SelectFiles)
	h.Delete(":id/files", c.ClearFiles)
	h.Post(":id/upload", c.Upload)
	h.Post(":id/chat", c.Chat)
	h.Post(":id/end", c.End)
	h.Delete(":id/error", c.ClearError)
	h.Post(":id/unload", c.Unload)
}

func (c *workspaceController) Create(ctx *fiber.Ctx) error {
	ws := c.registry.Create()
	return ctx.Status(fiber.StatusCreated).JSON(serverutils.SuccessResponse("Workspace created", dto.CreateWorkspaceResponse{
		Id:       ws.ID,
		Snapshot: ws.Store.Snapshot(),
	}))
}

func (c *workspaceController) Show(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Success get workspace", ws.Store.Snapshot()))
}

func (c *workspaceController) SelectFiles(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}

	var headers []*multipart.FileHeader
	if form, err := ctx.MultipartForm(); err == nil {
		headers = form.File["files"]
	}

	docs := make([]gateway.Document, 0, len(headers))
	for _, fh := range headers {
		doc, err := readDocument(fh)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		docs = append(docs, doc)
	}

	snap, err := ws.Upload.ChooseFiles(docs)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Files selected", dto.SelectFilesResponse{
		Files:    snap.PendingFiles,
		Snapshot: snap,
	}))
}

func (c *workspaceController) ClearFiles(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	snap, err := ws.Upload.Clear()
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Files cleared", snap))
}

func (c *workspaceController) Upload(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	snap, err := ws.Upload.Process(ctx.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Files uploaded and processed successfully", snap))
}

func (c *workspaceController) Chat(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}

	var req dto.ChatRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	answer, err := ws.Chat.Send(ctx.UserContext(), req.Query)
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Success send chat", dto.ChatResponse{
		Answer:   answer,
		Snapshot: ws.Store.Snapshot(),
	}))
}

func (c *workspaceController) End(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	snap, err := ws.Upload.End(ctx.UserContext())
	if err != nil {
		return toHTTPError(err)
	}
	return ctx.JSON(serverutils.SuccessResponse("Session ended and data cleared.", snap))
}

func (c *workspaceController) ClearError(ctx *fiber.Ctx) error {
	ws, err := c.workspace(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Error cleared", ws.Upload.DismissError()))
}

// Unload is the page's sendBeacon target. It always answers 204: the page
// is gone and cannot act on anything else.
func (c *workspaceController) Unload(ctx *fiber.Ctx) error {
	id := ctx.Params("id")
	c.registry.Remove(id, lifecycle.ReasonBeacon)
	c.logger.Debug("WorkspaceController", "Unload beacon", map[string]interface{}{"workspace_id": id})
	return ctx.SendStatus(fiber.StatusNoContent)
}

func (c *workspaceController) workspace(ctx *fiber.Ctx) (*workspace.Workspace, error) {
	ws, err := c.registry.Get(ctx.Params("id"))
	if err != nil {
		return nil, toHTTPError(err)
	}
	return ws, nil
}

func readDocument(fh *multipart.FileHeader) (gateway.Document, error) {
	f, err := fh.Open()
	if err != nil {
		return gateway.Document{}, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return gateway.Document{}, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	return gateway.Document{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// toHTTPError maps domain errors onto statuses: conflicts with the current
// phase are 409, bad input is 400, backend failures are 502.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, workspace.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, "Workspace not found")
	case gateway.KindOf(err) != 0:
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrSessionActive),
		errors.Is(err, session.ErrNoActiveSession),
		errors.Is(err, session.ErrChatPending),
		errors.Is(err, session.ErrSuperseded),
		errors.Is(err, session.ErrIllegalTransition):
		return fiber.NewError(fiber.StatusConflict, capitalize(err.Error()))
	case errors.Is(err, session.ErrPreconditionViolation):
		return fiber.NewError(fiber.StatusBadRequest, capitalize(err.Error()))
	}
	return err
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
