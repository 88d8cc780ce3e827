package controller

import (
	"embed"

	"smartpdf-web/internal/dto"
	"smartpdf-web/internal/pkg/serverutils"
	"smartpdf-web/internal/workspace"

	"github.com/gofiber/fiber/v2"
)

//go:embed pages/*.html
var pages embed.FS

type IPageController interface {
	RegisterRoutes(app fiber.Router)
	Landing(ctx *fiber.Ctx) error
	Workspace(ctx *fiber.Ctx) error
	Health(ctx *fiber.Ctx) error
}

type pageController struct {
	registry *workspace.Registry
}

func NewPageController(registry *workspace.Registry) IPageController {
	return &pageController{registry: registry}
}

func (c *pageController) RegisterRoutes(app fiber.Router) {
	app.Get("/", c.Landing)
	app.Get("/chat", c.Workspace)
	app.Get("/api/health", c.Health)
}

func (c *pageController) Landing(ctx *fiber.Ctx) error {
	return c.serve(ctx, "pages/index.html")
}

func (c *pageController) Workspace(ctx *fiber.Ctx) error {
	return c.serve(ctx, "pages/chat.html")
}

func (c *pageController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("OK", dto.HealthResponse{
		Status:     "ok",
		Workspaces: c.registry.Count(),
	}))
}

func (c *pageController) serve(ctx *fiber.Ctx, name string) error {
	body, err := pages.ReadFile(name)
	if err != nil {
		return fiber.ErrNotFound
	}
	ctx.Type("html", "utf-8")
	return ctx.Send(body)
}
