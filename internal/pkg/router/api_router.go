package router

import (
	"github.com/TobiasKell/NoteMorph/app/controllers"
	"github.com/TobiasKell/NoteMorph/internal/pkg/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, authenticated by user API key
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())
	v1.Post("/notes/transform", controllers.HandleNoteTransform)
	v1.Get("/notes", controllers.HandleNoteList)
	v1.Get("/notes/:uuid", controllers.HandleNoteShow)
	v1.Post("/entitlement/authorize", controllers.HandleEntitlementAuthorize)
	v1.Get("/entitlement/status", controllers.HandleEntitlementStatus)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
