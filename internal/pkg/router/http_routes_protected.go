package router

import (
	"github.com/TobiasKell/NoteMorph/app/controllers"
	"github.com/TobiasKell/NoteMorph/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerProtectedRoutes(app *fiber.App) {
	// Billing orchestration
	app.Post("/billing/checkout", middleware.RequireAuth, controllers.HandleBillingCheckout)
	app.Post("/billing/portal", middleware.RequireAuth, controllers.HandleBillingPortal)

	// Entitlements
	app.Post("/entitlement/authorize", middleware.RequireAuth, controllers.HandleEntitlementAuthorize)
	app.Get("/entitlement/status", middleware.RequireAuth, controllers.HandleEntitlementStatus)

	// Notes
	app.Post("/notes/transform", middleware.RequireAuth, controllers.HandleNoteTransform)
	app.Get("/user/notes", middleware.RequireAuth, controllers.HandleNoteList)
	app.Get("/notes/:uuid", middleware.RequireAuth, controllers.HandleNoteShow)

	// API key management
	app.Post("/user/settings/api-key", middleware.RequireAuth, controllers.HandleUserAPIKeyIssue)
	app.Post("/user/settings/api-key/revoke", middleware.RequireAuth, controllers.HandleUserAPIKeyRevoke)
}
