package router

import (
	"github.com/TobiasKell/NoteMorph/app/controllers"
	"github.com/TobiasKell/NoteMorph/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

func (h HttpRouter) registerPublicRoutes(app *fiber.App) {
	// Auth
	app.Post("/register", loggedInMiddleware, controllers.HandleAuthRegister)
	app.Post("/login", loggedInMiddleware, controllers.HandleAuthLogin)
	app.Post("/logout", middleware.RequireAuth, controllers.HandleAuthLogout)
	app.Post("/activate", controllers.HandleAuthActivate)

	// Public usage numbers
	app.Get("/stats", controllers.HandleStats)

	// Billing provider webhooks (no session, signature-verified in controller)
	app.Post("/billing/webhook", controllers.HandleBillingWebhook)
}
