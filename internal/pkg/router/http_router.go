package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/controllers"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/middleware"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/session"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// init session
	session.NewSessionStore()

	// Resolve authentication globally before any route handler runs
	app.Use(middleware.SessionAuthMiddleware())
	app.Use(middleware.APIKeyAuthMiddleware())

	// Webhooks stay outside the rate-limited /api group. The Stripe
	// signature check is the gate here, not the limiter.
	app.Post("/webhooks/stripe", controllers.HandleStripeWebhook)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
