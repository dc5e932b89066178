package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/elvinn/hongbao-cover-ai-sub000/app/controllers"
	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())

	v1 := api.Group("/v1")

	// Auth
	v1.Post("/auth/register", controllers.HandleRegister)
	v1.Post("/auth/login", controllers.HandleLogin)
	v1.Post("/auth/logout", controllers.HandleLogout)

	// Account
	account := v1.Group("/account", middleware.RequireLogin())
	account.Get("/", controllers.HandleGetAccount)
	account.Post("/api-key", controllers.HandleRotateAPIKey)

	// Credits
	creditsGroup := v1.Group("/credits", middleware.RequireLogin())
	creditsGroup.Get("/balance", controllers.HandleGetBalance)
	creditsGroup.Post("/redeem", controllers.HandleRedeem)

	// Payments
	v1.Get("/payments/plans", controllers.HandleListPlans)
	paymentsGroup := v1.Group("/payments", middleware.RequireLogin())
	paymentsGroup.Post("/checkout", controllers.HandleCreateCheckout)
	paymentsGroup.Post("/checkout/mock", controllers.HandleMockCheckout)
	paymentsGroup.Get("/verify", controllers.HandleVerifySession)

	// Covers and gallery
	v1.Post("/covers", middleware.RequireLogin(), controllers.HandleGenerateCover)
	v1.Get("/covers", middleware.RequireLogin(), controllers.HandleGetMyCovers)
	v1.Get("/covers/:uuid", controllers.HandleGetCover)
	v1.Get("/gallery", controllers.HandleGetGallery)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
