package controller

import (
	"github.com/gofiber/fiber/v2"

	"hostctl_backend/internal/middleware"
)

func SetupRoutes(app *fiber.App, h *Handler, adminTokenHash string) {
	api := app.Group("/api")

	auth := api.Group("/auth")
	auth.Post("/register", h.Register)
	auth.Post("/login", h.Login)

	api.Get("/packages", h.ListPackages)

	// Webhooks authenticate with their own signatures.
	webhooks := api.Group("/webhooks")
	webhooks.Post("/stripe", h.HandleStripeWebhook)
	webhooks.Post("/paystack", h.HandlePaystackWebhook)
	webhooks.Post("/provisioner", middleware.AdminToken(adminTokenHash), h.HandleProvisionerEvent)

	admin := api.Group("/admin", middleware.AdminToken(adminTokenHash))
	admin.Post("/sync", h.SyncAll)
	admin.Post("/payments/poll", h.PollPayments)
	admin.Post("/instances/check", h.CheckInstances)

	protected := api.Group("", middleware.AuthMiddleware())
	protected.Get("/me", h.GetMe)
	protected.Put("/me", h.UpdateProfile)

	protected.Post("/checkout/:package_id", h.Checkout)

	orders := protected.Group("/orders")
	orders.Get("/:id", h.GetOrder)
	orders.Post("/:id/configure", h.ConfigureOrder)
	orders.Post("/:id/sync", h.SyncOrder)

	subscriptions := protected.Group("/subscriptions")
	subscriptions.Get("/:id", h.GetSubscription)
	subscriptions.Post("/:id/cancel", h.CancelSubscription)
	subscriptions.Post("/:id/payment", h.AttachPayment)

	instances := protected.Group("/instances")
	instances.Get("/:id", h.GetInstance)
	instances.Get("/:id/credentials", h.GetCredentials)
	instances.Post("/:id/delete", h.DeleteInstance)
}
