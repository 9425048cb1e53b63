// Package routes defines the API routing configuration.
// It sets up all HTTP routes and their corresponding handlers,
// including middleware and authentication requirements.
package routes

import (
	"fmt"
	"net/http"
	"time"

	"settlr/internal/handlers"
	"settlr/internal/middleware"
	"settlr/internal/models"
	"settlr/internal/utils/response"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Auth        *middleware.AuthMiddleware
	Deposits    *handlers.DepositHandler
	Withdrawals *handlers.WithdrawalHandler
	Settlements *handlers.SettlementHandler
	Webhooks    *handlers.WebhookHandler
	Admin       *handlers.AdminHandler
	Users       *handlers.UserHandler
	Health      *handlers.HealthHandler
	// Metrics serves the prometheus exposition format; nil disables /metrics.
	Metrics http.Handler

	// InitiationLimit caps deposit and withdrawal initiations per user per minute.
	InitiationLimit int
}

// SetupRoutes configures all application routes.
// It groups routes by functionality and applies appropriate middleware.
func SetupRoutes(app *fiber.App, h Handlers) {
	app.Get("/health", h.Health.Check)
	if h.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(h.Metrics))
	}

	api := app.Group("/api")

	// Provider-facing endpoints authenticate by signature or re-verification, not JWT.
	api.Post("/webhooks/paystack", h.Webhooks.Handle(models.ProviderGatewayA))
	api.Post("/webhooks/monnify", h.Webhooks.Handle(models.ProviderGatewayB))
	api.Get("/deposits/callback", h.Deposits.Callback)

	setupAdminRoutes(api, h)
	setupUserRoutes(api, h)
}

func setupAdminRoutes(api fiber.Router, h Handlers) {
	admin := api.Group("/admin", h.Auth.Handler, middleware.AdminAuthMiddleware)

	admin.Get("/deposits", middleware.HasPermission(models.PermissionReadAdmin), h.Admin.PendingDeposits)
	admin.Post("/deposits/approve", middleware.HasPermission(models.PermissionWriteAdmin), h.Admin.ApproveDeposit)
	admin.Post("/deposits/reject", middleware.HasPermission(models.PermissionWriteAdmin), h.Admin.RejectDeposit)
	admin.Post("/withdrawals/retry", middleware.HasPermission(models.PermissionWriteAdmin), h.Admin.RetryWithdrawals)
	admin.Post("/reconcile/:reference", middleware.HasPermission(models.PermissionWriteAdmin), h.Admin.Reconcile)
}

func setupUserRoutes(api fiber.Router, h Handlers) {
	protected := api.Group("", h.Auth.Handler)
	limit := initiationLimiter(h.InitiationLimit)

	deposits := protected.Group("/deposits")
	deposits.Post("/", middleware.HasPermission(models.PermissionDeposit), limit, h.Deposits.Initiate)
	deposits.Get("/manual", h.Deposits.ManualInstructions)

	withdrawals := protected.Group("/withdrawals")
	withdrawals.Post("/", middleware.HasPermission(models.PermissionWithdraw), limit, h.Withdrawals.Request)
	withdrawals.Get("/:reference", h.Withdrawals.Status)

	protected.Get("/settlements/:reference", h.Settlements.Status)
	protected.Put("/user/payout-account", h.Users.UpdatePayoutAccount)
}

func initiationLimiter(max int) fiber.Handler {
	if max <= 0 {
		max = 10
	}
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			if id, ok := c.Locals("userID").(uint); ok {
				return fmt.Sprintf("user:%d", id)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return response.Error(c, fiber.StatusTooManyRequests, "RATE_LIMITED",
				"Too many requests. Please try again later.")
		},
	})
}
