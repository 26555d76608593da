package http

import (
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/http/handlers"
	"github.com/fast-rabbit/vpn-backend/internal/middleware"
	"github.com/fast-rabbit/vpn-backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Verify  *handlers.VerifyHandler
	Auth    *handlers.AuthHandler
	User    *handlers.UserHandler
	Payment *handlers.PaymentHandler
	Webhook *handlers.WebhookHandler
	Server  *handlers.ServerHandler
	Admin   *handlers.AdminHandler
	WS      *handlers.WSHub
}

func SetupRouter(
	app *fiber.App,
	cfg *config.Config,
	log *zap.Logger,
	rdb *redis.Client,
	h Handlers,
) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, " + handlers.InitDataHeader,
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Telegram webhook: без лимита, защищён секретом
	app.Post("/telegram/webhook", middleware.WebhookSecretMiddleware(cfg.WebhookSecret, log), h.Webhook.Handle)

	limit := middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMinute, time.Minute, log)

	// Public
	app.Post("/miniapp/verify", limit, h.Verify.Verify)
	app.Post("/auth/telegram", limit, h.Auth.TelegramAuth)
	app.Get("/servers", h.Server.ListServers)

	// Protected endpoints
	authn := middleware.AuthMiddleware(cfg, log)

	app.Get("/me", authn, limit, h.User.GetMe)
	app.Get("/me/ledger", authn, limit, h.User.GetLedger)

	app.Post("/payments/stars/invoice", authn, limit, h.Payment.CreateStarsInvoice)
	app.Get("/payments/stars/status", authn, limit, h.Payment.GetStatus)
	app.Get("/payments", authn, limit, h.Payment.ListPayments)

	// Admin
	admin := app.Group("/admin", authn)
	admin.Get("/payments/:id", middleware.RequirePermission(rbac.PermViewPayment), h.Admin.GetPayment)
	admin.Post("/payments/:id/refund", middleware.RequirePermission(rbac.PermRefundPayment), h.Admin.RefundPayment)
	admin.Post("/balance/adjust", middleware.RequirePermission(rbac.PermAdjustBalance), h.Admin.AdjustBalance)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
