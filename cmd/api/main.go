package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/db"
	"github.com/fast-rabbit/vpn-backend/internal/events"
	apphttp "github.com/fast-rabbit/vpn-backend/internal/http"
	"github.com/fast-rabbit/vpn-backend/internal/http/handlers"
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/fast-rabbit/vpn-backend/internal/telegram"
	"github.com/fast-rabbit/vpn-backend/internal/vpn"
	"github.com/fast-rabbit/vpn-backend/migrations"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	cfg.Validate(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "fast-rabbit-api", cfg.DBMaxConns, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	// Run migrations
	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Telegram
	gateway, err := telegram.NewGateway(cfg.BotToken, cfg.TelegramAPIURL, cfg.TelegramTimeout, log)
	if err != nil {
		log.Fatal("failed to init telegram client", zap.Error(err))
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	paymentRepo := repositories.NewPaymentRepo(pool)
	ledgerRepo := repositories.NewLedgerRepo(pool)
	vpnRepo := repositories.NewVpnRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool)

	// Events
	publisher := events.NewRedisPublisher(rdb, log)
	subscriber := events.NewRedisSubscriber(rdb, log)

	// Services
	reality := vpn.Reality{PublicKey: cfg.VpnPBK, ShortID: cfg.VpnSID, SNI: cfg.VpnSNI, Flow: cfg.VpnFlow}
	profileService := services.NewProfileService(userRepo, ledgerRepo, vpnRepo, reality, log)
	invoiceService := services.NewInvoiceService(userRepo, paymentRepo, gateway, cfg, log)
	settlementService := services.NewSettlementService(userRepo, paymentRepo, gateway, publisher, log)
	refundService := services.NewRefundService(userRepo, paymentRepo, gateway, publisher, log)
	adminService := services.NewAdminService(userRepo, paymentRepo, ledgerRepo, auditRepo, log)

	// Handlers
	wsHub := handlers.NewWSHub(cfg, subscriber, log)
	h := apphttp.Handlers{
		Verify:  handlers.NewVerifyHandler(cfg, log),
		Auth:    handlers.NewAuthHandler(profileService, cfg, log),
		User:    handlers.NewUserHandler(profileService, log),
		Payment: handlers.NewPaymentHandler(invoiceService, log),
		Webhook: handlers.NewWebhookHandler(settlementService, log),
		Server:  handlers.NewServerHandler(cfg.VpnServers),
		Admin:   handlers.NewAdminHandler(refundService, adminService, log),
		WS:      wsHub,
	}

	// Start WS hub
	if err := wsHub.Start(ctx); err != nil {
		log.Fatal("failed to subscribe ws hub", zap.Error(err))
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, h)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
