package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fast-rabbit/vpn-backend/internal/config"
	"github.com/fast-rabbit/vpn-backend/internal/db"
	"github.com/fast-rabbit/vpn-backend/internal/events"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/fast-rabbit/vpn-backend/internal/telegram"
	"go.uber.org/zap"
)

// Bot Notify Bridge — слушает события платежей в Redis и пишет
// пользователю в чат бота.

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	gateway, err := telegram.NewGateway(cfg.BotToken, cfg.TelegramAPIURL, cfg.TelegramTimeout, log)
	if err != nil {
		log.Fatal("failed to init telegram client", zap.Error(err))
	}

	subscriber := events.NewRedisSubscriber(rdb, log)
	err = subscriber.Subscribe(ctx, services.PaymentEventsStream, func(event events.Event) {
		notify(ctx, gateway, event, log)
	})
	if err != nil {
		log.Fatal("failed to subscribe", zap.Error(err))
	}

	log.Info("bot-notify-bridge started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down bot-notify-bridge")
	cancel()
}

func notify(ctx context.Context, gateway *telegram.Gateway, event events.Event, log *zap.Logger) {
	chatID := event.TelegramUserID()
	text := telegram.NotificationText(event)
	if chatID == 0 || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := gateway.SendText(ctx, chatID, text); err != nil {
		log.Warn("failed to send notification",
			zap.String("type", event.Type),
			zap.Int64("telegram_user_id", chatID),
			zap.Error(err),
		)
		return
	}
	log.Info("notification sent", zap.String("type", event.Type), zap.Int64("telegram_user_id", chatID))
}
