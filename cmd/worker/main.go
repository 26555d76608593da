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
	"github.com/fast-rabbit/vpn-backend/internal/repositories"
	"github.com/fast-rabbit/vpn-backend/internal/services"
	"github.com/fast-rabbit/vpn-backend/internal/telegram"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const reconcileTimeout = 2 * time.Minute

type jobs struct {
	reconciler  *services.ReconcileService
	refunds     *services.RefundService
	resumeAfter time.Duration
	log         *zap.Logger
}

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, "fast-rabbit-worker", 4, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	gateway, err := telegram.NewGateway(cfg.BotToken, cfg.TelegramAPIURL, cfg.TelegramTimeout, log)
	if err != nil {
		log.Fatal("failed to init telegram client", zap.Error(err))
	}

	paymentRepo := repositories.NewPaymentRepo(pool)
	j := &jobs{
		reconciler:  services.NewReconcileService(paymentRepo, log),
		refunds:     services.NewRefundService(repositories.NewUserRepo(pool), paymentRepo, gateway, events.NewRedisPublisher(rdb, log), log),
		resumeAfter: cfg.RefundResumeAfter,
		log:         log,
	}

	// SkipIfStillRunning: следующий запуск не стартует, пока идёт предыдущий
	c := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	_, err = c.AddFunc(cfg.ReconcileSchedule, func() {
		j.run(ctx)
	})
	if err != nil {
		log.Fatal("invalid RECONCILE_SCHEDULE", zap.String("schedule", cfg.ReconcileSchedule), zap.Error(err))
	}

	c.Start()
	log.Info("worker started", zap.String("schedule", cfg.ReconcileSchedule))

	// один проход сразу после старта
	j.run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down worker")
	cancel()
	<-c.Stop().Done()
}

func (j *jobs) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, reconcileTimeout)
	defer cancel()

	n, err := j.reconciler.Run(ctx)
	if err != nil {
		j.log.Error("reconcile failed", zap.Error(err))
	} else {
		j.log.Debug("reconcile finished", zap.Int("repaired", n))
	}

	n, err = j.refunds.ResumeStale(ctx, j.resumeAfter)
	if err != nil {
		j.log.Error("refund resume failed", zap.Error(err))
		return
	}
	j.log.Debug("refund resume finished", zap.Int("resumed", n))
}
