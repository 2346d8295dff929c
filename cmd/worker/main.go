package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boxibox/dunning-engine/internal/calendar"
	"github.com/boxibox/dunning-engine/internal/config"
	"github.com/boxibox/dunning-engine/internal/gateway"
	"github.com/boxibox/dunning-engine/internal/infra/postgresql"
	infraredis "github.com/boxibox/dunning-engine/internal/infra/redis"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/notifier"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/queue"
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/boxibox/dunning-engine/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync() //nolint:errcheck

	// The api binary owns migrations; the worker only connects.
	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("postgres underlying db init failed", zap.Error(err))
	}
	defer sqlDB.Close()

	rdb, err := infraredis.NewRedis(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis initialization failed", zap.Error(err))
	}
	defer rdb.Close()

	rateLimiter, err := infraredis.NewRedisRateLimiter(rdb, cfg.GatewayRatePerSec)
	if err != nil {
		logger.Fatal("rate limiter initialization failed", zap.Error(err))
	}

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)
	consumer := queue.NewRabbitMQConsumer(rabbit, cfg.WorkerConcurrency, logger)

	gatewayClient, err := gateway.NewHTTPGateway(
		cfg.GatewayURL,
		cfg.GatewayAPIKey,
		time.Duration(cfg.GatewayTimeoutSec)*time.Second,
	)
	if err != nil {
		logger.Fatal("gateway client initialization failed", zap.Error(err))
	}

	invoicingClient, err := invoicing.NewHTTPClient(cfg.InvoicingURL)
	if err != nil {
		logger.Fatal("invoicing client initialization failed", zap.Error(err))
	}

	webhookNotifier, err := notifier.NewWebhookNotifier(cfg.NotifyURL)
	if err != nil {
		logger.Fatal("notifier initialization failed", zap.Error(err))
	}

	metrics := observability.NewMetrics()

	attemptRepo := repository.NewGormAttemptRepo(db)
	policyRepo := repository.NewGormPolicyRepo(db)
	analyticsRepo := repository.NewGormAnalyticsRepo(db)

	cal := calendar.NewRegionCalendar(cfg.HolidayRegion)

	scheduler, err := service.NewRetryScheduler(cal, analyticsRepo, cfg.SmartTimingSamples, logger)
	if err != nil {
		logger.Fatal("scheduler initialization failed", zap.Error(err))
	}

	escalation, err := service.NewEscalationEngine(invoicingClient, publisher, cfg.PublicBaseURL, logger)
	if err != nil {
		logger.Fatal("escalation engine initialization failed", zap.Error(err))
	}
	escalation.SetMetrics(metrics)

	executor, err := service.NewChargeExecutor(
		attemptRepo,
		policyRepo,
		analyticsRepo,
		gatewayClient,
		scheduler,
		escalation,
		invoicingClient,
		rateLimiter,
		logger,
	)
	if err != nil {
		logger.Fatal("charge executor initialization failed", zap.Error(err))
	}
	executor.SetMetrics(metrics)

	sweeper, err := service.NewSweeper(
		attemptRepo,
		policyRepo,
		executor,
		escalation,
		time.Duration(cfg.SweepIntervalSec)*time.Second,
		cfg.SweepBatchLimit,
		cfg.WorkerConcurrency,
		logger,
	)
	if err != nil {
		logger.Fatal("sweeper initialization failed", zap.Error(err))
	}
	sweeper.SetMetrics(metrics)

	noticeWorker, err := service.NewNoticeWorker(consumer, webhookNotifier, cfg.WorkerConcurrency, logger)
	if err != nil {
		logger.Fatal("notice worker initialization failed", zap.Error(err))
	}
	noticeWorker.SetMetrics(metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("dunning-engine worker started",
		zap.Int("sweepIntervalSec", cfg.SweepIntervalSec),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return sweeper.Start(gCtx) })
	g.Go(func() error { return noticeWorker.Start(gCtx) })

	if err := g.Wait(); err != nil {
		logger.Error("worker stopped with error", zap.Error(err))
	}

	logger.Info("dunning-engine worker stopped")
}
