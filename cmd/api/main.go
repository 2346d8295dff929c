package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boxibox/dunning-engine/internal/calendar"
	"github.com/boxibox/dunning-engine/internal/config"
	"github.com/boxibox/dunning-engine/internal/handler"
	"github.com/boxibox/dunning-engine/internal/infra/postgresql"
	"github.com/boxibox/dunning-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/boxibox/dunning-engine/internal/infra/redis"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/queue"
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/boxibox/dunning-engine/internal/service"
	"github.com/boxibox/dunning-engine/internal/transport"
)

const shutdownTimeout = 10 * time.Second

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

	db, err := postgresql.NewPostgres(cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres initialization failed", zap.Error(err))
	}

	if err := migrations.Migrate(db); err != nil {
		logger.Fatal("database migrations failed", zap.Error(err))
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

	rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		logger.Fatal("rabbitmq initialization failed", zap.Error(err))
	}
	defer rabbit.Close()

	publisher := queue.NewRabbitMQPublisher(rabbit)

	invoicingClient, err := invoicing.NewHTTPClient(cfg.InvoicingURL)
	if err != nil {
		logger.Fatal("invoicing client initialization failed", zap.Error(err))
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

	attemptService, err := service.NewAttemptService(attemptRepo, policyRepo, analyticsRepo, scheduler, escalation, logger)
	if err != nil {
		logger.Fatal("attempt service initialization failed", zap.Error(err))
	}
	attemptService.SetMetrics(metrics)

	policyService, err := service.NewPolicyService(policyRepo, logger)
	if err != nil {
		logger.Fatal("policy service initialization failed", zap.Error(err))
	}

	analyticsService, err := service.NewAnalyticsService(analyticsRepo, attemptRepo, logger)
	if err != nil {
		logger.Fatal("analytics service initialization failed", zap.Error(err))
	}

	cardUpdateService, err := service.NewCardUpdateService(attemptRepo, invoicingClient, logger)
	if err != nil {
		logger.Fatal("card update service initialization failed", zap.Error(err))
	}
	cardUpdateService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(logger),
	})
	app.Use(fiberrecover.New())
	app.Use(requestid.New())
	app.Use(metrics.HTTPMiddleware())

	handler.RegisterHealthRoutes(app, sqlDB, rdb, rabbit.IsReady)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if err := handler.RegisterAttemptRoutes(app, attemptService); err != nil {
		logger.Fatal("failed to register attempt routes", zap.Error(err))
	}
	if err := handler.RegisterPolicyRoutes(app, policyService); err != nil {
		logger.Fatal("failed to register policy routes", zap.Error(err))
	}
	if err := handler.RegisterAnalyticsRoutes(app, analyticsService); err != nil {
		logger.Fatal("failed to register analytics routes", zap.Error(err))
	}
	if err := handler.RegisterCardUpdateRoutes(app, cardUpdateService); err != nil {
		logger.Fatal("failed to register card update routes", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("dunning-engine api started", zap.Int("port", cfg.APIPort))
		return app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Error("api stopped with error", zap.Error(err))
	}
}
