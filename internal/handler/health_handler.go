package handler

import (
	"context"
	"database/sql"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const readinessTimeout = 2 * time.Second

// QueueProbe reports whether the message broker connection is usable.
// A nil probe skips the check, for deployments without the worker path.
type QueueProbe func() bool

func RegisterHealthRoutes(app fiber.Router, sqlDB *sql.DB, rdb *redis.Client, queueReady QueueProbe) {
	app.Get("/livez", LivezHandler())
	app.Get("/readyz", ReadyzHandler(sqlDB, rdb, queueReady))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

func ReadyzHandler(sqlDB *sql.DB, rdb *redis.Client, queueReady QueueProbe) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), readinessTimeout)
		defer cancel()

		pgErr := sqlDB.PingContext(ctx)
		redisErr := rdb.Ping(ctx).Err()

		checks := fiber.Map{
			"postgres": statusString(pgErr == nil),
			"redis":    statusString(redisErr == nil),
		}

		ready := pgErr == nil && redisErr == nil
		if queueReady != nil {
			queueOK := queueReady()
			checks["rabbitmq"] = statusString(queueOK)
			ready = ready && queueOK
		}

		status := "ready"
		statusCode := fiber.StatusOK
		if !ready {
			status = "not_ready"
			statusCode = fiber.StatusServiceUnavailable
		}

		return c.Status(statusCode).JSON(fiber.Map{
			"status": status,
			"checks": checks,
		})
	}
}

func statusString(ok bool) string {
	if ok {
		return "ok"
	}
	return "down"
}
