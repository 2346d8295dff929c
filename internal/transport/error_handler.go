package transport

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
)

// ErrorHandler maps domain sentinel errors to HTTP status codes so handlers
// can return service errors unchanged.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := StatusForError(err)

		logger.Error("request error",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		)

		return c.Status(code).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}

// StatusForError resolves the HTTP status for a service error. Explicit
// fiber errors win; unknown errors stay 500 so bugs are not dressed up as
// client mistakes.
func StatusForError(err error) int {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code
	}

	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrTokenNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrTokenUsed):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrTokenExpired):
		return fiber.StatusGone
	default:
		return fiber.StatusInternalServerError
	}
}
