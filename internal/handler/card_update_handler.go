package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/boxibox/dunning-engine/internal/domain"
)

type CardUpdateResolver interface {
	Inspect(ctx context.Context, token string) (*domain.RetryAttempt, error)
	Consume(ctx context.Context, token string, paymentMethodID string) (*domain.RetryAttempt, error)
}

type CardUpdateHandler struct {
	service CardUpdateResolver
}

func NewCardUpdateHandler(service CardUpdateResolver) (*CardUpdateHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("card update service is required")
	}
	return &CardUpdateHandler{service: service}, nil
}

// RegisterCardUpdateRoutes mounts the customer-facing card update endpoints.
// These sit outside /v1 because the link is handed to end customers.
func RegisterCardUpdateRoutes(router fiber.Router, service CardUpdateResolver) error {
	h, err := NewCardUpdateHandler(service)
	if err != nil {
		return err
	}

	router.Get("/card-update/:token", h.InspectToken)
	router.Post("/card-update/:token", h.ConsumeToken)

	return nil
}

type consumeTokenRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

// cardUpdateResponse deliberately omits identifiers beyond the invoice: the
// token reaches customers over email, so the page renders from it alone.
type cardUpdateResponse struct {
	InvoiceID     string     `json:"invoiceId"`
	AmountCents   int64      `json:"amountCents"`
	Currency      string     `json:"currency"`
	AttemptNumber int        `json:"attemptNumber"`
	Status        string     `json:"status"`
	ScheduledAt   *time.Time `json:"scheduledAt,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

func (h *CardUpdateHandler) InspectToken(c *fiber.Ctx) error {
	attempt, err := h.service.Inspect(c.Context(), c.Params("token"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toCardUpdateResponse(attempt))
}

func (h *CardUpdateHandler) ConsumeToken(c *fiber.Ctx) error {
	var req consumeTokenRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return fmt.Errorf("%w: paymentMethodId is required", domain.ErrValidation)
	}

	attempt, err := h.service.Consume(c.Context(), c.Params("token"), req.PaymentMethodID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toCardUpdateResponse(attempt))
}

func toCardUpdateResponse(a *domain.RetryAttempt) cardUpdateResponse {
	if a == nil {
		return cardUpdateResponse{}
	}

	return cardUpdateResponse{
		InvoiceID:     a.InvoiceID,
		AmountCents:   a.AmountCents,
		Currency:      a.Currency,
		AttemptNumber: a.AttemptNumber,
		Status:        a.Status.String(),
		ScheduledAt:   a.ScheduledAt,
		ExpiresAt:     a.CardUpdateTokenExpiresAt,
	}
}
