package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/repository"
	"github.com/boxibox/dunning-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type AttemptManager interface {
	StartChain(ctx context.Context, req service.StartChainRequest) (*domain.RetryAttempt, error)
	GetByID(ctx context.Context, id string) (*domain.RetryAttempt, error)
	List(ctx context.Context, params repository.ListParams) ([]domain.RetryAttempt, int64, error)
	ListChain(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error)
	Cancel(ctx context.Context, id string) error
	CancelChain(ctx context.Context, invoiceID string) (int64, error)
	RetryNow(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, at time.Time) error
}

type AttemptHandler struct {
	service AttemptManager
}

func NewAttemptHandler(service AttemptManager) (*AttemptHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("attempt service is required")
	}
	return &AttemptHandler{service: service}, nil
}

func RegisterAttemptRoutes(router fiber.Router, service AttemptManager) error {
	h, err := NewAttemptHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/failed-charges", h.StartChain)
	v1.Get("/attempts", h.ListAttempts)
	v1.Get("/attempts/:id", h.GetAttempt)
	v1.Post("/attempts/:id/retry", h.RetryAttempt)
	v1.Post("/attempts/:id/cancel", h.CancelAttempt)
	v1.Post("/attempts/:id/reschedule", h.RescheduleAttempt)
	v1.Get("/invoices/:invoiceId/attempts", h.GetChain)
	v1.Post("/invoices/:invoiceId/cancel", h.CancelChain)

	return nil
}

type startChainRequest struct {
	TenantID        string     `json:"tenantId"`
	CustomerID      string     `json:"customerId"`
	InvoiceID       string     `json:"invoiceId"`
	AmountCents     int64      `json:"amountCents"`
	Currency        string     `json:"currency"`
	PaymentMethodID string     `json:"paymentMethodId"`
	FailureReason   string     `json:"failureReason"`
	FailedAt        *time.Time `json:"failedAt,omitempty"`
}

type rescheduleRequest struct {
	ScheduledAt time.Time `json:"scheduledAt"`
}

type attemptResponse struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenantId"`
	CustomerID      string `json:"customerId"`
	InvoiceID       string `json:"invoiceId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"paymentMethodId,omitempty"`

	Status        string `json:"status"`
	AttemptNumber int    `json:"attemptNumber"`
	MaxAttempts   int    `json:"maxAttempts"`

	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
	AttemptedAt *time.Time `json:"attemptedAt,omitempty"`
	SucceededAt *time.Time `json:"succeededAt,omitempty"`

	FailureReason   *string `json:"failureReason,omitempty"`
	GatewayChargeID *string `json:"gatewayChargeId,omitempty"`

	CardUpdateRequested bool       `json:"cardUpdateRequested"`
	CardWasUpdated      bool       `json:"cardWasUpdated"`
	CardUpdateExpiresAt *time.Time `json:"cardUpdateExpiresAt,omitempty"`

	NeedsReconciliation bool `json:"needsReconciliation"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type listAttemptsResponse struct {
	Data []attemptResponse `json:"data"`
	Meta listMeta          `json:"meta"`
}

type listMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

type chainResponse struct {
	InvoiceID string            `json:"invoiceId"`
	Attempts  []attemptResponse `json:"attempts"`
}

func (h *AttemptHandler) StartChain(c *fiber.Ctx) error {
	var req startChainRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	attempt, err := h.service.StartChain(c.Context(), service.StartChainRequest{
		TenantID:        strings.TrimSpace(req.TenantID),
		CustomerID:      strings.TrimSpace(req.CustomerID),
		InvoiceID:       strings.TrimSpace(req.InvoiceID),
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		FailureReason:   req.FailureReason,
		FailedAt:        req.FailedAt,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(toAttemptResponse(attempt))
}

func (h *AttemptHandler) GetAttempt(c *fiber.Ctx) error {
	attempt, err := h.service.GetByID(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toAttemptResponse(attempt))
}

func (h *AttemptHandler) ListAttempts(c *fiber.Ctx) error {
	params, err := parseListParams(c)
	if err != nil {
		return err
	}

	attempts, total, err := h.service.List(c.Context(), params)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(listAttemptsResponse{
		Data: toAttemptResponses(attempts),
		Meta: listMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *AttemptHandler) RetryAttempt(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.RetryNow(c.Context(), id); err != nil {
		return err
	}

	attempt, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toAttemptResponse(attempt))
}

func (h *AttemptHandler) CancelAttempt(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Cancel(c.Context(), id); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"attemptId": id,
		"status":    domain.StatusCancelled.String(),
	})
}

func (h *AttemptHandler) RescheduleAttempt(c *fiber.Ctx) error {
	var req rescheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.ScheduledAt.IsZero() {
		return fmt.Errorf("%w: scheduledAt is required", domain.ErrValidation)
	}

	id := strings.TrimSpace(c.Params("id"))
	if err := h.service.Reschedule(c.Context(), id, req.ScheduledAt); err != nil {
		return err
	}

	attempt, err := h.service.GetByID(c.Context(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toAttemptResponse(attempt))
}

func (h *AttemptHandler) GetChain(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("invoiceId"))
	attempts, err := h.service.ListChain(c.Context(), invoiceID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(chainResponse{
		InvoiceID: invoiceID,
		Attempts:  toAttemptResponses(attempts),
	})
}

func (h *AttemptHandler) CancelChain(c *fiber.Ctx) error {
	invoiceID := strings.TrimSpace(c.Params("invoiceId"))
	cancelled, err := h.service.CancelChain(c.Context(), invoiceID)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"invoiceId": invoiceID,
		"cancelled": cancelled,
	})
}

func parseListParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if tenantID := strings.TrimSpace(c.Query("tenantId")); tenantID != "" {
		params.TenantID = &tenantID
	}
	if invoiceID := strings.TrimSpace(c.Query("invoiceId")); invoiceID != "" {
		params.InvoiceID = &invoiceID
	}

	if rawStatus := strings.TrimSpace(c.Query("status")); rawStatus != "" {
		status, err := domain.ParseStatusFromString(rawStatus)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Status = &status
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return repository.ListParams{}, fmt.Errorf("%w: to must not precede from", domain.ErrValidation)
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func toAttemptResponses(attempts []domain.RetryAttempt) []attemptResponse {
	responses := make([]attemptResponse, 0, len(attempts))
	for i := range attempts {
		responses = append(responses, toAttemptResponse(&attempts[i]))
	}
	return responses
}

func toAttemptResponse(a *domain.RetryAttempt) attemptResponse {
	if a == nil {
		return attemptResponse{}
	}

	resp := attemptResponse{
		ID:                  a.ID,
		TenantID:            a.TenantID,
		CustomerID:          a.CustomerID,
		InvoiceID:           a.InvoiceID,
		AmountCents:         a.AmountCents,
		Currency:            a.Currency,
		PaymentMethodID:     a.PaymentMethodID,
		Status:              a.Status.String(),
		AttemptNumber:       a.AttemptNumber,
		MaxAttempts:         a.MaxAttempts,
		ScheduledAt:         a.ScheduledAt,
		AttemptedAt:         a.AttemptedAt,
		SucceededAt:         a.SucceededAt,
		GatewayChargeID:     a.GatewayChargeID,
		CardUpdateRequested: a.CardUpdateToken != nil,
		CardWasUpdated:      a.CardWasUpdated,
		CardUpdateExpiresAt: a.CardUpdateTokenExpiresAt,
		NeedsReconciliation: a.NeedsReconciliation,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}

	if a.FailureReason != nil {
		reason := a.FailureReason.String()
		resp.FailureReason = &reason
	}

	return resp
}
