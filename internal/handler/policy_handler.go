package handler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/boxibox/dunning-engine/internal/domain"
)

type PolicyManager interface {
	Get(ctx context.Context, tenantID string) (*domain.RetryPolicy, error)
	Update(ctx context.Context, policy *domain.RetryPolicy) (*domain.RetryPolicy, error)
}

type PolicyHandler struct {
	service PolicyManager
}

func NewPolicyHandler(service PolicyManager) (*PolicyHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("policy service is required")
	}
	return &PolicyHandler{service: service}, nil
}

func RegisterPolicyRoutes(router fiber.Router, service PolicyManager) error {
	h, err := NewPolicyHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/tenants/:tenantId/policy", h.GetPolicy)
	v1.Put("/tenants/:tenantId/policy", h.UpdatePolicy)

	return nil
}

type escalationMessageDTO struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type policyRequest struct {
	MaxRetries     int      `json:"maxRetries"`
	RetryIntervals []int    `json:"retryIntervals"`
	RetryTimes     []string `json:"retryTimes"`

	UseSmartTiming bool `json:"useSmartTiming"`
	AvoidWeekends  bool `json:"avoidWeekends"`
	AvoidHolidays  bool `json:"avoidHolidays"`

	NotifyCustomerBefore       bool `json:"notifyCustomerBefore"`
	NotifyHoursBefore          int  `json:"notifyHoursBefore"`
	NotifyCustomerAfterFailure bool `json:"notifyCustomerAfterFailure"`
	NotifyCustomerAfterSuccess bool `json:"notifyCustomerAfterSuccess"`
	NotifyAdminAfterFailures   bool `json:"notifyAdminAfterFailures"`

	AllowCardUpdate           bool `json:"allowCardUpdate"`
	CardUpdateLinkExpiryHours int  `json:"cardUpdateLinkExpiryHours"`

	FinalFailureAction string `json:"finalFailureAction"`
	GracePeriodDays    int    `json:"gracePeriodDays"`

	EscalationMessages map[string]escalationMessageDTO `json:"escalationMessages,omitempty"`

	IsActive *bool `json:"isActive,omitempty"`
}

type policyResponse struct {
	TenantID string `json:"tenantId"`

	MaxRetries     int      `json:"maxRetries"`
	RetryIntervals []int    `json:"retryIntervals"`
	RetryTimes     []string `json:"retryTimes"`

	UseSmartTiming bool `json:"useSmartTiming"`
	AvoidWeekends  bool `json:"avoidWeekends"`
	AvoidHolidays  bool `json:"avoidHolidays"`

	NotifyCustomerBefore       bool `json:"notifyCustomerBefore"`
	NotifyHoursBefore          int  `json:"notifyHoursBefore"`
	NotifyCustomerAfterFailure bool `json:"notifyCustomerAfterFailure"`
	NotifyCustomerAfterSuccess bool `json:"notifyCustomerAfterSuccess"`
	NotifyAdminAfterFailures   bool `json:"notifyAdminAfterFailures"`

	AllowCardUpdate           bool `json:"allowCardUpdate"`
	CardUpdateLinkExpiryHours int  `json:"cardUpdateLinkExpiryHours"`

	FinalFailureAction string `json:"finalFailureAction"`
	GracePeriodDays    int    `json:"gracePeriodDays"`

	EscalationMessages map[string]escalationMessageDTO `json:"escalationMessages"`

	IsActive  bool      `json:"isActive"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (h *PolicyHandler) GetPolicy(c *fiber.Ctx) error {
	policy, err := h.service.Get(c.Context(), c.Params("tenantId"))
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toPolicyResponse(policy))
}

func (h *PolicyHandler) UpdatePolicy(c *fiber.Ctx) error {
	var req policyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	policy, err := requestToDomainPolicy(req, c.Params("tenantId"))
	if err != nil {
		return err
	}

	updated, err := h.service.Update(c.Context(), policy)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(toPolicyResponse(updated))
}

func requestToDomainPolicy(req policyRequest, tenantID string) (*domain.RetryPolicy, error) {
	action, err := domain.ParseFinalFailureAction(req.FinalFailureAction)
	if err != nil {
		return nil, err
	}

	messages := make(map[int]domain.EscalationMessage, len(req.EscalationMessages))
	for rawStage, msg := range req.EscalationMessages {
		stage, convErr := strconv.Atoi(strings.TrimSpace(rawStage))
		if convErr != nil || stage < 1 {
			return nil, fmt.Errorf("%w: escalation message stage %q must be a positive number",
				domain.ErrValidation, rawStage)
		}
		messages[stage] = domain.EscalationMessage{Subject: msg.Subject, Body: msg.Body}
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	return &domain.RetryPolicy{
		TenantID:                   strings.TrimSpace(tenantID),
		MaxRetries:                 req.MaxRetries,
		RetryIntervals:             req.RetryIntervals,
		RetryTimes:                 req.RetryTimes,
		UseSmartTiming:             req.UseSmartTiming,
		AvoidWeekends:              req.AvoidWeekends,
		AvoidHolidays:              req.AvoidHolidays,
		NotifyCustomerBefore:       req.NotifyCustomerBefore,
		NotifyHoursBefore:          req.NotifyHoursBefore,
		NotifyCustomerAfterFailure: req.NotifyCustomerAfterFailure,
		NotifyCustomerAfterSuccess: req.NotifyCustomerAfterSuccess,
		NotifyAdminAfterFailures:   req.NotifyAdminAfterFailures,
		AllowCardUpdate:            req.AllowCardUpdate,
		CardUpdateLinkExpiryHours:  req.CardUpdateLinkExpiryHours,
		FinalFailureAction:         action,
		GracePeriodDays:            req.GracePeriodDays,
		EscalationMessages:         messages,
		IsActive:                   isActive,
	}, nil
}

func toPolicyResponse(p *domain.RetryPolicy) policyResponse {
	if p == nil {
		return policyResponse{}
	}

	messages := make(map[string]escalationMessageDTO, len(p.EscalationMessages))
	for stage, msg := range p.EscalationMessages {
		messages[strconv.Itoa(stage)] = escalationMessageDTO{Subject: msg.Subject, Body: msg.Body}
	}

	return policyResponse{
		TenantID:                   p.TenantID,
		MaxRetries:                 p.MaxRetries,
		RetryIntervals:             p.RetryIntervals,
		RetryTimes:                 p.RetryTimes,
		UseSmartTiming:             p.UseSmartTiming,
		AvoidWeekends:              p.AvoidWeekends,
		AvoidHolidays:              p.AvoidHolidays,
		NotifyCustomerBefore:       p.NotifyCustomerBefore,
		NotifyHoursBefore:          p.NotifyHoursBefore,
		NotifyCustomerAfterFailure: p.NotifyCustomerAfterFailure,
		NotifyCustomerAfterSuccess: p.NotifyCustomerAfterSuccess,
		NotifyAdminAfterFailures:   p.NotifyAdminAfterFailures,
		AllowCardUpdate:            p.AllowCardUpdate,
		CardUpdateLinkExpiryHours:  p.CardUpdateLinkExpiryHours,
		FinalFailureAction:         p.FinalFailureAction.String(),
		GracePeriodDays:            p.GracePeriodDays,
		EscalationMessages:         messages,
		IsActive:                   p.IsActive,
		UpdatedAt:                  p.UpdatedAt,
	}
}
