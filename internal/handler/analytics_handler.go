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

type AnalyticsProvider interface {
	Dashboard(ctx context.Context, tenantID string, since *time.Time) (*service.Dashboard, error)
	AmountRecovered(ctx context.Context, tenantID string, since *time.Time) (int64, error)
	Heatmap(ctx context.Context, tenantID string, since *time.Time) ([]repository.HeatmapCell, error)
	RecoveryByReason(ctx context.Context, tenantID string, since *time.Time) ([]repository.ReasonBreakdown, error)
	RecoveryByDay(ctx context.Context, tenantID string, since *time.Time) ([]repository.DayBreakdown, error)
	BestWindows(ctx context.Context, tenantID string, reason string, minSamples int) ([]domain.RecoveryWindow, error)
}

type AnalyticsHandler struct {
	service AnalyticsProvider
}

func NewAnalyticsHandler(service AnalyticsProvider) (*AnalyticsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("analytics service is required")
	}
	return &AnalyticsHandler{service: service}, nil
}

func RegisterAnalyticsRoutes(router fiber.Router, service AnalyticsProvider) error {
	h, err := NewAnalyticsHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/tenants/:tenantId/analytics/dashboard", h.GetDashboard)
	v1.Get("/tenants/:tenantId/analytics/amount-recovered", h.GetAmountRecovered)
	v1.Get("/tenants/:tenantId/analytics/heatmap", h.GetHeatmap)
	v1.Get("/tenants/:tenantId/analytics/failure-reasons", h.GetRecoveryByReason)
	v1.Get("/tenants/:tenantId/analytics/recovery-by-day", h.GetRecoveryByDay)
	v1.Get("/tenants/:tenantId/analytics/best-windows", h.GetBestWindows)

	return nil
}

type dashboardResponse struct {
	ActiveCount            int64     `json:"activeCount"`
	RecoveredSince         int64     `json:"recoveredSince"`
	AmountRecoveredCents   int64     `json:"amountRecoveredCents"`
	ExhaustedCount         int64     `json:"exhaustedCount"`
	RecoveryRate           float64   `json:"recoveryRate"`
	AverageRecoveryAttempt float64   `json:"averageRecoveryAttempt"`
	Since                  time.Time `json:"since"`
}

type heatmapCellResponse struct {
	DayOfWeek int `json:"dayOfWeek"`
	HourOfDay int `json:"hourOfDay"`
	Total     int `json:"total"`
	Recovered int `json:"recovered"`
}

type reasonBreakdownResponse struct {
	Reason       string  `json:"reason"`
	Count        int     `json:"count"`
	Recovered    int     `json:"recovered"`
	RecoveryRate float64 `json:"recoveryRate"`
}

type dayBreakdownResponse struct {
	Date         time.Time `json:"date"`
	Total        int       `json:"total"`
	Recovered    int       `json:"recovered"`
	RecoveryRate float64   `json:"recoveryRate"`
}

type recoveryWindowResponse struct {
	DayOfWeek    int     `json:"dayOfWeek"`
	HourOfDay    int     `json:"hourOfDay"`
	Recovered    int     `json:"recovered"`
	Total        int     `json:"total"`
	RecoveryRate float64 `json:"recoveryRate"`
}

func (h *AnalyticsHandler) GetDashboard(c *fiber.Ctx) error {
	since, err := parseRFC3339Query(c.Query("since"), "since")
	if err != nil {
		return err
	}

	dashboard, err := h.service.Dashboard(c.Context(), c.Params("tenantId"), since)
	if err != nil {
		return err
	}

	resp := dashboardResponse{Since: dashboard.Since}
	if dashboard.Stats != nil {
		resp.ActiveCount = dashboard.Stats.ActiveCount
		resp.RecoveredSince = dashboard.Stats.RecoveredSince
		resp.ExhaustedCount = dashboard.Stats.ExhaustedCount
		resp.RecoveryRate = dashboard.Stats.RecoveryRate
		resp.AverageRecoveryAttempt = dashboard.Stats.AverageRecoveryAttempt
	}
	resp.AmountRecoveredCents = dashboard.AmountRecovered

	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *AnalyticsHandler) GetAmountRecovered(c *fiber.Ctx) error {
	since, err := parseRFC3339Query(c.Query("since"), "since")
	if err != nil {
		return err
	}

	amount, err := h.service.AmountRecovered(c.Context(), c.Params("tenantId"), since)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"amountRecoveredCents": amount,
	})
}

func (h *AnalyticsHandler) GetHeatmap(c *fiber.Ctx) error {
	since, err := parseRFC3339Query(c.Query("since"), "since")
	if err != nil {
		return err
	}

	cells, err := h.service.Heatmap(c.Context(), c.Params("tenantId"), since)
	if err != nil {
		return err
	}

	resp := make([]heatmapCellResponse, 0, len(cells))
	for _, cell := range cells {
		resp = append(resp, heatmapCellResponse{
			DayOfWeek: cell.DayOfWeek,
			HourOfDay: cell.HourOfDay,
			Total:     cell.Total,
			Recovered: cell.Recovered,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": resp})
}

func (h *AnalyticsHandler) GetRecoveryByReason(c *fiber.Ctx) error {
	since, err := parseRFC3339Query(c.Query("since"), "since")
	if err != nil {
		return err
	}

	rows, err := h.service.RecoveryByReason(c.Context(), c.Params("tenantId"), since)
	if err != nil {
		return err
	}

	resp := make([]reasonBreakdownResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, reasonBreakdownResponse{
			Reason:       row.Reason,
			Count:        row.Count,
			Recovered:    row.Recovered,
			RecoveryRate: row.RecoveryRate,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": resp})
}

func (h *AnalyticsHandler) GetRecoveryByDay(c *fiber.Ctx) error {
	since, err := parseRFC3339Query(c.Query("since"), "since")
	if err != nil {
		return err
	}

	rows, err := h.service.RecoveryByDay(c.Context(), c.Params("tenantId"), since)
	if err != nil {
		return err
	}

	resp := make([]dayBreakdownResponse, 0, len(rows))
	for _, row := range rows {
		resp = append(resp, dayBreakdownResponse{
			Date:         row.Date,
			Total:        row.Total,
			Recovered:    row.Recovered,
			RecoveryRate: row.RecoveryRate,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": resp})
}

func (h *AnalyticsHandler) GetBestWindows(c *fiber.Ctx) error {
	reason := strings.TrimSpace(c.Query("reason"))
	if reason == "" {
		return fmt.Errorf("%w: reason is required", domain.ErrValidation)
	}
	minSamples := c.QueryInt("minSamples", 0)
	if minSamples < 0 {
		return fmt.Errorf("%w: minSamples must be >= 0", domain.ErrValidation)
	}

	windows, err := h.service.BestWindows(c.Context(), c.Params("tenantId"), reason, minSamples)
	if err != nil {
		return err
	}

	resp := make([]recoveryWindowResponse, 0, len(windows))
	for _, w := range windows {
		resp = append(resp, recoveryWindowResponse{
			DayOfWeek:    w.DayOfWeek,
			HourOfDay:    w.HourOfDay,
			Recovered:    w.Recovered,
			Total:        w.Total,
			RecoveryRate: w.RecoveryRate,
		})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"data": resp})
}
