package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/repository"
)

const defaultAnalyticsLookback = 90 * 24 * time.Hour

// AnalyticsService exposes failure analytics aggregates for the operator
// dashboard. Reads only; records are written by the executor.
type AnalyticsService struct {
	analytics repository.AnalyticsRepository
	attempts  repository.AttemptRepository
	logger    *zap.Logger
	now       func() time.Time
}

// Dashboard bundles chain stats with recovered revenue for one tenant.
type Dashboard struct {
	Stats           *repository.DashboardStats
	AmountRecovered int64
	Since           time.Time
}

func NewAnalyticsService(
	analytics repository.AnalyticsRepository,
	attempts repository.AttemptRepository,
	logger *zap.Logger,
) (*AnalyticsService, error) {
	if analytics == nil {
		return nil, fmt.Errorf("analytics repository is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnalyticsService{
		analytics: analytics,
		attempts:  attempts,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *AnalyticsService) Dashboard(ctx context.Context, tenantID string, since *time.Time) (*Dashboard, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}

	from := s.now().UTC().Add(-defaultAnalyticsLookback)
	if since != nil {
		from = since.UTC()
	}

	stats, err := s.attempts.Stats(ctx, tenantID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to load chain stats: %w", err)
	}

	amount, err := s.analytics.AmountRecovered(ctx, tenantID, from, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to load recovered amount: %w", err)
	}

	return &Dashboard{
		Stats:           stats,
		AmountRecovered: amount,
		Since:           from,
	}, nil
}

// AmountRecovered sums the revenue collected by retries since the given
// time.
func (s *AnalyticsService) AmountRecovered(ctx context.Context, tenantID string, since *time.Time) (int64, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return 0, err
	}
	return s.analytics.AmountRecovered(ctx, tenantID, s.fromOrDefault(since), s.now().UTC())
}

func (s *AnalyticsService) Heatmap(ctx context.Context, tenantID string, since *time.Time) ([]repository.HeatmapCell, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.analytics.Heatmap(ctx, tenantID, s.fromOrDefault(since))
}

func (s *AnalyticsService) RecoveryByReason(ctx context.Context, tenantID string, since *time.Time) ([]repository.ReasonBreakdown, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.analytics.RecoveryByReason(ctx, tenantID, s.fromOrDefault(since))
}

func (s *AnalyticsService) RecoveryByDay(ctx context.Context, tenantID string, since *time.Time) ([]repository.DayBreakdown, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}
	return s.analytics.RecoveryByDay(ctx, tenantID, s.fromOrDefault(since))
}

func (s *AnalyticsService) BestWindows(ctx context.Context, tenantID string, reason string, minSamples int) ([]domain.RecoveryWindow, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}

	parsedReason, err := domain.ParseFailureReason(reason)
	if err != nil {
		return nil, err
	}
	if minSamples <= 0 {
		minSamples = defaultSmartTimingSamples
	}

	return s.analytics.BestWindows(ctx, tenantID, parsedReason, minSamples)
}

func (s *AnalyticsService) fromOrDefault(since *time.Time) time.Time {
	if since != nil {
		return since.UTC()
	}
	return s.now().UTC().Add(-defaultAnalyticsLookback)
}

func requireTenant(tenantID string) (string, error) {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return "", fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	return trimmed, nil
}
