package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/repository"
)

func newTestAnalyticsService(t *testing.T, analytics *fakeAnalyticsRepo, attempts *fakeAttemptRepo) *AnalyticsService {
	t.Helper()

	if analytics == nil {
		analytics = &fakeAnalyticsRepo{}
	}
	if attempts == nil {
		attempts = &fakeAttemptRepo{}
	}
	svc, err := NewAnalyticsService(analytics, attempts, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnalyticsService() error = %v", err)
	}
	return svc
}

func TestDashboardCombinesStatsAndAmount(t *testing.T) {
	t.Parallel()

	attempts := &fakeAttemptRepo{
		statsFn: func(ctx context.Context, tenantID string, since time.Time) (*repository.DashboardStats, error) {
			return &repository.DashboardStats{ActiveCount: 3, RecoveredSince: 7, RecoveryRate: 0.7}, nil
		},
	}
	analytics := &fakeAnalyticsRepo{
		amountRecoveredFn: func(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, error) {
			return 34930, nil
		},
	}

	svc := newTestAnalyticsService(t, analytics, attempts)

	dashboard, err := svc.Dashboard(context.Background(), "tenant-1", nil)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if dashboard.Stats.ActiveCount != 3 || dashboard.Stats.RecoveredSince != 7 {
		t.Fatalf("stats = %+v, want active 3 recovered 7", dashboard.Stats)
	}
	if dashboard.AmountRecovered != 34930 {
		t.Fatalf("amount = %d, want 34930", dashboard.AmountRecovered)
	}
}

func TestAnalyticsRequireTenant(t *testing.T) {
	t.Parallel()

	svc := newTestAnalyticsService(t, nil, nil)

	if _, err := svc.Dashboard(context.Background(), " ", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Dashboard error = %v, want ErrValidation", err)
	}
	if _, err := svc.Heatmap(context.Background(), "", nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Heatmap error = %v, want ErrValidation", err)
	}
}

func TestBestWindowsParsesReason(t *testing.T) {
	t.Parallel()

	var gotReason domain.FailureReason
	var gotSamples int
	analytics := &fakeAnalyticsRepo{
		bestWindowsFn: func(ctx context.Context, tenantID string, reason domain.FailureReason, minSamples int) ([]domain.RecoveryWindow, error) {
			gotReason = reason
			gotSamples = minSamples
			return []domain.RecoveryWindow{{DayOfWeek: 2, HourOfDay: 14, RecoveryRate: 0.8}}, nil
		},
	}

	svc := newTestAnalyticsService(t, analytics, nil)

	windows, err := svc.BestWindows(context.Background(), "tenant-1", "Insufficient_Funds", 0)
	if err != nil {
		t.Fatalf("BestWindows() error = %v", err)
	}
	if gotReason != domain.ReasonInsufficientFunds {
		t.Fatalf("reason = %s, want insufficient_funds", gotReason)
	}
	if gotSamples != defaultSmartTimingSamples {
		t.Fatalf("min samples = %d, want default %d", gotSamples, defaultSmartTimingSamples)
	}
	if len(windows) != 1 || windows[0].RecoveryRate != 0.8 {
		t.Fatalf("windows = %+v, want one window at 0.8", windows)
	}
}
