package repository

import (
	"context"
	"time"

	"github.com/boxibox/dunning-engine/internal/domain"
	"gorm.io/gorm"
)

// ReasonBreakdown aggregates outcomes per failure reason.
type ReasonBreakdown struct {
	Reason       string  `gorm:"column:failure_reason"`
	Count        int     `gorm:"column:count"`
	Recovered    int     `gorm:"column:recovered"`
	RecoveryRate float64 `gorm:"-"`
}

// DayBreakdown aggregates outcomes per calendar day.
type DayBreakdown struct {
	Date         time.Time `gorm:"column:date"`
	Total        int       `gorm:"column:total"`
	Recovered    int       `gorm:"column:recovered"`
	RecoveryRate float64   `gorm:"-"`
}

// HeatmapCell is one day-of-week x hour-of-day bucket.
type HeatmapCell struct {
	DayOfWeek int `gorm:"column:day_of_week"`
	HourOfDay int `gorm:"column:hour_of_day"`
	Total     int `gorm:"column:total"`
	Recovered int `gorm:"column:recovered"`
}

type AnalyticsRepository interface {
	Create(ctx context.Context, r *domain.FailureAnalyticsRecord) error
	ListByInvoice(ctx context.Context, invoiceID string) ([]domain.FailureAnalyticsRecord, error)
	MarkChainRecovered(ctx context.Context, invoiceID string, recoveryAttemptNumber int) (int64, error)
	BestWindows(ctx context.Context, tenantID string, reason domain.FailureReason, minSamples int) ([]domain.RecoveryWindow, error)
	Heatmap(ctx context.Context, tenantID string, from time.Time) ([]HeatmapCell, error)
	RecoveryByReason(ctx context.Context, tenantID string, from time.Time) ([]ReasonBreakdown, error)
	RecoveryByDay(ctx context.Context, tenantID string, from time.Time) ([]DayBreakdown, error)
	AmountRecovered(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, error)
}

type GormAnalyticsRepo struct {
	db *gorm.DB
}

func NewGormAnalyticsRepo(db *gorm.DB) *GormAnalyticsRepo {
	return &GormAnalyticsRepo{db: db}
}

func (r *GormAnalyticsRepo) Create(ctx context.Context, record *domain.FailureAnalyticsRecord) error {
	model := analyticsModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *analyticsModelToDomain(model)
	}
	return nil
}

func (r *GormAnalyticsRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.FailureAnalyticsRecord, error) {
	var models []FailureAnalyticsModel
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.FailureAnalyticsRecord, 0, len(models))
	for i := range models {
		records = append(records, *analyticsModelToDomain(&models[i]))
	}
	return records, nil
}

// MarkChainRecovered retroactively flips every record of the invoice chain
// once a later attempt succeeds.
func (r *GormAnalyticsRepo) MarkChainRecovered(ctx context.Context, invoiceID string, recoveryAttemptNumber int) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&FailureAnalyticsModel{}).
		Where("invoice_id = ? AND eventually_recovered = ?", invoiceID, false).
		Updates(map[string]any{
			"eventually_recovered":    true,
			"recovery_attempt_number": recoveryAttemptNumber,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormAnalyticsRepo) BestWindows(ctx context.Context, tenantID string, reason domain.FailureReason, minSamples int) ([]domain.RecoveryWindow, error) {
	type row struct {
		DayOfWeek int `gorm:"column:day_of_week"`
		HourOfDay int `gorm:"column:hour_of_day"`
		Total     int `gorm:"column:total"`
		Recovered int `gorm:"column:recovered"`
	}

	var rows []row
	err := r.db.WithContext(ctx).
		Model(&FailureAnalyticsModel{}).
		Select(`day_of_week, hour_of_day, COUNT(*) as total,
			SUM(CASE WHEN eventually_recovered THEN 1 ELSE 0 END) as recovered`).
		Where("tenant_id = ? AND failure_reason = ?", tenantID, reason.String()).
		Group("day_of_week, hour_of_day").
		Having("COUNT(*) >= ?", minSamples).
		Order("SUM(CASE WHEN eventually_recovered THEN 1 ELSE 0 END)::float / COUNT(*) DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	windows := make([]domain.RecoveryWindow, 0, len(rows))
	for _, item := range rows {
		window := domain.RecoveryWindow{
			DayOfWeek: item.DayOfWeek,
			HourOfDay: item.HourOfDay,
			Recovered: item.Recovered,
			Total:     item.Total,
		}
		if item.Total > 0 {
			window.RecoveryRate = float64(item.Recovered) / float64(item.Total)
		}
		windows = append(windows, window)
	}
	return windows, nil
}

func (r *GormAnalyticsRepo) Heatmap(ctx context.Context, tenantID string, from time.Time) ([]HeatmapCell, error) {
	var cells []HeatmapCell
	err := r.db.WithContext(ctx).
		Model(&FailureAnalyticsModel{}).
		Select(`day_of_week, hour_of_day, COUNT(*) as total,
			SUM(CASE WHEN eventually_recovered THEN 1 ELSE 0 END) as recovered`).
		Where("tenant_id = ? AND created_at >= ?", tenantID, from).
		Group("day_of_week, hour_of_day").
		Order("day_of_week, hour_of_day").
		Scan(&cells).Error
	if err != nil {
		return nil, err
	}
	return cells, nil
}

func (r *GormAnalyticsRepo) RecoveryByReason(ctx context.Context, tenantID string, from time.Time) ([]ReasonBreakdown, error) {
	var rows []ReasonBreakdown
	err := r.db.WithContext(ctx).
		Model(&FailureAnalyticsModel{}).
		Select(`failure_reason, COUNT(*) as count,
			SUM(CASE WHEN eventually_recovered THEN 1 ELSE 0 END) as recovered`).
		Where("tenant_id = ? AND created_at >= ?", tenantID, from).
		Group("failure_reason").
		Order("count DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		if rows[i].Count > 0 {
			rows[i].RecoveryRate = float64(rows[i].Recovered) / float64(rows[i].Count)
		}
	}
	return rows, nil
}

func (r *GormAnalyticsRepo) RecoveryByDay(ctx context.Context, tenantID string, from time.Time) ([]DayBreakdown, error) {
	var rows []DayBreakdown
	err := r.db.WithContext(ctx).
		Model(&FailureAnalyticsModel{}).
		Select(`date, COUNT(*) as total,
			SUM(CASE WHEN eventually_recovered THEN 1 ELSE 0 END) as recovered`).
		Where("tenant_id = ? AND created_at >= ?", tenantID, from).
		Group("date").
		Order("date").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		if rows[i].Total > 0 {
			rows[i].RecoveryRate = float64(rows[i].Recovered) / float64(rows[i].Total)
		}
	}
	return rows, nil
}

// AmountRecovered sums over succeeded attempts rather than analytics rows:
// a chain writes one analytics record per failure, which would multiply the
// invoice amount.
func (r *GormAnalyticsRepo) AmountRecovered(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, error) {
	var result struct{ Total int64 }
	err := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Select("COALESCE(SUM(amount_cents), 0) as total").
		Where("tenant_id = ? AND status = ? AND succeeded_at BETWEEN ? AND ?",
			tenantID, domain.StatusSucceeded, from, to).
		Scan(&result).Error
	if err != nil {
		return 0, err
	}
	return result.Total, nil
}
