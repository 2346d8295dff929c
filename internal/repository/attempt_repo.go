package repository

import (
	"context"
	"errors"
	"time"

	"github.com/boxibox/dunning-engine/internal/domain"
	"gorm.io/gorm"
)

type ListParams struct {
	TenantID  *string
	Status    *domain.Status
	InvoiceID *string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
}

// DashboardStats are chain-level aggregates for the operator dashboard.
type DashboardStats struct {
	ActiveCount            int64
	RecoveredSince         int64
	AmountRecoveredCents   int64
	ExhaustedCount         int64
	RecoveryRate           float64
	AverageRecoveryAttempt float64
}

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.RetryAttempt) error
	GetByID(ctx context.Context, id string) (*domain.RetryAttempt, error)
	GetByCardUpdateToken(ctx context.Context, token string) (*domain.RetryAttempt, error)
	List(ctx context.Context, params ListParams) ([]domain.RetryAttempt, int64, error)
	ListChain(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error)
	HasActiveForInvoice(ctx context.Context, invoiceID string) (bool, error)

	GetDueForProcessing(ctx context.Context, now time.Time, limit int) ([]domain.RetryAttempt, error)
	ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.RetryAttempt, bool, error)

	MarkSucceeded(ctx context.Context, id string, gatewayChargeID string, at time.Time) error
	MarkFailed(ctx context.Context, id string, reason domain.FailureReason, needsReconciliation bool) error
	MarkExhausted(ctx context.Context, id string) error
	Reschedule(ctx context.Context, id string, at time.Time) error
	Cancel(ctx context.Context, id string) error
	CancelActiveForInvoice(ctx context.Context, invoiceID string, exceptID string) (int64, error)

	SetCardUpdateToken(ctx context.Context, id string, token string, expiresAt time.Time) error
	ConsumeCardUpdateToken(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error)

	GetDueForReminder(ctx context.Context, windowEnd time.Time, limit int) ([]domain.RetryAttempt, error)
	MarkReminderSent(ctx context.Context, id string) error

	Stats(ctx context.Context, tenantID string, since time.Time) (*DashboardStats, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.RetryAttempt) error {
	model := attemptModelFromDomain(a)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if a != nil {
		*a = *attemptModelToDomain(model)
	}
	return nil
}

func (r *GormAttemptRepo) GetByID(ctx context.Context, id string) (*domain.RetryAttempt, error) {
	var model RetryAttemptModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model), nil
}

func (r *GormAttemptRepo) GetByCardUpdateToken(ctx context.Context, token string) (*domain.RetryAttempt, error) {
	var model RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("card_update_token = ?", token).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return attemptModelToDomain(&model), nil
}

func (r *GormAttemptRepo) List(ctx context.Context, params ListParams) ([]domain.RetryAttempt, int64, error) {
	query := r.db.WithContext(ctx).Model(&RetryAttemptModel{})

	if params.TenantID != nil {
		query = query.Where("tenant_id = ?", *params.TenantID)
	}
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.InvoiceID != nil {
		query = query.Where("invoice_id = ?", *params.InvoiceID)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []RetryAttemptModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, total, nil
}

func (r *GormAttemptRepo) ListChain(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error) {
	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("attempt_number ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func (r *GormAttemptRepo) HasActiveForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("invoice_id = ? AND status IN ?", invoiceID, domain.ActiveStatuses()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *GormAttemptRepo) GetDueForProcessing(ctx context.Context, now time.Time, limit int) ([]domain.RetryAttempt, error) {
	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.StatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

// ClaimForProcessing is the single synchronization point of the engine: a
// conditional update keyed on the expected prior status. When two workers
// race, exactly one sees RowsAffected == 1; the loser gets claimed=false
// and must treat the attempt as someone else's.
func (r *GormAttemptRepo) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.RetryAttempt, bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status = ? AND scheduled_at <= ?", id, domain.StatusScheduled, now).
		Updates(map[string]any{
			"status":       domain.StatusProcessing,
			"attempted_at": now,
		})
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, false, nil
	}

	attempt, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return attempt, true, nil
}

func (r *GormAttemptRepo) MarkSucceeded(ctx context.Context, id string, gatewayChargeID string, at time.Time) error {
	updates := map[string]any{
		"status":       domain.StatusSucceeded,
		"succeeded_at": at,
	}
	if gatewayChargeID != "" {
		updates["gateway_charge_id"] = gatewayChargeID
	}

	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *GormAttemptRepo) MarkFailed(ctx context.Context, id string, reason domain.FailureReason, needsReconciliation bool) error {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{
			"status":               domain.StatusFailed,
			"failure_reason":       reason.String(),
			"needs_reconciliation": needsReconciliation,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *GormAttemptRepo) MarkExhausted(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status = ?", id, domain.StatusFailed).
		Update("status", domain.StatusExhausted)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *GormAttemptRepo) Reschedule(ctx context.Context, id string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusScheduled}).
		Updates(map[string]any{
			"status":       domain.StatusScheduled,
			"scheduled_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *GormAttemptRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND status IN ?", id, []domain.Status{domain.StatusPending, domain.StatusScheduled}).
		Update("status", domain.StatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrStateConflict
	}
	return nil
}

func (r *GormAttemptRepo) CancelActiveForInvoice(ctx context.Context, invoiceID string, exceptID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("invoice_id = ? AND id <> ? AND status IN ?",
			invoiceID, exceptID,
			[]domain.Status{domain.StatusPending, domain.StatusScheduled}).
		Update("status", domain.StatusCancelled)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormAttemptRepo) SetCardUpdateToken(ctx context.Context, id string, token string, expiresAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"card_update_token":            token,
			"card_update_token_expires_at": expiresAt,
			"card_update_token_used":       false,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ConsumeCardUpdateToken marks the token used with a conditional update so
// a second consume of the same token observes RowsAffected == 0. The status
// guard keeps the consume from resurrecting an attempt that already left the
// waiting states: a charge in flight or a settled attempt stays where it is.
func (r *GormAttemptRepo) ConsumeCardUpdateToken(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ? AND card_update_token_used = ? AND status IN ?",
			id, false, []domain.Status{domain.StatusPending, domain.StatusScheduled}).
		Updates(map[string]any{
			"card_update_token_used": true,
			"card_was_updated":       true,
			"payment_method_id":      paymentMethodID,
			"status":                 domain.StatusScheduled,
			"scheduled_at":           at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormAttemptRepo) GetDueForReminder(ctx context.Context, windowEnd time.Time, limit int) ([]domain.RetryAttempt, error) {
	var models []RetryAttemptModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND reminder_sent = ? AND scheduled_at <= ?",
			domain.StatusScheduled, false, windowEnd).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	attempts := make([]domain.RetryAttempt, 0, len(models))
	for i := range models {
		attempts = append(attempts, *attemptModelToDomain(&models[i]))
	}

	return attempts, nil
}

func (r *GormAttemptRepo) MarkReminderSent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("id = ?", id).
		Update("reminder_sent", true).Error
}

func (r *GormAttemptRepo) Stats(ctx context.Context, tenantID string, since time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{}

	err := r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("tenant_id = ? AND status IN ?", tenantID,
			[]domain.Status{domain.StatusPending, domain.StatusScheduled}).
		Count(&stats.ActiveCount).Error
	if err != nil {
		return nil, err
	}

	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("tenant_id = ? AND status = ? AND succeeded_at >= ?",
			tenantID, domain.StatusSucceeded, since).
		Count(&stats.RecoveredSince).Error
	if err != nil {
		return nil, err
	}

	var amount struct{ Total int64 }
	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Select("COALESCE(SUM(amount_cents), 0) as total").
		Where("tenant_id = ? AND status = ? AND succeeded_at >= ?",
			tenantID, domain.StatusSucceeded, since).
		Scan(&amount).Error
	if err != nil {
		return nil, err
	}
	stats.AmountRecoveredCents = amount.Total

	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, domain.StatusExhausted).
		Count(&stats.ExhaustedCount).Error
	if err != nil {
		return nil, err
	}

	var settled, recovered int64
	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("tenant_id = ? AND status IN ?", tenantID,
			[]domain.Status{domain.StatusSucceeded, domain.StatusFailed, domain.StatusExhausted}).
		Count(&settled).Error
	if err != nil {
		return nil, err
	}
	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Where("tenant_id = ? AND status = ?", tenantID, domain.StatusSucceeded).
		Count(&recovered).Error
	if err != nil {
		return nil, err
	}
	if settled > 0 {
		stats.RecoveryRate = float64(recovered) / float64(settled)
	}

	var avg struct{ Avg float64 }
	err = r.db.WithContext(ctx).
		Model(&RetryAttemptModel{}).
		Select("COALESCE(AVG(attempt_number), 0) as avg").
		Where("tenant_id = ? AND status = ?", tenantID, domain.StatusSucceeded).
		Scan(&avg).Error
	if err != nil {
		return nil, err
	}
	stats.AverageRecoveryAttempt = avg.Avg

	return stats, nil
}
