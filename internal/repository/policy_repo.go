package repository

import (
	"context"
	"errors"

	"github.com/boxibox/dunning-engine/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PolicyRepository interface {
	GetByTenant(ctx context.Context, tenantID string) (*domain.RetryPolicy, error)
	Upsert(ctx context.Context, p *domain.RetryPolicy) error
}

type GormPolicyRepo struct {
	db *gorm.DB
}

func NewGormPolicyRepo(db *gorm.DB) *GormPolicyRepo {
	return &GormPolicyRepo{db: db}
}

func (r *GormPolicyRepo) GetByTenant(ctx context.Context, tenantID string) (*domain.RetryPolicy, error) {
	var model RetryPolicyModel
	err := r.db.WithContext(ctx).First(&model, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return policyModelToDomain(&model)
}

func (r *GormPolicyRepo) Upsert(ctx context.Context, p *domain.RetryPolicy) error {
	model, err := policyModelFromDomain(p)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}
