package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/repository"
)

// PolicyService manages per-tenant retry policies. Reads fall back to the
// default policy so a tenant never operates without one.
type PolicyService struct {
	policies repository.PolicyRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewPolicyService(policies repository.PolicyRepository, logger *zap.Logger) (*PolicyService, error) {
	if policies == nil {
		return nil, fmt.Errorf("policy repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PolicyService{
		policies: policies,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Get returns the tenant's policy, or the defaults when none is stored.
func (s *PolicyService) Get(ctx context.Context, tenantID string) (*domain.RetryPolicy, error) {
	tenantID, err := requireTenant(tenantID)
	if err != nil {
		return nil, err
	}

	policy, err := s.policies.GetByTenant(ctx, tenantID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DefaultRetryPolicy(tenantID), nil
	}
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// Update validates and stores a tenant policy. The stored policy applies to
// attempts scheduled after the update; already-scheduled attempts keep their
// slot.
func (s *PolicyService) Update(ctx context.Context, policy *domain.RetryPolicy) (*domain.RetryPolicy, error) {
	if policy == nil {
		return nil, fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}

	tenantID, err := requireTenant(policy.TenantID)
	if err != nil {
		return nil, err
	}
	policy.TenantID = tenantID

	if len(policy.EscalationMessages) == 0 {
		policy.EscalationMessages = domain.DefaultEscalationMessages()
	}
	policy.UpdatedAt = s.now().UTC()

	if err := policy.Validate(); err != nil {
		return nil, err
	}

	if err := s.policies.Upsert(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to store policy: %w", err)
	}

	s.logger.Info("retry policy updated",
		zap.String("tenantId", policy.TenantID),
		zap.Int("maxRetries", policy.MaxRetries),
	)

	return policy, nil
}
