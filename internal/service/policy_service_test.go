package service

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
)

func TestPolicyGetFallsBackToDefault(t *testing.T) {
	t.Parallel()

	svc, err := NewPolicyService(&fakePolicyRepo{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyService() error = %v", err)
	}

	policy, err := svc.Get(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if policy.TenantID != "tenant-1" {
		t.Fatalf("tenant = %q, want tenant-1", policy.TenantID)
	}
	if policy.MaxRetries != 4 {
		t.Fatalf("max retries = %d, want default 4", policy.MaxRetries)
	}
	if len(policy.RetryIntervals) != 4 || policy.RetryIntervals[0] != 1 {
		t.Fatalf("intervals = %v, want default [1 3 7 14]", policy.RetryIntervals)
	}
}

func TestPolicyGetReturnsStored(t *testing.T) {
	t.Parallel()

	stored := domain.DefaultRetryPolicy("tenant-1")
	stored.MaxRetries = 6

	policies := &fakePolicyRepo{
		getByTenantFn: func(ctx context.Context, tenantID string) (*domain.RetryPolicy, error) {
			return stored, nil
		},
	}

	svc, err := NewPolicyService(policies, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyService() error = %v", err)
	}

	policy, err := svc.Get(context.Background(), "tenant-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if policy.MaxRetries != 6 {
		t.Fatalf("max retries = %d, want 6", policy.MaxRetries)
	}
}

func TestPolicyUpdateValidatesBounds(t *testing.T) {
	t.Parallel()

	svc, err := NewPolicyService(&fakePolicyRepo{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyService() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *domain.RetryPolicy)
	}{
		{name: "max retries too high", mutate: func(p *domain.RetryPolicy) { p.MaxRetries = 11 }},
		{name: "interval too long", mutate: func(p *domain.RetryPolicy) { p.RetryIntervals = []int{31} }},
		{name: "bad time format", mutate: func(p *domain.RetryPolicy) { p.RetryTimes = []string{"9am"} }},
		{name: "bad final action", mutate: func(p *domain.RetryPolicy) { p.FinalFailureAction = "terminate" }},
		{name: "grace too long", mutate: func(p *domain.RetryPolicy) { p.GracePeriodDays = 31 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy := domain.DefaultRetryPolicy("tenant-1")
			tt.mutate(policy)

			if _, err := svc.Update(context.Background(), policy); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestPolicyUpdateStores(t *testing.T) {
	t.Parallel()

	var stored *domain.RetryPolicy
	policies := &fakePolicyRepo{
		upsertFn: func(ctx context.Context, p *domain.RetryPolicy) error {
			stored = p
			return nil
		},
	}

	svc, err := NewPolicyService(policies, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPolicyService() error = %v", err)
	}

	policy := domain.DefaultRetryPolicy("tenant-1")
	policy.MaxRetries = 6
	policy.EscalationMessages = nil

	updated, err := svc.Update(context.Background(), policy)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if stored == nil || stored.MaxRetries != 6 {
		t.Fatalf("stored = %+v, want max retries 6", stored)
	}
	if len(updated.EscalationMessages) == 0 {
		t.Fatal("empty escalation messages must fall back to defaults")
	}
}
