package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
)

var tokenNow = time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

func tokenAttempt() *domain.RetryAttempt {
	token := "tok-abc"
	expiresAt := tokenNow.Add(24 * time.Hour)
	scheduledAt := tokenNow.Add(48 * time.Hour)
	return &domain.RetryAttempt{
		ID:                       "a1",
		TenantID:                 "tenant-1",
		CustomerID:               "cust-1",
		InvoiceID:                "inv-1",
		AmountCents:              4990,
		Currency:                 "EUR",
		Status:                   domain.StatusScheduled,
		AttemptNumber:            2,
		MaxAttempts:              4,
		ScheduledAt:              &scheduledAt,
		CardUpdateToken:          &token,
		CardUpdateTokenExpiresAt: &expiresAt,
	}
}

func newTestCardUpdateService(t *testing.T, attempts *fakeAttemptRepo, inv *fakeInvoicingClient) *CardUpdateService {
	t.Helper()

	if inv == nil {
		inv = &fakeInvoicingClient{}
	}
	svc, err := NewCardUpdateService(attempts, inv, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCardUpdateService() error = %v", err)
	}
	svc.now = func() time.Time { return tokenNow }
	return svc
}

func TestCardUpdateConsume(t *testing.T) {
	t.Parallel()

	var consumedID, consumedMethod string
	var consumedAt time.Time
	var propagatedMethod string

	attempts := &fakeAttemptRepo{
		getByTokenFn: func(ctx context.Context, token string) (*domain.RetryAttempt, error) {
			if token != "tok-abc" {
				return nil, domain.ErrTokenNotFound
			}
			return tokenAttempt(), nil
		},
		consumeTokenFn: func(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error) {
			consumedID = id
			consumedMethod = paymentMethodID
			consumedAt = at
			return true, nil
		},
		getByIDFn: func(ctx context.Context, id string) (*domain.RetryAttempt, error) {
			attempt := tokenAttempt()
			attempt.CardUpdateTokenUsed = true
			attempt.CardWasUpdated = true
			attempt.PaymentMethodID = "pm-new"
			return attempt, nil
		},
	}
	inv := &fakeInvoicingClient{
		updatePaymentMethodFn: func(ctx context.Context, tenantID string, customerID string, paymentMethodID string) error {
			propagatedMethod = paymentMethodID
			return nil
		},
	}

	svc := newTestCardUpdateService(t, attempts, inv)

	updated, err := svc.Consume(context.Background(), "tok-abc", "pm-new")
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}

	if consumedID != "a1" || consumedMethod != "pm-new" {
		t.Fatalf("consumed = (%q, %q), want (a1, pm-new)", consumedID, consumedMethod)
	}
	if !consumedAt.Equal(tokenNow) {
		t.Fatalf("consumed at = %v, want %v", consumedAt, tokenNow)
	}
	if propagatedMethod != "pm-new" {
		t.Fatalf("propagated method = %q, want pm-new", propagatedMethod)
	}
	if !updated.CardWasUpdated || updated.PaymentMethodID != "pm-new" {
		t.Fatalf("updated attempt = %+v, want card updated with pm-new", updated)
	}
}

func TestCardUpdateConsumeRaceLosesToFirst(t *testing.T) {
	t.Parallel()

	attempts := &fakeAttemptRepo{
		getByTokenFn: func(ctx context.Context, token string) (*domain.RetryAttempt, error) {
			return tokenAttempt(), nil
		},
		consumeTokenFn: func(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error) {
			// Conditional update lost: someone consumed between resolve
			// and consume.
			return false, nil
		},
		getByIDFn: func(ctx context.Context, id string) (*domain.RetryAttempt, error) {
			attempt := tokenAttempt()
			attempt.CardUpdateTokenUsed = true
			return attempt, nil
		},
	}

	svc := newTestCardUpdateService(t, attempts, nil)

	if _, err := svc.Consume(context.Background(), "tok-abc", "pm-new"); !errors.Is(err, domain.ErrTokenUsed) {
		t.Fatalf("error = %v, want ErrTokenUsed", err)
	}
}

func TestCardUpdateConsumeRejectsDepartedAttempt(t *testing.T) {
	t.Parallel()

	// The attempt left the waiting states after the token was resolved: a
	// sweep picked it up, or the chain already settled. The conditional
	// update matches nothing and the consume must not reschedule anything.
	tests := []struct {
		name   string
		status domain.Status
	}{
		{name: "charge in flight", status: domain.StatusProcessing},
		{name: "already failed", status: domain.StatusFailed},
		{name: "already succeeded", status: domain.StatusSucceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attempts := &fakeAttemptRepo{
				getByTokenFn: func(ctx context.Context, token string) (*domain.RetryAttempt, error) {
					return tokenAttempt(), nil
				},
				consumeTokenFn: func(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error) {
					return false, nil
				},
				getByIDFn: func(ctx context.Context, id string) (*domain.RetryAttempt, error) {
					attempt := tokenAttempt()
					attempt.Status = tt.status
					return attempt, nil
				},
			}

			svc := newTestCardUpdateService(t, attempts, nil)

			if _, err := svc.Consume(context.Background(), "tok-abc", "pm-new"); !errors.Is(err, domain.ErrStateConflict) {
				t.Fatalf("error = %v, want ErrStateConflict", err)
			}
		})
	}
}

func TestCardUpdateTokenErrors(t *testing.T) {
	t.Parallel()

	usedAttempt := tokenAttempt()
	usedAttempt.CardUpdateTokenUsed = true

	expiredAttempt := tokenAttempt()
	expired := tokenNow.Add(-time.Minute)
	expiredAttempt.CardUpdateTokenExpiresAt = &expired

	tests := []struct {
		name    string
		token   string
		attempt *domain.RetryAttempt
		wantErr error
	}{
		{name: "unknown token", token: "nope", attempt: nil, wantErr: domain.ErrTokenNotFound},
		{name: "empty token", token: "  ", attempt: nil, wantErr: domain.ErrTokenNotFound},
		{name: "used token", token: "tok-abc", attempt: usedAttempt, wantErr: domain.ErrTokenUsed},
		{name: "expired token", token: "tok-abc", attempt: expiredAttempt, wantErr: domain.ErrTokenExpired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attempts := &fakeAttemptRepo{
				getByTokenFn: func(ctx context.Context, token string) (*domain.RetryAttempt, error) {
					if tt.attempt == nil {
						return nil, domain.ErrTokenNotFound
					}
					return tt.attempt, nil
				},
			}

			svc := newTestCardUpdateService(t, attempts, nil)

			if _, err := svc.Inspect(context.Background(), tt.token); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Inspect() error = %v, want %v", err, tt.wantErr)
			}
			if _, err := svc.Consume(context.Background(), tt.token, "pm-new"); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Consume() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestCardUpdateConsumeRequiresPaymentMethod(t *testing.T) {
	t.Parallel()

	svc := newTestCardUpdateService(t, &fakeAttemptRepo{}, nil)

	if _, err := svc.Consume(context.Background(), "tok-abc", "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
