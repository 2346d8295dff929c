package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatusFromString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Status
		wantErr bool
	}{
		{name: "valid uppercase", input: "SCHEDULED", want: StatusScheduled},
		{name: "valid lowercase with spaces", input: " exhausted ", want: StatusExhausted},
		{name: "invalid", input: "unknown", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseStatusFromString(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("ParseStatusFromString() error = %v, want ErrValidation", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseStatusFromString() unexpected error = %v", err)
			}
			if got != tt.want {
				t.Fatalf("ParseStatusFromString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestStatusTransitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "pending to scheduled", from: StatusPending, to: StatusScheduled, want: true},
		{name: "pending to cancelled", from: StatusPending, to: StatusCancelled, want: true},
		{name: "scheduled to processing", from: StatusScheduled, to: StatusProcessing, want: true},
		{name: "scheduled to scheduled", from: StatusScheduled, to: StatusScheduled, want: true},
		{name: "scheduled to cancelled", from: StatusScheduled, to: StatusCancelled, want: true},
		{name: "processing to succeeded", from: StatusProcessing, to: StatusSucceeded, want: true},
		{name: "processing to failed", from: StatusProcessing, to: StatusFailed, want: true},
		{name: "failed to exhausted", from: StatusFailed, to: StatusExhausted, want: true},

		// An in-flight charge cannot be aborted.
		{name: "processing to cancelled", from: StatusProcessing, to: StatusCancelled, want: false},
		{name: "pending to processing", from: StatusPending, to: StatusProcessing, want: false},
		{name: "failed to scheduled", from: StatusFailed, to: StatusScheduled, want: false},
		{name: "succeeded to anything", from: StatusSucceeded, to: StatusFailed, want: false},
		{name: "exhausted to scheduled", from: StatusExhausted, to: StatusScheduled, want: false},
		{name: "cancelled to scheduled", from: StatusCancelled, to: StatusScheduled, want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
				t.Fatalf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStatusClassification(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusSucceeded, StatusCancelled, StatusExhausted}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("%s.IsTerminal() = false, want true", s)
		}
		if s.IsActive() {
			t.Fatalf("%s.IsActive() = true, want false", s)
		}
	}

	active := []Status{StatusPending, StatusScheduled, StatusProcessing}
	for _, s := range active {
		if !s.IsActive() {
			t.Fatalf("%s.IsActive() = false, want true", s)
		}
		if s.IsTerminal() {
			t.Fatalf("%s.IsTerminal() = true, want false", s)
		}
	}

	// FAILED is neither: it awaits either a next scheduled attempt or the
	// exhausted transition.
	if StatusFailed.IsTerminal() || StatusFailed.IsActive() {
		t.Fatal("FAILED must be neither terminal nor active")
	}

	if len(ActiveStatuses()) != 3 {
		t.Fatalf("ActiveStatuses() len = %d, want 3", len(ActiveStatuses()))
	}
}

func TestRetryAttemptValidate(t *testing.T) {
	t.Parallel()

	base := RetryAttempt{
		TenantID:      "t-1",
		CustomerID:    "c-1",
		InvoiceID:     "inv-1",
		AmountCents:   2990,
		Currency:      "EUR",
		Status:        StatusScheduled,
		AttemptNumber: 1,
		MaxAttempts:   4,
	}

	tests := []struct {
		name    string
		mutate  func(*RetryAttempt)
		wantErr bool
	}{
		{
			name: "valid attempt",
			mutate: func(a *RetryAttempt) {
				// keep base
			},
		},
		{
			name: "missing tenant",
			mutate: func(a *RetryAttempt) {
				a.TenantID = " "
			},
			wantErr: true,
		},
		{
			name: "missing invoice",
			mutate: func(a *RetryAttempt) {
				a.InvoiceID = ""
			},
			wantErr: true,
		},
		{
			name: "zero amount",
			mutate: func(a *RetryAttempt) {
				a.AmountCents = 0
			},
			wantErr: true,
		},
		{
			name: "attempt number zero",
			mutate: func(a *RetryAttempt) {
				a.AttemptNumber = 0
			},
			wantErr: true,
		},
		{
			name: "unknown status",
			mutate: func(a *RetryAttempt) {
				a.Status = Status("LIMBO")
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			attempt := base
			tt.mutate(&attempt)

			err := attempt.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("Validate() error = %v, want ErrValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() unexpected error = %v", err)
			}
		})
	}
}

func TestIsLastAttempt(t *testing.T) {
	t.Parallel()

	attempt := RetryAttempt{AttemptNumber: 3, MaxAttempts: 4}
	if attempt.IsLastAttempt() {
		t.Fatal("attempt 3 of 4 reported as last")
	}

	attempt.AttemptNumber = 4
	if !attempt.IsLastAttempt() {
		t.Fatal("attempt 4 of 4 not reported as last")
	}
}

func TestCardUpdateTokenValid(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 9, 10, 0, 0, 0, time.UTC)
	token := "tok"
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name    string
		attempt RetryAttempt
		want    bool
	}{
		{
			name:    "valid token",
			attempt: RetryAttempt{CardUpdateToken: &token, CardUpdateTokenExpiresAt: &future},
			want:    true,
		},
		{
			name:    "no token",
			attempt: RetryAttempt{CardUpdateTokenExpiresAt: &future},
			want:    false,
		},
		{
			name:    "already used",
			attempt: RetryAttempt{CardUpdateToken: &token, CardUpdateTokenExpiresAt: &future, CardUpdateTokenUsed: true},
			want:    false,
		},
		{
			name:    "expired",
			attempt: RetryAttempt{CardUpdateToken: &token, CardUpdateTokenExpiresAt: &past},
			want:    false,
		},
		{
			name:    "no expiry set",
			attempt: RetryAttempt{CardUpdateToken: &token},
			want:    false,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.attempt.CardUpdateTokenValid(now); got != tt.want {
				t.Fatalf("CardUpdateTokenValid() = %v, want %v", got, tt.want)
			}
		})
	}
}
