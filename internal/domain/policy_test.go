package domain

import (
	"errors"
	"testing"
)

func TestParseFinalFailureAction(t *testing.T) {
	t.Parallel()

	got, err := ParseFinalFailureAction(" Suspend ")
	if err != nil {
		t.Fatalf("ParseFinalFailureAction() unexpected error = %v", err)
	}
	if got != ActionSuspend {
		t.Fatalf("ParseFinalFailureAction() = %s, want %s", got, ActionSuspend)
	}

	if _, err := ParseFinalFailureAction("terminate"); !errors.Is(err, ErrValidation) {
		t.Fatalf("ParseFinalFailureAction(terminate) error = %v, want ErrValidation", err)
	}
}

func TestRetryPolicyValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*RetryPolicy)
		wantErr bool
	}{
		{
			name: "default policy is valid",
			mutate: func(p *RetryPolicy) {
				// keep defaults
			},
		},
		{
			name: "missing tenant",
			mutate: func(p *RetryPolicy) {
				p.TenantID = ""
			},
			wantErr: true,
		},
		{
			name: "max retries above limit",
			mutate: func(p *RetryPolicy) {
				p.MaxRetries = MaxRetriesLimit + 1
			},
			wantErr: true,
		},
		{
			name: "no intervals",
			mutate: func(p *RetryPolicy) {
				p.RetryIntervals = nil
			},
			wantErr: true,
		},
		{
			name: "interval out of range",
			mutate: func(p *RetryPolicy) {
				p.RetryIntervals = []int{1, 45}
			},
			wantErr: true,
		},
		{
			name: "malformed retry time",
			mutate: func(p *RetryPolicy) {
				p.RetryTimes = []string{"9am"}
			},
			wantErr: true,
		},
		{
			name: "notify hours out of range",
			mutate: func(p *RetryPolicy) {
				p.NotifyHoursBefore = 100
			},
			wantErr: true,
		},
		{
			name: "notify hours ignored when disabled",
			mutate: func(p *RetryPolicy) {
				p.NotifyCustomerBefore = false
				p.NotifyHoursBefore = 0
			},
		},
		{
			name: "card link expiry above limit",
			mutate: func(p *RetryPolicy) {
				p.CardUpdateLinkExpiryHours = MaxCardUpdateExpiryHours + 1
			},
			wantErr: true,
		},
		{
			name: "card link expiry ignored when card update disabled",
			mutate: func(p *RetryPolicy) {
				p.AllowCardUpdate = false
				p.CardUpdateLinkExpiryHours = 0
			},
		},
		{
			name: "invalid final failure action",
			mutate: func(p *RetryPolicy) {
				p.FinalFailureAction = FinalFailureAction("terminate")
			},
			wantErr: true,
		},
		{
			name: "negative grace period",
			mutate: func(p *RetryPolicy) {
				p.GracePeriodDays = -1
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			policy := DefaultRetryPolicy("t-1")
			tt.mutate(policy)

			err := policy.Validate()
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

func TestIntervalForAttempt(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{RetryIntervals: []int{1, 3, 7, 14}}

	tests := []struct {
		name          string
		attemptNumber int
		want          int
	}{
		{name: "first attempt", attemptNumber: 1, want: 1},
		{name: "third attempt", attemptNumber: 3, want: 7},
		{name: "last configured", attemptNumber: 4, want: 14},
		{name: "beyond list reuses last", attemptNumber: 9, want: 14},
		{name: "zero clamps to first", attemptNumber: 0, want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := policy.IntervalForAttempt(tt.attemptNumber); got != tt.want {
				t.Fatalf("IntervalForAttempt(%d) = %d, want %d", tt.attemptNumber, got, tt.want)
			}
		})
	}

	empty := &RetryPolicy{}
	if got := empty.IntervalForAttempt(2); got != 7 {
		t.Fatalf("IntervalForAttempt() with no intervals = %d, want 7", got)
	}
}

func TestMessageForStage(t *testing.T) {
	t.Parallel()

	policy := &RetryPolicy{
		EscalationMessages: map[int]EscalationMessage{
			1: {Subject: "first"},
			3: {Subject: "third"},
		},
	}

	msg, ok := policy.MessageForStage(3)
	if !ok || msg.Subject != "third" {
		t.Fatalf("MessageForStage(3) = %q, %v, want third", msg.Subject, ok)
	}

	// Stage 2 is not configured; fall back to stage 1.
	msg, ok = policy.MessageForStage(2)
	if !ok || msg.Subject != "first" {
		t.Fatalf("MessageForStage(2) = %q, %v, want first", msg.Subject, ok)
	}

	// Stage 5 falls back through 4 to 3.
	msg, ok = policy.MessageForStage(5)
	if !ok || msg.Subject != "third" {
		t.Fatalf("MessageForStage(5) = %q, %v, want third", msg.Subject, ok)
	}

	if _, ok := policy.MessageForStage(0); ok {
		t.Fatal("MessageForStage(0) found a message, want none")
	}

	bare := &RetryPolicy{}
	msg, ok = bare.MessageForStage(4)
	if !ok || msg.Subject == "" {
		t.Fatal("MessageForStage() on empty policy should fall back to defaults")
	}
}

func TestDefaultRetryPolicy(t *testing.T) {
	t.Parallel()

	policy := DefaultRetryPolicy("t-1")
	if err := policy.Validate(); err != nil {
		t.Fatalf("default policy invalid: %v", err)
	}
	if policy.MaxRetries != 4 {
		t.Fatalf("MaxRetries = %d, want 4", policy.MaxRetries)
	}
	if policy.FinalFailureAction != ActionSuspend {
		t.Fatalf("FinalFailureAction = %s, want suspend", policy.FinalFailureAction)
	}
	if len(policy.EscalationMessages) != 4 {
		t.Fatalf("EscalationMessages len = %d, want 4", len(policy.EscalationMessages))
	}
}
