package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle state of a retry attempt.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusScheduled  Status = "SCHEDULED"
	StatusProcessing Status = "PROCESSING"
	StatusSucceeded  Status = "SUCCEEDED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
	StatusExhausted  Status = "EXHAUSTED"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusProcessing,
		StatusSucceeded, StatusFailed, StatusCancelled, StatusExhausted:
		return true
	}
	return false
}

// IsTerminal reports whether no further automatic transition occurs.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusCancelled, StatusExhausted:
		return true
	}
	return false
}

// IsActive reports whether the attempt still occupies its invoice chain.
// At most one attempt per invoice may be active at any time.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusScheduled, StatusProcessing:
		return true
	}
	return false
}

// ActiveStatuses is the closed set of non-terminal per-chain states.
func ActiveStatuses() []Status {
	return []Status{StatusPending, StatusScheduled, StatusProcessing}
}

var allowedTransitions = map[Status][]Status{
	StatusPending:    {StatusScheduled, StatusCancelled},
	StatusScheduled:  {StatusProcessing, StatusCancelled, StatusScheduled},
	StatusProcessing: {StatusSucceeded, StatusFailed},
	StatusFailed:     {StatusExhausted},
}

// CanTransitionTo reports whether the transition is allowed by the state
// machine. PROCESSING is only reachable through the claim CAS; CANCELLED is
// never reachable from PROCESSING so an in-flight charge cannot be aborted.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// RetryAttempt is a single link in an invoice's dunning chain. A chain
// shares an invoice ID; attempt numbers increase by one per link.
type RetryAttempt struct {
	ID              string
	TenantID        string
	CustomerID      string
	InvoiceID       string
	AmountCents     int64
	Currency        string
	PaymentMethodID string

	Status        Status
	AttemptNumber int
	MaxAttempts   int

	ScheduledAt *time.Time
	AttemptedAt *time.Time
	SucceededAt *time.Time

	FailureReason   *FailureReason
	GatewayChargeID *string

	CardUpdateToken          *string
	CardUpdateTokenExpiresAt *time.Time
	CardUpdateTokenUsed      bool
	CardWasUpdated           bool

	NeedsReconciliation bool
	ReminderSent        bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *RetryAttempt) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: attempt is required", ErrValidation)
	}
	if strings.TrimSpace(a.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if strings.TrimSpace(a.InvoiceID) == "" {
		return fmt.Errorf("%w: invoice id is required", ErrValidation)
	}
	if strings.TrimSpace(a.CustomerID) == "" {
		return fmt.Errorf("%w: customer id is required", ErrValidation)
	}
	if a.AmountCents <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	if a.AttemptNumber < 1 {
		return fmt.Errorf("%w: attempt number must be >= 1", ErrValidation)
	}
	if !a.Status.IsValid() {
		return fmt.Errorf("%w: invalid status %q", ErrValidation, a.Status)
	}
	return nil
}

// IsLastAttempt reports whether a failure of this attempt exhausts the chain.
func (a *RetryAttempt) IsLastAttempt() bool {
	return a.AttemptNumber >= a.MaxAttempts
}

// CardUpdateTokenValid reports whether the bound token can still be consumed.
func (a *RetryAttempt) CardUpdateTokenValid(now time.Time) bool {
	return a.CardUpdateToken != nil &&
		!a.CardUpdateTokenUsed &&
		a.CardUpdateTokenExpiresAt != nil &&
		a.CardUpdateTokenExpiresAt.After(now)
}
