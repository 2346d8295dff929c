package domain

import (
	"fmt"
	"strings"
	"time"
)

// FinalFailureAction is the consequence applied after a chain is exhausted.
type FinalFailureAction string

const (
	ActionSuspend   FinalFailureAction = "suspend"
	ActionDowngrade FinalFailureAction = "downgrade"
	ActionNone      FinalFailureAction = "none"
)

func (a FinalFailureAction) String() string { return string(a) }

func (a FinalFailureAction) IsValid() bool {
	switch a {
	case ActionSuspend, ActionDowngrade, ActionNone:
		return true
	}
	return false
}

func ParseFinalFailureAction(s string) (FinalFailureAction, error) {
	action := FinalFailureAction(strings.ToLower(strings.TrimSpace(s)))
	if !action.IsValid() {
		return "", fmt.Errorf("%w: invalid final failure action %q", ErrValidation, s)
	}
	return action, nil
}

// EscalationMessage is the dunning notice content for one attempt stage.
type EscalationMessage struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Policy bounds, per operator configuration rules.
const (
	MaxRetriesLimit          = 10
	MaxIntervalDays          = 30
	MaxCardUpdateExpiryHours = 168
	MaxGracePeriodDays       = 30
)

// RetryPolicy is the per-tenant dunning configuration. It is read-only to
// the scheduler and escalation engine and written only through operator
// configuration actions.
type RetryPolicy struct {
	TenantID string

	MaxRetries     int
	RetryIntervals []int    // day offsets, index = attempt number - 1
	RetryTimes     []string // "HH:MM" times of day, ascending

	UseSmartTiming bool
	AvoidWeekends  bool
	AvoidHolidays  bool

	NotifyCustomerBefore       bool
	NotifyHoursBefore          int
	NotifyCustomerAfterFailure bool
	NotifyCustomerAfterSuccess bool
	NotifyAdminAfterFailures   bool

	AllowCardUpdate           bool
	CardUpdateLinkExpiryHours int

	FinalFailureAction FinalFailureAction
	GracePeriodDays    int

	EscalationMessages map[int]EscalationMessage

	IsActive bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultRetryPolicy returns the tenant policy used until an operator
// customizes one.
func DefaultRetryPolicy(tenantID string) *RetryPolicy {
	return &RetryPolicy{
		TenantID:                   tenantID,
		MaxRetries:                 4,
		RetryIntervals:             []int{1, 3, 7, 14},
		RetryTimes:                 []string{"09:00", "14:00", "18:00"},
		UseSmartTiming:             true,
		AvoidWeekends:              true,
		AvoidHolidays:              true,
		NotifyCustomerBefore:       true,
		NotifyHoursBefore:          24,
		NotifyCustomerAfterFailure: true,
		NotifyCustomerAfterSuccess: true,
		NotifyAdminAfterFailures:   true,
		AllowCardUpdate:            true,
		CardUpdateLinkExpiryHours:  72,
		FinalFailureAction:         ActionSuspend,
		GracePeriodDays:            7,
		EscalationMessages:         DefaultEscalationMessages(),
		IsActive:                   true,
	}
}

// DefaultEscalationMessages returns the staged dunning notice texts keyed by
// attempt number.
func DefaultEscalationMessages() map[int]EscalationMessage {
	return map[int]EscalationMessage{
		1: {
			Subject: "Payment failed - action required",
			Body:    "We could not charge your card for your invoice. We will retry automatically.",
		},
		2: {
			Subject: "Second payment attempt failed",
			Body:    "Another payment attempt has failed. Please check your payment method.",
		},
		3: {
			Subject: "Urgent - payment update required",
			Body:    "Several payment attempts have failed. Update your card to avoid suspension.",
		},
		4: {
			Subject: "Final attempt - risk of suspension",
			Body:    "This is our final attempt. Without payment, your access will be suspended.",
		},
	}
}

func (p *RetryPolicy) Validate() error {
	if p == nil {
		return fmt.Errorf("%w: policy is required", ErrValidation)
	}
	if strings.TrimSpace(p.TenantID) == "" {
		return fmt.Errorf("%w: tenant id is required", ErrValidation)
	}
	if p.MaxRetries < 1 || p.MaxRetries > MaxRetriesLimit {
		return fmt.Errorf("%w: max retries must be between 1 and %d", ErrValidation, MaxRetriesLimit)
	}
	if len(p.RetryIntervals) == 0 {
		return fmt.Errorf("%w: at least one retry interval is required", ErrValidation)
	}
	for _, days := range p.RetryIntervals {
		if days < 1 || days > MaxIntervalDays {
			return fmt.Errorf("%w: retry interval %d is out of range 1..%d", ErrValidation, days, MaxIntervalDays)
		}
	}
	if len(p.RetryTimes) == 0 {
		return fmt.Errorf("%w: at least one retry time is required", ErrValidation)
	}
	for _, slot := range p.RetryTimes {
		if _, err := time.Parse("15:04", slot); err != nil {
			return fmt.Errorf("%w: invalid retry time %q", ErrValidation, slot)
		}
	}
	if p.NotifyCustomerBefore && (p.NotifyHoursBefore < 1 || p.NotifyHoursBefore > 72) {
		return fmt.Errorf("%w: notify hours before must be between 1 and 72", ErrValidation)
	}
	if p.AllowCardUpdate &&
		(p.CardUpdateLinkExpiryHours < 1 || p.CardUpdateLinkExpiryHours > MaxCardUpdateExpiryHours) {
		return fmt.Errorf("%w: card update link expiry must be between 1 and %d hours", ErrValidation, MaxCardUpdateExpiryHours)
	}
	if !p.FinalFailureAction.IsValid() {
		return fmt.Errorf("%w: invalid final failure action %q", ErrValidation, p.FinalFailureAction)
	}
	if p.GracePeriodDays < 0 || p.GracePeriodDays > MaxGracePeriodDays {
		return fmt.Errorf("%w: grace period must be between 0 and %d days", ErrValidation, MaxGracePeriodDays)
	}
	return nil
}

// IntervalForAttempt returns the day offset before the given attempt. The
// last configured interval is reused beyond the list length.
func (p *RetryPolicy) IntervalForAttempt(attemptNumber int) int {
	if len(p.RetryIntervals) == 0 {
		return 7
	}
	index := attemptNumber - 1
	if index < 0 {
		index = 0
	}
	if index >= len(p.RetryIntervals) {
		index = len(p.RetryIntervals) - 1
	}
	return p.RetryIntervals[index]
}

// MessageForStage returns the escalation message for an attempt stage, or
// the closest earlier stage when the exact one is not configured.
func (p *RetryPolicy) MessageForStage(stage int) (EscalationMessage, bool) {
	messages := p.EscalationMessages
	if len(messages) == 0 {
		messages = DefaultEscalationMessages()
	}
	if msg, ok := messages[stage]; ok {
		return msg, true
	}
	for s := stage - 1; s >= 1; s-- {
		if msg, ok := messages[s]; ok {
			return msg, true
		}
	}
	return EscalationMessage{}, false
}
