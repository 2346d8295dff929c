package repository

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/boxibox/dunning-engine/internal/domain"
)

// RetryAttemptModel is the persistence model for the retry_attempts table.
type RetryAttemptModel struct {
	ID              string `gorm:"type:uuid;primaryKey"`
	TenantID        string `gorm:"type:varchar(36);not null;index:idx_attempts_tenant_status,priority:1"`
	CustomerID      string `gorm:"type:varchar(36);not null"`
	InvoiceID       string `gorm:"type:varchar(36);not null;index"`
	AmountCents     int64  `gorm:"not null"`
	Currency        string `gorm:"type:varchar(3);not null;default:EUR"`
	PaymentMethodID string `gorm:"type:varchar(255)"`

	Status        domain.Status `gorm:"type:varchar(20);not null;index:idx_attempts_tenant_status,priority:2"`
	AttemptNumber int           `gorm:"not null;default:1"`
	MaxAttempts   int           `gorm:"not null;default:4"`

	ScheduledAt *time.Time `gorm:"type:timestamptz"`
	AttemptedAt *time.Time `gorm:"type:timestamptz"`
	SucceededAt *time.Time `gorm:"type:timestamptz"`

	FailureReason   *string `gorm:"type:varchar(64)"`
	GatewayChargeID *string `gorm:"type:varchar(255)"`

	CardUpdateToken          *string    `gorm:"type:varchar(64)"`
	CardUpdateTokenExpiresAt *time.Time `gorm:"type:timestamptz"`
	CardUpdateTokenUsed      bool       `gorm:"not null;default:false"`
	CardWasUpdated           bool       `gorm:"not null;default:false"`

	NeedsReconciliation bool `gorm:"not null;default:false"`
	ReminderSent        bool `gorm:"not null;default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetryAttemptModel) TableName() string {
	return "retry_attempts"
}

// RetryPolicyModel is the persistence model for retry_policies. List and map
// fields are stored as JSON, one row per tenant.
type RetryPolicyModel struct {
	TenantID string `gorm:"type:varchar(36);primaryKey"`

	MaxRetries     int    `gorm:"not null;default:4"`
	RetryIntervals string `gorm:"type:jsonb;not null"`
	RetryTimes     string `gorm:"type:jsonb;not null"`

	UseSmartTiming bool `gorm:"not null;default:true"`
	AvoidWeekends  bool `gorm:"not null;default:true"`
	AvoidHolidays  bool `gorm:"not null;default:true"`

	NotifyCustomerBefore       bool `gorm:"not null;default:true"`
	NotifyHoursBefore          int  `gorm:"not null;default:24"`
	NotifyCustomerAfterFailure bool `gorm:"not null;default:true"`
	NotifyCustomerAfterSuccess bool `gorm:"not null;default:true"`
	NotifyAdminAfterFailures   bool `gorm:"not null;default:true"`

	AllowCardUpdate           bool `gorm:"not null;default:true"`
	CardUpdateLinkExpiryHours int  `gorm:"not null;default:72"`

	FinalFailureAction string `gorm:"type:varchar(16);not null;default:suspend"`
	GracePeriodDays    int    `gorm:"not null;default:7"`

	EscalationMessages *string `gorm:"type:jsonb"`

	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (RetryPolicyModel) TableName() string {
	return "retry_policies"
}

// FailureAnalyticsModel is the persistence model for failure_analytics.
type FailureAnalyticsModel struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	TenantID  string `gorm:"type:varchar(36);not null;index:idx_analytics_tenant_reason,priority:1"`
	AttemptID string `gorm:"type:uuid;not null"`
	InvoiceID string `gorm:"type:varchar(36);not null;index"`

	FailureReason string `gorm:"type:varchar(64);not null;index:idx_analytics_tenant_reason,priority:2"`
	AmountCents   int64  `gorm:"not null"`

	DayOfWeek int       `gorm:"not null"`
	HourOfDay int       `gorm:"not null"`
	Date      time.Time `gorm:"type:date;not null"`

	IsFirstOfMonth bool `gorm:"not null;default:false"`
	IsEndOfMonth   bool `gorm:"not null;default:false"`

	EventuallyRecovered   bool `gorm:"not null;default:false"`
	RecoveryAttemptNumber *int

	CreatedAt time.Time
}

func (FailureAnalyticsModel) TableName() string {
	return "failure_analytics"
}

func attemptModelFromDomain(a *domain.RetryAttempt) *RetryAttemptModel {
	if a == nil {
		return nil
	}

	var reason *string
	if a.FailureReason != nil {
		value := a.FailureReason.String()
		reason = &value
	}

	return &RetryAttemptModel{
		ID:                       a.ID,
		TenantID:                 a.TenantID,
		CustomerID:               a.CustomerID,
		InvoiceID:                a.InvoiceID,
		AmountCents:              a.AmountCents,
		Currency:                 a.Currency,
		PaymentMethodID:          a.PaymentMethodID,
		Status:                   a.Status,
		AttemptNumber:            a.AttemptNumber,
		MaxAttempts:              a.MaxAttempts,
		ScheduledAt:              a.ScheduledAt,
		AttemptedAt:              a.AttemptedAt,
		SucceededAt:              a.SucceededAt,
		FailureReason:            reason,
		GatewayChargeID:          a.GatewayChargeID,
		CardUpdateToken:          a.CardUpdateToken,
		CardUpdateTokenExpiresAt: a.CardUpdateTokenExpiresAt,
		CardUpdateTokenUsed:      a.CardUpdateTokenUsed,
		CardWasUpdated:           a.CardWasUpdated,
		NeedsReconciliation:      a.NeedsReconciliation,
		ReminderSent:             a.ReminderSent,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}
}

func attemptModelToDomain(m *RetryAttemptModel) *domain.RetryAttempt {
	if m == nil {
		return nil
	}

	var reason *domain.FailureReason
	if m.FailureReason != nil {
		value := domain.FailureReason(*m.FailureReason)
		reason = &value
	}

	return &domain.RetryAttempt{
		ID:                       m.ID,
		TenantID:                 m.TenantID,
		CustomerID:               m.CustomerID,
		InvoiceID:                m.InvoiceID,
		AmountCents:              m.AmountCents,
		Currency:                 m.Currency,
		PaymentMethodID:          m.PaymentMethodID,
		Status:                   m.Status,
		AttemptNumber:            m.AttemptNumber,
		MaxAttempts:              m.MaxAttempts,
		ScheduledAt:              m.ScheduledAt,
		AttemptedAt:              m.AttemptedAt,
		SucceededAt:              m.SucceededAt,
		FailureReason:            reason,
		GatewayChargeID:          m.GatewayChargeID,
		CardUpdateToken:          m.CardUpdateToken,
		CardUpdateTokenExpiresAt: m.CardUpdateTokenExpiresAt,
		CardUpdateTokenUsed:      m.CardUpdateTokenUsed,
		CardWasUpdated:           m.CardWasUpdated,
		NeedsReconciliation:      m.NeedsReconciliation,
		ReminderSent:             m.ReminderSent,
		CreatedAt:                m.CreatedAt,
		UpdatedAt:                m.UpdatedAt,
	}
}

func policyModelFromDomain(p *domain.RetryPolicy) (*RetryPolicyModel, error) {
	if p == nil {
		return nil, nil
	}

	intervals, err := json.Marshal(p.RetryIntervals)
	if err != nil {
		return nil, fmt.Errorf("failed to encode retry intervals: %w", err)
	}
	times, err := json.Marshal(p.RetryTimes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode retry times: %w", err)
	}

	var messages *string
	if len(p.EscalationMessages) > 0 {
		encoded, err := json.Marshal(p.EscalationMessages)
		if err != nil {
			return nil, fmt.Errorf("failed to encode escalation messages: %w", err)
		}
		value := string(encoded)
		messages = &value
	}

	return &RetryPolicyModel{
		TenantID:                   p.TenantID,
		MaxRetries:                 p.MaxRetries,
		RetryIntervals:             string(intervals),
		RetryTimes:                 string(times),
		UseSmartTiming:             p.UseSmartTiming,
		AvoidWeekends:              p.AvoidWeekends,
		AvoidHolidays:              p.AvoidHolidays,
		NotifyCustomerBefore:       p.NotifyCustomerBefore,
		NotifyHoursBefore:          p.NotifyHoursBefore,
		NotifyCustomerAfterFailure: p.NotifyCustomerAfterFailure,
		NotifyCustomerAfterSuccess: p.NotifyCustomerAfterSuccess,
		NotifyAdminAfterFailures:   p.NotifyAdminAfterFailures,
		AllowCardUpdate:            p.AllowCardUpdate,
		CardUpdateLinkExpiryHours:  p.CardUpdateLinkExpiryHours,
		FinalFailureAction:         p.FinalFailureAction.String(),
		GracePeriodDays:            p.GracePeriodDays,
		EscalationMessages:         messages,
		IsActive:                   p.IsActive,
		CreatedAt:                  p.CreatedAt,
		UpdatedAt:                  p.UpdatedAt,
	}, nil
}

func policyModelToDomain(m *RetryPolicyModel) (*domain.RetryPolicy, error) {
	if m == nil {
		return nil, nil
	}

	var intervals []int
	if err := json.Unmarshal([]byte(m.RetryIntervals), &intervals); err != nil {
		return nil, fmt.Errorf("failed to decode retry intervals: %w", err)
	}
	var times []string
	if err := json.Unmarshal([]byte(m.RetryTimes), &times); err != nil {
		return nil, fmt.Errorf("failed to decode retry times: %w", err)
	}

	messages := map[int]domain.EscalationMessage{}
	if m.EscalationMessages != nil {
		if err := json.Unmarshal([]byte(*m.EscalationMessages), &messages); err != nil {
			return nil, fmt.Errorf("failed to decode escalation messages: %w", err)
		}
	}

	return &domain.RetryPolicy{
		TenantID:                   m.TenantID,
		MaxRetries:                 m.MaxRetries,
		RetryIntervals:             intervals,
		RetryTimes:                 times,
		UseSmartTiming:             m.UseSmartTiming,
		AvoidWeekends:              m.AvoidWeekends,
		AvoidHolidays:              m.AvoidHolidays,
		NotifyCustomerBefore:       m.NotifyCustomerBefore,
		NotifyHoursBefore:          m.NotifyHoursBefore,
		NotifyCustomerAfterFailure: m.NotifyCustomerAfterFailure,
		NotifyCustomerAfterSuccess: m.NotifyCustomerAfterSuccess,
		NotifyAdminAfterFailures:   m.NotifyAdminAfterFailures,
		AllowCardUpdate:            m.AllowCardUpdate,
		CardUpdateLinkExpiryHours:  m.CardUpdateLinkExpiryHours,
		FinalFailureAction:         domain.FinalFailureAction(m.FinalFailureAction),
		GracePeriodDays:            m.GracePeriodDays,
		EscalationMessages:         messages,
		IsActive:                   m.IsActive,
		CreatedAt:                  m.CreatedAt,
		UpdatedAt:                  m.UpdatedAt,
	}, nil
}

func analyticsModelFromDomain(r *domain.FailureAnalyticsRecord) *FailureAnalyticsModel {
	if r == nil {
		return nil
	}

	return &FailureAnalyticsModel{
		ID:                    r.ID,
		TenantID:              r.TenantID,
		AttemptID:             r.AttemptID,
		InvoiceID:             r.InvoiceID,
		FailureReason:         r.FailureReason.String(),
		AmountCents:           r.AmountCents,
		DayOfWeek:             r.DayOfWeek,
		HourOfDay:             r.HourOfDay,
		Date:                  r.Date,
		IsFirstOfMonth:        r.IsFirstOfMonth,
		IsEndOfMonth:          r.IsEndOfMonth,
		EventuallyRecovered:   r.EventuallyRecovered,
		RecoveryAttemptNumber: r.RecoveryAttemptNumber,
		CreatedAt:             r.CreatedAt,
	}
}

func analyticsModelToDomain(m *FailureAnalyticsModel) *domain.FailureAnalyticsRecord {
	if m == nil {
		return nil
	}

	return &domain.FailureAnalyticsRecord{
		ID:                    m.ID,
		TenantID:              m.TenantID,
		AttemptID:             m.AttemptID,
		InvoiceID:             m.InvoiceID,
		FailureReason:         domain.FailureReason(m.FailureReason),
		AmountCents:           m.AmountCents,
		DayOfWeek:             m.DayOfWeek,
		HourOfDay:             m.HourOfDay,
		Date:                  m.Date,
		IsFirstOfMonth:        m.IsFirstOfMonth,
		IsEndOfMonth:          m.IsEndOfMonth,
		EventuallyRecovered:   m.EventuallyRecovered,
		RecoveryAttemptNumber: m.RecoveryAttemptNumber,
		CreatedAt:             m.CreatedAt,
	}
}
