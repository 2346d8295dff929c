package domain

import "time"

// FailureAnalyticsRecord is one row per processed attempt outcome. Records
// are append-only; EventuallyRecovered flips retroactively across a chain
// once a later attempt succeeds.
type FailureAnalyticsRecord struct {
	ID        string
	TenantID  string
	AttemptID string
	InvoiceID string

	FailureReason FailureReason
	AmountCents   int64

	DayOfWeek int // 0 = Sunday .. 6 = Saturday
	HourOfDay int
	Date      time.Time

	IsFirstOfMonth bool
	IsEndOfMonth   bool

	EventuallyRecovered   bool
	RecoveryAttemptNumber *int

	CreatedAt time.Time
}

// NewFailureAnalyticsRecord derives the time-bucket fields from the moment
// of failure.
func NewFailureAnalyticsRecord(attempt *RetryAttempt, reason FailureReason, at time.Time) *FailureAnalyticsRecord {
	return &FailureAnalyticsRecord{
		TenantID:       attempt.TenantID,
		AttemptID:      attempt.ID,
		InvoiceID:      attempt.InvoiceID,
		FailureReason:  reason,
		AmountCents:    attempt.AmountCents,
		DayOfWeek:      int(at.Weekday()),
		HourOfDay:      at.Hour(),
		Date:           at.Truncate(24 * time.Hour),
		IsFirstOfMonth: at.Day() <= 5,
		IsEndOfMonth:   at.Day() >= 25,
		CreatedAt:      at,
	}
}

// RecoveryWindow is one (day-of-week, hour-of-day) bucket with its
// historical recovery rate.
type RecoveryWindow struct {
	DayOfWeek    int
	HourOfDay    int
	Recovered    int
	Total        int
	RecoveryRate float64
}
