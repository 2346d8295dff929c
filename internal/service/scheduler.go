package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/calendar"
	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/repository"
)

const (
	// maxCalendarShiftDays bounds the weekend/holiday skip loop so a
	// pathological calendar cannot push a retry out forever.
	maxCalendarShiftDays = 14

	defaultSmartTimingSamples = 20
)

// RetryScheduler computes when the next retry attempt should run. It layers
// three rules on top of the policy's interval table: time-of-day slots,
// historically best recovery windows, and weekend/holiday avoidance.
type RetryScheduler struct {
	calendar   calendar.Calendar
	analytics  repository.AnalyticsRepository
	minSamples int
	logger     *zap.Logger
}

func NewRetryScheduler(
	cal calendar.Calendar,
	analytics repository.AnalyticsRepository,
	minSamples int,
	logger *zap.Logger,
) (*RetryScheduler, error) {
	if cal == nil {
		return nil, fmt.Errorf("calendar is required")
	}
	if minSamples <= 0 {
		minSamples = defaultSmartTimingSamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryScheduler{
		calendar:   cal,
		analytics:  analytics,
		minSamples: minSamples,
		logger:     logger,
	}, nil
}

// NextRetryTime returns the UTC timestamp for retry attempt attemptNumber of
// a chain whose previous charge failed at failureAt with the given reason.
//
// The base rule: the candidate day is the failure date plus the policy's
// interval for this attempt; the slot is the first configured time of day on
// that candidate day strictly after the failure instant, or the first slot of
// the following day. Smart timing may move the whole schedule onto the
// historically best recovery window instead. Weekend/holiday avoidance then
// shifts whole days forward and always wins over the other rules.
//
// Asking for an attempt number beyond the policy's retry budget fails with
// ErrChainExhausted.
func (s *RetryScheduler) NextRetryTime(
	ctx context.Context,
	policy *domain.RetryPolicy,
	reason domain.FailureReason,
	failureAt time.Time,
	attemptNumber int,
) (time.Time, error) {
	if policy == nil {
		return time.Time{}, fmt.Errorf("%w: policy is required", domain.ErrValidation)
	}
	if attemptNumber > policy.MaxRetries {
		return time.Time{}, domain.ErrChainExhausted
	}

	slots, err := parseRetrySlots(policy.RetryTimes)
	if err != nil {
		return time.Time{}, err
	}

	failureAt = failureAt.UTC()
	offsetDays := policy.IntervalForAttempt(attemptNumber)
	candidateDay := failureAt.AddDate(0, 0, offsetDays)

	slot, ok := firstSlotAfter(candidateDay, slots, failureAt)
	if !ok {
		candidateDay = candidateDay.AddDate(0, 0, 1)
		slot = slots[0]
	}

	if policy.UseSmartTiming {
		if smart, ok := s.smartTime(ctx, policy, reason, slots, candidateDay, failureAt); ok {
			return smart, nil
		}
	}

	next := atSlot(candidateDay, slot)
	next = s.shiftToAllowedDay(policy, next)

	return next, nil
}

// smartTime schedules onto the best historical recovery window for this
// tenant and failure reason. Windows are ranked by recovery rate and each
// names a weekday and hour: the candidate date shifts forward to the window's
// weekday and the slot snaps to the configured time closest to the window's
// hour. A window landing on a day the policy forbids is skipped in favor of
// the next ranked one; when no window is usable, or there are not enough
// samples, the caller keeps the naive schedule.
func (s *RetryScheduler) smartTime(
	ctx context.Context,
	policy *domain.RetryPolicy,
	reason domain.FailureReason,
	slots []retrySlot,
	candidateDay time.Time,
	failureAt time.Time,
) (time.Time, bool) {
	if s.analytics == nil {
		return time.Time{}, false
	}

	windows, err := s.analytics.BestWindows(ctx, policy.TenantID, reason, s.minSamples)
	if err != nil {
		s.logger.Warn("smart timing lookup failed, using configured slot",
			zap.String("tenantId", policy.TenantID),
			zap.String("reason", reason.String()),
			zap.Error(err),
		)
		return time.Time{}, false
	}

	for _, window := range windows {
		day := shiftToWeekday(candidateDay, time.Weekday(window.DayOfWeek))
		next := atSlot(day, closestSlot(slots, window.HourOfDay))
		if !next.After(failureAt) || s.dayBlocked(policy, next) {
			continue
		}
		return next, true
	}

	return time.Time{}, false
}

// shiftToAllowedDay moves the timestamp forward a day at a time while the
// policy forbids the day it lands on. Calendar rules override smart timing.
func (s *RetryScheduler) shiftToAllowedDay(policy *domain.RetryPolicy, t time.Time) time.Time {
	if !policy.AvoidWeekends && !policy.AvoidHolidays {
		return t
	}

	for i := 0; i < maxCalendarShiftDays; i++ {
		if !s.dayBlocked(policy, t) {
			return t
		}
		t = t.AddDate(0, 0, 1)
	}

	s.logger.Warn("no allowed day within shift window, scheduling anyway",
		zap.Time("scheduledAt", t),
	)
	return t
}

func (s *RetryScheduler) dayBlocked(policy *domain.RetryPolicy, t time.Time) bool {
	return (policy.AvoidWeekends && s.calendar.IsWeekend(t)) ||
		(policy.AvoidHolidays && s.calendar.IsHoliday(t))
}

// shiftToWeekday returns the earliest day on or after day that falls on the
// target weekday.
func shiftToWeekday(day time.Time, target time.Weekday) time.Time {
	offset := (int(target) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

// closestSlot picks the configured slot nearest the given hour, wrapping at
// midnight.
func closestSlot(slots []retrySlot, hour int) retrySlot {
	chosen := slots[0]
	best := hourDistance(chosen.hour, hour)
	for _, slot := range slots[1:] {
		if d := hourDistance(slot.hour, hour); d < best {
			best = d
			chosen = slot
		}
	}
	return chosen
}

type retrySlot struct {
	hour   int
	minute int
}

func (s retrySlot) minutes() int { return s.hour*60 + s.minute }

func parseRetrySlots(times []string) ([]retrySlot, error) {
	if len(times) == 0 {
		return nil, fmt.Errorf("%w: at least one retry time is required", domain.ErrValidation)
	}

	slots := make([]retrySlot, 0, len(times))
	for _, value := range times {
		parsed, err := time.Parse("15:04", value)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid retry time %q", domain.ErrValidation, value)
		}
		slots = append(slots, retrySlot{hour: parsed.Hour(), minute: parsed.Minute()})
	}

	sort.Slice(slots, func(i, j int) bool { return slots[i].minutes() < slots[j].minutes() })
	return slots, nil
}

// firstSlotAfter returns the earliest slot on day whose timestamp is
// strictly after the reference instant.
func firstSlotAfter(day time.Time, slots []retrySlot, after time.Time) (retrySlot, bool) {
	for _, slot := range slots {
		if atSlot(day, slot).After(after) {
			return slot, true
		}
	}
	return retrySlot{}, false
}

func atSlot(day time.Time, slot retrySlot) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), slot.hour, slot.minute, 0, 0, time.UTC)
}

func hourDistance(a, b int) int {
	d := a - b
	if d < 0 {
		d = -d
	}
	if 24-d < d {
		d = 24 - d
	}
	return d
}
