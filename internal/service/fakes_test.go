package service

import (
	"context"
	"time"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/gateway"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/queue"
	"github.com/boxibox/dunning-engine/internal/repository"
)

type fakeAttemptRepo struct {
	createFn              func(ctx context.Context, a *domain.RetryAttempt) error
	getByIDFn             func(ctx context.Context, id string) (*domain.RetryAttempt, error)
	getByTokenFn          func(ctx context.Context, token string) (*domain.RetryAttempt, error)
	listFn                func(ctx context.Context, params repository.ListParams) ([]domain.RetryAttempt, int64, error)
	listChainFn           func(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error)
	hasActiveFn           func(ctx context.Context, invoiceID string) (bool, error)
	getDueFn              func(ctx context.Context, now time.Time, limit int) ([]domain.RetryAttempt, error)
	claimFn               func(ctx context.Context, id string, now time.Time) (*domain.RetryAttempt, bool, error)
	markSucceededFn       func(ctx context.Context, id string, chargeID string, at time.Time) error
	markFailedFn          func(ctx context.Context, id string, reason domain.FailureReason, reconcile bool) error
	markExhaustedFn       func(ctx context.Context, id string) error
	rescheduleFn          func(ctx context.Context, id string, at time.Time) error
	cancelFn              func(ctx context.Context, id string) error
	cancelActiveFn        func(ctx context.Context, invoiceID string, exceptID string) (int64, error)
	setTokenFn            func(ctx context.Context, id string, token string, expiresAt time.Time) error
	consumeTokenFn        func(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error)
	getDueForReminderFn   func(ctx context.Context, windowEnd time.Time, limit int) ([]domain.RetryAttempt, error)
	markReminderSentFn    func(ctx context.Context, id string) error
	statsFn               func(ctx context.Context, tenantID string, since time.Time) (*repository.DashboardStats, error)
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.RetryAttempt) error {
	if f.createFn != nil {
		return f.createFn(ctx, a)
	}
	return nil
}

func (f *fakeAttemptRepo) GetByID(ctx context.Context, id string) (*domain.RetryAttempt, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeAttemptRepo) GetByCardUpdateToken(ctx context.Context, token string) (*domain.RetryAttempt, error) {
	if f.getByTokenFn != nil {
		return f.getByTokenFn(ctx, token)
	}
	return nil, domain.ErrTokenNotFound
}

func (f *fakeAttemptRepo) List(ctx context.Context, params repository.ListParams) ([]domain.RetryAttempt, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeAttemptRepo) ListChain(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error) {
	if f.listChainFn != nil {
		return f.listChainFn(ctx, invoiceID)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) HasActiveForInvoice(ctx context.Context, invoiceID string) (bool, error) {
	if f.hasActiveFn != nil {
		return f.hasActiveFn(ctx, invoiceID)
	}
	return false, nil
}

func (f *fakeAttemptRepo) GetDueForProcessing(ctx context.Context, now time.Time, limit int) ([]domain.RetryAttempt, error) {
	if f.getDueFn != nil {
		return f.getDueFn(ctx, now, limit)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) ClaimForProcessing(ctx context.Context, id string, now time.Time) (*domain.RetryAttempt, bool, error) {
	if f.claimFn != nil {
		return f.claimFn(ctx, id, now)
	}
	return nil, false, nil
}

func (f *fakeAttemptRepo) MarkSucceeded(ctx context.Context, id string, chargeID string, at time.Time) error {
	if f.markSucceededFn != nil {
		return f.markSucceededFn(ctx, id, chargeID, at)
	}
	return nil
}

func (f *fakeAttemptRepo) MarkFailed(ctx context.Context, id string, reason domain.FailureReason, reconcile bool) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, reason, reconcile)
	}
	return nil
}

func (f *fakeAttemptRepo) MarkExhausted(ctx context.Context, id string) error {
	if f.markExhaustedFn != nil {
		return f.markExhaustedFn(ctx, id)
	}
	return nil
}

func (f *fakeAttemptRepo) Reschedule(ctx context.Context, id string, at time.Time) error {
	if f.rescheduleFn != nil {
		return f.rescheduleFn(ctx, id, at)
	}
	return nil
}

func (f *fakeAttemptRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func (f *fakeAttemptRepo) CancelActiveForInvoice(ctx context.Context, invoiceID string, exceptID string) (int64, error) {
	if f.cancelActiveFn != nil {
		return f.cancelActiveFn(ctx, invoiceID, exceptID)
	}
	return 0, nil
}

func (f *fakeAttemptRepo) SetCardUpdateToken(ctx context.Context, id string, token string, expiresAt time.Time) error {
	if f.setTokenFn != nil {
		return f.setTokenFn(ctx, id, token, expiresAt)
	}
	return nil
}

func (f *fakeAttemptRepo) ConsumeCardUpdateToken(ctx context.Context, id string, paymentMethodID string, at time.Time) (bool, error) {
	if f.consumeTokenFn != nil {
		return f.consumeTokenFn(ctx, id, paymentMethodID, at)
	}
	return false, nil
}

func (f *fakeAttemptRepo) GetDueForReminder(ctx context.Context, windowEnd time.Time, limit int) ([]domain.RetryAttempt, error) {
	if f.getDueForReminderFn != nil {
		return f.getDueForReminderFn(ctx, windowEnd, limit)
	}
	return nil, nil
}

func (f *fakeAttemptRepo) MarkReminderSent(ctx context.Context, id string) error {
	if f.markReminderSentFn != nil {
		return f.markReminderSentFn(ctx, id)
	}
	return nil
}

func (f *fakeAttemptRepo) Stats(ctx context.Context, tenantID string, since time.Time) (*repository.DashboardStats, error) {
	if f.statsFn != nil {
		return f.statsFn(ctx, tenantID, since)
	}
	return &repository.DashboardStats{}, nil
}

type fakePolicyRepo struct {
	getByTenantFn func(ctx context.Context, tenantID string) (*domain.RetryPolicy, error)
	upsertFn      func(ctx context.Context, p *domain.RetryPolicy) error
}

func (f *fakePolicyRepo) GetByTenant(ctx context.Context, tenantID string) (*domain.RetryPolicy, error) {
	if f.getByTenantFn != nil {
		return f.getByTenantFn(ctx, tenantID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakePolicyRepo) Upsert(ctx context.Context, p *domain.RetryPolicy) error {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, p)
	}
	return nil
}

type fakeAnalyticsRepo struct {
	createFn           func(ctx context.Context, r *domain.FailureAnalyticsRecord) error
	listByInvoiceFn    func(ctx context.Context, invoiceID string) ([]domain.FailureAnalyticsRecord, error)
	markRecoveredFn    func(ctx context.Context, invoiceID string, attemptNumber int) (int64, error)
	bestWindowsFn      func(ctx context.Context, tenantID string, reason domain.FailureReason, minSamples int) ([]domain.RecoveryWindow, error)
	heatmapFn          func(ctx context.Context, tenantID string, from time.Time) ([]repository.HeatmapCell, error)
	recoveryByReasonFn func(ctx context.Context, tenantID string, from time.Time) ([]repository.ReasonBreakdown, error)
	recoveryByDayFn    func(ctx context.Context, tenantID string, from time.Time) ([]repository.DayBreakdown, error)
	amountRecoveredFn  func(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, error)
}

func (f *fakeAnalyticsRepo) Create(ctx context.Context, r *domain.FailureAnalyticsRecord) error {
	if f.createFn != nil {
		return f.createFn(ctx, r)
	}
	return nil
}

func (f *fakeAnalyticsRepo) ListByInvoice(ctx context.Context, invoiceID string) ([]domain.FailureAnalyticsRecord, error) {
	if f.listByInvoiceFn != nil {
		return f.listByInvoiceFn(ctx, invoiceID)
	}
	return nil, nil
}

func (f *fakeAnalyticsRepo) MarkChainRecovered(ctx context.Context, invoiceID string, attemptNumber int) (int64, error) {
	if f.markRecoveredFn != nil {
		return f.markRecoveredFn(ctx, invoiceID, attemptNumber)
	}
	return 0, nil
}

func (f *fakeAnalyticsRepo) BestWindows(ctx context.Context, tenantID string, reason domain.FailureReason, minSamples int) ([]domain.RecoveryWindow, error) {
	if f.bestWindowsFn != nil {
		return f.bestWindowsFn(ctx, tenantID, reason, minSamples)
	}
	return nil, nil
}

func (f *fakeAnalyticsRepo) Heatmap(ctx context.Context, tenantID string, from time.Time) ([]repository.HeatmapCell, error) {
	if f.heatmapFn != nil {
		return f.heatmapFn(ctx, tenantID, from)
	}
	return nil, nil
}

func (f *fakeAnalyticsRepo) RecoveryByReason(ctx context.Context, tenantID string, from time.Time) ([]repository.ReasonBreakdown, error) {
	if f.recoveryByReasonFn != nil {
		return f.recoveryByReasonFn(ctx, tenantID, from)
	}
	return nil, nil
}

func (f *fakeAnalyticsRepo) RecoveryByDay(ctx context.Context, tenantID string, from time.Time) ([]repository.DayBreakdown, error) {
	if f.recoveryByDayFn != nil {
		return f.recoveryByDayFn(ctx, tenantID, from)
	}
	return nil, nil
}

func (f *fakeAnalyticsRepo) AmountRecovered(ctx context.Context, tenantID string, from time.Time, to time.Time) (int64, error) {
	if f.amountRecoveredFn != nil {
		return f.amountRecoveredFn(ctx, tenantID, from, to)
	}
	return 0, nil
}

type fakeGateway struct {
	chargeFn func(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error)
}

func (f *fakeGateway) Charge(ctx context.Context, req gateway.ChargeRequest) (*gateway.ChargeResult, error) {
	if f.chargeFn != nil {
		return f.chargeFn(ctx, req)
	}
	return &gateway.ChargeResult{ChargeID: "ch_fake"}, nil
}

type fakePublisher struct {
	publishFn func(ctx context.Context, queueName string, msg queue.DunningNoticeMessage) error
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, msg queue.DunningNoticeMessage) error {
	if f.publishFn != nil {
		return f.publishFn(ctx, queueName, msg)
	}
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeInvoicingClient struct {
	recordPaymentFn       func(ctx context.Context, payment invoicing.PaymentRecord) error
	markOverdueFn         func(ctx context.Context, tenantID string, invoiceID string) error
	suspendFn             func(ctx context.Context, tenantID string, customerID string, suspendAt time.Time) error
	downgradeFn           func(ctx context.Context, tenantID string, customerID string) error
	updatePaymentMethodFn func(ctx context.Context, tenantID string, customerID string, paymentMethodID string) error
}

func (f *fakeInvoicingClient) RecordPayment(ctx context.Context, payment invoicing.PaymentRecord) error {
	if f.recordPaymentFn != nil {
		return f.recordPaymentFn(ctx, payment)
	}
	return nil
}

func (f *fakeInvoicingClient) MarkInvoiceOverdue(ctx context.Context, tenantID string, invoiceID string) error {
	if f.markOverdueFn != nil {
		return f.markOverdueFn(ctx, tenantID, invoiceID)
	}
	return nil
}

func (f *fakeInvoicingClient) SuspendCustomer(ctx context.Context, tenantID string, customerID string, suspendAt time.Time) error {
	if f.suspendFn != nil {
		return f.suspendFn(ctx, tenantID, customerID, suspendAt)
	}
	return nil
}

func (f *fakeInvoicingClient) DowngradeCustomer(ctx context.Context, tenantID string, customerID string) error {
	if f.downgradeFn != nil {
		return f.downgradeFn(ctx, tenantID, customerID)
	}
	return nil
}

func (f *fakeInvoicingClient) UpdatePaymentMethod(ctx context.Context, tenantID string, customerID string, paymentMethodID string) error {
	if f.updatePaymentMethodFn != nil {
		return f.updatePaymentMethodFn(ctx, tenantID, customerID, paymentMethodID)
	}
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, scope string) (bool, error)
	waitFn  func(ctx context.Context, scope string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, scope string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, scope)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, scope string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, scope)
	}
	return nil
}

// fakeCalendar blocks the exact days listed.
type fakeCalendar struct {
	weekends bool
	holidays map[string]bool
}

func (f *fakeCalendar) IsWeekend(t time.Time) bool {
	if !f.weekends {
		return false
	}
	weekday := t.Weekday()
	return weekday == time.Saturday || weekday == time.Sunday
}

func (f *fakeCalendar) IsHoliday(t time.Time) bool {
	return f.holidays[t.Format("2006-01-02")]
}

func (f *fakeCalendar) IsBusinessDay(t time.Time) bool {
	return !f.IsWeekend(t) && !f.IsHoliday(t)
}
