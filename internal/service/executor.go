package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/gateway"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/ratelimit"
	"github.com/boxibox/dunning-engine/internal/repository"
)

// gatewayRateScope is the rate limiter scope shared by all charge calls.
const gatewayRateScope = "charge"

// ChargeExecutor runs a single due attempt end to end: claim, charge, and
// settle the outcome. The claim is a conditional update, so concurrent
// executions of the same attempt collapse to exactly one charge.
type ChargeExecutor struct {
	attempts    repository.AttemptRepository
	policies    repository.PolicyRepository
	analytics   repository.AnalyticsRepository
	gateway     gateway.Gateway
	scheduler   *RetryScheduler
	escalation  *EscalationEngine
	invoicing   invoicing.Client
	rateLimiter ratelimit.RateLimiter
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewChargeExecutor(
	attempts repository.AttemptRepository,
	policies repository.PolicyRepository,
	analytics repository.AnalyticsRepository,
	gw gateway.Gateway,
	scheduler *RetryScheduler,
	escalation *EscalationEngine,
	invoicingClient invoicing.Client,
	rateLimiter ratelimit.RateLimiter,
	logger *zap.Logger,
) (*ChargeExecutor, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy repository is required")
	}
	if gw == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if escalation == nil {
		return nil, fmt.Errorf("escalation engine is required")
	}
	if invoicingClient == nil {
		return nil, fmt.Errorf("invoicing client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChargeExecutor{
		attempts:    attempts,
		policies:    policies,
		analytics:   analytics,
		gateway:     gw,
		scheduler:   scheduler,
		escalation:  escalation,
		invoicing:   invoicingClient,
		rateLimiter: rateLimiter,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (e *ChargeExecutor) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Execute processes one due attempt by ID. A lost claim race is not an
// error: another worker owns the attempt.
func (e *ChargeExecutor) Execute(ctx context.Context, attemptID string) error {
	claimedAt := e.now().UTC()
	attempt, claimed, err := e.attempts.ClaimForProcessing(ctx, attemptID, claimedAt)
	if err != nil {
		return fmt.Errorf("failed to claim attempt %s: %w", attemptID, err)
	}
	if !claimed {
		return nil
	}

	if e.metrics != nil {
		e.metrics.IncExecutorInFlight()
		defer e.metrics.DecExecutorInFlight()
	}

	logger := e.logger.With(
		zap.String("attemptId", attempt.ID),
		zap.String("invoiceId", attempt.InvoiceID),
		zap.Int("attemptNumber", attempt.AttemptNumber),
	)

	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx, gatewayRateScope); err != nil {
			// The charge was never sent; settle as an unavailable gateway
			// so the chain keeps moving.
			logger.Warn("rate limiter wait failed, settling as gateway unavailable", zap.Error(err))
			return e.settleFailure(ctx, logger, attempt, domain.ReasonGatewayUnavailable, false)
		}
	}

	chargeStart := e.now()
	result, chargeErr := e.gateway.Charge(ctx, gateway.ChargeRequest{
		TenantID:        attempt.TenantID,
		InvoiceID:       attempt.InvoiceID,
		PaymentMethodID: attempt.PaymentMethodID,
		AmountCents:     attempt.AmountCents,
		Currency:        attempt.Currency,
		IdempotencyKey:  gateway.IdempotencyKey(attempt.ID),
	})
	if e.metrics != nil {
		e.metrics.ObserveChargeDuration(e.now().Sub(chargeStart))
	}

	if chargeErr == nil {
		return e.settleSuccess(ctx, logger, attempt, result)
	}

	reason, transient := gateway.FailureReasonFromError(chargeErr)
	logger.Info("charge failed",
		zap.String("reason", reason.String()),
		zap.Bool("transient", transient),
		zap.Error(chargeErr),
	)
	// A transient error means the charge outcome is unknown; flag the
	// attempt so operators can reconcile against gateway records.
	return e.settleFailure(ctx, logger, attempt, reason, transient)
}

func (e *ChargeExecutor) settleSuccess(
	ctx context.Context,
	logger *zap.Logger,
	attempt *domain.RetryAttempt,
	result *gateway.ChargeResult,
) error {
	succeededAt := e.now().UTC()

	chargeID := ""
	if result != nil {
		chargeID = result.ChargeID
	}

	if err := e.attempts.MarkSucceeded(ctx, attempt.ID, chargeID, succeededAt); err != nil {
		return fmt.Errorf("failed to mark attempt succeeded: %w", err)
	}
	if e.metrics != nil {
		e.metrics.IncRecovery(attempt.AttemptNumber)
	}

	logger.Info("payment recovered",
		zap.Int64("amountCents", attempt.AmountCents),
		zap.String("gatewayChargeId", chargeID),
	)

	// The money moved; everything below is best effort and must not undo
	// the terminal state.
	if cancelled, err := e.attempts.CancelActiveForInvoice(ctx, attempt.InvoiceID, attempt.ID); err != nil {
		logger.Error("failed to cancel competing attempts", zap.Error(err))
	} else if cancelled > 0 {
		logger.Info("cancelled competing attempts for paid invoice", zap.Int64("count", cancelled))
	}

	if e.analytics != nil {
		if _, err := e.analytics.MarkChainRecovered(ctx, attempt.InvoiceID, attempt.AttemptNumber); err != nil {
			logger.Error("failed to mark chain analytics as recovered", zap.Error(err))
		}
	}

	if err := e.invoicing.RecordPayment(ctx, invoicing.PaymentRecord{
		TenantID:        attempt.TenantID,
		CustomerID:      attempt.CustomerID,
		InvoiceID:       attempt.InvoiceID,
		AmountCents:     attempt.AmountCents,
		Currency:        attempt.Currency,
		GatewayChargeID: chargeID,
		PaidAt:          succeededAt,
	}); err != nil {
		logger.Error("failed to record payment in invoicing", zap.Error(err))
	}

	policy := e.policyFor(ctx, attempt.TenantID)
	if err := e.escalation.PublishRecoveryNotice(ctx, policy, attempt); err != nil {
		logger.Error("failed to publish recovery notice", zap.Error(err))
	}

	return nil
}

func (e *ChargeExecutor) settleFailure(
	ctx context.Context,
	logger *zap.Logger,
	attempt *domain.RetryAttempt,
	reason domain.FailureReason,
	needsReconciliation bool,
) error {
	failedAt := e.now().UTC()

	if err := e.attempts.MarkFailed(ctx, attempt.ID, reason, needsReconciliation); err != nil {
		return fmt.Errorf("failed to mark attempt failed: %w", err)
	}
	if e.metrics != nil {
		e.metrics.IncFailure(reason.String())
	}

	if e.analytics != nil {
		record := domain.NewFailureAnalyticsRecord(attempt, reason, failedAt)
		record.ID = uuid.NewString()
		if err := e.analytics.Create(ctx, record); err != nil {
			logger.Error("failed to record failure analytics", zap.Error(err))
		}
	}

	policy := e.policyFor(ctx, attempt.TenantID)

	if attempt.IsLastAttempt() {
		if err := e.attempts.MarkExhausted(ctx, attempt.ID); err != nil {
			return fmt.Errorf("failed to mark chain exhausted: %w", err)
		}
		logger.Info("retry chain exhausted",
			zap.String("finalAction", policy.FinalFailureAction.String()),
		)
		if err := e.escalation.ApplyFinalAction(ctx, policy, attempt); err != nil {
			logger.Error("failed to apply final failure action", zap.Error(err))
		}
		return nil
	}

	return e.scheduleNext(ctx, logger, policy, attempt, reason, failedAt)
}

func (e *ChargeExecutor) scheduleNext(
	ctx context.Context,
	logger *zap.Logger,
	policy *domain.RetryPolicy,
	failed *domain.RetryAttempt,
	reason domain.FailureReason,
	failedAt time.Time,
) error {
	nextNumber := failed.AttemptNumber + 1
	nextAt, err := e.scheduler.NextRetryTime(ctx, policy, reason, failedAt, nextNumber)
	if err != nil {
		return fmt.Errorf("failed to compute next retry time: %w", err)
	}

	next := &domain.RetryAttempt{
		ID:              uuid.NewString(),
		TenantID:        failed.TenantID,
		CustomerID:      failed.CustomerID,
		InvoiceID:       failed.InvoiceID,
		AmountCents:     failed.AmountCents,
		Currency:        failed.Currency,
		PaymentMethodID: failed.PaymentMethodID,
		Status:          domain.StatusScheduled,
		AttemptNumber:   nextNumber,
		MaxAttempts:     failed.MaxAttempts,
		ScheduledAt:     &nextAt,
	}

	cardUpdateURL := ""
	if reason.IsHardDecline() && policy.AllowCardUpdate {
		token, tokenErr := domain.NewCardUpdateToken()
		if tokenErr != nil {
			return fmt.Errorf("failed to generate card update token: %w", tokenErr)
		}
		expiresAt := failedAt.Add(time.Duration(policy.CardUpdateLinkExpiryHours) * time.Hour)
		next.CardUpdateToken = &token
		next.CardUpdateTokenExpiresAt = &expiresAt
		cardUpdateURL = e.escalation.CardUpdateURL(token)
	}

	if err := e.attempts.Create(ctx, next); err != nil {
		return fmt.Errorf("failed to create next attempt: %w", err)
	}
	if e.metrics != nil {
		e.metrics.IncRetryScheduled(nextNumber)
	}

	logger.Info("next retry scheduled",
		zap.Int("nextAttemptNumber", nextNumber),
		zap.Time("scheduledAt", nextAt),
		zap.Bool("cardUpdateRequested", cardUpdateURL != ""),
	)

	if err := e.escalation.PublishFailureNotice(ctx, policy, failed, cardUpdateURL); err != nil {
		logger.Error("failed to publish failure notice", zap.Error(err))
	}

	return nil
}

// policyFor loads the tenant policy, falling back to the defaults when none
// is configured or the lookup fails mid-flight.
func (e *ChargeExecutor) policyFor(ctx context.Context, tenantID string) *domain.RetryPolicy {
	policy, err := e.policies.GetByTenant(ctx, tenantID)
	if err != nil || policy == nil || !policy.IsActive {
		return domain.DefaultRetryPolicy(tenantID)
	}
	return policy
}
