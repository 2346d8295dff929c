package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/queue"
)

// EscalationEngine turns chain events into dunning notices and applies the
// policy's final consequence once a chain is exhausted.
type EscalationEngine struct {
	invoicing     invoicing.Client
	publisher     queue.Publisher
	publicBaseURL string
	logger        *zap.Logger
	metrics       *observability.Metrics
	now           func() time.Time
}

func NewEscalationEngine(
	invoicingClient invoicing.Client,
	publisher queue.Publisher,
	publicBaseURL string,
	logger *zap.Logger,
) (*EscalationEngine, error) {
	if invoicingClient == nil {
		return nil, fmt.Errorf("invoicing client is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if strings.TrimSpace(publicBaseURL) == "" {
		return nil, fmt.Errorf("public base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &EscalationEngine{
		invoicing:     invoicingClient,
		publisher:     publisher,
		publicBaseURL: strings.TrimSuffix(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
		now:           time.Now,
	}, nil
}

func (e *EscalationEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// CardUpdateURL builds the externally reachable single-use card update link.
func (e *EscalationEngine) CardUpdateURL(token string) string {
	return fmt.Sprintf("%s/card-update/%s", e.publicBaseURL, token)
}

// PublishFailureNotice sends the staged escalation message for a failed
// attempt. When a card update link is provided the notice is the urgent
// card_update_request kind instead of a plain payment_failed.
func (e *EscalationEngine) PublishFailureNotice(
	ctx context.Context,
	policy *domain.RetryPolicy,
	attempt *domain.RetryAttempt,
	cardUpdateURL string,
) error {
	if policy == nil || attempt == nil {
		return fmt.Errorf("%w: policy and attempt are required", domain.ErrValidation)
	}
	if !policy.NotifyCustomerAfterFailure {
		return nil
	}

	kind := domain.NoticePaymentFailed
	if cardUpdateURL != "" {
		kind = domain.NoticeCardUpdateRequest
	}

	msg, _ := policy.MessageForStage(attempt.AttemptNumber)
	return e.publish(ctx, queue.DunningNoticeMessage{
		NoticeID:      uuid.NewString(),
		Kind:          kind,
		Priority:      domain.PriorityForNotice(kind),
		TenantID:      attempt.TenantID,
		CustomerID:    attempt.CustomerID,
		InvoiceID:     attempt.InvoiceID,
		AttemptID:     attempt.ID,
		Subject:       msg.Subject,
		Body:          msg.Body,
		CardUpdateURL: cardUpdateURL,
	})
}

// PublishRecoveryNotice confirms a recovered payment to the customer.
func (e *EscalationEngine) PublishRecoveryNotice(
	ctx context.Context,
	policy *domain.RetryPolicy,
	attempt *domain.RetryAttempt,
) error {
	if policy == nil || attempt == nil {
		return fmt.Errorf("%w: policy and attempt are required", domain.ErrValidation)
	}
	if !policy.NotifyCustomerAfterSuccess {
		return nil
	}

	return e.publish(ctx, queue.DunningNoticeMessage{
		NoticeID:   uuid.NewString(),
		Kind:       domain.NoticePaymentRecovered,
		Priority:   domain.PriorityForNotice(domain.NoticePaymentRecovered),
		TenantID:   attempt.TenantID,
		CustomerID: attempt.CustomerID,
		InvoiceID:  attempt.InvoiceID,
		AttemptID:  attempt.ID,
		Subject:    "Payment received",
		Body:       "Your outstanding invoice has been paid. Thank you.",
	})
}

// PublishReminder warns the customer shortly before an upcoming retry.
func (e *EscalationEngine) PublishReminder(
	ctx context.Context,
	policy *domain.RetryPolicy,
	attempt *domain.RetryAttempt,
) error {
	if policy == nil || attempt == nil {
		return fmt.Errorf("%w: policy and attempt are required", domain.ErrValidation)
	}
	if !policy.NotifyCustomerBefore {
		return nil
	}

	body := "We will retry the payment for your outstanding invoice soon. Make sure your payment method is up to date."
	return e.publish(ctx, queue.DunningNoticeMessage{
		NoticeID:   uuid.NewString(),
		Kind:       domain.NoticeRetryReminder,
		Priority:   domain.PriorityForNotice(domain.NoticeRetryReminder),
		TenantID:   attempt.TenantID,
		CustomerID: attempt.CustomerID,
		InvoiceID:  attempt.InvoiceID,
		AttemptID:  attempt.ID,
		Subject:    "Upcoming payment retry",
		Body:       body,
	})
}

// ApplyFinalAction marks the invoice overdue, applies the configured
// consequence, and sends the final notice, plus an admin alert when the
// policy requests one. Suspension is deferred by the policy's grace period.
func (e *EscalationEngine) ApplyFinalAction(
	ctx context.Context,
	policy *domain.RetryPolicy,
	attempt *domain.RetryAttempt,
) error {
	if policy == nil || attempt == nil {
		return fmt.Errorf("%w: policy and attempt are required", domain.ErrValidation)
	}

	if err := e.invoicing.MarkInvoiceOverdue(ctx, attempt.TenantID, attempt.InvoiceID); err != nil {
		return fmt.Errorf("failed to mark invoice overdue: %w", err)
	}

	switch policy.FinalFailureAction {
	case domain.ActionSuspend:
		suspendAt := e.now().UTC().AddDate(0, 0, policy.GracePeriodDays)
		if err := e.invoicing.SuspendCustomer(ctx, attempt.TenantID, attempt.CustomerID, suspendAt); err != nil {
			return fmt.Errorf("failed to schedule suspension: %w", err)
		}
	case domain.ActionDowngrade:
		if err := e.invoicing.DowngradeCustomer(ctx, attempt.TenantID, attempt.CustomerID); err != nil {
			return fmt.Errorf("failed to downgrade customer: %w", err)
		}
	case domain.ActionNone:
	}

	if e.metrics != nil {
		e.metrics.IncChainExhausted(policy.FinalFailureAction.String())
	}

	if policy.NotifyAdminAfterFailures {
		if err := e.publishAdminAlert(ctx, policy, attempt); err != nil {
			// The customer-facing final notice still has to go out.
			e.logger.Error("failed to publish admin alert",
				zap.String("invoiceId", attempt.InvoiceID),
				zap.Error(err),
			)
		}
	}

	msg, _ := policy.MessageForStage(attempt.AttemptNumber)
	if msg.Subject == "" {
		msg = domain.EscalationMessage{
			Subject: "Final notice - payment could not be collected",
			Body:    "All payment attempts for your invoice have failed.",
		}
	}

	return e.publish(ctx, queue.DunningNoticeMessage{
		NoticeID:   uuid.NewString(),
		Kind:       domain.NoticeFinalNotice,
		Priority:   domain.PriorityForNotice(domain.NoticeFinalNotice),
		TenantID:   attempt.TenantID,
		CustomerID: attempt.CustomerID,
		InvoiceID:  attempt.InvoiceID,
		AttemptID:  attempt.ID,
		Subject:    msg.Subject,
		Body:       msg.Body,
	})
}

// publishAdminAlert tells the tenant's operators that a chain ran out of
// retries and what consequence was applied.
func (e *EscalationEngine) publishAdminAlert(
	ctx context.Context,
	policy *domain.RetryPolicy,
	attempt *domain.RetryAttempt,
) error {
	body := fmt.Sprintf(
		"All %d payment attempts for invoice %s failed. Applied action: %s.",
		attempt.AttemptNumber, attempt.InvoiceID, policy.FinalFailureAction.String(),
	)
	return e.publish(ctx, queue.DunningNoticeMessage{
		NoticeID:   uuid.NewString(),
		Kind:       domain.NoticeAdminAlert,
		Priority:   domain.PriorityForNotice(domain.NoticeAdminAlert),
		TenantID:   attempt.TenantID,
		CustomerID: attempt.CustomerID,
		InvoiceID:  attempt.InvoiceID,
		AttemptID:  attempt.ID,
		Subject:    "Retry chain exhausted",
		Body:       body,
	})
}

func (e *EscalationEngine) publish(ctx context.Context, msg queue.DunningNoticeMessage) error {
	if sweepID, ok := observability.SweepIDFromContext(ctx); ok {
		msg.CorrelationID = sweepID
	}

	queueName := queue.QueueName(msg.Kind)
	if err := e.publisher.Publish(ctx, queueName, msg); err != nil {
		e.logger.Error("failed to publish dunning notice",
			zap.String("noticeId", msg.NoticeID),
			zap.String("kind", msg.Kind.String()),
			zap.String("invoiceId", msg.InvoiceID),
			zap.Error(err),
		)
		return err
	}

	if e.metrics != nil {
		e.metrics.IncNoticePublished(msg.Kind.String())
	}
	return nil
}
