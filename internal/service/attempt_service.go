package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/repository"
)

// StartChainRequest registers an invoice whose original charge failed and
// opens its retry chain.
type StartChainRequest struct {
	TenantID        string
	CustomerID      string
	InvoiceID       string
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	FailureReason   string
	FailedAt        *time.Time
}

type AttemptService struct {
	attempts   repository.AttemptRepository
	policies   repository.PolicyRepository
	analytics  repository.AnalyticsRepository
	scheduler  *RetryScheduler
	escalation *EscalationEngine
	logger     *zap.Logger
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewAttemptService(
	attempts repository.AttemptRepository,
	policies repository.PolicyRepository,
	analytics repository.AnalyticsRepository,
	scheduler *RetryScheduler,
	escalation *EscalationEngine,
	logger *zap.Logger,
) (*AttemptService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy repository is required")
	}
	if scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if escalation == nil {
		return nil, fmt.Errorf("escalation engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AttemptService{
		attempts:   attempts,
		policies:   policies,
		analytics:  analytics,
		scheduler:  scheduler,
		escalation: escalation,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *AttemptService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// StartChain creates attempt number one of an invoice's retry chain and
// records the original failure in the analytics aggregates. An invoice with
// an active attempt cannot open a second chain.
func (s *AttemptService) StartChain(ctx context.Context, req StartChainRequest) (*domain.RetryAttempt, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	reason, err := domain.ParseFailureReason(req.FailureReason)
	if err != nil {
		return nil, err
	}

	failedAt := s.now().UTC()
	if req.FailedAt != nil {
		failedAt = req.FailedAt.UTC()
	}

	active, err := s.attempts.HasActiveForInvoice(ctx, strings.TrimSpace(req.InvoiceID))
	if err != nil {
		return nil, fmt.Errorf("failed to check active attempts: %w", err)
	}
	if active {
		return nil, fmt.Errorf("%w: invoice %s already has an active retry chain",
			domain.ErrStateConflict, req.InvoiceID)
	}

	policy := s.policyFor(ctx, req.TenantID)

	scheduledAt, err := s.scheduler.NextRetryTime(ctx, policy, reason, failedAt, 1)
	if err != nil {
		return nil, err
	}

	attempt := &domain.RetryAttempt{
		ID:              uuid.NewString(),
		TenantID:        strings.TrimSpace(req.TenantID),
		CustomerID:      strings.TrimSpace(req.CustomerID),
		InvoiceID:       strings.TrimSpace(req.InvoiceID),
		AmountCents:     req.AmountCents,
		Currency:        normalizeCurrency(req.Currency),
		PaymentMethodID: strings.TrimSpace(req.PaymentMethodID),
		Status:          domain.StatusScheduled,
		AttemptNumber:   1,
		MaxAttempts:     policy.MaxRetries,
		ScheduledAt:     &scheduledAt,
	}

	cardUpdateURL := ""
	if reason.IsHardDecline() && policy.AllowCardUpdate {
		token, tokenErr := domain.NewCardUpdateToken()
		if tokenErr != nil {
			return nil, fmt.Errorf("failed to generate card update token: %w", tokenErr)
		}
		expiresAt := failedAt.Add(time.Duration(policy.CardUpdateLinkExpiryHours) * time.Hour)
		attempt.CardUpdateToken = &token
		attempt.CardUpdateTokenExpiresAt = &expiresAt
		cardUpdateURL = s.escalation.CardUpdateURL(token)
	}

	if err := attempt.Validate(); err != nil {
		return nil, err
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		// Two concurrent starts for the same invoice race past the active
		// check; the partial unique index settles it.
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%w: invoice %s already has an active retry chain",
				domain.ErrStateConflict, req.InvoiceID)
		}
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncRetryScheduled(1)
	}

	if s.analytics != nil {
		record := domain.NewFailureAnalyticsRecord(attempt, reason, failedAt)
		record.ID = uuid.NewString()
		if err := s.analytics.Create(ctx, record); err != nil {
			s.logger.Error("failed to record failure analytics",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("retry chain started",
		zap.String("attemptId", attempt.ID),
		zap.String("invoiceId", attempt.InvoiceID),
		zap.String("reason", reason.String()),
		zap.Time("scheduledAt", scheduledAt),
	)

	if err := s.escalation.PublishFailureNotice(ctx, policy, attempt, cardUpdateURL); err != nil {
		s.logger.Error("failed to publish initial failure notice",
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
	}

	return attempt, nil
}

func (s *AttemptService) GetByID(ctx context.Context, id string) (*domain.RetryAttempt, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	return s.attempts.GetByID(ctx, strings.TrimSpace(id))
}

func (s *AttemptService) List(ctx context.Context, params repository.ListParams) ([]domain.RetryAttempt, int64, error) {
	return s.attempts.List(ctx, params)
}

// ListChain returns the full history of an invoice's attempts in order.
func (s *AttemptService) ListChain(ctx context.Context, invoiceID string) ([]domain.RetryAttempt, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return nil, fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	return s.attempts.ListChain(ctx, strings.TrimSpace(invoiceID))
}

// Cancel stops a single pending or scheduled attempt. Attempts that are
// processing or terminal cannot be cancelled.
func (s *AttemptService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	return s.attempts.Cancel(ctx, strings.TrimSpace(id))
}

// CancelChain stops every cancellable attempt of an invoice, for example
// after an out-of-band payment.
func (s *AttemptService) CancelChain(ctx context.Context, invoiceID string) (int64, error) {
	if strings.TrimSpace(invoiceID) == "" {
		return 0, fmt.Errorf("%w: invoice id is required", domain.ErrValidation)
	}
	return s.attempts.CancelActiveForInvoice(ctx, strings.TrimSpace(invoiceID), "")
}

// RetryNow pulls a pending or scheduled attempt forward so the next sweep
// executes it immediately.
func (s *AttemptService) RetryNow(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	return s.attempts.Reschedule(ctx, strings.TrimSpace(id), s.now().UTC())
}

// Reschedule moves a pending or scheduled attempt to an operator-chosen
// time.
func (s *AttemptService) Reschedule(ctx context.Context, id string, at time.Time) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: attempt id is required", domain.ErrValidation)
	}
	if !at.After(s.now()) {
		return fmt.Errorf("%w: reschedule time must be in the future", domain.ErrValidation)
	}
	return s.attempts.Reschedule(ctx, strings.TrimSpace(id), at.UTC())
}

func (s *AttemptService) Stats(ctx context.Context, tenantID string, since time.Time) (*repository.DashboardStats, error) {
	if strings.TrimSpace(tenantID) == "" {
		return nil, fmt.Errorf("%w: tenant id is required", domain.ErrValidation)
	}
	return s.attempts.Stats(ctx, strings.TrimSpace(tenantID), since)
}

func (s *AttemptService) policyFor(ctx context.Context, tenantID string) *domain.RetryPolicy {
	policy, err := s.policies.GetByTenant(ctx, tenantID)
	if err != nil || policy == nil || !policy.IsActive {
		return domain.DefaultRetryPolicy(tenantID)
	}
	return policy
}

func normalizeCurrency(currency string) string {
	normalized := strings.ToUpper(strings.TrimSpace(currency))
	if normalized == "" {
		return "EUR"
	}
	return normalized
}

func isUniqueViolationError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
