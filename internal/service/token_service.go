package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/invoicing"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/repository"
)

// CardUpdateService resolves single-use card update tokens. Consuming a
// token swaps the payment method and pulls the bound attempt forward to an
// immediate retry.
type CardUpdateService struct {
	attempts  repository.AttemptRepository
	invoicing invoicing.Client
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewCardUpdateService(
	attempts repository.AttemptRepository,
	invoicingClient invoicing.Client,
	logger *zap.Logger,
) (*CardUpdateService, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if invoicingClient == nil {
		return nil, fmt.Errorf("invoicing client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CardUpdateService{
		attempts:  attempts,
		invoicing: invoicingClient,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *CardUpdateService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Inspect resolves a token without consuming it, for rendering the card
// update form.
func (s *CardUpdateService) Inspect(ctx context.Context, token string) (*domain.RetryAttempt, error) {
	attempt, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

// Consume burns the token, binds the new payment method, and reschedules the
// attempt for an immediate retry. A second consume of the same token fails
// with ErrTokenUsed no matter how the calls interleave; a consume against an
// attempt that already left the waiting states fails with ErrStateConflict.
func (s *CardUpdateService) Consume(ctx context.Context, token string, paymentMethodID string) (*domain.RetryAttempt, error) {
	paymentMethodID = strings.TrimSpace(paymentMethodID)
	if paymentMethodID == "" {
		return nil, fmt.Errorf("%w: payment method id is required", domain.ErrValidation)
	}

	attempt, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	consumed, err := s.attempts.ConsumeCardUpdateToken(ctx, attempt.ID, paymentMethodID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to consume card update token: %w", err)
	}
	if !consumed {
		return nil, s.consumeConflict(ctx, attempt.ID)
	}

	if s.metrics != nil {
		s.metrics.IncCardUpdate()
	}
	s.logger.Info("card update token consumed",
		zap.String("attemptId", attempt.ID),
		zap.String("invoiceId", attempt.InvoiceID),
	)

	// Propagate the new card to the invoicing system so future invoices
	// charge the right method. Best effort; the retry itself already uses
	// the new method.
	if err := s.invoicing.UpdatePaymentMethod(ctx, attempt.TenantID, attempt.CustomerID, paymentMethodID); err != nil {
		s.logger.Error("failed to propagate payment method update",
			zap.String("attemptId", attempt.ID),
			zap.Error(err),
		)
	}

	return s.attempts.GetByID(ctx, attempt.ID)
}

// consumeConflict classifies a consume that matched no row. Either a
// concurrent consume burned the token first, or the attempt has since left
// the waiting states, in which case swapping the card cannot reschedule it.
func (s *CardUpdateService) consumeConflict(ctx context.Context, id string) error {
	attempt, err := s.attempts.GetByID(ctx, id)
	if err != nil {
		return domain.ErrTokenUsed
	}
	if attempt.CardUpdateTokenUsed {
		return domain.ErrTokenUsed
	}
	switch attempt.Status {
	case domain.StatusPending, domain.StatusScheduled:
		return domain.ErrTokenUsed
	default:
		return fmt.Errorf("%w: attempt %s is %s", domain.ErrStateConflict, id, attempt.Status)
	}
}

func (s *CardUpdateService) resolve(ctx context.Context, token string) (*domain.RetryAttempt, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrTokenNotFound
	}

	attempt, err := s.attempts.GetByCardUpdateToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if attempt.CardUpdateTokenUsed {
		return nil, domain.ErrTokenUsed
	}
	if attempt.CardUpdateTokenExpiresAt == nil || !attempt.CardUpdateTokenExpiresAt.After(s.now().UTC()) {
		return nil, domain.ErrTokenExpired
	}

	return attempt, nil
}
