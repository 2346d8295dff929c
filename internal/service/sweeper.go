package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/repository"
)

const (
	defaultSweepInterval    = 2 * time.Minute
	defaultSweepBatchLimit  = 100
	defaultSweepConcurrency = 8

	// maxReminderWindow matches the policy bound on NotifyHoursBefore; the
	// coarse query uses it, the per-tenant check narrows it.
	maxReminderWindow = 72 * time.Hour
)

// AttemptExecutor runs one due attempt to completion.
type AttemptExecutor interface {
	Execute(ctx context.Context, attemptID string) error
}

// ReminderPublisher sends the pre-retry reminder notice.
type ReminderPublisher interface {
	PublishReminder(ctx context.Context, policy *domain.RetryPolicy, attempt *domain.RetryAttempt) error
}

// Sweeper periodically picks up due attempts and hands them to the executor,
// and sends pre-retry reminders. It is safe to run on several instances at
// once; the executor's claim makes duplicate pickups harmless.
type Sweeper struct {
	attempts    repository.AttemptRepository
	policies    repository.PolicyRepository
	executor    AttemptExecutor
	reminders   ReminderPublisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	interval    time.Duration
	limit       int
	concurrency int
	now         func() time.Time
}

func NewSweeper(
	attempts repository.AttemptRepository,
	policies repository.PolicyRepository,
	executor AttemptExecutor,
	reminders ReminderPublisher,
	interval time.Duration,
	limit int,
	concurrency int,
	logger *zap.Logger,
) (*Sweeper, error) {
	if attempts == nil {
		return nil, fmt.Errorf("attempt repository is required")
	}
	if policies == nil {
		return nil, fmt.Errorf("policy repository is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if reminders == nil {
		return nil, fmt.Errorf("reminder publisher is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if limit <= 0 {
		limit = defaultSweepBatchLimit
	}
	if concurrency <= 0 {
		concurrency = defaultSweepConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		attempts:    attempts,
		policies:    policies,
		executor:    executor,
		reminders:   reminders,
		logger:      logger,
		interval:    interval,
		limit:       limit,
		concurrency: concurrency,
		now:         time.Now,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *Sweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// Run an initial sweep so already-due attempts do not wait for the
	// first ticker edge.
	if err := s.sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("initial sweep failed", zap.Error(err))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) error {
	start := s.now()
	ctx = observability.WithSweepID(ctx, uuid.NewString())
	logger := observability.SweepLogger(s.logger, ctx)

	claimed, err := s.sweepDue(ctx)
	if err != nil {
		return err
	}

	if err := s.sweepReminders(ctx); err != nil {
		logger.Error("reminder sweep failed", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(s.now().Sub(start), claimed)
	}
	return nil
}

func (s *Sweeper) sweepDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.attempts.GetDueForProcessing(ctx, now, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch due attempts: %w", err)
	}
	if len(due) == 0 {
		return 0, nil
	}

	logger := observability.SweepLogger(s.logger, ctx)
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range due {
		attemptID := due[i].ID
		g.Go(func() error {
			if err := s.executor.Execute(groupCtx, attemptID); err != nil {
				logger.Error("attempt execution failed",
					zap.String("attemptId", attemptID),
					zap.Error(err),
				)
			}
			// Per-attempt failures must not cancel the rest of the batch.
			return nil
		})
	}

	_ = g.Wait()
	return len(due), nil
}

func (s *Sweeper) sweepReminders(ctx context.Context) error {
	now := s.now().UTC()
	candidates, err := s.attempts.GetDueForReminder(ctx, now.Add(maxReminderWindow), s.limit)
	if err != nil {
		return fmt.Errorf("failed to fetch reminder candidates: %w", err)
	}

	logger := observability.SweepLogger(s.logger, ctx)
	for i := range candidates {
		attempt := candidates[i]
		if attempt.ScheduledAt == nil {
			continue
		}

		policy, err := s.policies.GetByTenant(ctx, attempt.TenantID)
		if err != nil || policy == nil {
			continue
		}
		if !policy.NotifyCustomerBefore {
			continue
		}

		window := time.Duration(policy.NotifyHoursBefore) * time.Hour
		if attempt.ScheduledAt.After(now.Add(window)) {
			continue
		}

		if err := s.reminders.PublishReminder(ctx, policy, &attempt); err != nil {
			logger.Error("failed to publish retry reminder",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
			continue
		}
		if err := s.attempts.MarkReminderSent(ctx, attempt.ID); err != nil {
			logger.Error("failed to mark reminder sent",
				zap.String("attemptId", attempt.ID),
				zap.Error(err),
			)
		}
	}

	return nil
}
