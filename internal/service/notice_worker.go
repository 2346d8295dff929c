package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/boxibox/dunning-engine/internal/notifier"
	"github.com/boxibox/dunning-engine/internal/observability"
	"github.com/boxibox/dunning-engine/internal/queue"
)

const minNoticeWorkerConcurrency = 1

// NoticeWorker drains the per-kind notice queues and delivers each message
// through the outbound notifier. Transient delivery failures requeue;
// permanent ones dead-letter.
type NoticeWorker struct {
	consumer    queue.Consumer
	notifier    notifier.Notifier
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
}

func NewNoticeWorker(
	consumer queue.Consumer,
	outbound notifier.Notifier,
	concurrency int,
	logger *zap.Logger,
) (*NoticeWorker, error) {
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if outbound == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if concurrency < minNoticeWorkerConcurrency {
		concurrency = minNoticeWorkerConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NoticeWorker{
		consumer:    consumer,
		notifier:    outbound,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

func (w *NoticeWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

// Start consumes the notice queues until context cancellation.
func (w *NoticeWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("notice worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.deliverNotice)
			if err != nil {
				w.logger.Error("notice worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("notice worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

func (w *NoticeWorker) deliverNotice(ctx context.Context, msg queue.DunningNoticeMessage) error {
	start := time.Now()
	resp, err := w.notifier.Send(ctx, msg)
	if err != nil {
		if notifier.IsTransient(err) {
			w.logger.Warn("notice delivery failed, requeueing",
				zap.String("noticeId", msg.NoticeID),
				zap.String("kind", msg.Kind.String()),
				zap.Error(err),
			)
			if w.metrics != nil {
				w.metrics.IncNoticeDelivered(msg.Kind.String(), "transient_failure")
			}
			return err
		}

		w.logger.Error("notice delivery failed permanently",
			zap.String("noticeId", msg.NoticeID),
			zap.String("kind", msg.Kind.String()),
			zap.Error(err),
		)
		if w.metrics != nil {
			w.metrics.IncNoticeDelivered(msg.Kind.String(), "permanent_failure")
		}
		return fmt.Errorf("%w: %w", queue.ErrPermanentDelivery, err)
	}

	if w.metrics != nil {
		w.metrics.IncNoticeDelivered(msg.Kind.String(), "delivered")
	}

	fields := []zap.Field{
		zap.String("noticeId", msg.NoticeID),
		zap.String("kind", msg.Kind.String()),
		zap.Duration("duration", time.Since(start)),
	}
	if resp != nil && resp.MessageID != "" {
		fields = append(fields, zap.String("messageId", resp.MessageID))
	}
	w.logger.Info("notice delivered", fields...)

	return nil
}
