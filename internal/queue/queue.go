package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boxibox/dunning-engine/internal/domain"
)

// ErrPermanentDelivery signals that a message can never be delivered and
// should be dead-lettered instead of requeued. Handlers wrap it with %w.
var ErrPermanentDelivery = errors.New("permanent delivery failure")

// Publisher publishes dunning notice messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DunningNoticeMessage) error
	Close() error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DunningNoticeMessage) error

// Consumer consumes dunning notice messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

var supportedNoticeKinds = []domain.NoticeKind{
	domain.NoticePaymentFailed,
	domain.NoticeRetryReminder,
	domain.NoticeCardUpdateRequest,
	domain.NoticeFinalNotice,
	domain.NoticePaymentRecovered,
	domain.NoticeAdminAlert,
}

const (
	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = 3
)

// QueueName returns the work queue name for a notice kind, e.g. final_notice.
func QueueName(kind domain.NoticeKind) string {
	return strings.ToLower(kind.String())
}

// DLQName returns the dead-letter queue name for a notice kind,
// e.g. dlq.final_notice.
func DLQName(kind domain.NoticeKind) string {
	return fmt.Sprintf("dlq.%s", QueueName(kind))
}

// WorkQueueNames returns all notice work queues, one per kind.
func WorkQueueNames() []string {
	queues := make([]string, 0, len(supportedNoticeKinds))
	for _, kind := range supportedNoticeKinds {
		queues = append(queues, QueueName(kind))
	}
	return queues
}

// DLQNames returns all dead-letter queues, one per work queue.
func DLQNames() []string {
	queues := make([]string, 0, len(supportedNoticeKinds))
	for _, kind := range supportedNoticeKinds {
		queues = append(queues, DLQName(kind))
	}
	return queues
}

// PriorityValue maps notice priority to RabbitMQ message priority.
func PriorityValue(priority domain.NoticePriority) uint8 {
	switch priority {
	case domain.NoticePriorityHigh:
		return 3
	case domain.NoticePriorityNormal:
		return 2
	case domain.NoticePriorityLow:
		return 1
	default:
		return 0
	}
}
