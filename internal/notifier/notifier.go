package notifier

import (
	"context"

	"github.com/boxibox/dunning-engine/internal/queue"
)

// Notifier is the outbound notice delivery port.
type Notifier interface {
	Send(ctx context.Context, notice queue.DunningNoticeMessage) (*NotifierResponse, error)
}

// NotifierResponse stores delivery call metadata for audit and logging.
type NotifierResponse struct {
	StatusCode int
	Body       string
	MessageID  string
}
