package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/boxibox/dunning-engine/internal/domain"
)

type fakeAcknowledger struct {
	acked    bool
	rejected bool
	requeued bool
	nacked   bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked = true
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked = true
	f.requeued = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.rejected = true
	f.requeued = requeue
	return nil
}

func validNoticeBody(t *testing.T) []byte {
	t.Helper()

	body, err := json.Marshal(DunningNoticeMessage{
		NoticeID:   "n1",
		Kind:       domain.NoticePaymentFailed,
		Priority:   domain.NoticePriorityNormal,
		TenantID:   "t1",
		CustomerID: "c1",
		InvoiceID:  "inv1",
	})
	if err != nil {
		t.Fatalf("marshal notice: %v", err)
	}
	return body
}

func TestHandleDeliveryAcksOnSuccess(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, Body: validNoticeBody(t)}

	handled := false
	err := consumer.handleDelivery(context.Background(), delivery, func(ctx context.Context, msg DunningNoticeMessage) error {
		handled = true
		if msg.NoticeID != "n1" {
			t.Fatalf("NoticeID = %s, want n1", msg.NoticeID)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("handleDelivery() error = %v", err)
	}
	if !handled {
		t.Fatal("handler was not invoked")
	}
	if !ack.acked || ack.nacked || ack.rejected {
		t.Fatalf("expected ack only, got %+v", ack)
	}
}

func TestHandleDeliveryRequeuesTransientFailure(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, Body: validNoticeBody(t)}

	err := consumer.handleDelivery(context.Background(), delivery, func(ctx context.Context, msg DunningNoticeMessage) error {
		return fmt.Errorf("webhook endpoint returned 503")
	})
	if err != nil {
		t.Fatalf("handleDelivery() error = %v", err)
	}
	if !ack.nacked || !ack.requeued {
		t.Fatalf("expected nack with requeue, got %+v", ack)
	}
	if ack.acked || ack.rejected {
		t.Fatalf("unexpected ack or reject: %+v", ack)
	}
}

func TestHandleDeliveryDeadLettersPermanentFailure(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())
	ack := &fakeAcknowledger{}
	delivery := amqp.Delivery{Acknowledger: ack, Body: validNoticeBody(t)}

	err := consumer.handleDelivery(context.Background(), delivery, func(ctx context.Context, msg DunningNoticeMessage) error {
		return fmt.Errorf("%w: endpoint returned 410", ErrPermanentDelivery)
	})
	if err != nil {
		t.Fatalf("handleDelivery() error = %v", err)
	}
	if !ack.rejected {
		t.Fatalf("expected reject, got %+v", ack)
	}
	if ack.requeued {
		t.Fatal("permanent failures must not be requeued")
	}
	if ack.acked || ack.nacked {
		t.Fatalf("unexpected ack or nack: %+v", ack)
	}
}

func TestHandleDeliveryRejectsMalformedMessages(t *testing.T) {
	t.Parallel()

	consumer := NewRabbitMQConsumer(&RabbitMQ{}, 1, zap.NewNop())

	tests := []struct {
		name string
		body []byte
	}{
		{name: "invalid json", body: []byte("{not json")},
		{name: "empty payload", body: []byte("{}")},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ack := &fakeAcknowledger{}
			delivery := amqp.Delivery{Acknowledger: ack, Body: tt.body}

			err := consumer.handleDelivery(context.Background(), delivery, func(ctx context.Context, msg DunningNoticeMessage) error {
				return errors.New("handler must not run")
			})
			if err != nil {
				t.Fatalf("handleDelivery() error = %v", err)
			}
			if !ack.rejected || ack.requeued {
				t.Fatalf("expected reject without requeue, got %+v", ack)
			}
		})
	}
}
