package gateway

import "context"

// Gateway is the outbound payment charging port. The executor is the only
// caller.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}

// ChargeRequest carries everything the gateway needs to move money. The
// idempotency key is derived from the attempt ID so a retried HTTP call for
// the same attempt cannot double-charge.
type ChargeRequest struct {
	TenantID        string
	InvoiceID       string
	PaymentMethodID string
	AmountCents     int64
	Currency        string
	IdempotencyKey  string
}

// ChargeResult stores the successful charge metadata for audit.
type ChargeResult struct {
	ChargeID   string
	StatusCode int
	Body       string
}

// IdempotencyKey derives the per-attempt key sent to the gateway.
func IdempotencyKey(attemptID string) string {
	return "dunning-" + attemptID
}
