package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/boxibox/dunning-engine/internal/domain"
)

// DeclinedError is a definitive refusal from the gateway: the charge did not
// happen and carries a normalized decline reason.
type DeclinedError struct {
	Reason     domain.FailureReason
	StatusCode int
	Message    string
}

func (e *DeclinedError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 3)
	parts = append(parts, fmt.Sprintf("gateway declined: %s", e.Reason))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	return strings.Join(parts, ": ")
}

// TransientError means the gateway call itself failed and the charge outcome
// is unknown. Attempts failing this way are flagged for reconciliation.
type TransientError struct {
	Reason     domain.FailureReason
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransientError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("gateway transient: %s", e.Reason))
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *TransientError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// FailureReasonFromError normalizes a gateway error into a failure reason
// and whether the charge outcome is unknown.
func FailureReasonFromError(err error) (reason domain.FailureReason, transient bool) {
	var declined *DeclinedError
	if errors.As(err, &declined) {
		return declined.Reason, false
	}

	var trans *TransientError
	if errors.As(err, &trans) {
		return trans.Reason, true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ReasonGatewayTimeout, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ReasonGatewayTimeout, true
	}

	return domain.ReasonGatewayUnavailable, true
}
