package domain

import (
	"fmt"
	"strings"
)

// FailureReason is the normalized decline or error code reported by the
// payment gateway for a failed charge.
type FailureReason string

const (
	ReasonInsufficientFunds FailureReason = "insufficient_funds"
	ReasonDoNotHonor        FailureReason = "do_not_honor"
	ReasonProcessingError   FailureReason = "processing_error"
	ReasonIssuerTimeout     FailureReason = "issuer_timeout"
	ReasonIncorrectCVC      FailureReason = "incorrect_cvc"

	ReasonExpiredCard  FailureReason = "expired_card"
	ReasonCardDeclined FailureReason = "card_declined"
	ReasonLostCard     FailureReason = "lost_card"
	ReasonStolenCard   FailureReason = "stolen_card"
	ReasonInvalidCard  FailureReason = "invalid_card"
	ReasonFraudulent   FailureReason = "fraudulent"

	// Transient outcomes where the gateway call itself failed and the charge
	// result is unknown. Attempts carrying these are flagged for manual
	// reconciliation.
	ReasonGatewayTimeout     FailureReason = "gateway_timeout"
	ReasonGatewayUnavailable FailureReason = "gateway_unavailable"
)

func (r FailureReason) String() string { return string(r) }

// hardDeclineReasons require payer action before a retry can succeed.
// A card-update token is issued alongside the next scheduled attempt.
var hardDeclineReasons = map[FailureReason]struct{}{
	ReasonExpiredCard:  {},
	ReasonCardDeclined: {},
	ReasonLostCard:     {},
	ReasonStolenCard:   {},
	ReasonInvalidCard:  {},
	ReasonFraudulent:   {},
}

// IsHardDecline reports whether the failure needs a new payment method.
func (r FailureReason) IsHardDecline() bool {
	_, ok := hardDeclineReasons[r]
	return ok
}

// IsTransient reports whether the charge outcome is unknown because the
// gateway call itself failed.
func (r FailureReason) IsTransient() bool {
	return r == ReasonGatewayTimeout || r == ReasonGatewayUnavailable
}

func ParseFailureReason(s string) (FailureReason, error) {
	reason := FailureReason(strings.ToLower(strings.TrimSpace(s)))
	if reason == "" {
		return "", fmt.Errorf("%w: failure reason is required", ErrValidation)
	}
	return reason, nil
}
