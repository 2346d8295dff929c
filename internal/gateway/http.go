package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boxibox/dunning-engine/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultChargeTimeout = 30 * time.Second

type chargeRequestBody struct {
	PaymentMethodID string `json:"paymentMethodId"`
	AmountCents     int64  `json:"amountCents"`
	Currency        string `json:"currency"`
	InvoiceID       string `json:"invoiceId"`
	TenantID        string `json:"tenantId"`
}

type chargeResponseBody struct {
	ChargeID    string `json:"chargeId"`
	Status      string `json:"status"`
	DeclineCode string `json:"declineCode"`
	Message     string `json:"message"`
}

// HTTPGateway charges cards through the payment gateway's REST API.
type HTTPGateway struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPGateway(endpoint string, apiKey string, timeout time.Duration) (*HTTPGateway, error) {
	if timeout <= 0 {
		timeout = defaultChargeTimeout
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(0)
	client.SetHeader("Authorization", "Bearer "+apiKey)

	return NewHTTPGatewayWithClient(endpoint, client)
}

func NewHTTPGatewayWithClient(endpoint string, client *resty.Client) (*HTTPGateway, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultChargeTimeout)
	}
	// Gateway calls must not be retried transparently; the engine owns retry
	// timing and the idempotency key makes explicit retries safe.
	client.SetRetryCount(0)

	return &HTTPGateway{
		client:   client,
		endpoint: strings.TrimSuffix(trimmedEndpoint, "/"),
	}, nil
}

func (g *HTTPGateway) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	if g == nil || g.client == nil {
		return nil, fmt.Errorf("gateway is not initialized")
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		return nil, fmt.Errorf("%w: payment method id is required", domain.ErrValidation)
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency key is required", domain.ErrValidation)
	}

	body := chargeRequestBody{
		PaymentMethodID: req.PaymentMethodID,
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		InvoiceID:       req.InvoiceID,
		TenantID:        req.TenantID,
	}

	response, err := g.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Idempotency-Key", req.IdempotencyKey).
		SetBody(body).
		Post(g.endpoint + "/charges")
	if err != nil {
		reason := domain.ReasonGatewayUnavailable
		if errors.Is(err, context.DeadlineExceeded) {
			reason = domain.ReasonGatewayTimeout
		}
		return nil, &TransientError{
			Reason:  reason,
			Message: "gateway request failed",
			Cause:   err,
		}
	}
	if response == nil {
		return nil, &TransientError{
			Reason:  domain.ReasonGatewayUnavailable,
			Message: "gateway returned empty response",
		}
	}

	statusCode := response.StatusCode()
	responseBody := response.Body()

	var parsed chargeResponseBody
	if len(responseBody) > 0 {
		// Decline payloads are JSON too; a parse failure falls through to the
		// status-code classification below.
		_ = json.Unmarshal(responseBody, &parsed)
	}

	switch {
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		return &ChargeResult{
			ChargeID:   parsed.ChargeID,
			StatusCode: statusCode,
			Body:       strings.TrimSpace(string(responseBody)),
		}, nil

	case statusCode == http.StatusPaymentRequired || statusCode == http.StatusUnprocessableEntity:
		reason, err := domain.ParseFailureReason(parsed.DeclineCode)
		if err != nil {
			reason = domain.ReasonDoNotHonor
		}
		return nil, &DeclinedError{
			Reason:     reason,
			StatusCode: statusCode,
			Message:    parsed.Message,
		}

	case statusCode == http.StatusTooManyRequests || statusCode >= http.StatusInternalServerError:
		return nil, &TransientError{
			Reason:     domain.ReasonGatewayUnavailable,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("gateway returned status %d", statusCode),
		}

	default:
		return nil, &DeclinedError{
			Reason:     domain.ReasonProcessingError,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("gateway returned status %d", statusCode),
		}
	}
}
