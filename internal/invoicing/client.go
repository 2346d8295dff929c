package invoicing

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultRequestTimeout = 10 * time.Second

// Client is the port to the invoicing system. The engine calls it on chain
// outcomes; the invoicing system owns invoice and account state.
type Client interface {
	RecordPayment(ctx context.Context, payment PaymentRecord) error
	MarkInvoiceOverdue(ctx context.Context, tenantID string, invoiceID string) error
	SuspendCustomer(ctx context.Context, tenantID string, customerID string, suspendAt time.Time) error
	DowngradeCustomer(ctx context.Context, tenantID string, customerID string) error
	UpdatePaymentMethod(ctx context.Context, tenantID string, customerID string, paymentMethodID string) error
}

// PaymentRecord is the "payment recorded" callback payload.
type PaymentRecord struct {
	TenantID        string    `json:"tenantId"`
	CustomerID      string    `json:"customerId"`
	InvoiceID       string    `json:"invoiceId"`
	AmountCents     int64     `json:"amountCents"`
	Currency        string    `json:"currency"`
	GatewayChargeID string    `json:"gatewayChargeId,omitempty"`
	PaidAt          time.Time `json:"paidAt"`
}

// HTTPClient talks to the invoicing system's internal REST API.
type HTTPClient struct {
	client   *resty.Client
	endpoint string
}

func NewHTTPClient(endpoint string) (*HTTPClient, error) {
	client := resty.New()
	client.SetTimeout(defaultRequestTimeout)
	client.SetRetryCount(0)

	return NewHTTPClientWithClient(endpoint, client)
}

func NewHTTPClientWithClient(endpoint string, client *resty.Client) (*HTTPClient, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("invoicing endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid invoicing endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	return &HTTPClient{
		client:   client,
		endpoint: strings.TrimSuffix(trimmedEndpoint, "/"),
	}, nil
}

func (c *HTTPClient) RecordPayment(ctx context.Context, payment PaymentRecord) error {
	return c.post(ctx, "/internal/payments", payment)
}

func (c *HTTPClient) MarkInvoiceOverdue(ctx context.Context, tenantID string, invoiceID string) error {
	return c.post(ctx, "/internal/invoices/overdue", map[string]string{
		"tenantId":  tenantID,
		"invoiceId": invoiceID,
	})
}

func (c *HTTPClient) SuspendCustomer(ctx context.Context, tenantID string, customerID string, suspendAt time.Time) error {
	return c.post(ctx, "/internal/customers/suspend", map[string]any{
		"tenantId":   tenantID,
		"customerId": customerID,
		"suspendAt":  suspendAt.UTC().Format(time.RFC3339),
	})
}

func (c *HTTPClient) DowngradeCustomer(ctx context.Context, tenantID string, customerID string) error {
	return c.post(ctx, "/internal/customers/downgrade", map[string]string{
		"tenantId":   tenantID,
		"customerId": customerID,
	})
}

func (c *HTTPClient) UpdatePaymentMethod(ctx context.Context, tenantID string, customerID string, paymentMethodID string) error {
	return c.post(ctx, "/internal/customers/payment-method", map[string]string{
		"tenantId":        tenantID,
		"customerId":      customerID,
		"paymentMethodId": paymentMethodID,
	})
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("invoicing client is not initialized")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body).
		Post(c.endpoint + path)
	if err != nil {
		return fmt.Errorf("invoicing request failed: %w", err)
	}
	if response.IsError() {
		return fmt.Errorf("invoicing returned status %d: %s", response.StatusCode(), strings.TrimSpace(response.String()))
	}
	return nil
}
