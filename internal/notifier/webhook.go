package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/boxibox/dunning-engine/internal/queue"
)

const defaultWebhookTimeout = 10 * time.Second

type webhookRequest struct {
	NoticeID      string `json:"noticeId"`
	Kind          string `json:"kind"`
	TenantID      string `json:"tenantId"`
	CustomerID    string `json:"customerId"`
	InvoiceID     string `json:"invoiceId"`
	Subject       string `json:"subject,omitempty"`
	Body          string `json:"body,omitempty"`
	CardUpdateURL string `json:"cardUpdateUrl,omitempty"`
}

// WebhookNotifier posts dunning notices to the tenant communication webhook.
type WebhookNotifier struct {
	client   *resty.Client
	endpoint string
}

func NewWebhookNotifier(endpoint string) (*WebhookNotifier, error) {
	client := resty.New()
	client.SetTimeout(defaultWebhookTimeout)
	client.SetRetryCount(0)

	return NewWebhookNotifierWithClient(endpoint, client)
}

func NewWebhookNotifierWithClient(endpoint string, client *resty.Client) (*WebhookNotifier, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("webhook endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid webhook endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultWebhookTimeout)
	}
	client.SetRetryCount(0)

	return &WebhookNotifier{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (n *WebhookNotifier) Send(ctx context.Context, notice queue.DunningNoticeMessage) (*NotifierResponse, error) {
	if n == nil || n.client == nil {
		return nil, fmt.Errorf("notifier is not initialized")
	}
	if err := notice.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dunning notice: %w", err)
	}

	reqBody := webhookRequest{
		NoticeID:      notice.NoticeID,
		Kind:          strings.ToLower(notice.Kind.String()),
		TenantID:      notice.TenantID,
		CustomerID:    notice.CustomerID,
		InvoiceID:     notice.InvoiceID,
		Subject:       notice.Subject,
		Body:          notice.Body,
		CardUpdateURL: notice.CardUpdateURL,
	}

	response, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(n.endpoint)
	if err != nil {
		return nil, &NotifyError{
			Message:   "webhook request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &NotifyError{
			Message:   "webhook returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &NotifierResponse{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  webhookMessageID(response),
		}, nil
	}

	return nil, &NotifyError{
		StatusCode: statusCode,
		Message:    webhookErrorMessage(statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func webhookErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("webhook returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func webhookMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Request-ID", "X-Request-Id", "X-Correlation-ID", "X-Correlation-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
