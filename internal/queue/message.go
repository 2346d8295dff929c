package queue

import (
	"fmt"
	"strings"

	"github.com/boxibox/dunning-engine/internal/domain"
)

// DunningNoticeMessage is the broker payload for notice delivery.
type DunningNoticeMessage struct {
	NoticeID      string                `json:"noticeId"`
	CorrelationID string                `json:"correlationId,omitempty"`
	Kind          domain.NoticeKind     `json:"kind"`
	Priority      domain.NoticePriority `json:"priority"`

	TenantID      string `json:"tenantId"`
	CustomerID    string `json:"customerId"`
	InvoiceID     string `json:"invoiceId"`
	AttemptID     string `json:"attemptId,omitempty"`
	Subject       string `json:"subject,omitempty"`
	Body          string `json:"body,omitempty"`
	CardUpdateURL string `json:"cardUpdateUrl,omitempty"`
}

func (m DunningNoticeMessage) Validate() error {
	if strings.TrimSpace(m.NoticeID) == "" {
		return fmt.Errorf("noticeId is required")
	}
	if !m.Kind.IsValid() {
		return fmt.Errorf("invalid notice kind %q", m.Kind)
	}
	if !m.Priority.IsValid() {
		return fmt.Errorf("invalid priority %q", m.Priority)
	}
	if strings.TrimSpace(m.TenantID) == "" {
		return fmt.Errorf("tenantId is required")
	}
	if strings.TrimSpace(m.CustomerID) == "" {
		return fmt.Errorf("customerId is required")
	}
	if strings.TrimSpace(m.InvoiceID) == "" {
		return fmt.Errorf("invoiceId is required")
	}
	return nil
}
