package domain

// NoticeKind identifies the kind of dunning notice delivered to the customer
// communication pipeline.
type NoticeKind string

const (
	NoticePaymentFailed     NoticeKind = "payment_failed"
	NoticeRetryReminder     NoticeKind = "retry_reminder"
	NoticeCardUpdateRequest NoticeKind = "card_update_request"
	NoticeFinalNotice       NoticeKind = "final_notice"
	NoticePaymentRecovered  NoticeKind = "payment_recovered"
	NoticeAdminAlert        NoticeKind = "admin_alert"
)

func (k NoticeKind) String() string {
	return string(k)
}

func (k NoticeKind) IsValid() bool {
	switch k {
	case NoticePaymentFailed, NoticeRetryReminder, NoticeCardUpdateRequest,
		NoticeFinalNotice, NoticePaymentRecovered, NoticeAdminAlert:
		return true
	default:
		return false
	}
}

// NoticePriority orders notice delivery when the pipeline is saturated.
type NoticePriority string

const (
	NoticePriorityHigh   NoticePriority = "HIGH"
	NoticePriorityNormal NoticePriority = "NORMAL"
	NoticePriorityLow    NoticePriority = "LOW"
)

func (p NoticePriority) IsValid() bool {
	switch p {
	case NoticePriorityHigh, NoticePriorityNormal, NoticePriorityLow:
		return true
	default:
		return false
	}
}

// PriorityForNotice maps a notice kind to its delivery priority. Final
// notices, card update requests, and admin alerts are time sensitive;
// recovery confirmations are not.
func PriorityForNotice(kind NoticeKind) NoticePriority {
	switch kind {
	case NoticeFinalNotice, NoticeCardUpdateRequest, NoticeAdminAlert:
		return NoticePriorityHigh
	case NoticePaymentFailed, NoticeRetryReminder:
		return NoticePriorityNormal
	default:
		return NoticePriorityLow
	}
}
