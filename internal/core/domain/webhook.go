package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEventType is the closed set of merchant-observable events.
type WebhookEventType string

const (
	EventPaymentCreated   WebhookEventType = "payment.created"
	EventPaymentCompleted WebhookEventType = "payment.completed"
	EventPaymentFailed    WebhookEventType = "payment.failed"
	EventPaymentCancelled WebhookEventType = "payment.cancelled"
	EventPaymentExpired   WebhookEventType = "payment.expired"
	EventRefundCreated    WebhookEventType = "refund.created"
	EventRefundCompleted  WebhookEventType = "refund.completed"
	EventRefundFailed     WebhookEventType = "refund.failed"
	EventPayoutCompleted  WebhookEventType = "payout.completed"
	EventPayoutFailed     WebhookEventType = "payout.failed"
)

// WebhookStatus represents the delivery state of a webhook event.
type WebhookStatus string

const (
	WebhookStatusPending  WebhookStatus = "PENDING"
	WebhookStatusSent     WebhookStatus = "SENT"
	WebhookStatusFailed   WebhookStatus = "FAILED"
	WebhookStatusRetrying WebhookStatus = "RETRYING"
)

// DefaultMaxAttempts bounds webhook delivery retries.
const DefaultMaxAttempts = 5

// EventRefs links a webhook event back to the entities it describes.
type EventRefs struct {
	PaymentID *uuid.UUID
	RefundID  *uuid.UUID
	PayoutID  *uuid.UUID
}

// WebhookEvent is one signed notification owed to a merchant's endpoint.
// Delivery is at-least-once: consumers deduplicate by event id.
type WebhookEvent struct {
	ID         uuid.UUID        `json:"id"`
	MerchantID uuid.UUID        `json:"merchant_id"`
	PaymentID  *uuid.UUID       `json:"payment_id,omitempty"`
	RefundID   *uuid.UUID       `json:"refund_id,omitempty"`
	PayoutID   *uuid.UUID       `json:"payout_id,omitempty"`
	EventType  WebhookEventType `json:"event_type"`

	// URL and Payload are frozen at enqueue time; the signature covers the
	// exact bytes of Payload.
	URL       string `json:"url"`
	Payload   []byte `json:"payload"`
	Signature string `json:"signature"`

	Status      WebhookStatus `json:"status"`
	Attempts    int           `json:"attempts"`
	MaxAttempts int           `json:"max_attempts"`

	LastAttemptAt  *time.Time `json:"last_attempt_at,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	ResponseStatus *int       `json:"response_status,omitempty"`
	ResponseBody   *string    `json:"response_body,omitempty"`
	ResponseTimeMs *int64     `json:"response_time_ms,omitempty"`
	ErrorMessage   *string    `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether delivery bookkeeping is finished.
func (e *WebhookEvent) IsTerminal() bool {
	return e.Status == WebhookStatusSent || e.Status == WebhookStatusFailed
}

// IsDue reports whether the event should be attempted now.
func (e *WebhookEvent) IsDue(now time.Time) bool {
	if e.IsTerminal() {
		return false
	}
	if e.NextRetryAt == nil {
		return true
	}
	return !e.NextRetryAt.After(now)
}

// WebhookBody is the JSON document POSTed to the merchant endpoint.
type WebhookBody struct {
	EventID   uuid.UUID        `json:"event_id"`
	EventType WebhookEventType `json:"event_type"`
	Timestamp int64            `json:"timestamp"`
	Data      any              `json:"data"`
}
