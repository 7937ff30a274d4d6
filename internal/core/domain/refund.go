package domain

import (
	"time"

	"github.com/google/uuid"
)

// RefundStatus represents the lifecycle state of a refund.
type RefundStatus string

const (
	RefundStatusPending   RefundStatus = "PENDING"
	RefundStatusCompleted RefundStatus = "COMPLETED"
	RefundStatusFailed    RefundStatus = "FAILED"
	RefundStatusCancelled RefundStatus = "CANCELLED"
)

// Refund is a partial or full reversal of a completed payment.
type Refund struct {
	ID            uuid.UUID    `json:"id"`
	PaymentID     uuid.UUID    `json:"payment_id"`
	MerchantID    uuid.UUID    `json:"merchant_id"`
	Amount        Money        `json:"amount"`
	Reason        string       `json:"reason"`
	Status        RefundStatus `json:"status"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the refund reached a final state.
func (r *Refund) IsTerminal() bool {
	return r.Status == RefundStatusCompleted ||
		r.Status == RefundStatusFailed ||
		r.Status == RefundStatusCancelled
}
