package domain

import (
	"time"

	"github.com/google/uuid"
)

// PayoutStatus represents the lifecycle state of a payout.
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "PENDING"
	PayoutStatusProcessing PayoutStatus = "PROCESSING"
	PayoutStatusCompleted  PayoutStatus = "COMPLETED"
	PayoutStatusFailed     PayoutStatus = "FAILED"
	PayoutStatusCancelled  PayoutStatus = "CANCELLED"
)

// Payout aggregates a balance's available funds into one disbursement.
// Created from a snapshot of `available` at trigger time; a COMPLETED payout
// is immutable history.
type Payout struct {
	ID            uuid.UUID    `json:"id"`
	MerchantID    uuid.UUID    `json:"merchant_id"`
	Currency      string       `json:"currency"`
	WalletType    WalletType   `json:"wallet_type"`
	PeriodStart   time.Time    `json:"period_start"`
	PeriodEnd     time.Time    `json:"period_end"`
	GrossAmount   Money        `json:"gross_amount"`
	FeeAmount     Money        `json:"fee_amount"`
	NetAmount     Money        `json:"net_amount"`
	PaymentCount  int          `json:"payment_count"`
	RefundCount   int          `json:"refund_count"`
	Status        PayoutStatus `json:"status"`
	FailureReason *string      `json:"failure_reason,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// IsTerminal reports whether the payout reached a final state.
func (p *Payout) IsTerminal() bool {
	return p.Status == PayoutStatusCompleted ||
		p.Status == PayoutStatusFailed ||
		p.Status == PayoutStatusCancelled
}
