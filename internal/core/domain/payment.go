package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "PENDING"
	PaymentStatusProcessing        PaymentStatus = "PROCESSING"
	PaymentStatusCompleted         PaymentStatus = "COMPLETED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
	PaymentStatusCancelled         PaymentStatus = "CANCELLED"
	PaymentStatusExpired           PaymentStatus = "EXPIRED"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// paymentTransitions is the allowed state machine. PARTIALLY_REFUNDED may
// accumulate further refunds until it becomes REFUNDED.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:    {PaymentStatusProcessing, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusFailed},
	PaymentStatusProcessing: {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired},
	PaymentStatusCompleted:  {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
	PaymentStatusPartiallyRefunded: {PaymentStatusRefunded, PaymentStatusPartiallyRefunded},
}

// CanTransition reports whether from -> to is a legal payment transition.
func CanTransition(from, to PaymentStatus) bool {
	for _, s := range paymentTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Allocation is a portion of a payment funded from one wallet, with the
// conversion rate frozen at allocation time for auditability.
type Allocation struct {
	WalletID   uuid.UUID  `json:"wallet_id"`
	WalletType WalletType `json:"wallet_type"`
	Currency   string     `json:"currency"`
	// Amount is in the wallet's native currency.
	Amount Money `json:"amount"`
	// Rate converts one unit of the wallet currency into the payment currency.
	Rate decimal.Decimal `json:"rate"`
	// EquivalentInPaymentCurrency is Amount * Rate, adjusted so the plan
	// sums exactly to the payment amount.
	EquivalentInPaymentCurrency Money `json:"equivalent_in_payment_currency"`
}

// Payment is a merchant-facing charge funded from one or more wallets.
type Payment struct {
	ID              uuid.UUID     `json:"id"`
	PaymentIntentID string        `json:"payment_intent_id"`
	MerchantID      uuid.UUID     `json:"merchant_id"`
	Amount          Money         `json:"amount"`
	FeeAmount       Money         `json:"fee_amount"`
	NetAmount       Money         `json:"net_amount"`
	Status          PaymentStatus `json:"status"`
	Allocations     []Allocation  `json:"allocations"`
	RefundedAmount  Money         `json:"refunded_amount"`
	FailureReason   *string       `json:"failure_reason,omitempty"`
	ExpiresAt       time.Time     `json:"expires_at"`
	CompletedAt     *time.Time    `json:"completed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// IsTerminal reports whether no further lifecycle transitions are possible.
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case PaymentStatusFailed, PaymentStatusCancelled, PaymentStatusExpired, PaymentStatusRefunded:
		return true
	}
	return false
}

// IsExpired reports whether the payment passed its deadline without
// completing. Expiry is evaluated at read time; a sweeper persists it.
func (p *Payment) IsExpired(now time.Time) bool {
	if p.Status != PaymentStatusPending && p.Status != PaymentStatusProcessing {
		return false
	}
	return now.After(p.ExpiresAt)
}

// IsRefundable reports whether the payment can accept further refunds.
func (p *Payment) IsRefundable() bool {
	return p.Status == PaymentStatusCompleted || p.Status == PaymentStatusPartiallyRefunded
}

// RemainingRefundable is the refund ceiling still open on this payment.
// The ceiling is NetAmount: only funds actually credited can come back.
func (p *Payment) RemainingRefundable() Money {
	remaining, err := p.NetAmount.Sub(p.RefundedAmount)
	if err != nil {
		return ZeroMoney(p.Amount.Currency)
	}
	if remaining.IsNegative() {
		return ZeroMoney(p.Amount.Currency)
	}
	return remaining
}

// AllocationSum returns the sum of allocation equivalents in the payment
// currency. Once allocations are finalized this equals Amount exactly.
func (p *Payment) AllocationSum() Money {
	sum := ZeroMoney(p.Amount.Currency)
	for _, a := range p.Allocations {
		sum, _ = sum.Add(a.EquivalentInPaymentCurrency)
	}
	return sum
}
