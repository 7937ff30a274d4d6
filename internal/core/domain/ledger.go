package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LedgerDirection names what a ledger operation does to its bucket(s).
type LedgerDirection string

const (
	LedgerCredit LedgerDirection = "CREDIT"
	LedgerDebit  LedgerDirection = "DEBIT"
	LedgerMove   LedgerDirection = "MOVE"
)

// CounterDelta is a monotonic counter increment riding on a ledger op.
type CounterDelta struct {
	Counter Counter `json:"counter"`
	Amount  Money   `json:"amount"`
}

// LedgerOp is one atomic mutation of a single balance row. The idempotency
// key makes replays no-ops: a key is applied at most once, ever.
type LedgerOp struct {
	IdempotencyKey string
	Key            BalanceKey
	Direction      LedgerDirection
	// Bucket is the target for CREDIT/DEBIT and the source for MOVE.
	Bucket Bucket
	// ToBucket is the destination for MOVE; unused otherwise.
	ToBucket Bucket
	Amount   Money
	Counters []CounterDelta
}

// LedgerEntry is the persisted audit record of an applied LedgerOp.
type LedgerEntry struct {
	ID             uuid.UUID       `json:"id"`
	IdempotencyKey string          `json:"idempotency_key"`
	MerchantID     uuid.UUID       `json:"merchant_id"`
	Currency       string          `json:"currency"`
	WalletType     WalletType      `json:"wallet_type"`
	Direction      LedgerDirection `json:"direction"`
	Bucket         Bucket          `json:"bucket"`
	ToBucket       *Bucket         `json:"to_bucket,omitempty"`
	Amount         Money           `json:"amount"`
	Counters       []CounterDelta  `json:"counters,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Idempotency key builders. Keys are deterministic per originating event so
// crash-replays of a multi-row operation skip the rows already applied.

// PaymentCompleteKey tags the balance credit for one allocation of a
// completed payment.
func PaymentCompleteKey(paymentID uuid.UUID, allocIndex int) string {
	return fmt.Sprintf("payment:%s:complete:%d", paymentID, allocIndex)
}

// RefundCompleteKey tags the balance debit for one allocation share of a
// completed refund.
func RefundCompleteKey(refundID uuid.UUID, allocIndex int) string {
	return fmt.Sprintf("refund:%s:complete:%d", refundID, allocIndex)
}

// PayoutHoldKey tags the available -> reserved move when a payout is created.
func PayoutHoldKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("payout:%s:hold", payoutID)
}

// PayoutCompleteKey tags the reserved debit when a payout is confirmed.
func PayoutCompleteKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("payout:%s:complete", payoutID)
}

// PayoutCompensateKey tags the reserved -> available move after rail failure.
func PayoutCompensateKey(payoutID uuid.UUID) string {
	return fmt.Sprintf("payout:%s:compensate", payoutID)
}

// PendingReleaseKey tags a scheduled pending -> available release.
func PendingReleaseKey(key BalanceKey, periodEnd time.Time) string {
	return fmt.Sprintf("release:%s:%s:%s:%d",
		key.MerchantID, key.Currency, key.WalletType, periodEnd.Unix())
}
