package domain

import (
	"time"

	"github.com/google/uuid"
)

// Bucket names one of the three balance compartments.
type Bucket string

const (
	BucketAvailable Bucket = "available"
	BucketPending   Bucket = "pending"
	BucketReserved  Bucket = "reserved"
)

// Counter names one of the monotonically non-decreasing balance counters.
type Counter string

const (
	CounterTotalReceived Counter = "total_received"
	CounterTotalRefunded Counter = "total_refunded"
	CounterTotalFees     Counter = "total_fees"
	CounterTotalPaidOut  Counter = "total_paid_out"
)

// BalanceKey identifies a single balance row.
type BalanceKey struct {
	MerchantID uuid.UUID  `json:"merchant_id"`
	Currency   string     `json:"currency"`
	WalletType WalletType `json:"wallet_type"`
}

// Balance is the per (merchant, currency, walletType) ledger record.
// Mutated only through the ledger service's credit/debit primitives.
type Balance struct {
	MerchantID uuid.UUID  `json:"merchant_id"`
	Currency   string     `json:"currency"`
	WalletType WalletType `json:"wallet_type"`

	Available Money `json:"available"`
	Pending   Money `json:"pending"`
	Reserved  Money `json:"reserved"`

	TotalReceived Money `json:"total_received"`
	TotalRefunded Money `json:"total_refunded"`
	TotalFees     Money `json:"total_fees"`
	TotalPaidOut  Money `json:"total_paid_out"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBalance returns a zeroed balance row for the key.
func NewBalance(key BalanceKey) *Balance {
	now := time.Now().UTC()
	zero := ZeroMoney(key.Currency)
	return &Balance{
		MerchantID:    key.MerchantID,
		Currency:      key.Currency,
		WalletType:    key.WalletType,
		Available:     zero,
		Pending:       zero,
		Reserved:      zero,
		TotalReceived: zero,
		TotalRefunded: zero,
		TotalFees:     zero,
		TotalPaidOut:  zero,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Key returns the row identity.
func (b *Balance) Key() BalanceKey {
	return BalanceKey{MerchantID: b.MerchantID, Currency: b.Currency, WalletType: b.WalletType}
}

// Bucket returns the amount held in the named bucket.
func (b *Balance) Bucket(bucket Bucket) Money {
	switch bucket {
	case BucketAvailable:
		return b.Available
	case BucketPending:
		return b.Pending
	case BucketReserved:
		return b.Reserved
	}
	return ZeroMoney(b.Currency)
}

// SetBucket overwrites the named bucket.
func (b *Balance) SetBucket(bucket Bucket, amount Money) {
	switch bucket {
	case BucketAvailable:
		b.Available = amount
	case BucketPending:
		b.Pending = amount
	case BucketReserved:
		b.Reserved = amount
	}
}

// Counter returns the value of the named counter.
func (b *Balance) Counter(counter Counter) Money {
	switch counter {
	case CounterTotalReceived:
		return b.TotalReceived
	case CounterTotalRefunded:
		return b.TotalRefunded
	case CounterTotalFees:
		return b.TotalFees
	case CounterTotalPaidOut:
		return b.TotalPaidOut
	}
	return ZeroMoney(b.Currency)
}

// SetCounter overwrites the named counter.
func (b *Balance) SetCounter(counter Counter, amount Money) {
	switch counter {
	case CounterTotalReceived:
		b.TotalReceived = amount
	case CounterTotalRefunded:
		b.TotalRefunded = amount
	case CounterTotalFees:
		b.TotalFees = amount
	case CounterTotalPaidOut:
		b.TotalPaidOut = amount
	}
}

// IdentityHolds verifies the ledger identity:
// available + pending + reserved == totalReceived - totalRefunded - totalFees - totalPaidOut.
func (b *Balance) IdentityHolds() bool {
	left := b.Available.Amount.Add(b.Pending.Amount).Add(b.Reserved.Amount)
	right := b.TotalReceived.Amount.
		Sub(b.TotalRefunded.Amount).
		Sub(b.TotalFees.Amount).
		Sub(b.TotalPaidOut.Amount)
	return left.Equal(right)
}
