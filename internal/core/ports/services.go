package ports

import (
	"context"
	"time"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerService exposes the atomic balance mutation primitives. Every
// mutation is tagged with an idempotency key; replays are no-ops.
type LedgerService interface {
	// ApplyInTx applies one op inside the caller's transaction. Returns
	// false when the op's idempotency key was already applied.
	ApplyInTx(ctx context.Context, tx pgx.Tx, op domain.LedgerOp) (bool, error)
	// Apply runs each op in its own transaction, in order.
	Apply(ctx context.Context, ops ...domain.LedgerOp) error
	GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error)
	ListBalances(ctx context.Context, merchantID uuid.UUID) ([]domain.Balance, error)
}

// AllocationService resolves how a payment is funded across wallets.
type AllocationService interface {
	// Resolve produces an ordered plan whose equivalents sum exactly to
	// target. Inventory ordering is normalized to the merchant's priority.
	Resolve(ctx context.Context, merchant *domain.MerchantConfig, target domain.Money, inventory []domain.WalletFunds) ([]domain.Allocation, error)
}

// CreatePaymentRequest carries the inputs for opening a payment.
type CreatePaymentRequest struct {
	MerchantID      uuid.UUID
	PaymentIntentID string
	Amount          domain.Money
	ExpiresIn       time.Duration // zero = service default
}

// PaymentService owns the payment lifecycle and its ledger effects.
type PaymentService interface {
	Create(ctx context.Context, req CreatePaymentRequest) (*domain.Payment, error)
	MarkProcessing(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	Complete(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	Fail(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error)
	Cancel(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	Expire(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error)
	// SweepExpired expires stale PENDING/PROCESSING payments; returns the
	// number expired.
	SweepExpired(ctx context.Context, limit int) (int, error)
}

// CreateRefundRequest carries the inputs for refunding a payment.
type CreateRefundRequest struct {
	PaymentID uuid.UUID
	Amount    domain.Money
	Reason    string
}

// RefundService validates and executes refunds against completed payments.
type RefundService interface {
	Create(ctx context.Context, req CreateRefundRequest) (*domain.Refund, error)
}

// PayoutService aggregates available balances into disbursements.
type PayoutService interface {
	// TriggerPayouts runs one payout pass for the merchant; returns the
	// payouts created (completed or failed per rail outcome).
	TriggerPayouts(ctx context.Context, merchantID uuid.UUID) ([]domain.Payout, error)
	// ReleasePending moves payout-eligible pending funds to available for
	// merchants on a non-instant schedule.
	ReleasePending(ctx context.Context, merchantID uuid.UUID) error
}

// WebhookService owns WebhookEvent rows and their delivery.
type WebhookService interface {
	// Enqueue creates a signed PENDING event inside the caller's
	// transaction so the enqueue commits or rolls back with the mutation.
	Enqueue(ctx context.Context, tx pgx.Tx, merchantID uuid.UUID, eventType domain.WebhookEventType, data any, refs domain.EventRefs) (*domain.WebhookEvent, error)
	// DeliverDue attempts every due event once; returns attempts made.
	DeliverDue(ctx context.Context) (int, error)
	// RunDeliveryLoop polls DeliverDue until ctx is cancelled.
	RunDeliveryLoop(ctx context.Context, interval time.Duration)
}

// SignatureService handles HMAC-SHA256 signing and verification of webhook
// bodies.
type SignatureService interface {
	Sign(secretKey string, payload []byte) string
	Verify(secretKey string, payload []byte, signature string) bool
}

// IdempotencyCache is the redis fast path for completion replay detection.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DeliveryLease serializes webhook delivery attempts per event: at most one
// worker holds the lease for an event id at a time.
type DeliveryLease interface {
	Acquire(ctx context.Context, eventID uuid.UUID, ttl time.Duration) (bool, error)
	Release(ctx context.Context, eventID uuid.UUID) error
}

// BalanceSummary is the read-model view of a balance row.
type BalanceSummary struct {
	Balance       domain.Balance `json:"balance"`
	IdentityHolds bool           `json:"identity_holds"`
}

// ReportingService is the read-only query surface for dashboards.
type ReportingService interface {
	GetBalances(ctx context.Context, merchantID uuid.UUID) ([]BalanceSummary, error)
	GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	GetWebhookEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	ListPayments(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
}
