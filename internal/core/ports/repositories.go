package ports

import (
	"context"
	"time"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// BalanceRepository defines persistence operations for balance rows.
// Methods accepting pgx.Tx run inside transaction blocks for pessimistic
// locking; balances are never updated outside a transaction.
type BalanceRepository interface {
	Get(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.BalanceKey) (*domain.Balance, error)
	Create(ctx context.Context, tx pgx.Tx, balance *domain.Balance) error
	UpdateAmounts(ctx context.Context, tx pgx.Tx, balance *domain.Balance) error
	ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Balance, error)
}

// LedgerEntryRepository persists the audit trail of applied ledger ops.
// The idempotency_key column carries a unique constraint; Insert surfaces
// a duplicate as domain-level replay detection via Exists.
type LedgerEntryRepository interface {
	Insert(ctx context.Context, tx pgx.Tx, entry *domain.LedgerEntry) error
	Exists(ctx context.Context, tx pgx.Tx, idempotencyKey string) (bool, error)
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.LedgerEntry, error)
}

// PaymentListParams holds filter + pagination for listing payments.
type PaymentListParams struct {
	MerchantID uuid.UUID
	Status     *domain.PaymentStatus
	Page       int
	PageSize   int
}

// PaymentRepository defines persistence operations for payments. Create runs
// inside a transaction so the row and its payment.created event commit
// together.
type PaymentRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	GetByIntentID(ctx context.Context, merchantID uuid.UUID, intentID string) (*domain.Payment, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error)
	Update(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error
	List(ctx context.Context, params PaymentListParams) ([]domain.Payment, int64, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error)
	// SumCompletedSince aggregates completed payment amounts in a currency
	// for daily/monthly limit checks.
	SumCompletedSince(ctx context.Context, merchantID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error)
	// CountCompletedBetween counts completed payments for payout records.
	CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error)
}

// RefundRepository defines persistence operations for refunds.
type RefundRepository interface {
	Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error)
	Update(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error
	ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error)
	CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error)
}

// PayoutRepository defines persistence operations for payouts.
type PayoutRepository interface {
	Create(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error)
	Update(ctx context.Context, tx pgx.Tx, payout *domain.Payout) error
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.Payout, error)
}

// WebhookEventRepository defines persistence for webhook events. Create runs
// inside the owning state transition's transaction so an enqueue never
// outlives a rolled-back mutation.
type WebhookEventRepository interface {
	Create(ctx context.Context, tx pgx.Tx, event *domain.WebhookEvent) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error)
	// ListDue returns PENDING/RETRYING events whose next attempt is due.
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookEvent, error)
	// UpdateDelivery records the outcome of one delivery attempt.
	UpdateDelivery(ctx context.Context, event *domain.WebhookEvent) error
	ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookEvent, error)
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
