package ports

import (
	"context"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RateProvider supplies conversion rates at allocation time. The resolved
// rate is frozen into the allocation record, never re-fetched.
type RateProvider interface {
	GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error)
}

// DisbursementRail executes payouts and refund reversals. Calls are
// idempotent on the supplied token, so retries after a crash are safe.
type DisbursementRail interface {
	Disburse(ctx context.Context, idempotencyToken string, merchantID uuid.UUID, amount domain.Money) error
	ReverseCharge(ctx context.Context, idempotencyToken string, paymentIntentID string, amount domain.Money) error
}

// MerchantStore supplies merchant settings and wallet inventory. Merchant
// CRUD and API-key validation live outside this core.
type MerchantStore interface {
	GetConfig(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantConfig, error)
	GetWalletFunds(ctx context.Context, merchantID uuid.UUID) ([]domain.WalletFunds, error)
	// ListPayoutDue returns merchants whose payout schedule fires now.
	ListPayoutDue(ctx context.Context) ([]uuid.UUID, error)
}
