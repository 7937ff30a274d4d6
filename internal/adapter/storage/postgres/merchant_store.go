package postgres

import (
	"context"
	"errors"
	"fmt"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// MerchantStore implements ports.MerchantStore over a local mirror of the
// merchant platform's settings and wallet inventory. Merchant CRUD and
// API-key auth live in the upstream platform; this store only reads.
type MerchantStore struct {
	pool Pool
}

// NewMerchantStore creates a new MerchantStore.
func NewMerchantStore(pool Pool) *MerchantStore {
	return &MerchantStore{pool: pool}
}

// GetConfig fetches a merchant's settings snapshot. Returns nil when absent.
func (s *MerchantStore) GetConfig(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantConfig, error) {
	query := `SELECT id, allowed_currencies, allowed_wallet_types, wallet_priority,
		fee_type, fee_percentage::text, fee_fixed::text,
		transaction_limit::text, daily_limit::text, monthly_limit::text,
		payout_schedule, payout_threshold::text, webhook_url, webhook_secret
		FROM merchants WHERE id = $1`

	m := &domain.MerchantConfig{}
	var walletTypes, priority []string
	var feePct, feeFixed, txLimit, dayLimit, monthLimit, threshold string

	err := s.pool.QueryRow(ctx, query, merchantID).Scan(
		&m.ID, &m.AllowedCurrencies, &walletTypes, &priority,
		&m.FeeType, &feePct, &feeFixed,
		&txLimit, &dayLimit, &monthLimit,
		&m.PayoutSchedule, &threshold, &m.WebhookURL, &m.WebhookSecret,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get merchant config: %w", err)
	}

	m.AllowedWalletTypes = toWalletTypes(walletTypes)
	m.WalletPriority = toWalletTypes(priority)

	fields := []struct {
		raw string
		dst *decimal.Decimal
	}{
		{feePct, &m.FeePercentage}, {feeFixed, &m.FeeFixed},
		{txLimit, &m.TransactionLimit}, {dayLimit, &m.DailyLimit},
		{monthLimit, &m.MonthlyLimit}, {threshold, &m.PayoutThreshold},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse merchant amount %q: %w", f.raw, err)
		}
		*f.dst = d
	}
	return m, nil
}

// GetWalletFunds fetches the merchant's spendable wallet inventory.
func (s *MerchantStore) GetWalletFunds(ctx context.Context, merchantID uuid.UUID) ([]domain.WalletFunds, error) {
	query := `SELECT wallet_id, wallet_type, currency, available::text
		FROM merchant_wallets WHERE merchant_id = $1
		ORDER BY wallet_type, currency`

	rows, err := s.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list merchant wallets: %w", err)
	}
	defer rows.Close()

	var funds []domain.WalletFunds
	for rows.Next() {
		var w domain.WalletFunds
		var available string
		if err := rows.Scan(&w.WalletID, &w.WalletType, &w.Currency, &available); err != nil {
			return nil, fmt.Errorf("scan wallet funds row: %w", err)
		}
		d, err := decimal.NewFromString(available)
		if err != nil {
			return nil, fmt.Errorf("parse wallet amount %q: %w", available, err)
		}
		w.Available = domain.Money{Amount: d, Currency: w.Currency}
		funds = append(funds, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate wallet funds rows: %w", err)
	}
	return funds, nil
}

// ListPayoutDue returns every merchant the payout scheduler should visit.
func (s *MerchantStore) ListPayoutDue(ctx context.Context) ([]uuid.UUID, error) {
	query := `SELECT id FROM merchants ORDER BY id`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list payout merchants: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan merchant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate merchant rows: %w", err)
	}
	return ids, nil
}

func toWalletTypes(values []string) []domain.WalletType {
	if len(values) == 0 {
		return nil
	}
	types := make([]domain.WalletType, 0, len(values))
	for _, v := range values {
		types = append(types, domain.WalletType(v))
	}
	return types
}
