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

// BalanceRepo implements ports.BalanceRepository. Amount columns are NUMERIC
// and travel as text so nothing in the money path touches floats.
type BalanceRepo struct {
	pool Pool
}

// NewBalanceRepo creates a new BalanceRepo.
func NewBalanceRepo(pool Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

const balanceColumns = `merchant_id, currency, wallet_type,
	available::text, pending::text, reserved::text,
	total_received::text, total_refunded::text, total_fees::text, total_paid_out::text,
	created_at, updated_at`

// Get fetches a balance row without locking. Returns nil when absent.
func (r *BalanceRepo) Get(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances
		WHERE merchant_id = $1 AND currency = $2 AND wallet_type = $3`, balanceColumns)

	return scanBalance(r.pool.QueryRow(ctx, query, key.MerchantID, key.Currency, key.WalletType))
}

// GetForUpdate fetches a balance row with pessimistic locking.
// This MUST be called within a transaction.
func (r *BalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.BalanceKey) (*domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances
		WHERE merchant_id = $1 AND currency = $2 AND wallet_type = $3 FOR UPDATE`, balanceColumns)

	return scanBalance(tx.QueryRow(ctx, query, key.MerchantID, key.Currency, key.WalletType))
}

// Create inserts a new balance row within a transaction.
func (r *BalanceRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	query := `INSERT INTO balances (merchant_id, currency, wallet_type,
		available, pending, reserved,
		total_received, total_refunded, total_fees, total_paid_out,
		created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := tx.Exec(ctx, query,
		b.MerchantID, b.Currency, b.WalletType,
		b.Available.Amount.String(), b.Pending.Amount.String(), b.Reserved.Amount.String(),
		b.TotalReceived.Amount.String(), b.TotalRefunded.Amount.String(),
		b.TotalFees.Amount.String(), b.TotalPaidOut.Amount.String(),
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

// UpdateAmounts persists a mutated balance row within a transaction.
func (r *BalanceRepo) UpdateAmounts(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	query := `UPDATE balances SET
		available = $1, pending = $2, reserved = $3,
		total_received = $4, total_refunded = $5, total_fees = $6, total_paid_out = $7,
		updated_at = NOW()
		WHERE merchant_id = $8 AND currency = $9 AND wallet_type = $10`

	tag, err := tx.Exec(ctx, query,
		b.Available.Amount.String(), b.Pending.Amount.String(), b.Reserved.Amount.String(),
		b.TotalReceived.Amount.String(), b.TotalRefunded.Amount.String(),
		b.TotalFees.Amount.String(), b.TotalPaidOut.Amount.String(),
		b.MerchantID, b.Currency, b.WalletType,
	)
	if err != nil {
		return fmt.Errorf("update balance amounts: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("balance not found: %s/%s/%s", b.MerchantID, b.Currency, b.WalletType)
	}
	return nil
}

// ListByMerchant fetches every balance row for a merchant.
func (r *BalanceRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Balance, error) {
	query := fmt.Sprintf(`SELECT %s FROM balances
		WHERE merchant_id = $1 ORDER BY currency, wallet_type`, balanceColumns)

	rows, err := r.pool.Query(ctx, query, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	defer rows.Close()

	var balances []domain.Balance
	for rows.Next() {
		b, err := scanBalanceRow(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate balance rows: %w", err)
	}
	return balances, nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	b, err := scanBalanceRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func scanBalanceRow(row pgx.Row) (*domain.Balance, error) {
	b := &domain.Balance{}
	var available, pending, reserved string
	var received, refunded, fees, paidOut string

	err := row.Scan(
		&b.MerchantID, &b.Currency, &b.WalletType,
		&available, &pending, &reserved,
		&received, &refunded, &fees, &paidOut,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan balance: %w", err)
	}

	fields := []struct {
		raw string
		dst *domain.Money
	}{
		{available, &b.Available}, {pending, &b.Pending}, {reserved, &b.Reserved},
		{received, &b.TotalReceived}, {refunded, &b.TotalRefunded},
		{fees, &b.TotalFees}, {paidOut, &b.TotalPaidOut},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse balance amount %q: %w", f.raw, err)
		}
		*f.dst = domain.Money{Amount: d, Currency: b.Currency}
	}
	return b, nil
}
