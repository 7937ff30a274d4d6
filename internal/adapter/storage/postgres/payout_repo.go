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

// PayoutRepo implements ports.PayoutRepository.
type PayoutRepo struct {
	pool Pool
}

// NewPayoutRepo creates a new PayoutRepo.
func NewPayoutRepo(pool Pool) *PayoutRepo {
	return &PayoutRepo{pool: pool}
}

const payoutColumns = `id, merchant_id, currency, wallet_type, period_start, period_end,
	gross_amount::text, fee_amount::text, net_amount::text, payment_count, refund_count,
	status, failure_reason, created_at, completed_at, updated_at`

// Create inserts a new payout within a database transaction.
func (r *PayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `INSERT INTO payouts (id, merchant_id, currency, wallet_type, period_start, period_end,
		gross_amount, fee_amount, net_amount, payment_count, refund_count,
		status, failure_reason, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.MerchantID, p.Currency, p.WalletType, p.PeriodStart, p.PeriodEnd,
		p.GrossAmount.Amount.String(), p.FeeAmount.Amount.String(), p.NetAmount.Amount.String(),
		p.PaymentCount, p.RefundCount,
		p.Status, p.FailureReason, p.CreatedAt, p.CompletedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

// GetByID fetches a payout by UUID.
func (r *PayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts WHERE id = $1`, payoutColumns)
	return scanPayout(r.pool.QueryRow(ctx, query, id))
}

// Update persists a payout's mutable fields within a transaction.
func (r *PayoutRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	query := `UPDATE payouts SET status = $1, failure_reason = $2,
		completed_at = $3, updated_at = $4 WHERE id = $5`

	tag, err := tx.Exec(ctx, query,
		p.Status, p.FailureReason, p.CompletedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payout not found: %s", p.ID)
	}
	return nil
}

// ListByMerchant fetches the most recent payouts for a merchant.
func (r *PayoutRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.Payout, error) {
	query := fmt.Sprintf(`SELECT %s FROM payouts
		WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`, payoutColumns)

	rows, err := r.pool.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var payouts []domain.Payout
	for rows.Next() {
		p, err := scanPayoutRow(rows)
		if err != nil {
			return nil, err
		}
		payouts = append(payouts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payout rows: %w", err)
	}
	return payouts, nil
}

func scanPayout(row pgx.Row) (*domain.Payout, error) {
	p, err := scanPayoutRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanPayoutRow(row pgx.Row) (*domain.Payout, error) {
	p := &domain.Payout{}
	var gross, fee, net string

	err := row.Scan(
		&p.ID, &p.MerchantID, &p.Currency, &p.WalletType, &p.PeriodStart, &p.PeriodEnd,
		&gross, &fee, &net, &p.PaymentCount, &p.RefundCount,
		&p.Status, &p.FailureReason, &p.CreatedAt, &p.CompletedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payout: %w", err)
	}

	fields := []struct {
		raw string
		dst *domain.Money
	}{
		{gross, &p.GrossAmount}, {fee, &p.FeeAmount}, {net, &p.NetAmount},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse payout amount %q: %w", f.raw, err)
		}
		*f.dst = domain.Money{Amount: d, Currency: p.Currency}
	}
	return p, nil
}
