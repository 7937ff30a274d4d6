package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RefundRepo implements ports.RefundRepository.
type RefundRepo struct {
	pool Pool
}

// NewRefundRepo creates a new RefundRepo.
func NewRefundRepo(pool Pool) *RefundRepo {
	return &RefundRepo{pool: pool}
}

const refundColumns = `id, payment_id, merchant_id, currency, amount::text,
	reason, status, failure_reason, created_at, completed_at, updated_at`

// Create inserts a new refund within a database transaction.
func (r *RefundRepo) Create(ctx context.Context, tx pgx.Tx, rf *domain.Refund) error {
	query := `INSERT INTO refunds (id, payment_id, merchant_id, currency, amount,
		reason, status, failure_reason, created_at, completed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		rf.ID, rf.PaymentID, rf.MerchantID, rf.Amount.Currency, rf.Amount.Amount.String(),
		rf.Reason, rf.Status, rf.FailureReason, rf.CreatedAt, rf.CompletedAt, rf.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	return nil
}

// GetByID fetches a refund by UUID.
func (r *RefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	query := fmt.Sprintf(`SELECT %s FROM refunds WHERE id = $1`, refundColumns)
	return scanRefund(r.pool.QueryRow(ctx, query, id))
}

// Update persists a refund's mutable fields within a transaction.
func (r *RefundRepo) Update(ctx context.Context, tx pgx.Tx, rf *domain.Refund) error {
	query := `UPDATE refunds SET status = $1, failure_reason = $2,
		completed_at = $3, updated_at = $4 WHERE id = $5`

	tag, err := tx.Exec(ctx, query,
		rf.Status, rf.FailureReason, rf.CompletedAt, rf.UpdatedAt, rf.ID,
	)
	if err != nil {
		return fmt.Errorf("update refund: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("refund not found: %s", rf.ID)
	}
	return nil
}

// ListByPayment fetches every refund against a payment, newest first.
func (r *RefundRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	query := fmt.Sprintf(`SELECT %s FROM refunds
		WHERE payment_id = $1 ORDER BY created_at DESC`, refundColumns)

	rows, err := r.pool.Query(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var refunds []domain.Refund
	for rows.Next() {
		rf, err := scanRefundRow(rows)
		if err != nil {
			return nil, err
		}
		refunds = append(refunds, *rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refund rows: %w", err)
	}
	return refunds, nil
}

// CountCompletedBetween counts completed refunds in a window for payout
// records.
func (r *RefundRepo) CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM refunds
		WHERE merchant_id = $1 AND currency = $2 AND status = 'COMPLETED'
		AND completed_at >= $3 AND completed_at <= $4`

	var count int
	if err := r.pool.QueryRow(ctx, query, merchantID, currency, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed refunds: %w", err)
	}
	return count, nil
}

func scanRefund(row pgx.Row) (*domain.Refund, error) {
	rf, err := scanRefundRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rf, nil
}

func scanRefundRow(row pgx.Row) (*domain.Refund, error) {
	rf := &domain.Refund{}
	var currency, amount string

	err := row.Scan(
		&rf.ID, &rf.PaymentID, &rf.MerchantID, &currency, &amount,
		&rf.Reason, &rf.Status, &rf.FailureReason,
		&rf.CreatedAt, &rf.CompletedAt, &rf.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan refund: %w", err)
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse refund amount %q: %w", amount, err)
	}
	rf.Amount = domain.Money{Amount: d, Currency: currency}
	return rf, nil
}
