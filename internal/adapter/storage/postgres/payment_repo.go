package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PaymentRepo implements ports.PaymentRepository. The allocation plan is
// stored as JSONB on the payment row: it is immutable once the payment is
// created, and always read together with the payment.
type PaymentRepo struct {
	pool Pool
}

// NewPaymentRepo creates a new PaymentRepo.
func NewPaymentRepo(pool Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

const paymentColumns = `id, payment_intent_id, merchant_id, currency,
	amount::text, fee_amount::text, net_amount::text, refunded_amount::text,
	status, allocations, failure_reason, expires_at, completed_at, created_at, updated_at`

// Create inserts a new payment within a database transaction.
func (r *PaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	allocations, err := json.Marshal(p.Allocations)
	if err != nil {
		return fmt.Errorf("marshal allocations: %w", err)
	}

	query := `INSERT INTO payments (id, payment_intent_id, merchant_id, currency,
		amount, fee_amount, net_amount, refunded_amount,
		status, allocations, failure_reason, expires_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	_, err = tx.Exec(ctx, query,
		p.ID, p.PaymentIntentID, p.MerchantID, p.Amount.Currency,
		p.Amount.Amount.String(), p.FeeAmount.Amount.String(),
		p.NetAmount.Amount.String(), p.RefundedAmount.Amount.String(),
		p.Status, allocations, p.FailureReason, p.ExpiresAt, p.CompletedAt,
		p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// GetByID fetches a payment by UUID (without locking).
func (r *PaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1`, paymentColumns)
	return scanPayment(r.pool.QueryRow(ctx, query, id))
}

// GetByIntentID fetches a payment by merchant and intent id, the duplicate
// intent guard.
func (r *PaymentRepo) GetByIntentID(ctx context.Context, merchantID uuid.UUID, intentID string) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
		WHERE merchant_id = $1 AND payment_intent_id = $2`, paymentColumns)
	return scanPayment(r.pool.QueryRow(ctx, query, merchantID, intentID))
}

// GetByIDForUpdate fetches a payment with pessimistic locking.
// This MUST be called within a transaction.
func (r *PaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments WHERE id = $1 FOR UPDATE`, paymentColumns)
	return scanPayment(tx.QueryRow(ctx, query, id))
}

// Update persists a payment's mutable fields within a transaction.
func (r *PaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	query := `UPDATE payments SET status = $1, refunded_amount = $2, failure_reason = $3,
		completed_at = $4, updated_at = $5 WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		p.Status, p.RefundedAmount.Amount.String(), p.FailureReason,
		p.CompletedAt, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	return nil
}

// List fetches payments with filtering and pagination.
func (r *PaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("merchant_id = $%d", argIdx))
	args = append(args, params.MerchantID)
	argIdx++

	if params.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *params.Status)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM payments %s", where)
	var total int64
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(`SELECT %s FROM payments %s
		ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, paymentColumns, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, 0, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate payment rows: %w", err)
	}
	return payments, total, nil
}

// ListExpired fetches open payments whose deadline has passed.
func (r *PaymentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	query := fmt.Sprintf(`SELECT %s FROM payments
		WHERE status IN ('PENDING', 'PROCESSING') AND expires_at < $1
		ORDER BY expires_at LIMIT $2`, paymentColumns)

	rows, err := r.pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPaymentRow(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired payment rows: %w", err)
	}
	return payments, nil
}

// SumCompletedSince aggregates completed payment amounts in a currency since
// a cutoff, for daily and monthly limit checks.
func (r *PaymentRepo) SumCompletedSince(ctx context.Context, merchantID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0)::text FROM payments
		WHERE merchant_id = $1 AND currency = $2
		AND status IN ('COMPLETED', 'REFUNDED', 'PARTIALLY_REFUNDED')
		AND completed_at >= $3`

	var sum string
	if err := r.pool.QueryRow(ctx, query, merchantID, currency, since).Scan(&sum); err != nil {
		return decimal.Zero, fmt.Errorf("sum completed payments: %w", err)
	}
	d, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse payment sum %q: %w", sum, err)
	}
	return d, nil
}

// CountCompletedBetween counts completed payments in a window for payout
// records.
func (r *PaymentRepo) CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM payments
		WHERE merchant_id = $1 AND currency = $2
		AND status IN ('COMPLETED', 'REFUNDED', 'PARTIALLY_REFUNDED')
		AND completed_at >= $3 AND completed_at <= $4`

	var count int
	if err := r.pool.QueryRow(ctx, query, merchantID, currency, start, end).Scan(&count); err != nil {
		return 0, fmt.Errorf("count completed payments: %w", err)
	}
	return count, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	p, err := scanPaymentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func scanPaymentRow(row pgx.Row) (*domain.Payment, error) {
	p := &domain.Payment{}
	var currency string
	var amount, fee, net, refunded string
	var allocations []byte

	err := row.Scan(
		&p.ID, &p.PaymentIntentID, &p.MerchantID, &currency,
		&amount, &fee, &net, &refunded,
		&p.Status, &allocations, &p.FailureReason,
		&p.ExpiresAt, &p.CompletedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	fields := []struct {
		raw string
		dst *domain.Money
	}{
		{amount, &p.Amount}, {fee, &p.FeeAmount}, {net, &p.NetAmount}, {refunded, &p.RefundedAmount},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parse payment amount %q: %w", f.raw, err)
		}
		*f.dst = domain.Money{Amount: d, Currency: currency}
	}

	if len(allocations) > 0 {
		if err := json.Unmarshal(allocations, &p.Allocations); err != nil {
			return nil, fmt.Errorf("unmarshal allocations: %w", err)
		}
	}
	return p, nil
}
