package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// LedgerEntryRepo implements ports.LedgerEntryRepository. The
// idempotency_key column carries a UNIQUE constraint; the entry row is the
// durable record that its op was applied.
type LedgerEntryRepo struct {
	pool Pool
}

// NewLedgerEntryRepo creates a new LedgerEntryRepo.
func NewLedgerEntryRepo(pool Pool) *LedgerEntryRepo {
	return &LedgerEntryRepo{pool: pool}
}

// Insert writes an applied ledger op's audit record within a transaction.
func (r *LedgerEntryRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	counters, err := json.Marshal(e.Counters)
	if err != nil {
		return fmt.Errorf("marshal counters: %w", err)
	}

	query := `INSERT INTO ledger_entries (id, idempotency_key, merchant_id, currency, wallet_type,
		direction, bucket, to_bucket, amount, counters, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.Exec(ctx, query,
		e.ID, e.IdempotencyKey, e.MerchantID, e.Currency, e.WalletType,
		e.Direction, e.Bucket, e.ToBucket, e.Amount.Amount.String(), counters, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// Exists reports whether an idempotency key was already applied.
func (r *LedgerEntryRepo) Exists(ctx context.Context, tx pgx.Tx, idempotencyKey string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM ledger_entries WHERE idempotency_key = $1)`

	var exists bool
	if err := tx.QueryRow(ctx, query, idempotencyKey).Scan(&exists); err != nil {
		return false, fmt.Errorf("check ledger entry exists: %w", err)
	}
	return exists, nil
}

// ListByMerchant fetches the most recent ledger entries for a merchant.
func (r *LedgerEntryRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	query := `SELECT id, idempotency_key, merchant_id, currency, wallet_type,
		direction, bucket, to_bucket, amount::text, counters, created_at
		FROM ledger_entries WHERE merchant_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, merchantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amount string
		var counters []byte
		err := rows.Scan(
			&e.ID, &e.IdempotencyKey, &e.MerchantID, &e.Currency, &e.WalletType,
			&e.Direction, &e.Bucket, &e.ToBucket, &amount, &counters, &e.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry row: %w", err)
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("parse ledger amount %q: %w", amount, err)
		}
		e.Amount = domain.Money{Amount: d, Currency: e.Currency}
		if len(counters) > 0 {
			if err := json.Unmarshal(counters, &e.Counters); err != nil {
				return nil, fmt.Errorf("unmarshal counters: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entry rows: %w", err)
	}
	return entries, nil
}
