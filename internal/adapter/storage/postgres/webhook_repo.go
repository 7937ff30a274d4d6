package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

const webhookColumns = `id, merchant_id, payment_id, refund_id, payout_id, event_type,
	url, payload, signature, status, attempts, max_attempts,
	last_attempt_at, next_retry_at, response_status, response_body, response_time_ms,
	error_message, created_at, updated_at`

// Create inserts a new webhook event within the owning transaction.
func (r *WebhookEventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.WebhookEvent) error {
	query := `INSERT INTO webhook_events (id, merchant_id, payment_id, refund_id, payout_id, event_type,
		url, payload, signature, status, attempts, max_attempts,
		last_attempt_at, next_retry_at, response_status, response_body, response_time_ms,
		error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`

	_, err := tx.Exec(ctx, query,
		e.ID, e.MerchantID, e.PaymentID, e.RefundID, e.PayoutID, e.EventType,
		e.URL, e.Payload, e.Signature, e.Status, e.Attempts, e.MaxAttempts,
		e.LastAttemptAt, e.NextRetryAt, e.ResponseStatus, e.ResponseBody, e.ResponseTimeMs,
		e.ErrorMessage, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// GetByID fetches a webhook event by UUID.
func (r *WebhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_events WHERE id = $1`, webhookColumns)

	e, err := scanWebhookEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return e, nil
}

// ListDue fetches PENDING/RETRYING events whose next attempt is due.
func (r *WebhookEventRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_events
		WHERE status IN ('PENDING', 'RETRYING')
		AND (next_retry_at IS NULL OR next_retry_at <= $1)
		ORDER BY created_at LIMIT $2`, webhookColumns)

	return r.listEvents(ctx, query, now, limit)
}

// UpdateDelivery records the outcome of one delivery attempt.
func (r *WebhookEventRepo) UpdateDelivery(ctx context.Context, e *domain.WebhookEvent) error {
	query := `UPDATE webhook_events SET status = $1, attempts = $2,
		last_attempt_at = $3, next_retry_at = $4, response_status = $5,
		response_body = $6, response_time_ms = $7, error_message = $8, updated_at = $9
		WHERE id = $10`

	tag, err := r.pool.Exec(ctx, query,
		e.Status, e.Attempts, e.LastAttemptAt, e.NextRetryAt,
		e.ResponseStatus, e.ResponseBody, e.ResponseTimeMs, e.ErrorMessage,
		e.UpdatedAt, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update webhook delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event not found: %s", e.ID)
	}
	return nil
}

// ListByMerchant fetches the most recent webhook events for a merchant.
func (r *WebhookEventRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM webhook_events
		WHERE merchant_id = $1 ORDER BY created_at DESC LIMIT $2`, webhookColumns)

	return r.listEvents(ctx, query, merchantID, limit)
}

func (r *WebhookEventRepo) listEvents(ctx context.Context, query string, args ...any) ([]domain.WebhookEvent, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEvent
	for rows.Next() {
		e, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate webhook event rows: %w", err)
	}
	return events, nil
}

func scanWebhookEvent(row pgx.Row) (*domain.WebhookEvent, error) {
	e := &domain.WebhookEvent{}
	err := row.Scan(
		&e.ID, &e.MerchantID, &e.PaymentID, &e.RefundID, &e.PayoutID, &e.EventType,
		&e.URL, &e.Payload, &e.Signature, &e.Status, &e.Attempts, &e.MaxAttempts,
		&e.LastAttemptAt, &e.NextRetryAt, &e.ResponseStatus, &e.ResponseBody, &e.ResponseTimeMs,
		&e.ErrorMessage, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan webhook event: %w", err)
	}
	return e, nil
}
