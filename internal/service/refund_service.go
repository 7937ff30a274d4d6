package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// RefundServiceImpl implements ports.RefundService. A refund is validated
// against the payment's refundable remainder, executed on the disbursement
// rail, and only then debited from the ledger.
type RefundServiceImpl struct {
	refundRepo  ports.RefundRepository
	paymentRepo ports.PaymentRepository
	ledger      ports.LedgerService
	webhookSvc  ports.WebhookService
	merchants   ports.MerchantStore
	rail        ports.DisbursementRail
	transactor  ports.DBTransactor
	log         zerolog.Logger
}

// NewRefundService creates a new RefundServiceImpl.
func NewRefundService(
	refundRepo ports.RefundRepository,
	paymentRepo ports.PaymentRepository,
	ledger ports.LedgerService,
	webhookSvc ports.WebhookService,
	merchants ports.MerchantStore,
	rail ports.DisbursementRail,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *RefundServiceImpl {
	return &RefundServiceImpl{
		refundRepo:  refundRepo,
		paymentRepo: paymentRepo,
		ledger:      ledger,
		webhookSvc:  webhookSvc,
		merchants:   merchants,
		rail:        rail,
		transactor:  transactor,
		log:         log,
	}
}

// Create validates and executes a refund. Rail failure is surfaced through
// the refund's FAILED status and the refund.failed event, not as an error;
// the ledger is untouched in that case.
func (s *RefundServiceImpl) Create(ctx context.Context, req ports.CreateRefundRequest) (*domain.Refund, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	payment, err := s.paymentRepo.GetByID(ctx, req.PaymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	if !payment.IsRefundable() {
		return nil, apperror.ErrNotRefundable()
	}
	if req.Amount.Currency != payment.Amount.Currency {
		return nil, apperror.Validation("refund currency must match payment currency")
	}
	if req.Amount.Cmp(payment.RemainingRefundable()) > 0 {
		return nil, apperror.ErrRefundExceedsPayment()
	}

	now := time.Now().UTC()
	refund := &domain.Refund{
		ID:         uuid.New(),
		PaymentID:  payment.ID,
		MerchantID: payment.MerchantID,
		Amount:     req.Amount,
		Reason:     req.Reason,
		Status:     domain.RefundStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.refundRepo.Create(ctx, tx, refund); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create refund: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, refund.MerchantID, domain.EventRefundCreated, refund, domain.EventRefs{PaymentID: &payment.ID, RefundID: &refund.ID}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue refund.created: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	// Execute the reversal on the rail; the refund id doubles as the
	// idempotency token so a crash-retry never reverses twice.
	railToken := "refund:" + refund.ID.String()
	if err := s.rail.ReverseCharge(ctx, railToken, payment.PaymentIntentID, req.Amount); err != nil {
		s.log.Warn().Err(err).
			Str("refund_id", refund.ID.String()).
			Str("payment_id", payment.ID.String()).
			Msg("refund rail reversal failed")
		if ferr := s.markFailed(ctx, refund, payment.ID, err.Error()); ferr != nil {
			return refund, ferr
		}
		return refund, nil
	}

	if err := s.complete(ctx, refund); err != nil {
		return refund, err
	}
	return refund, nil
}

// complete applies the ledger debits and payment status change for a
// rail-confirmed refund in one transaction.
func (s *RefundServiceImpl) complete(ctx context.Context, refund *domain.Refund) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, refund.PaymentID)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return apperror.ErrNotFound("payment")
	}

	// Re-check the ceiling under the payment lock: a concurrent refund may
	// have consumed the remainder while the rail call was in flight.
	if refund.Amount.Cmp(payment.RemainingRefundable()) > 0 {
		if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			return apperror.ErrDatabaseError(err)
		}
		// The rail reversal already moved money the books cannot absorb.
		s.log.Error().
			Str("refund_id", refund.ID.String()).
			Str("payment_id", payment.ID.String()).
			Str("amount", refund.Amount.String()).
			Msg("rail reversal executed but refundable remainder exhausted, manual reconciliation required")
		if ferr := s.markFailed(ctx, refund, payment.ID,
			"rail reversal executed but refundable remainder exhausted; manual reconciliation required"); ferr != nil {
			return ferr
		}
		return apperror.ErrRefundExceedsPayment()
	}

	merchant, err := s.merchants.GetConfig(ctx, payment.MerchantID)
	if err != nil || merchant == nil {
		return apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}
	primary := domain.BucketPending
	if merchant.PayoutSchedule == domain.PayoutScheduleInstant {
		primary = domain.BucketAvailable
	}

	if err := s.debitAllocations(ctx, tx, payment, refund, primary); err != nil {
		return err
	}

	now := time.Now().UTC()
	payment.RefundedAmount, _ = payment.RefundedAmount.Add(refund.Amount)
	if payment.RemainingRefundable().IsZero() {
		payment.Status = domain.PaymentStatusRefunded
	} else {
		payment.Status = domain.PaymentStatusPartiallyRefunded
	}
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}

	refund.Status = domain.RefundStatusCompleted
	refund.CompletedAt = &now
	refund.UpdatedAt = now
	if err := s.refundRepo.Update(ctx, tx, refund); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, refund.MerchantID, domain.EventRefundCompleted, refund, domain.EventRefs{PaymentID: &payment.ID, RefundID: &refund.ID}); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue refund.completed: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("refund_id", refund.ID.String()).
		Str("payment_id", payment.ID.String()).
		Str("amount", refund.Amount.String()).
		Str("payment_status", string(payment.Status)).
		Msg("refund completed")

	return nil
}

// debitAllocations reverses the completion credits pro rata across the
// payment's original allocations. If the primary bucket cannot cover a
// share (funds already released or paid out of pending), the other cash
// bucket is tried before surfacing InsufficientBalance.
func (s *RefundServiceImpl) debitAllocations(ctx context.Context, tx pgx.Tx, payment *domain.Payment, refund *domain.Refund, primary domain.Bucket) error {
	weights := make([]domain.Money, len(payment.Allocations))
	for i, a := range payment.Allocations {
		weights[i] = a.EquivalentInPaymentCurrency
	}
	shares := splitProportional(refund.Amount, weights)

	fallback := domain.BucketAvailable
	if primary == domain.BucketAvailable {
		fallback = domain.BucketPending
	}

	order := lockOrder(payment.Allocations)
	for _, i := range order {
		alloc := payment.Allocations[i]
		if shares[i].IsZero() {
			continue
		}

		srcAmount := shares[i]
		if alloc.Currency != payment.Amount.Currency {
			ratio := shares[i].Amount.Div(alloc.EquivalentInPaymentCurrency.Amount)
			srcAmount = domain.Money{
				Amount:   alloc.Amount.Amount.Mul(ratio).Round(domain.CurrencyExponent(alloc.Currency)),
				Currency: alloc.Currency,
			}
		}

		op := domain.LedgerOp{
			IdempotencyKey: domain.RefundCompleteKey(refund.ID, i),
			Key: domain.BalanceKey{
				MerchantID: payment.MerchantID,
				Currency:   alloc.Currency,
				WalletType: alloc.WalletType,
			},
			Direction: domain.LedgerDebit,
			Bucket:    primary,
			Amount:    srcAmount,
			Counters: []domain.CounterDelta{
				{Counter: domain.CounterTotalRefunded, Amount: srcAmount},
			},
		}
		_, err := s.ledger.ApplyInTx(ctx, tx, op)
		if err != nil {
			var appErr *apperror.AppError
			if errors.As(err, &appErr) && appErr.Code == "LED_001" {
				op.Bucket = fallback
				if _, ferr := s.ledger.ApplyInTx(ctx, tx, op); ferr == nil {
					continue
				}
			}
			return err
		}
	}
	return nil
}

// markFailed records a FAILED refund and its refund.failed event.
func (s *RefundServiceImpl) markFailed(ctx context.Context, refund *domain.Refund, paymentID uuid.UUID, reason string) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	refund.Status = domain.RefundStatusFailed
	refund.FailureReason = &reason
	refund.UpdatedAt = time.Now().UTC()
	if err := s.refundRepo.Update(ctx, tx, refund); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update refund: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, refund.MerchantID, domain.EventRefundFailed, refund, domain.EventRefs{PaymentID: &paymentID, RefundID: &refund.ID}); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue refund.failed: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}
