package service

import (
	"context"
	"fmt"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PayoutServiceImpl implements ports.PayoutService. A payout holds the gross
// amount in the reserved bucket while the disbursement rail runs, so the
// ledger identity holds at every instant and counters stay monotonic:
// confirmation debits reserved and bumps totalPaidOut, failure moves the
// hold back to available.
type PayoutServiceImpl struct {
	payoutRepo  ports.PayoutRepository
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
	ledger      ports.LedgerService
	webhookSvc  ports.WebhookService
	merchants   ports.MerchantStore
	rail        ports.DisbursementRail
	transactor  ports.DBTransactor
	log         zerolog.Logger
}

// NewPayoutService creates a new PayoutServiceImpl.
func NewPayoutService(
	payoutRepo ports.PayoutRepository,
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	ledger ports.LedgerService,
	webhookSvc ports.WebhookService,
	merchants ports.MerchantStore,
	rail ports.DisbursementRail,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *PayoutServiceImpl {
	return &PayoutServiceImpl{
		payoutRepo:  payoutRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		ledger:      ledger,
		webhookSvc:  webhookSvc,
		merchants:   merchants,
		rail:        rail,
		transactor:  transactor,
		log:         log,
	}
}

// schedulePeriod maps a payout schedule to its aggregation window.
func schedulePeriod(schedule domain.PayoutSchedule, now time.Time) time.Time {
	switch schedule {
	case domain.PayoutScheduleDaily:
		return now.Add(-24 * time.Hour)
	case domain.PayoutScheduleWeekly:
		return now.Add(-7 * 24 * time.Hour)
	case domain.PayoutScheduleMonthly:
		return now.AddDate(0, -1, 0)
	default:
		return now
	}
}

// TriggerPayouts runs one payout pass for a merchant: every balance whose
// available meets the threshold is snapshotted and disbursed.
func (s *PayoutServiceImpl) TriggerPayouts(ctx context.Context, merchantID uuid.UUID) ([]domain.Payout, error) {
	merchant, err := s.merchants.GetConfig(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}

	if err := s.ReleasePending(ctx, merchantID); err != nil {
		return nil, err
	}

	balances, err := s.ledger.ListBalances(ctx, merchantID)
	if err != nil {
		return nil, err
	}

	var payouts []domain.Payout
	for i := range balances {
		balance := &balances[i]
		if !balance.Available.IsPositive() {
			continue
		}
		if balance.Available.Amount.Cmp(merchant.PayoutThreshold) < 0 {
			continue
		}

		payout, err := s.runPayout(ctx, merchant, balance)
		if err != nil {
			return payouts, err
		}
		payouts = append(payouts, *payout)
	}
	return payouts, nil
}

// runPayout executes a single balance's payout end to end.
func (s *PayoutServiceImpl) runPayout(ctx context.Context, merchant *domain.MerchantConfig, balance *domain.Balance) (*domain.Payout, error) {
	now := time.Now().UTC()
	gross := balance.Available
	fee := merchant.ComputeFee(gross)
	net, err := gross.Sub(fee)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if net.IsNegative() {
		net = domain.ZeroMoney(gross.Currency)
		fee = gross
	}

	periodStart := schedulePeriod(merchant.PayoutSchedule, now)
	paymentCount, err := s.paymentRepo.CountCompletedBetween(ctx, merchant.ID, balance.Currency, periodStart, now)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("count payments: %w", err))
	}
	refundCount, err := s.refundRepo.CountCompletedBetween(ctx, merchant.ID, balance.Currency, periodStart, now)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("count refunds: %w", err))
	}

	payout := &domain.Payout{
		ID:           uuid.New(),
		MerchantID:   merchant.ID,
		Currency:     balance.Currency,
		WalletType:   balance.WalletType,
		PeriodStart:  periodStart,
		PeriodEnd:    now,
		GrossAmount:  gross,
		FeeAmount:    fee,
		NetAmount:    net,
		PaymentCount: paymentCount,
		RefundCount:  refundCount,
		Status:       domain.PayoutStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// Hold the gross in reserved while the rail runs.
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.payoutRepo.Create(ctx, tx, payout); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payout: %w", err))
	}
	if _, err := s.ledger.ApplyInTx(ctx, tx, domain.LedgerOp{
		IdempotencyKey: domain.PayoutHoldKey(payout.ID),
		Key:            balance.Key(),
		Direction:      domain.LedgerMove,
		Bucket:         domain.BucketAvailable,
		ToBucket:       domain.BucketReserved,
		Amount:         gross,
	}); err != nil {
		return nil, err
	}
	payout.Status = domain.PayoutStatusProcessing
	payout.UpdatedAt = time.Now().UTC()
	if err := s.payoutRepo.Update(ctx, tx, payout); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payout: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	// The payout id is the rail idempotency token: retries cannot disburse
	// twice.
	if err := s.rail.Disburse(ctx, payout.ID.String(), merchant.ID, net); err != nil {
		s.log.Warn().Err(err).
			Str("payout_id", payout.ID.String()).
			Str("gross", gross.String()).
			Msg("disbursement rail failed, compensating")
		if cerr := s.compensate(ctx, payout, balance.Key(), gross, err.Error()); cerr != nil {
			return nil, cerr
		}
		return payout, nil
	}

	if err := s.confirm(ctx, payout, balance.Key(), gross); err != nil {
		return nil, err
	}
	return payout, nil
}

// confirm finalizes a disbursed payout: reserved debit + totalPaidOut.
func (s *PayoutServiceImpl) confirm(ctx context.Context, payout *domain.Payout, key domain.BalanceKey, gross domain.Money) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.ledger.ApplyInTx(ctx, tx, domain.LedgerOp{
		IdempotencyKey: domain.PayoutCompleteKey(payout.ID),
		Key:            key,
		Direction:      domain.LedgerDebit,
		Bucket:         domain.BucketReserved,
		Amount:         gross,
		Counters: []domain.CounterDelta{
			{Counter: domain.CounterTotalPaidOut, Amount: gross},
		},
	}); err != nil {
		return err
	}

	now := time.Now().UTC()
	payout.Status = domain.PayoutStatusCompleted
	payout.CompletedAt = &now
	payout.UpdatedAt = now
	if err := s.payoutRepo.Update(ctx, tx, payout); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update payout: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payout.MerchantID, domain.EventPayoutCompleted, payout, domain.EventRefs{PayoutID: &payout.ID}); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue payout.completed: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payout_id", payout.ID.String()).
		Str("net", payout.NetAmount.String()).
		Msg("payout completed")

	return nil
}

// compensate returns the held gross to available after a rail failure.
func (s *PayoutServiceImpl) compensate(ctx context.Context, payout *domain.Payout, key domain.BalanceKey, gross domain.Money, reason string) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := s.ledger.ApplyInTx(ctx, tx, domain.LedgerOp{
		IdempotencyKey: domain.PayoutCompensateKey(payout.ID),
		Key:            key,
		Direction:      domain.LedgerMove,
		Bucket:         domain.BucketReserved,
		ToBucket:       domain.BucketAvailable,
		Amount:         gross,
	}); err != nil {
		return err
	}

	payout.Status = domain.PayoutStatusFailed
	payout.FailureReason = &reason
	payout.UpdatedAt = time.Now().UTC()
	if err := s.payoutRepo.Update(ctx, tx, payout); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("update payout: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payout.MerchantID, domain.EventPayoutFailed, payout, domain.EventRefs{PayoutID: &payout.ID}); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue payout.failed: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// ReleasePending moves payout-eligible pending funds into available for
// merchants on a scheduled (non-instant) payout plan. The release key is
// derived from the UTC day so repeated passes within a day are no-ops.
func (s *PayoutServiceImpl) ReleasePending(ctx context.Context, merchantID uuid.UUID) error {
	merchant, err := s.merchants.GetConfig(ctx, merchantID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}
	if merchant == nil {
		return apperror.ErrNotFound("merchant")
	}
	if merchant.PayoutSchedule == domain.PayoutScheduleInstant {
		return nil
	}

	balances, err := s.ledger.ListBalances(ctx, merchantID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	periodEnd := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	for i := range balances {
		balance := &balances[i]
		if !balance.Pending.IsPositive() {
			continue
		}
		err := s.ledger.Apply(ctx, domain.LedgerOp{
			IdempotencyKey: domain.PendingReleaseKey(balance.Key(), periodEnd),
			Key:            balance.Key(),
			Direction:      domain.LedgerMove,
			Bucket:         domain.BucketPending,
			ToBucket:       domain.BucketAvailable,
			Amount:         balance.Pending,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
