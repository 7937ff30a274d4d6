package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

const (
	defaultPaymentExpiry = 30 * time.Minute
	completionCacheTTL   = 24 * time.Hour
)

// PaymentServiceImpl implements ports.PaymentService: the payment state
// machine and its ledger effects.
type PaymentServiceImpl struct {
	paymentRepo ports.PaymentRepository
	ledger      ports.LedgerService
	allocSvc    ports.AllocationService
	webhookSvc  ports.WebhookService
	merchants   ports.MerchantStore
	idempCache  ports.IdempotencyCache
	transactor  ports.DBTransactor
	expiry      time.Duration
	log         zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl. expiry is the default
// payment deadline; zero selects the built-in default.
func NewPaymentService(
	paymentRepo ports.PaymentRepository,
	ledger ports.LedgerService,
	allocSvc ports.AllocationService,
	webhookSvc ports.WebhookService,
	merchants ports.MerchantStore,
	idempCache ports.IdempotencyCache,
	transactor ports.DBTransactor,
	expiry time.Duration,
	log zerolog.Logger,
) *PaymentServiceImpl {
	if expiry <= 0 {
		expiry = defaultPaymentExpiry
	}
	return &PaymentServiceImpl{
		paymentRepo: paymentRepo,
		ledger:      ledger,
		allocSvc:    allocSvc,
		webhookSvc:  webhookSvc,
		merchants:   merchants,
		idempCache:  idempCache,
		transactor:  transactor,
		expiry:      expiry,
		log:         log,
	}
}

// Create opens a PENDING payment: validates merchant limits, computes the
// fee, resolves and freezes the allocation plan, and enqueues
// payment.created in the same transaction as the row insert.
func (s *PaymentServiceImpl) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.PaymentIntentID == "" {
		return nil, apperror.Validation("payment_intent_id is required")
	}

	merchant, err := s.merchants.GetConfig(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if !merchant.AllowsCurrency(req.Amount.Currency) {
		return nil, apperror.ErrCurrencyNotAllowed(req.Amount.Currency)
	}
	if err := s.checkLimits(ctx, merchant, req.Amount); err != nil {
		return nil, err
	}

	existing, err := s.paymentRepo.GetByIntentID(ctx, req.MerchantID, req.PaymentIntentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("check intent: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrDuplicateIntent()
	}

	inventory, err := s.merchants.GetWalletFunds(ctx, req.MerchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch wallet funds: %w", err))
	}
	allocations, err := s.allocSvc.Resolve(ctx, merchant, req.Amount, inventory)
	if err != nil {
		return nil, err
	}

	fee := merchant.ComputeFee(req.Amount)
	net, err := req.Amount.Sub(fee)
	if err != nil {
		return nil, apperror.InternalError(err)
	}
	if net.IsNegative() {
		return nil, apperror.Validation("fee exceeds payment amount")
	}

	expiresIn := req.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = s.expiry
	}

	now := time.Now().UTC()
	payment := &domain.Payment{
		ID:              uuid.New(),
		PaymentIntentID: req.PaymentIntentID,
		MerchantID:      req.MerchantID,
		Amount:          req.Amount,
		FeeAmount:       fee,
		NetAmount:       net,
		Status:          domain.PaymentStatusPending,
		Allocations:     allocations,
		RefundedAmount:  domain.ZeroMoney(req.Amount.Currency),
		ExpiresAt:       now.Add(expiresIn),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := s.paymentRepo.Create(ctx, tx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create payment: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payment.MerchantID, domain.EventPaymentCreated, payment, domain.EventRefs{PaymentID: &payment.ID}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue payment.created: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("intent_id", payment.PaymentIntentID).
		Str("amount", payment.Amount.String()).
		Str("fee", payment.FeeAmount.String()).
		Int("allocations", len(payment.Allocations)).
		Msg("payment created")

	return payment, nil
}

// checkLimits enforces the merchant's transaction/daily/monthly caps.
func (s *PaymentServiceImpl) checkLimits(ctx context.Context, merchant *domain.MerchantConfig, amount domain.Money) error {
	if merchant.TransactionLimit.IsPositive() && amount.Amount.Cmp(merchant.TransactionLimit) > 0 {
		return apperror.ErrTransactionLimitExceeded()
	}

	now := time.Now().UTC()
	if merchant.DailyLimit.IsPositive() {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		sum, err := s.paymentRepo.SumCompletedSince(ctx, merchant.ID, amount.Currency, dayStart)
		if err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("daily limit check: %w", err))
		}
		if sum.Add(amount.Amount).Cmp(merchant.DailyLimit) > 0 {
			return apperror.ErrTransactionLimitExceeded()
		}
	}
	if merchant.MonthlyLimit.IsPositive() {
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		sum, err := s.paymentRepo.SumCompletedSince(ctx, merchant.ID, amount.Currency, monthStart)
		if err != nil {
			return apperror.ErrDatabaseError(fmt.Errorf("monthly limit check: %w", err))
		}
		if sum.Add(amount.Amount).Cmp(merchant.MonthlyLimit) > 0 {
			return apperror.ErrTransactionLimitExceeded()
		}
	}
	return nil
}

// MarkProcessing moves PENDING -> PROCESSING on first funding confirmation.
// Re-entry while already PROCESSING is a no-op.
func (s *PaymentServiceImpl) MarkProcessing(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	payment, err := s.lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == domain.PaymentStatusProcessing {
		return payment, tx.Commit(ctx)
	}
	if payment.IsExpired(time.Now().UTC()) {
		if err := s.expireLocked(ctx, tx, payment); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
		}
		return payment, apperror.ErrPaymentExpired()
	}
	if !domain.CanTransition(payment.Status, domain.PaymentStatusProcessing) {
		return nil, apperror.ErrInvalidTransition(string(payment.Status), string(domain.PaymentStatusProcessing))
	}

	payment.Status = domain.PaymentStatusProcessing
	payment.UpdatedAt = time.Now().UTC()
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}
	return payment, nil
}

// Complete drives PROCESSING -> COMPLETED: per-allocation net credits,
// counter increments, completedAt, and the payment.completed event, all in
// one transaction guarded by the payment row lock. Replays credit nothing.
func (s *PaymentServiceImpl) Complete(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	cacheKey := "payment:" + paymentID.String() + ":completed"
	if cached, err := s.idempCache.Get(ctx, cacheKey); err != nil {
		s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("idempotency cache check failed, falling through to DB")
	} else if cached != nil {
		return unmarshalPayment(cached)
	}

	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	payment, err := s.lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}

	switch payment.Status {
	case domain.PaymentStatusCompleted,
		domain.PaymentStatusRefunded,
		domain.PaymentStatusPartiallyRefunded:
		// Replayed completion: the ledger already has the credits.
		return payment, nil
	}

	now := time.Now().UTC()
	if payment.IsExpired(now) {
		if err := s.expireLocked(ctx, tx, payment); err != nil {
			return nil, err
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
		}
		return payment, apperror.ErrPaymentExpired()
	}
	if !domain.CanTransition(payment.Status, domain.PaymentStatusCompleted) {
		return nil, apperror.ErrInvalidTransition(string(payment.Status), string(domain.PaymentStatusCompleted))
	}

	merchant, err := s.merchants.GetConfig(ctx, payment.MerchantID)
	if err != nil || merchant == nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}

	bucket := domain.BucketPending
	if merchant.PayoutSchedule == domain.PayoutScheduleInstant {
		bucket = domain.BucketAvailable
	}

	if err := s.creditAllocations(ctx, tx, payment, bucket); err != nil {
		return nil, err
	}

	payment.Status = domain.PaymentStatusCompleted
	payment.CompletedAt = &now
	payment.UpdatedAt = now
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payment.MerchantID, domain.EventPaymentCompleted, payment, domain.EventRefs{PaymentID: &payment.ID}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue payment.completed: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	if respJSON, err := json.Marshal(payment); err == nil {
		if err := s.idempCache.Set(ctx, cacheKey, respJSON, completionCacheTTL); err != nil {
			s.log.Warn().Err(err).Str("payment_id", paymentID.String()).Msg("failed to cache completion")
		}
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("net", payment.NetAmount.String()).
		Str("bucket", string(bucket)).
		Msg("payment completed")

	return payment, nil
}

// creditAllocations applies the per-allocation ledger credits. Balance rows
// are locked in deterministic (currency, walletType) order; each mutation
// carries its own idempotency key so crash-replays skip applied rows.
func (s *PaymentServiceImpl) creditAllocations(ctx context.Context, tx pgx.Tx, payment *domain.Payment, bucket domain.Bucket) error {
	weights := make([]domain.Money, len(payment.Allocations))
	for i, a := range payment.Allocations {
		weights[i] = a.EquivalentInPaymentCurrency
	}
	feeShares := splitProportional(payment.FeeAmount, weights)

	order := lockOrder(payment.Allocations)
	for _, i := range order {
		alloc := payment.Allocations[i]
		gross := alloc.Amount

		feeSrc := feeShares[i]
		if alloc.Currency != payment.Amount.Currency {
			feeSrc = domain.Money{
				Amount:   feeShares[i].Amount.Div(alloc.Rate).Round(domain.CurrencyExponent(alloc.Currency)),
				Currency: alloc.Currency,
			}
		}
		if feeSrc.Cmp(gross) > 0 {
			feeSrc = gross
		}
		net, err := gross.Sub(feeSrc)
		if err != nil {
			return apperror.InternalError(err)
		}

		op := domain.LedgerOp{
			IdempotencyKey: domain.PaymentCompleteKey(payment.ID, i),
			Key: domain.BalanceKey{
				MerchantID: payment.MerchantID,
				Currency:   alloc.Currency,
				WalletType: alloc.WalletType,
			},
			Direction: domain.LedgerCredit,
			Bucket:    bucket,
			Amount:    net,
			Counters: []domain.CounterDelta{
				{Counter: domain.CounterTotalReceived, Amount: gross},
				{Counter: domain.CounterTotalFees, Amount: feeSrc},
			},
		}
		if _, err := s.ledger.ApplyInTx(ctx, tx, op); err != nil {
			return err
		}
	}
	return nil
}

// lockOrder returns allocation indices sorted by (currency, walletType) so
// concurrent multi-row mutations never deadlock.
func lockOrder(allocations []domain.Allocation) []int {
	order := make([]int, len(allocations))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		ai, bi := allocations[order[a]], allocations[order[b]]
		if ai.Currency != bi.Currency {
			return ai.Currency < bi.Currency
		}
		return ai.WalletType < bi.WalletType
	})
	return order
}

// Fail moves the payment to FAILED. No ledger effect.
func (s *PaymentServiceImpl) Fail(ctx context.Context, paymentID uuid.UUID, reason string) (*domain.Payment, error) {
	return s.transitionNoLedger(ctx, paymentID, domain.PaymentStatusFailed, reason, domain.EventPaymentFailed)
}

// Cancel moves the payment to CANCELLED. No ledger effect.
func (s *PaymentServiceImpl) Cancel(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return s.transitionNoLedger(ctx, paymentID, domain.PaymentStatusCancelled, "", domain.EventPaymentCancelled)
}

// Expire moves a stale payment to EXPIRED. No ledger effect.
func (s *PaymentServiceImpl) Expire(ctx context.Context, paymentID uuid.UUID) (*domain.Payment, error) {
	return s.transitionNoLedger(ctx, paymentID, domain.PaymentStatusExpired, "", domain.EventPaymentExpired)
}

func (s *PaymentServiceImpl) transitionNoLedger(
	ctx context.Context,
	paymentID uuid.UUID,
	to domain.PaymentStatus,
	reason string,
	eventType domain.WebhookEventType,
) (*domain.Payment, error) {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	payment, err := s.lockPayment(ctx, tx, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.Status == to {
		return payment, tx.Commit(ctx)
	}
	if !domain.CanTransition(payment.Status, to) {
		return nil, apperror.ErrInvalidTransition(string(payment.Status), string(to))
	}

	payment.Status = to
	if reason != "" {
		payment.FailureReason = &reason
	}
	payment.UpdatedAt = time.Now().UTC()
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("update payment: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payment.MerchantID, eventType, payment, domain.EventRefs{PaymentID: &payment.ID}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("enqueue %s: %w", eventType, err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("status", string(to)).
		Msg("payment transitioned")

	return payment, nil
}

// expireLocked persists EXPIRED for an already-locked payment.
func (s *PaymentServiceImpl) expireLocked(ctx context.Context, tx pgx.Tx, payment *domain.Payment) error {
	payment.Status = domain.PaymentStatusExpired
	payment.UpdatedAt = time.Now().UTC()
	if err := s.paymentRepo.Update(ctx, tx, payment); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("expire payment: %w", err))
	}
	if _, err := s.webhookSvc.Enqueue(ctx, tx, payment.MerchantID, domain.EventPaymentExpired, payment, domain.EventRefs{PaymentID: &payment.ID}); err != nil {
		return apperror.InternalError(fmt.Errorf("enqueue payment.expired: %w", err))
	}
	return nil
}

// SweepExpired proactively expires stale PENDING/PROCESSING payments.
func (s *PaymentServiceImpl) SweepExpired(ctx context.Context, limit int) (int, error) {
	stale, err := s.paymentRepo.ListExpired(ctx, time.Now().UTC(), limit)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list expired: %w", err))
	}

	expired := 0
	for i := range stale {
		if _, err := s.Expire(ctx, stale[i].ID); err != nil {
			// A concurrent transition beat the sweeper; skip.
			s.log.Debug().Err(err).Str("payment_id", stale[i].ID.String()).Msg("sweep skip")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *PaymentServiceImpl) lockPayment(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByIDForUpdate(ctx, tx, paymentID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return payment, nil
}

func unmarshalPayment(data []byte) (*domain.Payment, error) {
	payment := &domain.Payment{}
	if err := json.Unmarshal(data, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("unmarshal cached payment: %w", err))
	}
	return payment, nil
}
