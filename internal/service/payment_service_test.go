package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/internal/core/ports/mocks"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type paymentTestDeps struct {
	svc         *PaymentServiceImpl
	paymentRepo *mocks.MockPaymentRepository
	ledger      *mocks.MockLedgerService
	allocSvc    *mocks.MockAllocationService
	webhookSvc  *mocks.MockWebhookService
	merchants   *mocks.MockMerchantStore
	idempCache  *mocks.MockIdempotencyCache
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupPaymentService(t *testing.T) *paymentTestDeps {
	ctrl := gomock.NewController(t)
	d := &paymentTestDeps{
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		ledger:      mocks.NewMockLedgerService(ctrl),
		allocSvc:    mocks.NewMockAllocationService(ctrl),
		webhookSvc:  mocks.NewMockWebhookService(ctrl),
		merchants:   mocks.NewMockMerchantStore(ctrl),
		idempCache:  mocks.NewMockIdempotencyCache(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewPaymentService(
		d.paymentRepo, d.ledger, d.allocSvc, d.webhookSvc, d.merchants,
		d.idempCache, d.transactor, 30*time.Minute, zerolog.Nop(),
	)
	return d
}

func testMerchant(merchantID uuid.UUID) *domain.MerchantConfig {
	return &domain.MerchantConfig{
		ID:            merchantID,
		FeeType:       domain.FeeTypePercentage,
		FeePercentage: decimal.RequireFromString("2.5"),
	}
}

func usdtAllocation(amount string) domain.Allocation {
	m := domain.MustMoney(amount, "USDT")
	return domain.Allocation{
		WalletID:                    uuid.New(),
		WalletType:                  domain.WalletTypeSpot,
		Currency:                    "USDT",
		Amount:                      m,
		Rate:                        decimal.NewFromInt(1),
		EquivalentInPaymentCurrency: m,
	}
}

// ==================== Create ====================

func TestPayment_Create_Success(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := testMerchant(merchantID)
	amount := domain.MustMoney("100", "USDT")
	inventory := []domain.WalletFunds{{WalletID: uuid.New(), WalletType: domain.WalletTypeSpot, Currency: "USDT", Available: domain.MustMoney("500", "USDT")}}
	plan := []domain.Allocation{usdtAllocation("100")}

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)
	d.paymentRepo.EXPECT().GetByIntentID(ctx, merchantID, "pi_123").Return(nil, nil)
	d.merchants.EXPECT().GetWalletFunds(ctx, merchantID).Return(inventory, nil)
	d.allocSvc.EXPECT().Resolve(ctx, merchant, amount, inventory).Return(plan, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentCreated, gomock.Any(), gomock.Any()).Return(nil, nil)

	payment, err := d.svc.Create(ctx, ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: "pi_123",
		Amount:          amount,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPending, payment.Status)
	assert.True(t, payment.FeeAmount.Amount.Equal(decimal.RequireFromString("2.5")), "2.5%% of 100")
	assert.True(t, payment.NetAmount.Amount.Equal(decimal.RequireFromString("97.5")))
	assert.True(t, payment.RefundedAmount.IsZero())
	assert.Len(t, payment.Allocations, 1)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), payment.ExpiresAt, time.Minute)
}

func TestPayment_Create_DuplicateIntent(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(testMerchant(merchantID), nil)
	d.paymentRepo.EXPECT().GetByIntentID(ctx, merchantID, "pi_dup").Return(&domain.Payment{ID: uuid.New()}, nil)

	_, err := d.svc.Create(ctx, ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: "pi_dup",
		Amount:          domain.MustMoney("10", "USDT"),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_004", appErr.Code)
}

func TestPayment_Create_CurrencyNotAllowed(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := testMerchant(merchantID)
	merchant.AllowedCurrencies = []string{"BTC"}

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)

	_, err := d.svc.Create(ctx, ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: "pi_1",
		Amount:          domain.MustMoney("10", "USDT"),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_007", appErr.Code)
}

func TestPayment_Create_TransactionLimit(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := testMerchant(merchantID)
	merchant.TransactionLimit = decimal.RequireFromString("50")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)

	_, err := d.svc.Create(ctx, ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: "pi_1",
		Amount:          domain.MustMoney("51", "USDT"),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_006", appErr.Code)
}

func TestPayment_Create_DailyLimit(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := testMerchant(merchantID)
	merchant.DailyLimit = decimal.RequireFromString("100")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)
	// 60 completed today + 50 requested > 100.
	d.paymentRepo.EXPECT().SumCompletedSince(ctx, merchantID, "USDT", gomock.Any()).Return(decimal.RequireFromString("60"), nil)

	_, err := d.svc.Create(ctx, ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: "pi_1",
		Amount:          domain.MustMoney("50", "USDT"),
	})
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_006", appErr.Code)
}

// ==================== Complete ====================

func TestPayment_Complete_CreditsNetPerAllocation(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:              paymentID,
		MerchantID:      merchantID,
		PaymentIntentID: "pi_1",
		Amount:          domain.MustMoney("100", "USDT"),
		FeeAmount:       domain.MustMoney("2.5", "USDT"),
		NetAmount:       domain.MustMoney("97.5", "USDT"),
		RefundedAmount:  domain.ZeroMoney("USDT"),
		Status:          domain.PaymentStatusProcessing,
		Allocations:     []domain.Allocation{usdtAllocation("100")},
		ExpiresAt:       time.Now().UTC().Add(time.Hour),
	}
	cacheKey := "payment:" + paymentID.String() + ":completed"

	d.idempCache.EXPECT().Get(ctx, cacheKey).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(testMerchant(merchantID), nil)
	d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
			assert.Equal(t, domain.PaymentCompleteKey(paymentID, 0), op.IdempotencyKey)
			assert.Equal(t, domain.LedgerCredit, op.Direction)
			assert.Equal(t, domain.BucketPending, op.Bucket, "non-instant schedule credits pending")
			assert.True(t, op.Amount.Amount.Equal(decimal.RequireFromString("97.5")), "net credited, got %s", op.Amount)
			require.Len(t, op.Counters, 2)
			assert.True(t, op.Counters[0].Amount.Amount.Equal(decimal.RequireFromString("100")), "gross counter")
			assert.True(t, op.Counters[1].Amount.Amount.Equal(decimal.RequireFromString("2.5")), "fee counter")
			return true, nil
		})
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentCompleted, gomock.Any(), gomock.Any()).Return(nil, nil)
	d.idempCache.EXPECT().Set(ctx, cacheKey, gomock.Any(), gomock.Any()).Return(nil)

	got, err := d.svc.Complete(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
	require.NotNil(t, got.CompletedAt)
}

func TestPayment_Complete_InstantScheduleCreditsAvailable(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:             paymentID,
		MerchantID:     merchantID,
		Amount:         domain.MustMoney("100", "USDT"),
		FeeAmount:      domain.ZeroMoney("USDT"),
		NetAmount:      domain.MustMoney("100", "USDT"),
		RefundedAmount: domain.ZeroMoney("USDT"),
		Status:         domain.PaymentStatusProcessing,
		Allocations:    []domain.Allocation{usdtAllocation("100")},
		ExpiresAt:      time.Now().UTC().Add(time.Hour),
	}
	merchant := testMerchant(merchantID)
	merchant.FeeType = domain.FeeType("")
	merchant.PayoutSchedule = domain.PayoutScheduleInstant

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)
	d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
			assert.Equal(t, domain.BucketAvailable, op.Bucket, "instant schedule skips pending")
			return true, nil
		})
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentCompleted, gomock.Any(), gomock.Any()).Return(nil, nil)
	d.idempCache.EXPECT().Set(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	_, err := d.svc.Complete(ctx, paymentID)
	require.NoError(t, err)
}

func TestPayment_Complete_ReplayFromCache(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()
	completed := &domain.Payment{ID: paymentID, Status: domain.PaymentStatusCompleted}
	cached, _ := json.Marshal(completed)

	d.idempCache.EXPECT().Get(ctx, "payment:"+paymentID.String()+":completed").Return(cached, nil)
	// No DB access at all.

	got, err := d.svc.Complete(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
}

func TestPayment_Complete_ReplayFromDB(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()
	payment := &domain.Payment{ID: paymentID, Status: domain.PaymentStatusCompleted}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	// No ledger calls: the credits already happened.

	got, err := d.svc.Complete(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, got.Status)
}

func TestPayment_Complete_ExpiredPayment(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:         paymentID,
		MerchantID: merchantID,
		Status:     domain.PaymentStatusProcessing,
		ExpiresAt:  time.Now().UTC().Add(-time.Minute),
	}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentExpired, gomock.Any(), gomock.Any()).Return(nil, nil)

	_, err := d.svc.Complete(ctx, paymentID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_005", appErr.Code)
	assert.Equal(t, domain.PaymentStatusExpired, payment.Status, "deadline persisted as EXPIRED")
}

func TestPayment_Complete_InvalidTransition(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:        paymentID,
		Status:    domain.PaymentStatusCancelled,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	d.idempCache.EXPECT().Get(ctx, gomock.Any()).Return(nil, nil)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)

	_, err := d.svc.Complete(ctx, paymentID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_003", appErr.Code)
}

// ==================== Transitions ====================

func TestPayment_MarkProcessing(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:        paymentID,
		Status:    domain.PaymentStatusPending,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)

	got, err := d.svc.MarkProcessing(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, got.Status)
}

func TestPayment_MarkProcessing_Idempotent(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:        paymentID,
		Status:    domain.PaymentStatusProcessing,
		ExpiresAt: time.Now().UTC().Add(time.Hour),
	}

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	// No Update call.

	got, err := d.svc.MarkProcessing(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, got.Status)
}

func TestPayment_Cancel_FromPending(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:         paymentID,
		MerchantID: merchantID,
		Status:     domain.PaymentStatusPending,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentCancelled, gomock.Any(), gomock.Any()).Return(nil, nil)

	got, err := d.svc.Cancel(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCancelled, got.Status)
}

func TestPayment_Fail_RecordsReason(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	paymentID := uuid.New()
	payment := &domain.Payment{
		ID:         paymentID,
		MerchantID: merchantID,
		Status:     domain.PaymentStatusProcessing,
		ExpiresAt:  time.Now().UTC().Add(time.Hour),
	}

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(payment, nil)
	d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentFailed, gomock.Any(), gomock.Any()).Return(nil, nil)

	got, err := d.svc.Fail(ctx, paymentID, "rail declined")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Equal(t, "rail declined", *got.FailureReason)
}

func TestPayment_SweepExpired(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	stale := []domain.Payment{
		{ID: uuid.New(), MerchantID: merchantID, Status: domain.PaymentStatusPending, ExpiresAt: time.Now().UTC().Add(-time.Hour)},
		{ID: uuid.New(), MerchantID: merchantID, Status: domain.PaymentStatusPending, ExpiresAt: time.Now().UTC().Add(-time.Hour)},
	}

	d.paymentRepo.EXPECT().ListExpired(ctx, gomock.Any(), 100).Return(stale, nil)
	for i := range stale {
		p := stale[i]
		d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
		d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), p.ID).Return(&p, nil)
		d.paymentRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil)
		d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPaymentExpired, gomock.Any(), gomock.Any()).Return(nil, nil)
	}

	n, err := d.svc.SweepExpired(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPayment_NotFound(t *testing.T) {
	d := setupPaymentService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	paymentID := uuid.New()

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil)
	d.paymentRepo.EXPECT().GetByIDForUpdate(ctx, gomock.Any(), paymentID).Return(nil, nil)

	_, err := d.svc.Cancel(ctx, paymentID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}
