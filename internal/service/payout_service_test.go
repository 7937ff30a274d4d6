package service

import (
	"context"
	"errors"
	"testing"

	"crypto-payment-ledger/internal/core/domain"
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

type payoutTestDeps struct {
	svc         *PayoutServiceImpl
	payoutRepo  *mocks.MockPayoutRepository
	paymentRepo *mocks.MockPaymentRepository
	refundRepo  *mocks.MockRefundRepository
	ledger      *mocks.MockLedgerService
	webhookSvc  *mocks.MockWebhookService
	merchants   *mocks.MockMerchantStore
	rail        *mocks.MockDisbursementRail
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupPayoutService(t *testing.T) *payoutTestDeps {
	ctrl := gomock.NewController(t)
	d := &payoutTestDeps{
		payoutRepo:  mocks.NewMockPayoutRepository(ctrl),
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		refundRepo:  mocks.NewMockRefundRepository(ctrl),
		ledger:      mocks.NewMockLedgerService(ctrl),
		webhookSvc:  mocks.NewMockWebhookService(ctrl),
		merchants:   mocks.NewMockMerchantStore(ctrl),
		rail:        mocks.NewMockDisbursementRail(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewPayoutService(
		d.payoutRepo, d.paymentRepo, d.refundRepo, d.ledger, d.webhookSvc,
		d.merchants, d.rail, d.transactor, zerolog.Nop(),
	)
	return d
}

func payoutMerchant(merchantID uuid.UUID) *domain.MerchantConfig {
	return &domain.MerchantConfig{
		ID:              merchantID,
		FeeType:         domain.FeeTypePercentage,
		FeePercentage:   decimal.RequireFromString("2.5"),
		PayoutSchedule:  domain.PayoutScheduleDaily,
		PayoutThreshold: decimal.NewFromInt(10),
	}
}

func payableBalance(merchantID uuid.UUID, available string) domain.Balance {
	b := domain.NewBalance(domain.BalanceKey{
		MerchantID: merchantID,
		Currency:   "USDT",
		WalletType: domain.WalletTypeSpot,
	})
	b.Available = domain.MustMoney(available, "USDT")
	b.TotalReceived = domain.MustMoney(available, "USDT")
	return *b
}

func TestPayout_TriggerPayouts_Success(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := payoutMerchant(merchantID)
	balance := payableBalance(merchantID, "100")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil).Times(2)
	d.ledger.EXPECT().ListBalances(ctx, merchantID).Return([]domain.Balance{balance}, nil).Times(2)

	// Hold phase: gross parked in reserved while the rail runs.
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil).Times(2)
	d.paymentRepo.EXPECT().CountCompletedBetween(ctx, merchantID, "USDT", gomock.Any(), gomock.Any()).Return(3, nil)
	d.refundRepo.EXPECT().CountCompletedBetween(ctx, merchantID, "USDT", gomock.Any(), gomock.Any()).Return(1, nil)
	d.payoutRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	gomock.InOrder(
		d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
				assert.Equal(t, domain.LedgerMove, op.Direction)
				assert.Equal(t, domain.BucketAvailable, op.Bucket)
				assert.Equal(t, domain.BucketReserved, op.ToBucket)
				assert.True(t, op.Amount.Amount.Equal(decimal.RequireFromString("100")))
				return true, nil
			}),
		d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
				assert.Equal(t, domain.LedgerDebit, op.Direction)
				assert.Equal(t, domain.BucketReserved, op.Bucket)
				require.Len(t, op.Counters, 1)
				assert.Equal(t, domain.CounterTotalPaidOut, op.Counters[0].Counter)
				assert.True(t, op.Counters[0].Amount.Amount.Equal(decimal.RequireFromString("100")))
				return true, nil
			}),
	)
	d.payoutRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil).Times(2)

	// Net of the 2.5% fee goes out on the rail, keyed by the payout id.
	d.rail.EXPECT().Disburse(ctx, gomock.Any(), merchantID, gomock.Any()).DoAndReturn(
		func(_ context.Context, token string, _ uuid.UUID, net domain.Money) error {
			assert.True(t, net.Amount.Equal(decimal.RequireFromString("97.5")))
			_, err := uuid.Parse(token)
			assert.NoError(t, err, "rail token is the payout id")
			return nil
		})
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPayoutCompleted, gomock.Any(), gomock.Any()).Return(nil, nil)

	payouts, err := d.svc.TriggerPayouts(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	p := payouts[0]
	assert.Equal(t, domain.PayoutStatusCompleted, p.Status)
	assert.True(t, p.GrossAmount.Amount.Equal(decimal.RequireFromString("100")))
	assert.True(t, p.FeeAmount.Amount.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, p.NetAmount.Amount.Equal(decimal.RequireFromString("97.5")))
	assert.Equal(t, 3, p.PaymentCount)
	assert.Equal(t, 1, p.RefundCount)
	require.NotNil(t, p.CompletedAt)
}

func TestPayout_TriggerPayouts_BelowThresholdSkipped(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	balance := payableBalance(merchantID, "5") // threshold is 10

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(payoutMerchant(merchantID), nil).Times(2)
	d.ledger.EXPECT().ListBalances(ctx, merchantID).Return([]domain.Balance{balance}, nil).Times(2)

	payouts, err := d.svc.TriggerPayouts(ctx, merchantID)
	require.NoError(t, err)
	assert.Empty(t, payouts)
}

func TestPayout_TriggerPayouts_RailFailureCompensates(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	balance := payableBalance(merchantID, "100")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(payoutMerchant(merchantID), nil).Times(2)
	d.ledger.EXPECT().ListBalances(ctx, merchantID).Return([]domain.Balance{balance}, nil).Times(2)
	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil).Times(2)
	d.paymentRepo.EXPECT().CountCompletedBetween(ctx, merchantID, "USDT", gomock.Any(), gomock.Any()).Return(0, nil)
	d.refundRepo.EXPECT().CountCompletedBetween(ctx, merchantID, "USDT", gomock.Any(), gomock.Any()).Return(0, nil)
	d.payoutRepo.EXPECT().Create(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.payoutRepo.EXPECT().Update(ctx, gomock.Any(), gomock.Any()).Return(nil).Times(2)

	d.rail.EXPECT().Disburse(ctx, gomock.Any(), merchantID, gomock.Any()).Return(errors.New("rail down"))

	// Hold then compensation: the held gross goes back to available and no
	// counter moves.
	gomock.InOrder(
		d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
				assert.Equal(t, domain.BucketReserved, op.ToBucket)
				return true, nil
			}),
		d.ledger.EXPECT().ApplyInTx(ctx, gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, _ pgx.Tx, op domain.LedgerOp) (bool, error) {
				assert.Equal(t, domain.LedgerMove, op.Direction)
				assert.Equal(t, domain.BucketReserved, op.Bucket)
				assert.Equal(t, domain.BucketAvailable, op.ToBucket)
				assert.Empty(t, op.Counters)
				return true, nil
			}),
	)
	d.webhookSvc.EXPECT().Enqueue(ctx, gomock.Any(), merchantID, domain.EventPayoutFailed, gomock.Any(), gomock.Any()).Return(nil, nil)

	payouts, err := d.svc.TriggerPayouts(ctx, merchantID)
	require.NoError(t, err, "rail failure is absorbed into the payout record")
	require.Len(t, payouts, 1)
	assert.Equal(t, domain.PayoutStatusFailed, payouts[0].Status)
	require.NotNil(t, payouts[0].FailureReason)
	assert.Contains(t, *payouts[0].FailureReason, "rail down")
}

func TestPayout_TriggerPayouts_MerchantNotFound(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(nil, nil)

	_, err := d.svc.TriggerPayouts(ctx, merchantID)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestPayout_ReleasePending_InstantScheduleIsNoop(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	merchant := payoutMerchant(merchantID)
	merchant.PayoutSchedule = domain.PayoutScheduleInstant

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(merchant, nil)
	// No balance listing, no ledger ops.

	require.NoError(t, d.svc.ReleasePending(ctx, merchantID))
}

func TestPayout_ReleasePending_MovesPendingToAvailable(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	balance := payableBalance(merchantID, "0")
	balance.Pending = domain.MustMoney("75", "USDT")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(payoutMerchant(merchantID), nil)
	d.ledger.EXPECT().ListBalances(ctx, merchantID).Return([]domain.Balance{balance}, nil)
	d.ledger.EXPECT().Apply(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ops ...domain.LedgerOp) error {
			require.Len(t, ops, 1)
			op := ops[0]
			assert.Equal(t, domain.LedgerMove, op.Direction)
			assert.Equal(t, domain.BucketPending, op.Bucket)
			assert.Equal(t, domain.BucketAvailable, op.ToBucket)
			assert.True(t, op.Amount.Amount.Equal(decimal.RequireFromString("75")))
			assert.Contains(t, op.IdempotencyKey, "release:")
			return nil
		})

	require.NoError(t, d.svc.ReleasePending(ctx, merchantID))
}

func TestPayout_ReleasePending_SameDayReplayIsIdempotent(t *testing.T) {
	d := setupPayoutService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()
	balance := payableBalance(merchantID, "0")
	balance.Pending = domain.MustMoney("75", "USDT")

	d.merchants.EXPECT().GetConfig(ctx, merchantID).Return(payoutMerchant(merchantID), nil).Times(2)
	d.ledger.EXPECT().ListBalances(ctx, merchantID).Return([]domain.Balance{balance}, nil).Times(2)

	var keys []string
	d.ledger.EXPECT().Apply(ctx, gomock.Any()).DoAndReturn(
		func(_ context.Context, ops ...domain.LedgerOp) error {
			keys = append(keys, ops[0].IdempotencyKey)
			return nil
		}).Times(2)

	require.NoError(t, d.svc.ReleasePending(ctx, merchantID))
	require.NoError(t, d.svc.ReleasePending(ctx, merchantID))
	require.Len(t, keys, 2)
	assert.Equal(t, keys[0], keys[1], "same day produces the same release key")
}
