package service

import (
	"context"
	"testing"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports/mocks"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reportingTestDeps struct {
	svc         *ReportingServiceImpl
	balanceRepo *mocks.MockBalanceRepository
	paymentRepo *mocks.MockPaymentRepository
	refundRepo  *mocks.MockRefundRepository
	payoutRepo  *mocks.MockPayoutRepository
	eventRepo   *mocks.MockWebhookEventRepository
	ctrl        *gomock.Controller
}

func setupReportingService(t *testing.T) *reportingTestDeps {
	ctrl := gomock.NewController(t)
	d := &reportingTestDeps{
		balanceRepo: mocks.NewMockBalanceRepository(ctrl),
		paymentRepo: mocks.NewMockPaymentRepository(ctrl),
		refundRepo:  mocks.NewMockRefundRepository(ctrl),
		payoutRepo:  mocks.NewMockPayoutRepository(ctrl),
		eventRepo:   mocks.NewMockWebhookEventRepository(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewReportingService(
		d.balanceRepo, d.paymentRepo, d.refundRepo, d.payoutRepo, d.eventRepo,
		zerolog.Nop(),
	)
	return d
}

func TestReporting_GetBalances_FlagsIdentityDrift(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	merchantID := uuid.New()

	healthy := payableBalance(merchantID, "100")
	drifted := payableBalance(merchantID, "100")
	drifted.TotalReceived = domain.MustMoney("90", "USDT") // buckets exceed counters

	d.balanceRepo.EXPECT().ListByMerchant(ctx, merchantID).
		Return([]domain.Balance{healthy, drifted}, nil)

	summaries, err := d.svc.GetBalances(ctx, merchantID)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.True(t, summaries[0].IdentityHolds)
	assert.False(t, summaries[1].IdentityHolds)
}

func TestReporting_GetPayment_NotFound(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	d.paymentRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.GetPayment(ctx, id)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}

func TestReporting_GetRefund_Found(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	refund := &domain.Refund{ID: uuid.New(), Status: domain.RefundStatusCompleted}
	d.refundRepo.EXPECT().GetByID(ctx, refund.ID).Return(refund, nil)

	got, err := d.svc.GetRefund(ctx, refund.ID)
	require.NoError(t, err)
	assert.Same(t, refund, got)
}

func TestReporting_GetWebhookEvent_NotFound(t *testing.T) {
	d := setupReportingService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	id := uuid.New()
	d.eventRepo.EXPECT().GetByID(ctx, id).Return(nil, nil)

	_, err := d.svc.GetWebhookEvent(ctx, id)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "PAY_002", appErr.Code)
}
