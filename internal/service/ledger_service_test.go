package service

import (
	"context"
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

// mockTx implements pgx.Tx for testing
type mockTx struct{ pgx.Tx }

func (m *mockTx) Rollback(_ context.Context) error { return nil }
func (m *mockTx) Commit(_ context.Context) error   { return nil }

type ledgerTestDeps struct {
	svc         *LedgerServiceImpl
	balanceRepo *mocks.MockBalanceRepository
	entryRepo   *mocks.MockLedgerEntryRepository
	transactor  *mocks.MockDBTransactor
	ctrl        *gomock.Controller
}

func setupLedgerService(t *testing.T) *ledgerTestDeps {
	ctrl := gomock.NewController(t)
	d := &ledgerTestDeps{
		balanceRepo: mocks.NewMockBalanceRepository(ctrl),
		entryRepo:   mocks.NewMockLedgerEntryRepository(ctrl),
		transactor:  mocks.NewMockDBTransactor(ctrl),
		ctrl:        ctrl,
	}
	d.svc = NewLedgerService(d.balanceRepo, d.entryRepo, d.transactor, zerolog.Nop())
	return d
}

func testBalanceKey() domain.BalanceKey {
	return domain.BalanceKey{
		MerchantID: uuid.New(),
		Currency:   "USDT",
		WalletType: domain.WalletTypeSpot,
	}
}

func TestLedger_ApplyInTx_CreditNewBalance(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := testBalanceKey()
	op := domain.LedgerOp{
		IdempotencyKey: "payment:p1:complete:0",
		Key:            key,
		Direction:      domain.LedgerCredit,
		Bucket:         domain.BucketPending,
		Amount:         domain.MustMoney("97.5", "USDT"),
		Counters: []domain.CounterDelta{
			{Counter: domain.CounterTotalReceived, Amount: domain.MustMoney("100", "USDT")},
			{Counter: domain.CounterTotalFees, Amount: domain.MustMoney("2.5", "USDT")},
		},
	}

	d.entryRepo.EXPECT().Exists(ctx, tx, op.IdempotencyKey).Return(false, nil)
	// No row yet: the service creates a zeroed one under the lock.
	d.balanceRepo.EXPECT().GetForUpdate(ctx, tx, key).Return(nil, nil)
	d.balanceRepo.EXPECT().Create(ctx, tx, gomock.Any()).Return(nil)
	d.balanceRepo.EXPECT().UpdateAmounts(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, b *domain.Balance) error {
			assert.True(t, b.Pending.Amount.Equal(decimal.RequireFromString("97.5")))
			assert.True(t, b.TotalReceived.Amount.Equal(decimal.RequireFromString("100")))
			assert.True(t, b.TotalFees.Amount.Equal(decimal.RequireFromString("2.5")))
			assert.True(t, b.IdentityHolds(), "credit with counters keeps the identity")
			return nil
		})
	d.entryRepo.EXPECT().Insert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			assert.Equal(t, op.IdempotencyKey, e.IdempotencyKey)
			assert.Equal(t, domain.LedgerCredit, e.Direction)
			assert.Nil(t, e.ToBucket)
			return nil
		})

	applied, err := d.svc.ApplyInTx(ctx, tx, op)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestLedger_ApplyInTx_ReplayIsNoop(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	op := domain.LedgerOp{
		IdempotencyKey: "payment:p1:complete:0",
		Key:            testBalanceKey(),
		Direction:      domain.LedgerCredit,
		Bucket:         domain.BucketPending,
		Amount:         domain.MustMoney("10", "USDT"),
	}

	d.entryRepo.EXPECT().Exists(ctx, tx, op.IdempotencyKey).Return(true, nil)
	// No balance access, no entry insert.

	applied, err := d.svc.ApplyInTx(ctx, tx, op)
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestLedger_ApplyInTx_ZeroAmountCounterOnly(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := testBalanceKey()
	// A flat fee equal to the gross leaves nothing to credit; the entry
	// must still land so turnover counters stay complete.
	op := domain.LedgerOp{
		IdempotencyKey: "payment:p1:complete:0",
		Key:            key,
		Direction:      domain.LedgerCredit,
		Bucket:         domain.BucketPending,
		Amount:         domain.ZeroMoney("USDT"),
		Counters: []domain.CounterDelta{
			{Counter: domain.CounterTotalReceived, Amount: domain.MustMoney("10", "USDT")},
			{Counter: domain.CounterTotalFees, Amount: domain.MustMoney("10", "USDT")},
		},
	}

	d.entryRepo.EXPECT().Exists(ctx, tx, op.IdempotencyKey).Return(false, nil)
	d.balanceRepo.EXPECT().GetForUpdate(ctx, tx, key).Return(domain.NewBalance(key), nil)
	d.balanceRepo.EXPECT().UpdateAmounts(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, b *domain.Balance) error {
			assert.True(t, b.Pending.IsZero(), "zero credit leaves buckets untouched")
			assert.True(t, b.Available.IsZero())
			assert.True(t, b.TotalReceived.Amount.Equal(decimal.RequireFromString("10")))
			assert.True(t, b.TotalFees.Amount.Equal(decimal.RequireFromString("10")))
			assert.True(t, b.IdentityHolds())
			return nil
		})
	d.entryRepo.EXPECT().Insert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			assert.True(t, e.Amount.IsZero())
			assert.Len(t, e.Counters, 2)
			return nil
		})

	applied, err := d.svc.ApplyInTx(ctx, tx, op)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestLedger_ApplyInTx_DebitInsufficient(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := testBalanceKey()
	existing := domain.NewBalance(key)
	existing.Available = domain.MustMoney("5", "USDT")

	op := domain.LedgerOp{
		IdempotencyKey: "payout:p1:complete",
		Key:            key,
		Direction:      domain.LedgerDebit,
		Bucket:         domain.BucketAvailable,
		Amount:         domain.MustMoney("10", "USDT"),
	}

	d.entryRepo.EXPECT().Exists(ctx, tx, op.IdempotencyKey).Return(false, nil)
	d.balanceRepo.EXPECT().GetForUpdate(ctx, tx, key).Return(existing, nil)

	_, err := d.svc.ApplyInTx(ctx, tx, op)
	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "LED_001", appErr.Code)
}

func TestLedger_ApplyInTx_MoveBetweenBuckets(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := testBalanceKey()
	existing := domain.NewBalance(key)
	existing.Pending = domain.MustMoney("50", "USDT")
	existing.TotalReceived = domain.MustMoney("50", "USDT")

	op := domain.LedgerOp{
		IdempotencyKey: "release:r1",
		Key:            key,
		Direction:      domain.LedgerMove,
		Bucket:         domain.BucketPending,
		ToBucket:       domain.BucketAvailable,
		Amount:         domain.MustMoney("50", "USDT"),
	}

	d.entryRepo.EXPECT().Exists(ctx, tx, op.IdempotencyKey).Return(false, nil)
	d.balanceRepo.EXPECT().GetForUpdate(ctx, tx, key).Return(existing, nil)
	d.balanceRepo.EXPECT().UpdateAmounts(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, b *domain.Balance) error {
			assert.True(t, b.Pending.IsZero())
			assert.True(t, b.Available.Amount.Equal(decimal.RequireFromString("50")))
			assert.True(t, b.IdentityHolds(), "a move never changes the identity")
			return nil
		})
	d.entryRepo.EXPECT().Insert(ctx, tx, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ pgx.Tx, e *domain.LedgerEntry) error {
			require.NotNil(t, e.ToBucket)
			assert.Equal(t, domain.BucketAvailable, *e.ToBucket)
			return nil
		})

	applied, err := d.svc.ApplyInTx(ctx, tx, op)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestLedger_ApplyInTx_Validation(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	tx := &mockTx{}
	key := testBalanceKey()

	tests := []struct {
		name string
		op   domain.LedgerOp
		code string
	}{
		{
			"missing idempotency key",
			domain.LedgerOp{Key: key, Direction: domain.LedgerCredit, Bucket: domain.BucketPending, Amount: domain.MustMoney("1", "USDT")},
			"PAY_001",
		},
		{
			"zero amount without counters",
			domain.LedgerOp{IdempotencyKey: "k", Key: key, Direction: domain.LedgerCredit, Bucket: domain.BucketPending, Amount: domain.ZeroMoney("USDT")},
			"PAY_001",
		},
		{
			"negative amount",
			domain.LedgerOp{IdempotencyKey: "k", Key: key, Direction: domain.LedgerCredit, Bucket: domain.BucketPending, Amount: domain.MustMoney("-1", "USDT")},
			"PAY_001",
		},
		{
			"currency mismatch",
			domain.LedgerOp{IdempotencyKey: "k", Key: key, Direction: domain.LedgerCredit, Bucket: domain.BucketPending, Amount: domain.MustMoney("1", "BTC")},
			"LED_003",
		},
		{
			"negative counter delta",
			domain.LedgerOp{
				IdempotencyKey: "k", Key: key, Direction: domain.LedgerCredit, Bucket: domain.BucketPending,
				Amount:   domain.MustMoney("1", "USDT"),
				Counters: []domain.CounterDelta{{Counter: domain.CounterTotalFees, Amount: domain.MustMoney("-1", "USDT")}},
			},
			"PAY_001",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.svc.ApplyInTx(ctx, tx, tt.op)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.code, appErr.Code)
		})
	}
}

func TestLedger_Apply_RunsEachOpInOwnTx(t *testing.T) {
	d := setupLedgerService(t)
	defer d.ctrl.Finish()

	ctx := context.Background()
	key := testBalanceKey()
	balance := domain.NewBalance(key)

	op := domain.LedgerOp{
		IdempotencyKey: "payment:p1:complete:0",
		Key:            key,
		Direction:      domain.LedgerCredit,
		Bucket:         domain.BucketPending,
		Amount:         domain.MustMoney("10", "USDT"),
	}

	d.transactor.EXPECT().Begin(ctx).Return(&mockTx{}, nil).Times(2)
	d.entryRepo.EXPECT().Exists(ctx, gomock.Any(), op.IdempotencyKey).Return(false, nil)
	d.balanceRepo.EXPECT().GetForUpdate(ctx, gomock.Any(), key).Return(balance, nil)
	d.balanceRepo.EXPECT().UpdateAmounts(ctx, gomock.Any(), gomock.Any()).Return(nil)
	d.entryRepo.EXPECT().Insert(ctx, gomock.Any(), gomock.Any()).Return(nil)

	require.NoError(t, d.svc.Apply(ctx, op))

	// Replay of the same op commits a no-op.
	d.entryRepo.EXPECT().Exists(ctx, gomock.Any(), op.IdempotencyKey).Return(true, nil)
	require.NoError(t, d.svc.Apply(ctx, op))
}
