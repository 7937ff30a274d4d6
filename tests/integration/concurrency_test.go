package integration

import (
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrency scenarios hammer the HTTP surface with parallel requests and
// then check the ledger. The transactor serializes transactions the way row
// locks would, so the final state is exact, not approximate.

func TestConcurrency_CompleteCreditsExactlyOnce(t *testing.T) {
	app := newTestApp(t)
	merchantID := app.seedMerchant(t)

	payment := app.createPayment(t, merchantID, "order-conc-complete", "100")
	app.confirmPayment(t, payment.ID)

	const workers = 10
	var wg sync.WaitGroup
	var completed atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			status, env := app.do(t, http.MethodPost,
				"/api/v1/rail/payments/"+payment.ID+"/complete", nil)
			if status == http.StatusOK {
				completed.Add(1)
			} else {
				t.Logf("concurrent complete rejected: %d %s", status, env.ErrorCode)
			}
		}()
	}
	wg.Wait()

	t.Logf("%d/%d completes accepted", completed.Load(), workers)
	assert.GreaterOrEqual(t, completed.Load(), int32(1))

	balances := app.getBalances(t, merchantID)
	require.Len(t, balances, 1)
	b := balances[0]
	assertAmount(t, "97.5", b.Pending)
	assertAmount(t, "100", b.TotalReceived)
	assertAmount(t, "2.5", b.TotalFees)
	assert.True(t, b.IdentityHolds, "replayed completes must not double credit")
}

func TestConcurrency_RefundsBoundedByCeiling(t *testing.T) {
	app := newTestApp(t)
	merchantID := app.seedMerchant(t)

	payment := app.createPayment(t, merchantID, "order-conc-refund", "100")
	app.completePayment(t, payment.ID)

	// Net is 97.5, so at most 4 refunds of 20 can land.
	const workers = 10
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			status, env := app.do(t, http.MethodPost,
				"/api/v1/payments/"+payment.ID+"/refunds",
				map[string]any{"amount": "20", "currency": "USDT",
					"reason": fmt.Sprintf("concurrent refund %d", n)})
			if status == http.StatusCreated {
				r := decodeData[refundJSON](t, env)
				if r.Status == "COMPLETED" {
					succeeded.Add(1)
				}
			}
		}(i)
	}
	wg.Wait()

	n := succeeded.Load()
	t.Logf("%d/%d refunds landed", n, workers)
	assert.GreaterOrEqual(t, n, int32(1))
	assert.LessOrEqual(t, n, int32(4), "refunds past the net ceiling must be rejected")

	refunded := decimal.NewFromInt(20).Mul(decimal.NewFromInt32(n))
	balances := app.getBalances(t, merchantID)
	require.Len(t, balances, 1)
	b := balances[0]
	assertAmount(t, refunded.String(), b.TotalRefunded)
	assertAmount(t, decimal.RequireFromString("97.5").Sub(refunded).String(), b.Pending)
	assert.True(t, b.IdentityHolds)
}

func TestConcurrency_MixedTrafficKeepsIdentity(t *testing.T) {
	app := newTestApp(t)
	merchantID := app.seedMerchant(t)

	// Create and complete payments in parallel, refund half of them.
	const payments = 8
	ids := make([]string, payments)
	var wg sync.WaitGroup
	for i := 0; i < payments; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p := app.createPayment(t, merchantID, fmt.Sprintf("order-mixed-%d", n), "50")
			app.completePayment(t, p.ID)
			ids[n] = p.ID
		}(i)
	}
	wg.Wait()

	for i := 0; i < payments; i += 2 {
		wg.Add(1)
		go func(paymentID string) {
			defer wg.Done()
			status, env := app.do(t, http.MethodPost,
				"/api/v1/payments/"+paymentID+"/refunds",
				map[string]any{"amount": "10", "currency": "USDT", "reason": "mixed traffic"})
			assert.Equal(t, http.StatusCreated, status, "refund: %s", env.Message)
		}(ids[i])
	}
	wg.Wait()

	balances := app.getBalances(t, merchantID)
	require.Len(t, balances, 1)
	b := balances[0]
	assertAmount(t, "400", b.TotalReceived)
	assertAmount(t, "40", b.TotalRefunded)
	// 8 * 48.75 net, minus 4 * 10 refunded.
	assertAmount(t, "350", b.Pending)
	assert.True(t, b.IdentityHolds, "ledger identity must survive mixed concurrent traffic")
}
