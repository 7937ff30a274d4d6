package service

import (
	"context"
	"fmt"
	"sort"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// AllocationServiceImpl implements ports.AllocationService: greedy
// consumption of merchant wallets in priority order, converting each wallet's
// native currency at a rate frozen into the allocation record.
type AllocationServiceImpl struct {
	rates ports.RateProvider
	log   zerolog.Logger
}

// NewAllocationService creates a new AllocationServiceImpl.
func NewAllocationService(rates ports.RateProvider, log zerolog.Logger) *AllocationServiceImpl {
	return &AllocationServiceImpl{rates: rates, log: log}
}

// Resolve produces an ordered allocation plan whose equivalents sum exactly
// to target. Wallets are consumed in the merchant's priority order; within a
// wallet type, the payment currency is preferred to avoid conversions.
func (s *AllocationServiceImpl) Resolve(
	ctx context.Context,
	merchant *domain.MerchantConfig,
	target domain.Money,
	inventory []domain.WalletFunds,
) ([]domain.Allocation, error) {
	if !target.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}

	eligible := s.orderEligible(merchant, target.Currency, inventory)
	if len(eligible) == 0 {
		return nil, apperror.ErrNoEligibleWallets()
	}

	var plan []domain.Allocation
	remaining := target

	for _, w := range eligible {
		if remaining.IsZero() {
			break
		}
		if !w.Available.IsPositive() {
			continue
		}

		rate := decimal.NewFromInt(1)
		if w.Currency != target.Currency {
			r, err := s.rates.GetRate(ctx, w.Currency, target.Currency)
			if err != nil {
				return nil, apperror.ErrRailFailure(fmt.Errorf("rate %s->%s: %w", w.Currency, target.Currency, err))
			}
			if !r.IsPositive() {
				return nil, apperror.InternalError(fmt.Errorf("non-positive rate %s for %s->%s", r, w.Currency, target.Currency))
			}
			rate = r
		}

		walletValue := w.Available.Convert(rate, target.Currency)
		if !walletValue.IsPositive() {
			continue
		}

		take := walletValue
		if take.Cmp(remaining) > 0 {
			take = remaining
		}

		source := sourceAmount(take, rate, w)
		plan = append(plan, domain.Allocation{
			WalletID:                    w.WalletID,
			WalletType:                  w.WalletType,
			Currency:                    w.Currency,
			Amount:                      source,
			Rate:                        rate,
			EquivalentInPaymentCurrency: take,
		})

		remaining, _ = remaining.Sub(take)
	}

	if remaining.IsPositive() {
		s.log.Debug().
			Str("merchant_id", merchant.ID.String()).
			Str("target", target.String()).
			Str("shortfall", remaining.String()).
			Msg("allocation insufficient")
		return nil, apperror.ErrAllocationInsufficient()
	}

	fixResidual(plan, target)
	return plan, nil
}

// orderEligible filters wallets the merchant may use and sorts them by the
// merchant's wallet-type priority, payment-currency wallets first within a
// type. The sort is stable so equal wallets keep their reported order.
func (s *AllocationServiceImpl) orderEligible(
	merchant *domain.MerchantConfig,
	paymentCurrency string,
	inventory []domain.WalletFunds,
) []domain.WalletFunds {
	priority := merchant.Priority()
	rank := func(wt domain.WalletType) int {
		for i, p := range priority {
			if p == wt {
				return i
			}
		}
		return len(priority)
	}

	var eligible []domain.WalletFunds
	for _, w := range inventory {
		if !merchant.AllowsWalletType(w.WalletType) {
			continue
		}
		if rank(w.WalletType) == len(priority) {
			continue
		}
		eligible = append(eligible, w)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := rank(eligible[i].WalletType), rank(eligible[j].WalletType)
		if ri != rj {
			return ri < rj
		}
		iNative := eligible[i].Currency == paymentCurrency
		jNative := eligible[j].Currency == paymentCurrency
		return iNative && !jNative
	})
	return eligible
}

// sourceAmount converts a payment-currency slice back to the wallet's native
// currency, clamped to the wallet's available funds so rounding never
// overspends the wallet.
func sourceAmount(take domain.Money, rate decimal.Decimal, w domain.WalletFunds) domain.Money {
	if w.Currency == take.Currency {
		return domain.Money{Amount: take.Amount, Currency: w.Currency}
	}
	src := domain.Money{
		Amount:   take.Amount.Div(rate).Round(domain.CurrencyExponent(w.Currency)),
		Currency: w.Currency,
	}
	if src.Cmp(w.Available) > 0 {
		return w.Available
	}
	return src
}

// fixResidual assigns any fractional difference between the plan sum and the
// target to the first allocation entry so the sum is exact.
func fixResidual(plan []domain.Allocation, target domain.Money) {
	if len(plan) == 0 {
		return
	}
	sum := domain.ZeroMoney(target.Currency)
	for _, a := range plan {
		sum, _ = sum.Add(a.EquivalentInPaymentCurrency)
	}
	diff, _ := target.Sub(sum)
	if diff.IsZero() {
		return
	}
	adjusted, _ := plan[0].EquivalentInPaymentCurrency.Add(diff)
	plan[0].EquivalentInPaymentCurrency = adjusted
}
