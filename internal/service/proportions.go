package service

import (
	"crypto-payment-ledger/internal/core/domain"
)

// splitProportional divides total across weights pro rata, rounding each
// share to the currency exponent and assigning the residual to the first
// share so the parts always sum exactly to total. Weights and total must be
// in the same currency.
func splitProportional(total domain.Money, weights []domain.Money) []domain.Money {
	shares := make([]domain.Money, len(weights))
	if len(weights) == 0 {
		return shares
	}
	if len(weights) == 1 {
		shares[0] = total
		return shares
	}

	weightSum := domain.ZeroMoney(total.Currency)
	for _, w := range weights {
		weightSum, _ = weightSum.Add(w)
	}
	if weightSum.IsZero() {
		shares[0] = total
		for i := 1; i < len(shares); i++ {
			shares[i] = domain.ZeroMoney(total.Currency)
		}
		return shares
	}

	allocated := domain.ZeroMoney(total.Currency)
	for i, w := range weights {
		share := domain.Money{
			Amount:   total.Amount.Mul(w.Amount).Div(weightSum.Amount),
			Currency: total.Currency,
		}.Round()
		shares[i] = share
		allocated, _ = allocated.Add(share)
	}

	residual, _ := total.Sub(allocated)
	if !residual.IsZero() {
		shares[0], _ = shares[0].Add(residual)
	}
	return shares
}
