package domain

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletType identifies which wallet class funds or holds a balance.
type WalletType string

const (
	WalletTypeFiat WalletType = "FIAT"
	WalletTypeSpot WalletType = "SPOT"
	WalletTypeEco  WalletType = "ECO"
)

// DefaultWalletPriority is the allocation consumption order when a merchant
// has not configured an explicit preference list.
var DefaultWalletPriority = []WalletType{WalletTypeFiat, WalletTypeSpot, WalletTypeEco}

// FeeType selects how the merchant's processing fee is computed.
type FeeType string

const (
	FeeTypePercentage FeeType = "PERCENTAGE"
	FeeTypeFixed      FeeType = "FIXED"
	FeeTypeBoth       FeeType = "BOTH"
)

// PayoutSchedule controls when completed funds become payout-eligible.
type PayoutSchedule string

const (
	PayoutScheduleInstant PayoutSchedule = "INSTANT"
	PayoutScheduleDaily   PayoutSchedule = "DAILY"
	PayoutScheduleWeekly  PayoutSchedule = "WEEKLY"
	PayoutScheduleMonthly PayoutSchedule = "MONTHLY"
)

// MerchantConfig is the snapshot of merchant settings this core consumes.
// The merchant store itself (CRUD, API keys, auth) is an external
// collaborator; only the fields the ledger and dispatcher need appear here.
type MerchantConfig struct {
	ID                 uuid.UUID       `json:"id"`
	AllowedCurrencies  []string        `json:"allowed_currencies"`
	AllowedWalletTypes []WalletType    `json:"allowed_wallet_types"`
	WalletPriority     []WalletType    `json:"wallet_priority,omitempty"`
	FeeType            FeeType         `json:"fee_type"`
	FeePercentage      decimal.Decimal `json:"fee_percentage"` // percent, e.g. 2.5
	FeeFixed           decimal.Decimal `json:"fee_fixed"`      // in payment currency units
	TransactionLimit   decimal.Decimal `json:"transaction_limit"` // zero = unlimited
	DailyLimit         decimal.Decimal `json:"daily_limit"`
	MonthlyLimit       decimal.Decimal `json:"monthly_limit"`
	PayoutSchedule     PayoutSchedule  `json:"payout_schedule"`
	PayoutThreshold    decimal.Decimal `json:"payout_threshold"`
	WebhookURL         string          `json:"webhook_url"`
	WebhookSecret      string          `json:"-"`
}

// ComputeFee calculates the processing fee for an amount per the merchant's
// fee configuration, rounded to the payment currency's exponent.
func (m *MerchantConfig) ComputeFee(amount Money) Money {
	fee := decimal.Zero
	switch m.FeeType {
	case FeeTypePercentage:
		fee = amount.Amount.Mul(m.FeePercentage).Div(decimal.NewFromInt(100))
	case FeeTypeFixed:
		fee = m.FeeFixed
	case FeeTypeBoth:
		fee = amount.Amount.Mul(m.FeePercentage).Div(decimal.NewFromInt(100)).Add(m.FeeFixed)
	}
	return Money{Amount: fee, Currency: amount.Currency}.Round()
}

// Priority returns the wallet consumption order for allocation.
func (m *MerchantConfig) Priority() []WalletType {
	if len(m.WalletPriority) > 0 {
		return m.WalletPriority
	}
	return DefaultWalletPriority
}

// AllowsCurrency reports whether the merchant accepts the currency.
// An empty allow-list means every currency is accepted.
func (m *MerchantConfig) AllowsCurrency(currency string) bool {
	if len(m.AllowedCurrencies) == 0 {
		return true
	}
	for _, c := range m.AllowedCurrencies {
		if c == currency {
			return true
		}
	}
	return false
}

// AllowsWalletType reports whether the merchant may fund from the wallet type.
func (m *MerchantConfig) AllowsWalletType(wt WalletType) bool {
	if len(m.AllowedWalletTypes) == 0 {
		return true
	}
	for _, w := range m.AllowedWalletTypes {
		if w == wt {
			return true
		}
	}
	return false
}

// WalletFunds describes spendable funds in one merchant wallet, as reported
// by the external wallet implementations at allocation time.
type WalletFunds struct {
	WalletID   uuid.UUID  `json:"wallet_id"`
	WalletType WalletType `json:"wallet_type"`
	Currency   string     `json:"currency"`
	Available  Money      `json:"available"`
}
