package dto

import (
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
)

// CreatePaymentRequest is the request body for opening a payment.
type CreatePaymentRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required,max=100"`
	Amount          string `json:"amount" binding:"required"`
	Currency        string `json:"currency" binding:"required,min=3,max=5"`
	ExpiresIn       *int64 `json:"expires_in_seconds,omitempty"`
}

// FailPaymentRequest carries the rail's failure reason.
type FailPaymentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreateRefundRequest is the request body for refunding a payment.
type CreateRefundRequest struct {
	Amount   string `json:"amount" binding:"required"`
	Currency string `json:"currency" binding:"required,min=3,max=5"`
	Reason   string `json:"reason" binding:"required,max=255"`
}

// AllocationResponse is one wallet's share of a payment.
type AllocationResponse struct {
	WalletID   string `json:"wallet_id"`
	WalletType string `json:"wallet_type"`
	Currency   string `json:"currency"`
	Amount     string `json:"amount"`
	Rate       string `json:"rate"`
	Equivalent string `json:"equivalent_in_payment_currency"`
}

// PaymentResponse is the response body for payment results.
type PaymentResponse struct {
	ID              string               `json:"id"`
	PaymentIntentID string               `json:"payment_intent_id"`
	Amount          string               `json:"amount"`
	Currency        string               `json:"currency"`
	FeeAmount       string               `json:"fee_amount"`
	NetAmount       string               `json:"net_amount"`
	RefundedAmount  string               `json:"refunded_amount"`
	Status          string               `json:"status"`
	Allocations     []AllocationResponse `json:"allocations,omitempty"`
	FailureReason   *string              `json:"failure_reason,omitempty"`
	ExpiresAt       string               `json:"expires_at"`
	CompletedAt     *string              `json:"completed_at,omitempty"`
	CreatedAt       string               `json:"created_at"`
}

// PaymentListResponse is a paginated payment listing.
type PaymentListResponse struct {
	Items      []PaymentResponse `json:"items"`
	Total      int64             `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// RefundResponse is the response body for refund results.
type RefundResponse struct {
	ID            string  `json:"id"`
	PaymentID     string  `json:"payment_id"`
	Amount        string  `json:"amount"`
	Currency      string  `json:"currency"`
	Reason        string  `json:"reason"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// PayoutResponse is the response body for payout results.
type PayoutResponse struct {
	ID            string  `json:"id"`
	Currency      string  `json:"currency"`
	WalletType    string  `json:"wallet_type"`
	PeriodStart   string  `json:"period_start"`
	PeriodEnd     string  `json:"period_end"`
	GrossAmount   string  `json:"gross_amount"`
	FeeAmount     string  `json:"fee_amount"`
	NetAmount     string  `json:"net_amount"`
	PaymentCount  int     `json:"payment_count"`
	RefundCount   int     `json:"refund_count"`
	Status        string  `json:"status"`
	FailureReason *string `json:"failure_reason,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// BalanceResponse is one balance row with its identity check.
type BalanceResponse struct {
	Currency      string `json:"currency"`
	WalletType    string `json:"wallet_type"`
	Available     string `json:"available"`
	Pending       string `json:"pending"`
	Reserved      string `json:"reserved"`
	TotalReceived string `json:"total_received"`
	TotalRefunded string `json:"total_refunded"`
	TotalFees     string `json:"total_fees"`
	TotalPaidOut  string `json:"total_paid_out"`
	IdentityHolds bool   `json:"identity_holds"`
}

// WebhookEventResponse is the delivery record of one webhook event.
type WebhookEventResponse struct {
	ID             string  `json:"id"`
	EventType      string  `json:"event_type"`
	URL            string  `json:"url"`
	Status         string  `json:"status"`
	Attempts       int     `json:"attempts"`
	MaxAttempts    int     `json:"max_attempts"`
	LastAttemptAt  *string `json:"last_attempt_at,omitempty"`
	NextRetryAt    *string `json:"next_retry_at,omitempty"`
	ResponseStatus *int    `json:"response_status,omitempty"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}

// FromPayment converts a domain payment to its response DTO.
func FromPayment(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:              p.ID.String(),
		PaymentIntentID: p.PaymentIntentID,
		Amount:          p.Amount.Amount.String(),
		Currency:        p.Amount.Currency,
		FeeAmount:       p.FeeAmount.Amount.String(),
		NetAmount:       p.NetAmount.Amount.String(),
		RefundedAmount:  p.RefundedAmount.Amount.String(),
		Status:          string(p.Status),
		FailureReason:   p.FailureReason,
		ExpiresAt:       formatTime(p.ExpiresAt),
		CompletedAt:     formatTimePtr(p.CompletedAt),
		CreatedAt:       formatTime(p.CreatedAt),
	}
	for _, a := range p.Allocations {
		resp.Allocations = append(resp.Allocations, AllocationResponse{
			WalletID:   a.WalletID.String(),
			WalletType: string(a.WalletType),
			Currency:   a.Currency,
			Amount:     a.Amount.Amount.String(),
			Rate:       a.Rate.String(),
			Equivalent: a.EquivalentInPaymentCurrency.Amount.String(),
		})
	}
	return resp
}

// FromRefund converts a domain refund to its response DTO.
func FromRefund(r *domain.Refund) RefundResponse {
	return RefundResponse{
		ID:            r.ID.String(),
		PaymentID:     r.PaymentID.String(),
		Amount:        r.Amount.Amount.String(),
		Currency:      r.Amount.Currency,
		Reason:        r.Reason,
		Status:        string(r.Status),
		FailureReason: r.FailureReason,
		CompletedAt:   formatTimePtr(r.CompletedAt),
		CreatedAt:     formatTime(r.CreatedAt),
	}
}

// FromPayout converts a domain payout to its response DTO.
func FromPayout(p *domain.Payout) PayoutResponse {
	return PayoutResponse{
		ID:            p.ID.String(),
		Currency:      p.Currency,
		WalletType:    string(p.WalletType),
		PeriodStart:   formatTime(p.PeriodStart),
		PeriodEnd:     formatTime(p.PeriodEnd),
		GrossAmount:   p.GrossAmount.Amount.String(),
		FeeAmount:     p.FeeAmount.Amount.String(),
		NetAmount:     p.NetAmount.Amount.String(),
		PaymentCount:  p.PaymentCount,
		RefundCount:   p.RefundCount,
		Status:        string(p.Status),
		FailureReason: p.FailureReason,
		CompletedAt:   formatTimePtr(p.CompletedAt),
		CreatedAt:     formatTime(p.CreatedAt),
	}
}

// FromBalanceSummary converts a balance summary to its response DTO.
func FromBalanceSummary(s ports.BalanceSummary) BalanceResponse {
	b := s.Balance
	return BalanceResponse{
		Currency:      b.Currency,
		WalletType:    string(b.WalletType),
		Available:     b.Available.Amount.String(),
		Pending:       b.Pending.Amount.String(),
		Reserved:      b.Reserved.Amount.String(),
		TotalReceived: b.TotalReceived.Amount.String(),
		TotalRefunded: b.TotalRefunded.Amount.String(),
		TotalFees:     b.TotalFees.Amount.String(),
		TotalPaidOut:  b.TotalPaidOut.Amount.String(),
		IdentityHolds: s.IdentityHolds,
	}
}

// FromWebhookEvent converts a webhook event to its response DTO.
func FromWebhookEvent(e *domain.WebhookEvent) WebhookEventResponse {
	return WebhookEventResponse{
		ID:             e.ID.String(),
		EventType:      string(e.EventType),
		URL:            e.URL,
		Status:         string(e.Status),
		Attempts:       e.Attempts,
		MaxAttempts:    e.MaxAttempts,
		LastAttemptAt:  formatTimePtr(e.LastAttemptAt),
		NextRetryAt:    formatTimePtr(e.NextRetryAt),
		ResponseStatus: e.ResponseStatus,
		ErrorMessage:   e.ErrorMessage,
		CreatedAt:      formatTime(e.CreatedAt),
	}
}
