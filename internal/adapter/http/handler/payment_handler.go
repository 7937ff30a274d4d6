package handler

import (
	"context"
	"time"

	"crypto-payment-ledger/internal/adapter/http/dto"
	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"
	"crypto-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PaymentHandler handles payment lifecycle endpoints. The rail callback
// routes (confirm/complete/fail) drive the state machine on behalf of the
// external settlement rail.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
	refundSvc  ports.RefundService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService, refundSvc ports.RefundService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, refundSvc: refundSvc}
}

// CreatePayment handles POST /api/v1/merchants/:merchant_id/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Param("merchant_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant id"))
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation("invalid amount"))
		return
	}

	var expiresIn time.Duration
	if req.ExpiresIn != nil {
		expiresIn = time.Duration(*req.ExpiresIn) * time.Second
	}

	payment, err := h.paymentSvc.Create(c.Request.Context(), ports.CreatePaymentRequest{
		MerchantID:      merchantID,
		PaymentIntentID: req.PaymentIntentID,
		Amount:          amount,
		ExpiresIn:       expiresIn,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.FromPayment(payment))
}

// ConfirmPayment handles POST /api/v1/rail/payments/:id/confirm.
// The rail acknowledged the charge and settlement is underway.
func (h *PaymentHandler) ConfirmPayment(c *gin.Context) {
	h.transition(c, h.paymentSvc.MarkProcessing)
}

// CompletePayment handles POST /api/v1/rail/payments/:id/complete.
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	h.transition(c, h.paymentSvc.Complete)
}

// FailPayment handles POST /api/v1/rail/payments/:id/fail.
func (h *PaymentHandler) FailPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.FailPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	payment, err := h.paymentSvc.Fail(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(payment))
}

// CancelPayment handles POST /api/v1/payments/:id/cancel.
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	h.transition(c, h.paymentSvc.Cancel)
}

// CreateRefund handles POST /api/v1/payments/:id/refunds.
func (h *PaymentHandler) CreateRefund(c *gin.Context) {
	paymentID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	var req dto.CreateRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation("invalid amount"))
		return
	}

	refund, err := h.refundSvc.Create(c.Request.Context(), ports.CreateRefundRequest{
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.FromRefund(refund))
}

// transition runs one id-keyed lifecycle operation and renders the result.
func (h *PaymentHandler) transition(c *gin.Context, op func(ctx context.Context, id uuid.UUID) (*domain.Payment, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	payment, err := op(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(payment))
}
