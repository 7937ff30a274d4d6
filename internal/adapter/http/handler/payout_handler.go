package handler

import (
	"crypto-payment-ledger/internal/adapter/http/dto"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"
	"crypto-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// PayoutHandler handles payout endpoints.
type PayoutHandler struct {
	payoutSvc ports.PayoutService
}

// NewPayoutHandler creates a new PayoutHandler.
func NewPayoutHandler(payoutSvc ports.PayoutService) *PayoutHandler {
	return &PayoutHandler{payoutSvc: payoutSvc}
}

// TriggerPayouts handles POST /api/v1/merchants/:merchant_id/payouts.
// Runs one payout pass and returns the payouts it produced.
func (h *PayoutHandler) TriggerPayouts(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Param("merchant_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant id"))
		return
	}

	payouts, err := h.payoutSvc.TriggerPayouts(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PayoutResponse, 0, len(payouts))
	for i := range payouts {
		items = append(items, dto.FromPayout(&payouts[i]))
	}
	response.OK(c, items)
}
