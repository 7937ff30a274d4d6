package handler

import (
	"math"
	"strconv"

	"crypto-payment-ledger/internal/adapter/http/dto"
	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"
	"crypto-payment-ledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ReportingHandler handles the read-only query endpoints.
type ReportingHandler struct {
	reportingSvc ports.ReportingService
}

// NewReportingHandler creates a new ReportingHandler.
func NewReportingHandler(reportingSvc ports.ReportingService) *ReportingHandler {
	return &ReportingHandler{reportingSvc: reportingSvc}
}

// GetBalances handles GET /api/v1/merchants/:merchant_id/balances.
func (h *ReportingHandler) GetBalances(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Param("merchant_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant id"))
		return
	}

	summaries, err := h.reportingSvc.GetBalances(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.BalanceResponse, 0, len(summaries))
	for _, s := range summaries {
		items = append(items, dto.FromBalanceSummary(s))
	}
	response.OK(c, items)
}

// ListPayments handles GET /api/v1/merchants/:merchant_id/payments.
func (h *ReportingHandler) ListPayments(c *gin.Context) {
	merchantID, err := uuid.Parse(c.Param("merchant_id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid merchant id"))
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	params := ports.PaymentListParams{
		MerchantID: merchantID,
		Page:       page,
		PageSize:   pageSize,
	}
	if s := c.Query("status"); s != "" {
		status := domain.PaymentStatus(s)
		params.Status = &status
	}

	payments, total, err := h.reportingSvc.ListPayments(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.PaymentResponse, 0, len(payments))
	for i := range payments {
		items = append(items, dto.FromPayment(&payments[i]))
	}

	totalPages := int(math.Ceil(float64(total) / float64(pageSize)))

	response.OK(c, dto.PaymentListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	})
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *ReportingHandler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payment id"))
		return
	}

	payment, err := h.reportingSvc.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayment(payment))
}

// GetRefund handles GET /api/v1/refunds/:id.
func (h *ReportingHandler) GetRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid refund id"))
		return
	}

	refund, err := h.reportingSvc.GetRefund(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromRefund(refund))
}

// GetPayout handles GET /api/v1/payouts/:id.
func (h *ReportingHandler) GetPayout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid payout id"))
		return
	}

	payout, err := h.reportingSvc.GetPayout(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromPayout(payout))
}

// GetWebhookEvent handles GET /api/v1/webhook-events/:id.
func (h *ReportingHandler) GetWebhookEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid event id"))
		return
	}

	event, err := h.reportingSvc.GetWebhookEvent(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.FromWebhookEvent(event))
}
