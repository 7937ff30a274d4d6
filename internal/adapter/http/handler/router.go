package handler

import (
	"crypto-payment-ledger/internal/adapter/http/middleware"
	"crypto-payment-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	RefundSvc      ports.RefundService
	PayoutSvc      ports.PayoutService
	ReportingSvc   ports.ReportingService
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.RefundSvc)
	payoutHandler := NewPayoutHandler(deps.PayoutSvc)
	reportingHandler := NewReportingHandler(deps.ReportingSvc)

	v1 := r.Group("/api/v1")

	// --- Merchant-scoped routes ---
	merchants := v1.Group("/merchants/:merchant_id")
	{
		merchants.POST("/payments", paymentHandler.CreatePayment)
		merchants.GET("/payments", reportingHandler.ListPayments)
		merchants.GET("/balances", reportingHandler.GetBalances)
		merchants.POST("/payouts", payoutHandler.TriggerPayouts)
	}

	// --- Settlement rail callbacks ---
	rail := v1.Group("/rail/payments/:id")
	{
		rail.POST("/confirm", paymentHandler.ConfirmPayment)
		rail.POST("/complete", paymentHandler.CompletePayment)
		rail.POST("/fail", paymentHandler.FailPayment)
	}

	// --- Payment-scoped routes ---
	payments := v1.Group("/payments/:id")
	{
		payments.GET("", reportingHandler.GetPayment)
		payments.POST("/cancel", paymentHandler.CancelPayment)
		payments.POST("/refunds", paymentHandler.CreateRefund)
	}

	v1.GET("/refunds/:id", reportingHandler.GetRefund)
	v1.GET("/payouts/:id", reportingHandler.GetPayout)
	v1.GET("/webhook-events/:id", reportingHandler.GetWebhookEvent)

	return r
}
