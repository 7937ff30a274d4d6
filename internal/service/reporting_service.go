package service

import (
	"context"
	"fmt"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReportingServiceImpl is the read-only query surface over the repositories.
type ReportingServiceImpl struct {
	balanceRepo ports.BalanceRepository
	paymentRepo ports.PaymentRepository
	refundRepo  ports.RefundRepository
	payoutRepo  ports.PayoutRepository
	eventRepo   ports.WebhookEventRepository
	log         zerolog.Logger
}

// NewReportingService creates a new ReportingServiceImpl.
func NewReportingService(
	balanceRepo ports.BalanceRepository,
	paymentRepo ports.PaymentRepository,
	refundRepo ports.RefundRepository,
	payoutRepo ports.PayoutRepository,
	eventRepo ports.WebhookEventRepository,
	log zerolog.Logger,
) *ReportingServiceImpl {
	return &ReportingServiceImpl{
		balanceRepo: balanceRepo,
		paymentRepo: paymentRepo,
		refundRepo:  refundRepo,
		payoutRepo:  payoutRepo,
		eventRepo:   eventRepo,
		log:         log,
	}
}

// GetBalances returns every balance row for the merchant together with an
// identity check, so an operator can spot drift from the dashboard.
func (s *ReportingServiceImpl) GetBalances(ctx context.Context, merchantID uuid.UUID) ([]ports.BalanceSummary, error) {
	balances, err := s.balanceRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list balances: %w", err))
	}

	summaries := make([]ports.BalanceSummary, 0, len(balances))
	for _, b := range balances {
		holds := b.IdentityHolds()
		if !holds {
			s.log.Error().
				Str("merchant_id", merchantID.String()).
				Str("currency", b.Currency).
				Str("wallet_type", string(b.WalletType)).
				Msg("balance identity violated")
		}
		summaries = append(summaries, ports.BalanceSummary{Balance: b, IdentityHolds: holds})
	}
	return summaries, nil
}

func (s *ReportingServiceImpl) GetPayment(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment, err := s.paymentRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("payment")
	}
	return payment, nil
}

func (s *ReportingServiceImpl) GetRefund(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	refund, err := s.refundRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get refund: %w", err))
	}
	if refund == nil {
		return nil, apperror.ErrNotFound("refund")
	}
	return refund, nil
}

func (s *ReportingServiceImpl) GetPayout(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	payout, err := s.payoutRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get payout: %w", err))
	}
	if payout == nil {
		return nil, apperror.ErrNotFound("payout")
	}
	return payout, nil
}

func (s *ReportingServiceImpl) GetWebhookEvent(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	event, err := s.eventRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get webhook event: %w", err))
	}
	if event == nil {
		return nil, apperror.ErrNotFound("webhook event")
	}
	return event, nil
}

func (s *ReportingServiceImpl) ListPayments(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	payments, total, err := s.paymentRepo.List(ctx, params)
	if err != nil {
		return nil, 0, apperror.ErrDatabaseError(fmt.Errorf("list payments: %w", err))
	}
	return payments, total, nil
}
