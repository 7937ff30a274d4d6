package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// HTTPClient abstracts the outbound HTTP client so delivery tests can stub
// merchant endpoints.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const (
	defaultBaseBackoff  = 30 * time.Second
	defaultMaxBackoff   = 8 * time.Minute
	defaultDueBatchSize = 100
	responseBodyLimit   = 4 << 10
	leaseTTL            = 30 * time.Second
)

// WebhookServiceImpl implements ports.WebhookService. Events are created
// inside the owning state transition's transaction and delivered
// asynchronously with bounded exponential retry. Delivery is at-least-once;
// a redis lease keeps concurrent workers off the same event.
type WebhookServiceImpl struct {
	eventRepo   ports.WebhookEventRepository
	merchants   ports.MerchantStore
	signer      ports.SignatureService
	lease       ports.DeliveryLease
	client      HTTPClient
	baseBackoff time.Duration
	maxBackoff  time.Duration
	batchSize   int
	log         zerolog.Logger
}

// NewWebhookService creates a new WebhookServiceImpl. Zero baseBackoff or
// maxBackoff select the defaults.
func NewWebhookService(
	eventRepo ports.WebhookEventRepository,
	merchants ports.MerchantStore,
	signer ports.SignatureService,
	lease ports.DeliveryLease,
	client HTTPClient,
	baseBackoff, maxBackoff time.Duration,
	log zerolog.Logger,
) *WebhookServiceImpl {
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &WebhookServiceImpl{
		eventRepo:   eventRepo,
		merchants:   merchants,
		signer:      signer,
		lease:       lease,
		client:      client,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
		batchSize:   defaultDueBatchSize,
		log:         log,
	}
}

// Backoff returns the delay before retry attempt n (1-based), doubling from
// base and capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Enqueue freezes the merchant's endpoint, the payload bytes and their
// signature into a PENDING event. Merchants without a webhook URL get no
// event and no error.
func (s *WebhookServiceImpl) Enqueue(
	ctx context.Context,
	tx pgx.Tx,
	merchantID uuid.UUID,
	eventType domain.WebhookEventType,
	data any,
	refs domain.EventRefs,
) (*domain.WebhookEvent, error) {
	merchant, err := s.merchants.GetConfig(ctx, merchantID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("fetch merchant config: %w", err))
	}
	if merchant == nil {
		return nil, apperror.ErrNotFound("merchant")
	}
	if merchant.WebhookURL == "" {
		return nil, nil
	}

	now := time.Now().UTC()
	eventID := uuid.New()
	body := domain.WebhookBody{
		EventID:   eventID,
		EventType: eventType,
		Timestamp: now.Unix(),
		Data:      data,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("marshal webhook body: %w", err))
	}

	event := &domain.WebhookEvent{
		ID:          eventID,
		MerchantID:  merchantID,
		PaymentID:   refs.PaymentID,
		RefundID:    refs.RefundID,
		PayoutID:    refs.PayoutID,
		EventType:   eventType,
		URL:         merchant.WebhookURL,
		Payload:     payload,
		Signature:   s.signer.Sign(merchant.WebhookSecret, payload),
		Status:      domain.WebhookStatusPending,
		MaxAttempts: domain.DefaultMaxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.eventRepo.Create(ctx, tx, event); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create webhook event: %w", err))
	}
	return event, nil
}

// DeliverDue attempts every due event once and returns the number of
// attempts made. Per-event failures are recorded on the event row, not
// returned, so one bad endpoint cannot stall the batch.
func (s *WebhookServiceImpl) DeliverDue(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	due, err := s.eventRepo.ListDue(ctx, now, s.batchSize)
	if err != nil {
		return 0, apperror.ErrDatabaseError(fmt.Errorf("list due events: %w", err))
	}

	attempts := 0
	for i := range due {
		event := &due[i]

		acquired, err := s.lease.Acquire(ctx, event.ID, leaseTTL)
		if err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("lease acquire failed")
			continue
		}
		if !acquired {
			continue
		}

		s.attempt(ctx, event)
		attempts++

		if err := s.lease.Release(ctx, event.ID); err != nil {
			s.log.Warn().Err(err).Str("event_id", event.ID.String()).Msg("lease release failed")
		}
	}
	return attempts, nil
}

// attempt performs one delivery attempt and records its outcome.
func (s *WebhookServiceImpl) attempt(ctx context.Context, event *domain.WebhookEvent) {
	start := time.Now()
	status, body, err := s.post(ctx, event)
	elapsed := time.Since(start).Milliseconds()

	now := time.Now().UTC()
	event.Attempts++
	event.LastAttemptAt = &now
	event.ResponseTimeMs = &elapsed
	event.UpdatedAt = now

	switch {
	case err != nil:
		msg := err.Error()
		event.ErrorMessage = &msg
		event.ResponseStatus = nil
		event.ResponseBody = nil
		s.scheduleRetry(event, now)
	case status >= 200 && status < 300:
		event.Status = domain.WebhookStatusSent
		event.ResponseStatus = &status
		event.ResponseBody = &body
		event.ErrorMessage = nil
		event.NextRetryAt = nil
	default:
		msg := fmt.Sprintf("endpoint returned %d", status)
		event.ErrorMessage = &msg
		event.ResponseStatus = &status
		event.ResponseBody = &body
		s.scheduleRetry(event, now)
	}

	if err := s.eventRepo.UpdateDelivery(ctx, event); err != nil {
		s.log.Error().Err(err).Str("event_id", event.ID.String()).Msg("record delivery outcome failed")
		return
	}

	logEvent := s.log.Info()
	if event.Status != domain.WebhookStatusSent {
		logEvent = s.log.Warn()
	}
	logEvent.
		Str("event_id", event.ID.String()).
		Str("event_type", string(event.EventType)).
		Str("status", string(event.Status)).
		Int("attempt", event.Attempts).
		Msg("webhook delivery attempt")
}

// scheduleRetry moves a failed attempt to RETRYING with exponential backoff,
// or to FAILED once attempts are exhausted.
func (s *WebhookServiceImpl) scheduleRetry(event *domain.WebhookEvent, now time.Time) {
	if event.Attempts >= event.MaxAttempts {
		event.Status = domain.WebhookStatusFailed
		event.NextRetryAt = nil
		return
	}
	event.Status = domain.WebhookStatusRetrying
	next := now.Add(Backoff(s.baseBackoff, s.maxBackoff, event.Attempts))
	event.NextRetryAt = &next
}

// post sends the frozen payload to the merchant endpoint.
func (s *WebhookServiceImpl) post(ctx context.Context, event *domain.WebhookEvent) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, event.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Signature", event.Signature)
	req.Header.Set("X-Webhook-Event", string(event.EventType))
	req.Header.Set("X-Webhook-ID", event.ID.String())

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(resp.Body, responseBodyLimit))
	if err != nil {
		return resp.StatusCode, "", nil
	}
	return resp.StatusCode, string(body), nil
}

// RunDeliveryLoop polls DeliverDue until ctx is cancelled.
func (s *WebhookServiceImpl) RunDeliveryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", interval).Msg("webhook delivery loop started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("webhook delivery loop stopped")
			return
		case <-ticker.C:
			if _, err := s.DeliverDue(ctx); err != nil {
				s.log.Error().Err(err).Msg("webhook delivery pass failed")
			}
		}
	}
}
