package rail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"crypto-payment-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Client talks to the external settlement rail over HTTP. It implements
// ports.RateProvider and ports.DisbursementRail. Every mutating call carries
// an idempotency token, so retries after a crash never double-settle.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	log     zerolog.Logger
}

// NewClient creates a rail client.
func NewClient(baseURL, apiKey string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type rateResponse struct {
	Rate string `json:"rate"`
}

// GetRate fetches the current conversion rate from -> to.
func (c *Client) GetRate(ctx context.Context, fromCurrency, toCurrency string) (decimal.Decimal, error) {
	url := fmt.Sprintf("%s/v1/rates?from=%s&to=%s", c.baseURL, fromCurrency, toCurrency)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, err
	}
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rail rate request: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("rail rate request: status %d", resp.StatusCode)
	}

	var body rateResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse rate %q: %w", body.Rate, err)
	}
	return rate, nil
}

type disburseRequest struct {
	Token      string `json:"idempotency_token"`
	MerchantID string `json:"merchant_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
}

// Disburse pushes a payout's net amount to the merchant's settlement account.
func (c *Client) Disburse(ctx context.Context, idempotencyToken string, merchantID uuid.UUID, amount domain.Money) error {
	return c.post(ctx, "/v1/disbursements", disburseRequest{
		Token:      idempotencyToken,
		MerchantID: merchantID.String(),
		Amount:     amount.Amount.String(),
		Currency:   amount.Currency,
	})
}

type reverseRequest struct {
	Token           string `json:"idempotency_token"`
	PaymentIntentID string `json:"payment_intent_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

// ReverseCharge sends a refund reversal for an original charge.
func (c *Client) ReverseCharge(ctx context.Context, idempotencyToken string, paymentIntentID string, amount domain.Money) error {
	return c.post(ctx, "/v1/reversals", reverseRequest{
		Token:           idempotencyToken,
		PaymentIntentID: paymentIntentID,
		Amount:          amount.Amount.String(),
		Currency:        amount.Currency,
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal rail request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rail request %s: %w", path, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		c.log.Warn().
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("rail call rejected")
		return fmt.Errorf("rail request %s: status %d: %s", path, resp.StatusCode, msg)
	}
	return nil
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
