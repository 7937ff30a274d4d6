package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// --- In-Memory Balance Repo ---

func balanceMapKey(key domain.BalanceKey) string {
	return fmt.Sprintf("%s/%s/%s", key.MerchantID, key.Currency, key.WalletType)
}

type inMemoryBalanceRepo struct {
	mu       sync.RWMutex
	balances map[string]domain.Balance
}

func newInMemoryBalanceRepo() *inMemoryBalanceRepo {
	return &inMemoryBalanceRepo{balances: make(map[string]domain.Balance)}
}

func (r *inMemoryBalanceRepo) Get(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.balances[balanceMapKey(key)]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (r *inMemoryBalanceRepo) GetForUpdate(ctx context.Context, tx pgx.Tx, key domain.BalanceKey) (*domain.Balance, error) {
	return r.Get(ctx, key)
}

func (r *inMemoryBalanceRepo) Create(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.balances[balanceMapKey(b.Key())] = *b
	return nil
}

func (r *inMemoryBalanceRepo) UpdateAmounts(ctx context.Context, tx pgx.Tx, b *domain.Balance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := balanceMapKey(b.Key())
	if _, ok := r.balances[k]; !ok {
		return fmt.Errorf("balance not found: %s", k)
	}
	r.balances[k] = *b
	return nil
}

func (r *inMemoryBalanceRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID) ([]domain.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Balance
	for _, b := range r.balances {
		if b.MerchantID == merchantID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Currency != out[j].Currency {
			return out[i].Currency < out[j].Currency
		}
		return out[i].WalletType < out[j].WalletType
	})
	return out, nil
}

// --- In-Memory Ledger Entry Repo ---

type inMemoryLedgerEntryRepo struct {
	mu      sync.RWMutex
	entries []domain.LedgerEntry
	applied map[string]struct{}
}

func newInMemoryLedgerEntryRepo() *inMemoryLedgerEntryRepo {
	return &inMemoryLedgerEntryRepo{applied: make(map[string]struct{})}
}

func (r *inMemoryLedgerEntryRepo) Insert(ctx context.Context, tx pgx.Tx, e *domain.LedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.applied[e.IdempotencyKey]; ok {
		return fmt.Errorf("duplicate idempotency key: %s", e.IdempotencyKey)
	}
	r.applied[e.IdempotencyKey] = struct{}{}
	r.entries = append(r.entries, *e)
	return nil
}

func (r *inMemoryLedgerEntryRepo) Exists(ctx context.Context, tx pgx.Tx, idempotencyKey string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.applied[idempotencyKey]
	return ok, nil
}

func (r *inMemoryLedgerEntryRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.LedgerEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.LedgerEntry
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if r.entries[i].MerchantID == merchantID {
			out = append(out, r.entries[i])
		}
	}
	return out, nil
}

// --- In-Memory Payment Repo ---

type inMemoryPaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]domain.Payment
}

func newInMemoryPaymentRepo() *inMemoryPaymentRepo {
	return &inMemoryPaymentRepo{payments: make(map[uuid.UUID]domain.Payment)}
}

func (r *inMemoryPaymentRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payments[p.ID] = *p
	return nil
}

func (r *inMemoryPaymentRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *inMemoryPaymentRepo) GetByIntentID(ctx context.Context, merchantID uuid.UUID, intentID string) (*domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.payments {
		if p.MerchantID == merchantID && p.PaymentIntentID == intentID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

func (r *inMemoryPaymentRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Payment, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryPaymentRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; !ok {
		return fmt.Errorf("payment not found: %s", p.ID)
	}
	r.payments[p.ID] = *p
	return nil
}

func (r *inMemoryPaymentRepo) List(ctx context.Context, params ports.PaymentListParams) ([]domain.Payment, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Payment
	for _, p := range r.payments {
		if p.MerchantID != params.MerchantID {
			continue
		}
		if params.Status != nil && p.Status != *params.Status {
			continue
		}
		result = append(result, p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	total := int64(len(result))

	start := (params.Page - 1) * params.PageSize
	if start >= len(result) {
		return []domain.Payment{}, total, nil
	}
	end := start + params.PageSize
	if end > len(result) {
		end = len(result)
	}
	return result[start:end], total, nil
}

func (r *inMemoryPaymentRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if len(out) >= limit {
			break
		}
		open := p.Status == domain.PaymentStatusPending || p.Status == domain.PaymentStatusProcessing
		if open && p.ExpiresAt.Before(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func completedStatus(s domain.PaymentStatus) bool {
	return s == domain.PaymentStatusCompleted ||
		s == domain.PaymentStatusRefunded ||
		s == domain.PaymentStatusPartiallyRefunded
}

func (r *inMemoryPaymentRepo) SumCompletedSince(ctx context.Context, merchantID uuid.UUID, currency string, since time.Time) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sum := decimal.Zero
	for _, p := range r.payments {
		if p.MerchantID != merchantID || p.Amount.Currency != currency || !completedStatus(p.Status) {
			continue
		}
		if p.CompletedAt != nil && !p.CompletedAt.Before(since) {
			sum = sum.Add(p.Amount.Amount)
		}
	}
	return sum, nil
}

func (r *inMemoryPaymentRepo) CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, p := range r.payments {
		if p.MerchantID != merchantID || p.Amount.Currency != currency || !completedStatus(p.Status) {
			continue
		}
		if p.CompletedAt != nil && !p.CompletedAt.Before(start) && !p.CompletedAt.After(end) {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Refund Repo ---

type inMemoryRefundRepo struct {
	mu      sync.RWMutex
	refunds map[uuid.UUID]domain.Refund
}

func newInMemoryRefundRepo() *inMemoryRefundRepo {
	return &inMemoryRefundRepo{refunds: make(map[uuid.UUID]domain.Refund)}
}

func (r *inMemoryRefundRepo) Create(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refunds[refund.ID] = *refund
	return nil
}

func (r *inMemoryRefundRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refund, ok := r.refunds[id]
	if !ok {
		return nil, nil
	}
	return &refund, nil
}

func (r *inMemoryRefundRepo) Update(ctx context.Context, tx pgx.Tx, refund *domain.Refund) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.refunds[refund.ID]; !ok {
		return fmt.Errorf("refund not found: %s", refund.ID)
	}
	r.refunds[refund.ID] = *refund
	return nil
}

func (r *inMemoryRefundRepo) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]domain.Refund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Refund
	for _, refund := range r.refunds {
		if refund.PaymentID == paymentID {
			out = append(out, refund)
		}
	}
	return out, nil
}

func (r *inMemoryRefundRepo) CountCompletedBetween(ctx context.Context, merchantID uuid.UUID, currency string, start, end time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, refund := range r.refunds {
		if refund.MerchantID != merchantID || refund.Amount.Currency != currency {
			continue
		}
		if refund.Status != domain.RefundStatusCompleted || refund.CompletedAt == nil {
			continue
		}
		if !refund.CompletedAt.Before(start) && !refund.CompletedAt.After(end) {
			count++
		}
	}
	return count, nil
}

// --- In-Memory Payout Repo ---

type inMemoryPayoutRepo struct {
	mu      sync.RWMutex
	payouts map[uuid.UUID]domain.Payout
}

func newInMemoryPayoutRepo() *inMemoryPayoutRepo {
	return &inMemoryPayoutRepo{payouts: make(map[uuid.UUID]domain.Payout)}
}

func (r *inMemoryPayoutRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payouts[p.ID] = *p
	return nil
}

func (r *inMemoryPayoutRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.payouts[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (r *inMemoryPayoutRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.Payout) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payouts[p.ID]; !ok {
		return fmt.Errorf("payout not found: %s", p.ID)
	}
	r.payouts[p.ID] = *p
	return nil
}

func (r *inMemoryPayoutRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.Payout, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Payout
	for _, p := range r.payouts {
		if len(out) >= limit {
			break
		}
		if p.MerchantID == merchantID {
			out = append(out, p)
		}
	}
	return out, nil
}

// --- In-Memory Webhook Event Repo ---

type inMemoryWebhookEventRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]domain.WebhookEvent
	order  []uuid.UUID
}

func newInMemoryWebhookEventRepo() *inMemoryWebhookEventRepo {
	return &inMemoryWebhookEventRepo{events: make(map[uuid.UUID]domain.WebhookEvent)}
}

func (r *inMemoryWebhookEventRepo) Create(ctx context.Context, tx pgx.Tx, e *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[e.ID] = *e
	r.order = append(r.order, e.ID)
	return nil
}

func (r *inMemoryWebhookEventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *inMemoryWebhookEventRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEvent
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		e := r.events[id]
		if e.IsDue(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *inMemoryWebhookEventRepo) UpdateDelivery(ctx context.Context, e *domain.WebhookEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ID]; !ok {
		return fmt.Errorf("webhook event not found: %s", e.ID)
	}
	r.events[e.ID] = *e
	return nil
}

func (r *inMemoryWebhookEventRepo) ListByMerchant(ctx context.Context, merchantID uuid.UUID, limit int) ([]domain.WebhookEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.WebhookEvent
	for _, id := range r.order {
		if len(out) >= limit {
			break
		}
		if e := r.events[id]; e.MerchantID == merchantID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- In-Memory Merchant Store ---

type inMemoryMerchantStore struct {
	mu      sync.RWMutex
	configs map[uuid.UUID]domain.MerchantConfig
	funds   map[uuid.UUID][]domain.WalletFunds
}

func newInMemoryMerchantStore() *inMemoryMerchantStore {
	return &inMemoryMerchantStore{
		configs: make(map[uuid.UUID]domain.MerchantConfig),
		funds:   make(map[uuid.UUID][]domain.WalletFunds),
	}
}

func (s *inMemoryMerchantStore) put(cfg domain.MerchantConfig, funds []domain.WalletFunds) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	s.funds[cfg.ID] = funds
}

func (s *inMemoryMerchantStore) GetConfig(ctx context.Context, merchantID uuid.UUID) (*domain.MerchantConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[merchantID]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (s *inMemoryMerchantStore) GetWalletFunds(ctx context.Context, merchantID uuid.UUID) ([]domain.WalletFunds, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.funds[merchantID], nil
}

func (s *inMemoryMerchantStore) ListPayoutDue(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []uuid.UUID
	for id := range s.configs {
		out = append(out, id)
	}
	return out, nil
}

// --- Stub Disbursement Rail ---

// stubRail implements both ports.DisbursementRail and ports.RateProvider.
// Failures are injected per test; idempotency tokens are recorded so tests
// can assert retry behavior.
type stubRail struct {
	mu          sync.Mutex
	rates       map[string]decimal.Decimal
	disburseErr error
	reverseErr  error
	disbursed   []string
	reversed    []string
}

func newStubRail() *stubRail {
	return &stubRail{rates: make(map[string]decimal.Decimal)}
}

func (r *stubRail) setRate(from, to string, rate decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rates[from+"/"+to] = rate
}

func (r *stubRail) GetRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rate, ok := r.rates[from+"/"+to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no rate for %s/%s", from, to)
	}
	return rate, nil
}

func (r *stubRail) Disburse(ctx context.Context, token string, merchantID uuid.UUID, amount domain.Money) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.disburseErr != nil {
		return r.disburseErr
	}
	r.disbursed = append(r.disbursed, token)
	return nil
}

func (r *stubRail) ReverseCharge(ctx context.Context, token, paymentIntentID string, amount domain.Money) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reverseErr != nil {
		return r.reverseErr
	}
	r.reversed = append(r.reversed, token)
	return nil
}

// --- In-Memory Transactor ---

// inMemoryTransactor serializes transactions behind one mutex, standing in
// for row-level locks. Concurrent service calls queue up exactly as they
// would on SELECT FOR UPDATE against the same rows.
type inMemoryTransactor struct {
	mu sync.Mutex
}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &serialTx{unlock: t.mu.Unlock}, nil
}

// serialTx holds the transactor's lock until Commit or Rollback, whichever
// comes first. The deferred Rollback after a Commit is a no-op.
type serialTx struct {
	noopTx
	once   sync.Once
	unlock func()
}

func (t *serialTx) Commit(ctx context.Context) error {
	t.once.Do(t.unlock)
	return nil
}

func (t *serialTx) Rollback(ctx context.Context) error {
	t.once.Do(t.unlock)
	return nil
}

// noopTx is a no-op pgx.Tx implementation for in-memory testing.
type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *noopTx) Conn() *pgx.Conn { return nil }
