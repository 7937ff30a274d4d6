package service

import (
	"context"
	"fmt"
	"time"

	"crypto-payment-ledger/internal/core/domain"
	"crypto-payment-ledger/internal/core/ports"
	"crypto-payment-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// LedgerServiceImpl implements ports.LedgerService. Every mutation locks its
// balance row with SELECT FOR UPDATE and records a ledger entry under a
// unique idempotency key, making replays exact no-ops.
type LedgerServiceImpl struct {
	balanceRepo ports.BalanceRepository
	entryRepo   ports.LedgerEntryRepository
	transactor  ports.DBTransactor
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(
	balanceRepo ports.BalanceRepository,
	entryRepo ports.LedgerEntryRepository,
	transactor ports.DBTransactor,
	log zerolog.Logger,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		balanceRepo: balanceRepo,
		entryRepo:   entryRepo,
		transactor:  transactor,
		log:         log,
	}
}

func validateOp(op domain.LedgerOp) error {
	if op.IdempotencyKey == "" {
		return apperror.Validation("ledger op requires an idempotency key")
	}
	if op.Amount.IsNegative() {
		return apperror.ErrInvalidAmount()
	}
	// A zero amount is only meaningful as a counter-only entry, e.g. the
	// completion credit of a payment whose fee consumed the whole gross.
	if op.Amount.IsZero() && len(op.Counters) == 0 {
		return apperror.ErrInvalidAmount()
	}
	if op.Amount.Currency != op.Key.Currency {
		return apperror.ErrCurrencyMismatch(
			fmt.Errorf("op amount %s on %s balance", op.Amount.Currency, op.Key.Currency))
	}
	for _, cd := range op.Counters {
		if cd.Amount.IsNegative() {
			return apperror.Validation("counter deltas must be non-negative")
		}
		if cd.Amount.Currency != op.Key.Currency {
			return apperror.ErrCurrencyMismatch(
				fmt.Errorf("counter delta %s on %s balance", cd.Amount.Currency, op.Key.Currency))
		}
	}
	return nil
}

// ApplyInTx applies one ledger op inside the caller's transaction.
// Returns false when the idempotency key was already applied.
func (s *LedgerServiceImpl) ApplyInTx(ctx context.Context, tx pgx.Tx, op domain.LedgerOp) (bool, error) {
	if err := validateOp(op); err != nil {
		return false, err
	}

	applied, err := s.entryRepo.Exists(ctx, tx, op.IdempotencyKey)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("idempotency check: %w", err))
	}
	if applied {
		s.log.Debug().Str("idempotency_key", op.IdempotencyKey).Msg("ledger op already applied, skipping")
		return false, nil
	}

	balance, err := s.balanceRepo.GetForUpdate(ctx, tx, op.Key)
	if err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("lock balance: %w", err))
	}
	if balance == nil {
		balance = domain.NewBalance(op.Key)
		if err := s.balanceRepo.Create(ctx, tx, balance); err != nil {
			return false, apperror.ErrDatabaseError(fmt.Errorf("create balance: %w", err))
		}
	}

	if err := s.mutate(balance, op); err != nil {
		return false, err
	}

	for _, cd := range op.Counters {
		current := balance.Counter(cd.Counter)
		next, err := current.Add(cd.Amount)
		if err != nil {
			return false, apperror.ErrCurrencyMismatch(err)
		}
		balance.SetCounter(cd.Counter, next)
	}

	balance.UpdatedAt = time.Now().UTC()
	if err := s.balanceRepo.UpdateAmounts(ctx, tx, balance); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("update balance: %w", err))
	}

	entry := entryFromOp(op)
	if err := s.entryRepo.Insert(ctx, tx, entry); err != nil {
		return false, apperror.ErrDatabaseError(fmt.Errorf("insert ledger entry: %w", err))
	}

	return true, nil
}

// mutate adjusts the bucket(s) for the op, refusing any negative bucket.
// Zero-amount ops leave every bucket untouched; only their counters apply.
func (s *LedgerServiceImpl) mutate(balance *domain.Balance, op domain.LedgerOp) error {
	if op.Amount.IsZero() {
		return nil
	}
	switch op.Direction {
	case domain.LedgerCredit:
		next, err := balance.Bucket(op.Bucket).Add(op.Amount)
		if err != nil {
			return apperror.ErrCurrencyMismatch(err)
		}
		balance.SetBucket(op.Bucket, next)

	case domain.LedgerDebit:
		next, err := balance.Bucket(op.Bucket).Sub(op.Amount)
		if err != nil {
			return apperror.ErrCurrencyMismatch(err)
		}
		if next.IsNegative() {
			return apperror.ErrInsufficientBalance(string(op.Bucket))
		}
		balance.SetBucket(op.Bucket, next)

	case domain.LedgerMove:
		from, err := balance.Bucket(op.Bucket).Sub(op.Amount)
		if err != nil {
			return apperror.ErrCurrencyMismatch(err)
		}
		if from.IsNegative() {
			return apperror.ErrInsufficientBalance(string(op.Bucket))
		}
		to, err := balance.Bucket(op.ToBucket).Add(op.Amount)
		if err != nil {
			return apperror.ErrCurrencyMismatch(err)
		}
		balance.SetBucket(op.Bucket, from)
		balance.SetBucket(op.ToBucket, to)

	default:
		return apperror.Validation("unknown ledger direction")
	}
	return nil
}

func entryFromOp(op domain.LedgerOp) *domain.LedgerEntry {
	entry := &domain.LedgerEntry{
		ID:             uuid.New(),
		IdempotencyKey: op.IdempotencyKey,
		MerchantID:     op.Key.MerchantID,
		Currency:       op.Key.Currency,
		WalletType:     op.Key.WalletType,
		Direction:      op.Direction,
		Bucket:         op.Bucket,
		Amount:         op.Amount,
		Counters:       op.Counters,
		CreatedAt:      time.Now().UTC(),
	}
	if op.Direction == domain.LedgerMove {
		to := op.ToBucket
		entry.ToBucket = &to
	}
	return entry
}

// Apply runs each op in its own transaction, in order. A failure stops the
// sequence; already-applied ops stay applied and replay as no-ops.
func (s *LedgerServiceImpl) Apply(ctx context.Context, ops ...domain.LedgerOp) error {
	for _, op := range ops {
		if err := s.applyOne(ctx, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *LedgerServiceImpl) applyOne(ctx context.Context, op domain.LedgerOp) error {
	tx, err := s.transactor.Begin(ctx)
	if err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	applied, err := s.ApplyInTx(ctx, tx, op)
	if err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperror.ErrDatabaseError(fmt.Errorf("commit tx: %w", err))
	}

	if applied {
		s.log.Info().
			Str("idempotency_key", op.IdempotencyKey).
			Str("direction", string(op.Direction)).
			Str("bucket", string(op.Bucket)).
			Str("amount", op.Amount.String()).
			Msg("ledger op applied")
	}
	return nil
}

// GetBalance returns the balance row for the key, or nil when absent.
func (s *LedgerServiceImpl) GetBalance(ctx context.Context, key domain.BalanceKey) (*domain.Balance, error) {
	balance, err := s.balanceRepo.Get(ctx, key)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get balance: %w", err))
	}
	return balance, nil
}

// ListBalances returns all balance rows owned by a merchant.
func (s *LedgerServiceImpl) ListBalances(ctx context.Context, merchantID uuid.UUID) ([]domain.Balance, error) {
	balances, err := s.balanceRepo.ListByMerchant(ctx, merchantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list balances: %w", err))
	}
	return balances, nil
}
