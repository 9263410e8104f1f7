package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type EntryRepository interface {
	CreateMany(ctx context.Context, tx pgx.Tx, entries []*domain.LedgerEntry) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*domain.LedgerEntry, error)
	ListByTransactionTx(ctx context.Context, tx pgx.Tx, transactionID string) ([]*domain.LedgerEntry, error)
	SumByAccount(ctx context.Context, accountID string) (decimal.Decimal, error)
	SumByAccountTx(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error)
	LockAccounts(ctx context.Context, tx pgx.Tx, accountIDs []string) error
}

type entryRepo struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

func NewEntryRepo(db *pgxpool.Pool, lockTimeout time.Duration) EntryRepository {
	return &entryRepo{db: db, lockTimeout: lockTimeout}
}

// CreateMany inserts ledger entries inside a transaction. Entries are
// insert-only; there is no update or delete path anywhere in this package.
func (r *entryRepo) CreateMany(ctx context.Context, tx pgx.Tx, entries []*domain.LedgerEntry) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	now := time.Now().UTC()
	for _, e := range entries {
		err := tx.QueryRow(ctx, `
			INSERT INTO ledger_entries (id, transaction_id, account_id, entry_type, amount, created_at)
			VALUES ($1, $2, $3, $4, $5::numeric, $6)
			RETURNING created_at
		`, e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount.String(), now).Scan(&e.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}
	return nil
}

func (r *entryRepo) ListByTransaction(ctx context.Context, transactionID string) ([]*domain.LedgerEntry, error) {
	rows, err := r.db.Query(ctx, entrySelect+` WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return scanEntries(rows)
}

func (r *entryRepo) ListByTransactionTx(ctx context.Context, tx pgx.Tx, transactionID string) ([]*domain.LedgerEntry, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil")
	}
	rows, err := tx.Query(ctx, entrySelect+` WHERE transaction_id = $1 ORDER BY created_at ASC, id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	return scanEntries(rows)
}

const entrySelect = `
	SELECT id, transaction_id, account_id, entry_type, amount::text, created_at
	FROM ledger_entries`

func scanEntries(rows pgx.Rows) ([]*domain.LedgerEntry, error) {
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.EntryType, &amount, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse entry amount: %w", err)
		}
		e.Amount = dec
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// SumByAccount derives the account balance by folding the entry log. An
// account with no entries has balance zero, not an error.
func (r *entryRepo) SumByAccount(ctx context.Context, accountID string) (decimal.Decimal, error) {
	return sumByAccount(ctx, r.db, accountID)
}

// SumByAccountTx is the same derivation evaluated inside an open transaction.
// Mutating operations call this after LockAccounts so the check-then-act
// sequence cannot race a concurrent writer.
func (r *entryRepo) SumByAccountTx(ctx context.Context, tx pgx.Tx, accountID string) (decimal.Decimal, error) {
	if tx == nil {
		return decimal.Zero, errors.New("transaction cannot be nil")
	}
	return sumByAccount(ctx, tx, accountID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumByAccount(ctx context.Context, q rowQuerier, accountID string) (decimal.Decimal, error) {
	var sum string
	err := q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM ledger_entries
		WHERE account_id = $1
	`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum entries: %w", err)
	}

	dec, err := decimal.NewFromString(sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
	}
	return dec, nil
}

// LockAccounts acquires exclusive row locks on the given accounts, held until
// the surrounding transaction commits or aborts. IDs are deduplicated and
// locked in ascending order; every caller going through this method requests
// locks in the same sequence, which rules out circular waits between
// concurrent operations on the same account pair. A lock wait exceeding the
// configured bound surfaces as xerrors.ErrLockTimeout.
func (r *entryRepo) LockAccounts(ctx context.Context, tx pgx.Tx, accountIDs []string) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	unique := make([]string, 0, len(accountIDs))
	seen := make(map[string]bool, len(accountIDs))
	for _, id := range accountIDs {
		if !seen[id] {
			unique = append(unique, id)
			seen[id] = true
		}
	}
	sort.Strings(unique)

	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return fmt.Errorf("failed to set lock timeout: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id FROM ledger_accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, unique)
	if err != nil {
		return lockError(err)
	}
	defer rows.Close()

	locked := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan locked account: %w", err)
		}
		locked++
	}
	if err := rows.Err(); err != nil {
		return lockError(err)
	}

	if locked != len(unique) {
		return xerrors.ErrAccountNotFound
	}
	return nil
}

func lockError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == xerrors.PGCodeLockNotAvailable {
		return xerrors.ErrLockTimeout
	}
	return fmt.Errorf("lock acquisition failed: %w", err)
}
