package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TransactionRepository interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Transaction, error)
	// MarkReversed applies the single allowed status transition
	// SUCCESS -> REVERSED. It fails with xerrors.ErrAlreadyRefunded when the
	// row is no longer in SUCCESS, which makes double refunds lose the race
	// at the database rather than in application code.
	MarkReversed(ctx context.Context, tx pgx.Tx, id string) error
	ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, int, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepo(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (r *transactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	err := tx.QueryRow(ctx, `
		INSERT INTO transactions (id, reference_id, type, status, amount, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6)
		RETURNING created_at
	`, t.ID, t.ReferenceID, t.Type, t.Status, t.Amount.String(), time.Now().UTC()).Scan(&t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == xerrors.PGCodeUniqueViolation {
			// reference_id is unique: a ticket that already produced a
			// transaction can never produce a second one.
			return xerrors.ErrConflict
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

const transactionSelect = `
	SELECT id, reference_id, type, status, amount::text, created_at
	FROM transactions`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	var amount string
	err := row.Scan(&t.ID, &t.ReferenceID, &t.Type, &t.Status, &amount, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse transaction amount: %w", err)
	}
	t.Amount = dec
	return &t, nil
}

func (r *transactionRepo) GetByID(ctx context.Context, id string) (*domain.Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, transactionSelect+` WHERE id = $1`, id))
}

func (r *transactionRepo) GetByIDTx(ctx context.Context, tx pgx.Tx, id string) (*domain.Transaction, error) {
	if tx == nil {
		return nil, errors.New("transaction cannot be nil")
	}
	return scanTransaction(tx.QueryRow(ctx, transactionSelect+` WHERE id = $1`, id))
}

func (r *transactionRepo) MarkReversed(ctx context.Context, tx pgx.Tx, id string) error {
	if tx == nil {
		return errors.New("transaction cannot be nil")
	}

	cmdTag, err := tx.Exec(ctx, `
		UPDATE transactions
		SET status = $1
		WHERE id = $2 AND status = $3
	`, domain.TransactionStatusReversed, id, domain.TransactionStatusSuccess)
	if err != nil {
		return fmt.Errorf("failed to mark transaction reversed: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return xerrors.ErrAlreadyRefunded
	}
	return nil
}

// ListByAccount pages through every transaction that touched the account,
// newest first, with a total count for the pager.
func (r *transactionRepo) ListByAccount(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, int, error) {
	var total int
	err := r.db.QueryRow(ctx, `
		SELECT COUNT(DISTINCT t.id)
		FROM transactions t
		JOIN ledger_entries e ON e.transaction_id = t.id
		WHERE e.account_id = $1
	`, accountID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT t.id, t.reference_id, t.type, t.status, t.amount::text, t.created_at
		FROM transactions t
		JOIN ledger_entries e ON e.transaction_id = t.id
		WHERE e.account_id = $1
		ORDER BY t.created_at DESC, t.id DESC
		LIMIT $2 OFFSET $3
	`, accountID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var items []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		var amount string
		if err := rows.Scan(&t.ID, &t.ReferenceID, &t.Type, &t.Status, &amount, &t.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan transaction: %w", err)
		}
		dec, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to parse transaction amount: %w", err)
		}
		t.Amount = dec
		items = append(items, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return items, total, nil
}
