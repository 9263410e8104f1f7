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
)

type WalletRepository interface {
	// Create inserts the wallet together with its default account in one
	// transaction. Fails with xerrors.ErrWalletExists when the user already
	// has a wallet.
	Create(ctx context.Context, w *domain.Wallet) error
	GetByID(ctx context.Context, id string) (*domain.Wallet, error)
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)
	GetAccount(ctx context.Context, accountID string) (*domain.LedgerAccount, error)
	IsOwner(ctx context.Context, accountID, userID string) (bool, error)
}

type walletRepo struct {
	db *pgxpool.Pool
}

func NewWalletRepo(db *pgxpool.Pool) WalletRepository {
	return &walletRepo{db: db}
}

func (r *walletRepo) Create(ctx context.Context, w *domain.Wallet) error {
	if len(w.Accounts) == 0 {
		return errors.New("wallet must be created with at least one account")
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	err = tx.QueryRow(ctx, `
		INSERT INTO wallets (id, user_id, created_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, w.ID, w.UserID, now).Scan(&w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == xerrors.PGCodeUniqueViolation {
			return xerrors.ErrWalletExists
		}
		return fmt.Errorf("failed to insert wallet: %w", err)
	}

	for _, acct := range w.Accounts {
		acct.WalletID = w.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO ledger_accounts (id, wallet_id, type, created_at)
			VALUES ($1, $2, $3, $4)
			RETURNING created_at
		`, acct.ID, acct.WalletID, acct.Type, now).Scan(&acct.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert account: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit wallet creation: %w", err)
	}
	return nil
}

func (r *walletRepo) GetByID(ctx context.Context, id string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, created_at FROM wallets WHERE id = $1
	`, id).Scan(&w.ID, &w.UserID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet: %w", err)
	}

	if err := r.loadAccounts(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepo) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := r.db.QueryRow(ctx, `
		SELECT id, user_id, created_at FROM wallets WHERE user_id = $1
	`, userID).Scan(&w.ID, &w.UserID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get wallet by user: %w", err)
	}

	if err := r.loadAccounts(ctx, &w); err != nil {
		return nil, err
	}
	return &w, nil
}

func (r *walletRepo) loadAccounts(ctx context.Context, w *domain.Wallet) error {
	rows, err := r.db.Query(ctx, `
		SELECT id, wallet_id, type, created_at
		FROM ledger_accounts
		WHERE wallet_id = $1
		ORDER BY created_at ASC
	`, w.ID)
	if err != nil {
		return fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.LedgerAccount
		if err := rows.Scan(&a.ID, &a.WalletID, &a.Type, &a.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan account: %w", err)
		}
		w.Accounts = append(w.Accounts, &a)
	}
	return rows.Err()
}

func (r *walletRepo) GetAccount(ctx context.Context, accountID string) (*domain.LedgerAccount, error) {
	var a domain.LedgerAccount
	err := r.db.QueryRow(ctx, `
		SELECT id, wallet_id, type, created_at FROM ledger_accounts WHERE id = $1
	`, accountID).Scan(&a.ID, &a.WalletID, &a.Type, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, xerrors.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// IsOwner reports whether the account belongs to the given user's wallet.
func (r *walletRepo) IsOwner(ctx context.Context, accountID, userID string) (bool, error) {
	var owner bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM ledger_accounts a
			JOIN wallets w ON w.id = a.wallet_id
			WHERE a.id = $1 AND w.user_id = $2
		)
	`, accountID, userID).Scan(&owner)
	if err != nil {
		return false, fmt.Errorf("failed to check ownership: %w", err)
	}
	return owner, nil
}
