package repository

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/pkg/utils"
	"ledgerpay-service/pkg/xerrors"
)

var idgen = utils.NewIDGenerator()

// setupPool connects to the test database and applies the schema. Tests are
// skipped unless DATABASE_URL points at a disposable instance.
func setupPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set, skipping repository tests")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, databaseURL)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../db/schema.sql")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, string(schema))
	require.NoError(t, err)

	return pool
}

func createAccount(t *testing.T, repo WalletRepository) *domain.LedgerAccount {
	t.Helper()

	w := &domain.Wallet{
		ID:     idgen.NewWalletID(),
		UserID: fmt.Sprintf("user-%s", ulid.Make()),
		Accounts: []*domain.LedgerAccount{
			{ID: idgen.NewAccountID(), Type: domain.AccountTypeAvailable},
		},
	}
	require.NoError(t, repo.Create(context.Background(), w))
	return w.Accounts[0]
}

func TestWalletRepo(t *testing.T) {
	pool := setupPool(t)
	repo := NewWalletRepo(pool)
	ctx := context.Background()

	userID := fmt.Sprintf("user-%s", ulid.Make())
	w := &domain.Wallet{
		ID:     idgen.NewWalletID(),
		UserID: userID,
		Accounts: []*domain.LedgerAccount{
			{ID: idgen.NewAccountID(), Type: domain.AccountTypeAvailable},
		},
	}
	require.NoError(t, repo.Create(ctx, w))
	assert.False(t, w.CreatedAt.IsZero())
	assert.Equal(t, w.ID, w.Accounts[0].WalletID)

	// One wallet per user.
	dup := &domain.Wallet{
		ID:     idgen.NewWalletID(),
		UserID: userID,
		Accounts: []*domain.LedgerAccount{
			{ID: idgen.NewAccountID(), Type: domain.AccountTypeAvailable},
		},
	}
	assert.ErrorIs(t, repo.Create(ctx, dup), xerrors.ErrWalletExists)

	got, err := repo.GetByUserID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, w.ID, got.ID)
	require.Len(t, got.Accounts, 1)

	acct, err := repo.GetAccount(ctx, w.Accounts[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AccountTypeAvailable, acct.Type)

	_, err = repo.GetAccount(ctx, idgen.NewAccountID())
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)

	owner, err := repo.IsOwner(ctx, w.Accounts[0].ID, userID)
	require.NoError(t, err)
	assert.True(t, owner)

	owner, err = repo.IsOwner(ctx, w.Accounts[0].ID, "someone-else")
	require.NoError(t, err)
	assert.False(t, owner)
}

func TestSumByAccountEmptyIsZero(t *testing.T) {
	pool := setupPool(t)
	acct := createAccount(t, NewWalletRepo(pool))
	entryRepo := NewEntryRepo(pool, 3*time.Second)

	sum, err := entryRepo.SumByAccount(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}

func TestLockAccountsMissingAccount(t *testing.T) {
	pool := setupPool(t)
	acct := createAccount(t, NewWalletRepo(pool))
	entryRepo := NewEntryRepo(pool, 3*time.Second)
	txnRepo := NewTransactionRepo(pool)
	ctx := context.Background()

	tx, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	err = entryRepo.LockAccounts(ctx, tx, []string{acct.ID, idgen.NewAccountID()})
	assert.ErrorIs(t, err, xerrors.ErrAccountNotFound)
}

func TestLockAccountsTimeout(t *testing.T) {
	pool := setupPool(t)
	acct := createAccount(t, NewWalletRepo(pool))
	txnRepo := NewTransactionRepo(pool)
	ctx := context.Background()

	holder, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer holder.Rollback(ctx)
	require.NoError(t, NewEntryRepo(pool, 3*time.Second).LockAccounts(ctx, holder, []string{acct.ID}))

	// A second transaction bounded by a short lock_timeout gives up instead
	// of queueing behind the holder.
	waiter, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer waiter.Rollback(ctx)

	err = NewEntryRepo(pool, 100*time.Millisecond).LockAccounts(ctx, waiter, []string{acct.ID})
	assert.ErrorIs(t, err, xerrors.ErrLockTimeout)
}

func TestTransactionRepoDuplicateReference(t *testing.T) {
	pool := setupPool(t)
	txnRepo := NewTransactionRepo(pool)
	ctx := context.Background()

	ticket := fmt.Sprintf("ticket-%s", ulid.Make())
	amount := decimal.RequireFromString("10")

	tx, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	first := &domain.Transaction{
		ID:          idgen.NewTransactionID(),
		ReferenceID: ticket,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusSuccess,
		Amount:      amount,
	}
	require.NoError(t, txnRepo.Create(ctx, tx, first))
	require.NoError(t, tx.Commit(ctx))

	// Same ticket, second transaction: the unique index says no.
	tx2, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)

	second := &domain.Transaction{
		ID:          idgen.NewTransactionID(),
		ReferenceID: ticket,
		Type:        domain.TransactionTypeDeposit,
		Status:      domain.TransactionStatusSuccess,
		Amount:      amount,
	}
	assert.ErrorIs(t, txnRepo.Create(ctx, tx2, second), xerrors.ErrConflict)
}

func TestMarkReversedOnlyOnce(t *testing.T) {
	pool := setupPool(t)
	txnRepo := NewTransactionRepo(pool)
	ctx := context.Background()

	tx, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	txn := &domain.Transaction{
		ID:          idgen.NewTransactionID(),
		ReferenceID: fmt.Sprintf("ticket-%s", ulid.Make()),
		Type:        domain.TransactionTypeTransfer,
		Status:      domain.TransactionStatusSuccess,
		Amount:      decimal.RequireFromString("30"),
	}
	require.NoError(t, txnRepo.Create(ctx, tx, txn))
	require.NoError(t, txnRepo.MarkReversed(ctx, tx, txn.ID))
	assert.ErrorIs(t, txnRepo.MarkReversed(ctx, tx, txn.ID), xerrors.ErrAlreadyRefunded)
	require.NoError(t, tx.Commit(ctx))

	got, err := txnRepo.GetByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusReversed, got.Status)
}

func TestIdempotencyRepo(t *testing.T) {
	pool := setupPool(t)
	idemRepo := NewIdempotencyRepo(pool)
	txnRepo := NewTransactionRepo(pool)
	ctx := context.Background()

	key := fmt.Sprintf("ticket-%s", ulid.Make())
	_, err := idemRepo.Get(ctx, key)
	assert.ErrorIs(t, err, xerrors.ErrNotFound)

	tx, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx.Rollback(ctx)

	// Key order and spacing chosen so any JSON re-serialization by the
	// storage layer would change the bytes. Replays must be byte-identical.
	body := []byte(`{"status":"success","data":{"id":"TXN-1","amount":"30"}}`)
	rec := &domain.IdempotencyRecord{
		Key:            key,
		Status:         domain.IdempotencyStatusDone,
		ResponseStatus: http.StatusOK,
		ResponseBody:   body,
	}
	require.NoError(t, idemRepo.Save(ctx, tx, rec))
	require.NoError(t, tx.Commit(ctx))

	got, err := idemRepo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusDone, got.Status)
	assert.Equal(t, http.StatusOK, got.ResponseStatus)
	assert.Equal(t, body, []byte(got.ResponseBody))

	// The primary key makes double-finalization impossible.
	tx2, err := txnRepo.BeginTx(ctx)
	require.NoError(t, err)
	defer tx2.Rollback(ctx)
	assert.ErrorIs(t, idemRepo.Save(ctx, tx2, rec), xerrors.ErrConflict)
}
