package usecase

import (
	"context"
	"fmt"
	"net/http"

	"ledgerpay-service/internal/domain"
	"ledgerpay-service/internal/pub"
	"ledgerpay-service/internal/repository"
	"ledgerpay-service/pkg/response"
	"ledgerpay-service/pkg/utils"
	"ledgerpay-service/pkg/xerrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// LedgerUsecase executes the four money movements. Every operation runs as
// one atomic unit of work: lock -> check -> create transaction -> create
// entries -> persist idempotency receipt -> commit. Any failure rolls the
// whole unit back; readers never observe partial state.
type LedgerUsecase struct {
	transactionRepo repository.TransactionRepository
	entryRepo       repository.EntryRepository
	idempotencyRepo repository.IdempotencyRepository
	idgen           *utils.IDGenerator
	events          *pub.TransactionEventPublisher
	log             *zap.Logger
}

func NewLedgerUsecase(
	transactionRepo repository.TransactionRepository,
	entryRepo repository.EntryRepository,
	idempotencyRepo repository.IdempotencyRepository,
	idgen *utils.IDGenerator,
	events *pub.TransactionEventPublisher,
	log *zap.Logger,
) *LedgerUsecase {
	return &LedgerUsecase{
		transactionRepo: transactionRepo,
		entryRepo:       entryRepo,
		idempotencyRepo: idempotencyRepo,
		idgen:           idgen,
		events:          events,
		log:             log,
	}
}

// Deposit credits the account with amount. No balance precondition.
func (uc *LedgerUsecase) Deposit(ctx context.Context, accountID string, amount decimal.Decimal, ticket string) (*domain.Transaction, error) {
	if err := validateMovement(amount, ticket); err != nil {
		return nil, err
	}

	tx, err := uc.transactionRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.entryRepo.LockAccounts(ctx, tx, []string{accountID}); err != nil {
		return nil, err
	}

	txn := uc.newTransaction(domain.TransactionTypeDeposit, ticket, amount)
	if err := uc.transactionRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}

	credit := &domain.LedgerEntry{
		ID:            uc.idgen.NewEntryID(),
		TransactionID: txn.ID,
		AccountID:     accountID,
		EntryType:     domain.EntryTypeCredit,
		Amount:        amount,
	}
	if err := uc.entryRepo.CreateMany(ctx, tx, []*domain.LedgerEntry{credit}); err != nil {
		return nil, err
	}

	if err := uc.persistReceipt(ctx, tx, ticket, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit deposit: %w", err)
	}

	uc.publish(ctx, pub.EventDepositCompleted, txn, accountID, "")
	return txn, nil
}

// Withdraw debits the account with amount after checking the derived balance
// under lock.
func (uc *LedgerUsecase) Withdraw(ctx context.Context, accountID string, amount decimal.Decimal, ticket string) (*domain.Transaction, error) {
	if err := validateMovement(amount, ticket); err != nil {
		return nil, err
	}

	tx, err := uc.transactionRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if err := uc.entryRepo.LockAccounts(ctx, tx, []string{accountID}); err != nil {
		return nil, err
	}

	// Balance is derived inside the lock scope; a concurrent withdrawal on
	// the same account blocks on LockAccounts until this unit commits.
	balance, err := uc.entryRepo.SumByAccountTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, xerrors.ErrInsufficientFunds
	}

	txn := uc.newTransaction(domain.TransactionTypeWithdraw, ticket, amount)
	if err := uc.transactionRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}

	debit := &domain.LedgerEntry{
		ID:            uc.idgen.NewEntryID(),
		TransactionID: txn.ID,
		AccountID:     accountID,
		EntryType:     domain.EntryTypeDebit,
		Amount:        amount.Neg(),
	}
	if err := uc.entryRepo.CreateMany(ctx, tx, []*domain.LedgerEntry{debit}); err != nil {
		return nil, err
	}

	if err := uc.persistReceipt(ctx, tx, ticket, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit withdrawal: %w", err)
	}

	uc.publish(ctx, pub.EventWithdrawCompleted, txn, accountID, "")
	return txn, nil
}

// Transfer moves amount from one account to another as a debit/credit pair
// that sums to zero. Both rows are locked in canonical order before the
// sender balance is read.
func (uc *LedgerUsecase) Transfer(ctx context.Context, fromID, toID string, amount decimal.Decimal, ticket string) (*domain.Transaction, error) {
	if err := validateMovement(amount, ticket); err != nil {
		return nil, err
	}
	if fromID == toID {
		return nil, xerrors.ErrValidation
	}

	tx, err := uc.transactionRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// LockAccounts sorts the pair, so two opposite transfers between the
	// same accounts request the locks in the same order.
	if err := uc.entryRepo.LockAccounts(ctx, tx, []string{fromID, toID}); err != nil {
		return nil, err
	}

	balance, err := uc.entryRepo.SumByAccountTx(ctx, tx, fromID)
	if err != nil {
		return nil, err
	}
	if balance.LessThan(amount) {
		return nil, xerrors.ErrInsufficientFunds
	}

	txn := uc.newTransaction(domain.TransactionTypeTransfer, ticket, amount)
	if err := uc.transactionRepo.Create(ctx, tx, txn); err != nil {
		return nil, err
	}

	entries := []*domain.LedgerEntry{
		{
			ID:            uc.idgen.NewEntryID(),
			TransactionID: txn.ID,
			AccountID:     fromID,
			EntryType:     domain.EntryTypeDebit,
			Amount:        amount.Neg(),
		},
		{
			ID:            uc.idgen.NewEntryID(),
			TransactionID: txn.ID,
			AccountID:     toID,
			EntryType:     domain.EntryTypeCredit,
			Amount:        amount,
		},
	}
	if err := uc.entryRepo.CreateMany(ctx, tx, entries); err != nil {
		return nil, err
	}

	if err := uc.persistReceipt(ctx, tx, ticket, txn); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transfer: %w", err)
	}

	uc.publish(ctx, pub.EventTransferCompleted, txn, fromID, toID)
	return txn, nil
}

// Refund reverses a previous transaction: the original is marked REVERSED
// and a new REFUND transaction mirrors every original entry with flipped
// type and negated amount, netting the original's balance effect to zero.
func (uc *LedgerUsecase) Refund(ctx context.Context, originalTransactionID, ticket string) (*domain.Transaction, error) {
	if ticket == "" {
		return nil, xerrors.ErrTicketRequired
	}

	tx, err := uc.transactionRepo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	original, err := uc.transactionRepo.GetByIDTx(ctx, tx, originalTransactionID)
	if err != nil {
		return nil, err
	}
	if original.Status == domain.TransactionStatusReversed {
		return nil, xerrors.ErrAlreadyRefunded
	}

	originalEntries, err := uc.entryRepo.ListByTransactionTx(ctx, tx, original.ID)
	if err != nil {
		return nil, err
	}

	accountIDs := make([]string, 0, len(originalEntries))
	for _, e := range originalEntries {
		accountIDs = append(accountIDs, e.AccountID)
	}
	if err := uc.entryRepo.LockAccounts(ctx, tx, accountIDs); err != nil {
		return nil, err
	}

	// Conditional update guards the SUCCESS -> REVERSED transition against a
	// concurrent refund that slipped past the status read above.
	if err := uc.transactionRepo.MarkReversed(ctx, tx, original.ID); err != nil {
		return nil, err
	}

	refund := uc.newTransaction(domain.TransactionTypeRefund, ticket, original.Amount)
	if err := uc.transactionRepo.Create(ctx, tx, refund); err != nil {
		return nil, err
	}

	mirrored := domain.MirrorEntries(originalEntries, refund.ID)
	for _, e := range mirrored {
		e.ID = uc.idgen.NewEntryID()
	}
	if err := uc.entryRepo.CreateMany(ctx, tx, mirrored); err != nil {
		return nil, err
	}

	if err := uc.persistReceipt(ctx, tx, ticket, refund); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	uc.publish(ctx, pub.EventRefundCompleted, refund, "", "")
	return refund, nil
}

func (uc *LedgerUsecase) newTransaction(typ domain.TransactionType, ticket string, amount decimal.Decimal) *domain.Transaction {
	return &domain.Transaction{
		ID:          uc.idgen.NewTransactionID(),
		ReferenceID: ticket,
		Type:        typ,
		Status:      domain.TransactionStatusSuccess,
		Amount:      amount,
	}
}

// persistReceipt writes the durable idempotency record inside the open unit
// of work. The stored bytes are exactly what the handler sends to the
// original caller, so replays are byte-identical.
func (uc *LedgerUsecase) persistReceipt(ctx context.Context, tx pgx.Tx, ticket string, txn *domain.Transaction) error {
	body, err := response.Payload(txn)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	return uc.idempotencyRepo.Save(ctx, tx, &domain.IdempotencyRecord{
		Key:            ticket,
		Status:         domain.IdempotencyStatusDone,
		ResponseStatus: http.StatusOK,
		ResponseBody:   body,
	})
}

// publish emits a post-commit event. Eventing is best-effort and never part
// of the atomic unit.
func (uc *LedgerUsecase) publish(ctx context.Context, eventType string, txn *domain.Transaction, fromAccount, toAccount string) {
	if uc.events == nil {
		return
	}
	if err := uc.events.PublishTransactionEvent(ctx, &pub.TransactionEvent{
		EventType:     eventType,
		TransactionID: txn.ID,
		ReferenceID:   txn.ReferenceID,
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		Amount:        txn.Amount.String(),
		FromAccount:   fromAccount,
		ToAccount:     toAccount,
	}); err != nil {
		uc.log.Warn("failed to publish transaction event",
			zap.String("transaction_id", txn.ID),
			zap.Error(err))
	}
}

func validateMovement(amount decimal.Decimal, ticket string) error {
	if ticket == "" {
		return xerrors.ErrTicketRequired
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return xerrors.ErrValidation
	}
	return nil
}
