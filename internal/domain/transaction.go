package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of money movement
type TransactionType string

const (
	TransactionTypeDeposit  TransactionType = "DEPOSIT"
	TransactionTypeWithdraw TransactionType = "WITHDRAW"
	TransactionTypeTransfer TransactionType = "TRANSFER"
	TransactionTypeRefund   TransactionType = "REFUND"
)

// IsValid checks the type against the known set.
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer, TransactionTypeRefund:
		return true
	}
	return false
}

// TransactionStatus is the lifecycle state of a transaction. SUCCESS is the
// only initial state; the single allowed transition is SUCCESS -> REVERSED,
// triggered exactly once by a refund. REVERSED is terminal.
type TransactionStatus string

const (
	TransactionStatusSuccess  TransactionStatus = "SUCCESS"
	TransactionStatusReversed TransactionStatus = "REVERSED"
)

// CanTransitionTo reports whether the status machine allows moving to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	return s == TransactionStatusSuccess && next == TransactionStatusReversed
}

// Transaction is the immutable header of one money movement. Amounts never
// change after creation; status changes only through the transition above.
// ReferenceID holds the idempotency ticket that produced the transaction and
// is unique across all transactions.
type Transaction struct {
	ID          string            `json:"id"`
	ReferenceID string            `json:"reference_id"`
	Type        TransactionType   `json:"type"`
	Status      TransactionStatus `json:"status"`
	Amount      decimal.Decimal   `json:"amount"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TransactionPage is one page of an account's transaction history.
type TransactionPage struct {
	Items  []*Transaction `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}
