package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType marks a ledger line as a debit or a credit.
type EntryType string

const (
	EntryTypeDebit  EntryType = "DEBIT"
	EntryTypeCredit EntryType = "CREDIT"
)

// Flip returns the opposite entry type.
func (e EntryType) Flip() EntryType {
	if e == EntryTypeDebit {
		return EntryTypeCredit
	}
	return EntryTypeDebit
}

// LedgerEntry is one signed, immutable movement of value against one account.
// Entries are never updated or deleted; an account's balance is the sum of
// its entries' signed amounts. Credits carry positive amounts, debits
// negative.
type LedgerEntry struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	EntryType     EntryType       `json:"entry_type"`
	Amount        decimal.Decimal `json:"amount"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MirrorEntries builds the reversing entries for a refund: same accounts,
// flipped entry types, negated amounts. Summed with the originals per
// account, the net effect is zero.
func MirrorEntries(originals []*LedgerEntry, refundTransactionID string) []*LedgerEntry {
	mirrored := make([]*LedgerEntry, 0, len(originals))
	for _, e := range originals {
		mirrored = append(mirrored, &LedgerEntry{
			TransactionID: refundTransactionID,
			AccountID:     e.AccountID,
			EntryType:     e.EntryType.Flip(),
			Amount:        e.Amount.Neg(),
		})
	}
	return mirrored
}

// SumEntries adds up the signed amounts of the given entries.
func SumEntries(entries []*LedgerEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}
