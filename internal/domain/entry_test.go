package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryTypeFlip(t *testing.T) {
	assert.Equal(t, EntryTypeCredit, EntryTypeDebit.Flip())
	assert.Equal(t, EntryTypeDebit, EntryTypeCredit.Flip())
}

func TestMirrorEntriesNetsToZero(t *testing.T) {
	amount := decimal.RequireFromString("30.50")
	originals := []*LedgerEntry{
		{ID: "ENT-1", TransactionID: "TXN-1", AccountID: "ACC-A", EntryType: EntryTypeDebit, Amount: amount.Neg()},
		{ID: "ENT-2", TransactionID: "TXN-1", AccountID: "ACC-B", EntryType: EntryTypeCredit, Amount: amount},
	}

	mirrored := MirrorEntries(originals, "TXN-2")
	require.Len(t, mirrored, 2)

	// Per account, original + mirror must cancel out.
	for i, m := range mirrored {
		assert.Equal(t, "TXN-2", m.TransactionID)
		assert.Equal(t, originals[i].AccountID, m.AccountID)
		assert.Equal(t, originals[i].EntryType.Flip(), m.EntryType)
		assert.True(t, originals[i].Amount.Add(m.Amount).IsZero(),
			"entry %d should net to zero with its mirror", i)
	}

	assert.True(t, SumEntries(append(originals, mirrored...)).IsZero())
}

func TestSumEntries(t *testing.T) {
	assert.True(t, SumEntries(nil).IsZero())

	entries := []*LedgerEntry{
		{Amount: decimal.RequireFromString("100")},
		{Amount: decimal.RequireFromString("-30")},
		{Amount: decimal.RequireFromString("-70")},
	}
	assert.True(t, SumEntries(entries).IsZero())
}

func TestTransferEntriesConservation(t *testing.T) {
	// A transfer's debit/credit pair always sums to exactly zero, whatever
	// the amount's precision.
	for _, raw := range []string{"0.0000000001", "1", "99999999.99", "3.1415926535"} {
		amount := decimal.RequireFromString(raw)
		pair := []*LedgerEntry{
			{AccountID: "ACC-A", EntryType: EntryTypeDebit, Amount: amount.Neg()},
			{AccountID: "ACC-B", EntryType: EntryTypeCredit, Amount: amount},
		}
		assert.True(t, SumEntries(pair).IsZero(), "amount %s", raw)
	}
}

func TestTransactionStatusTransitions(t *testing.T) {
	assert.True(t, TransactionStatusSuccess.CanTransitionTo(TransactionStatusReversed))
	assert.False(t, TransactionStatusReversed.CanTransitionTo(TransactionStatusSuccess))
	assert.False(t, TransactionStatusReversed.CanTransitionTo(TransactionStatusReversed))
	assert.False(t, TransactionStatusSuccess.CanTransitionTo(TransactionStatusSuccess))
}

func TestTransactionTypeIsValid(t *testing.T) {
	for _, typ := range []TransactionType{
		TransactionTypeDeposit, TransactionTypeWithdraw, TransactionTypeTransfer, TransactionTypeRefund,
	} {
		assert.True(t, typ.IsValid())
	}
	assert.False(t, TransactionType("SETTLEMENT").IsValid())
	assert.False(t, TransactionType("").IsValid())
}
