package domain

import "time"

// AccountType classifies a ledger account within a wallet.
type AccountType string

const (
	AccountTypeAvailable AccountType = "AVAILABLE"
)

// Wallet groups the ledger accounts belonging to one user. Exactly one wallet
// exists per user; it is created together with one default AVAILABLE account.
type Wallet struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`

	Accounts []*LedgerAccount `json:"accounts,omitempty"`
}

// LedgerAccount is a balance-bearing account. It carries no stored balance:
// the balance is always derived by summing the account's ledger entries.
type LedgerAccount struct {
	ID        string      `json:"id"`
	WalletID  string      `json:"wallet_id"`
	Type      AccountType `json:"type"`
	CreatedAt time.Time   `json:"created_at"`
}
