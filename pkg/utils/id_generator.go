package utils

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDGenerator issues ULID-based identifiers for ledger records. ULIDs are
// sortable by creation time, which keeps primary-key indexes append-mostly.
type IDGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (g *IDGenerator) next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy).String()
}

// NewWalletID generates a wallet identifier.
// Format: WAL-01ARZ3NDEKTSV4RRFFQ69G5FAV
func (g *IDGenerator) NewWalletID() string { return "WAL-" + g.next() }

// NewAccountID generates a ledger account identifier.
func (g *IDGenerator) NewAccountID() string { return "ACC-" + g.next() }

// NewTransactionID generates a transaction identifier.
func (g *IDGenerator) NewTransactionID() string { return "TXN-" + g.next() }

// NewEntryID generates a ledger entry identifier.
func (g *IDGenerator) NewEntryID() string { return "ENT-" + g.next() }

// ValidID reports whether s looks like an identifier this generator issued.
func ValidID(s string) bool {
	prefix, raw, ok := strings.Cut(s, "-")
	if !ok {
		return false
	}
	switch prefix {
	case "WAL", "ACC", "TXN", "ENT":
	default:
		return false
	}
	_, err := ulid.Parse(raw)
	return err == nil
}
