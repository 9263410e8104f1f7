package utils

import (
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDGeneratorPrefixes(t *testing.T) {
	g := NewIDGenerator()

	assert.True(t, strings.HasPrefix(g.NewWalletID(), "WAL-"))
	assert.True(t, strings.HasPrefix(g.NewAccountID(), "ACC-"))
	assert.True(t, strings.HasPrefix(g.NewTransactionID(), "TXN-"))
	assert.True(t, strings.HasPrefix(g.NewEntryID(), "ENT-"))
}

func TestIDGeneratorUniqueAndSortable(t *testing.T) {
	g := NewIDGenerator()

	const n = 1000
	ids := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		id := g.NewTransactionID()
		_, dup := seen[id]
		require.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	// Monotonic entropy means generation order is lexicographic order.
	assert.True(t, sort.StringsAreSorted(ids))
}

func TestValidID(t *testing.T) {
	g := NewIDGenerator()

	assert.True(t, ValidID(g.NewWalletID()))
	assert.True(t, ValidID(g.NewAccountID()))
	assert.True(t, ValidID(g.NewTransactionID()))
	assert.True(t, ValidID(g.NewEntryID()))

	assert.False(t, ValidID(""))
	assert.False(t, ValidID("01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	assert.False(t, ValidID("USR-01ARZ3NDEKTSV4RRFFQ69G5FAV"))
	assert.False(t, ValidID("TXN-not-a-ulid"))
}
