package bank

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockhashQueue_Age(t *testing.T) {
	q := NewBlockhashQueue(MaxProcessingAge)

	_, ok := q.LastHash()
	assert.False(t, ok)

	first := solana.Hash{1}
	q.Register(first, 5000)
	assert.True(t, q.IsHashValid(first))

	lps, ok := q.LamportsPerSignature(first)
	require.True(t, ok)
	assert.Equal(t, uint64(5000), lps)

	for i := 0; i < MaxProcessingAge; i++ {
		q.Register(solana.Hash{2, byte(i)}, 5000)
	}
	age, ok := q.Age(first)
	require.True(t, ok)
	assert.Equal(t, uint64(MaxProcessingAge), age)
	assert.True(t, q.IsHashValid(first))

	q.Register(solana.Hash{3}, 5000)
	assert.False(t, q.IsHashValid(first))
	_, ok = q.LamportsPerSignature(first)
	assert.False(t, ok)
	assert.Equal(t, MaxProcessingAge+1, q.Len())

	last, ok := q.LastHash()
	require.True(t, ok)
	assert.Equal(t, solana.Hash{3}, last)

	recent := q.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, solana.Hash{3}, recent[0].Hash)
	assert.Equal(t, solana.Hash{2, MaxProcessingAge - 1}, recent[1].Hash)
}

func TestStatusCache_Purge(t *testing.T) {
	sc := NewStatusCache()

	sig1 := solana.Signature{1}
	sig2 := solana.Signature{2}
	sig3 := solana.Signature{3}
	sc.Insert(sig1, TransactionStatus{Slot: 1})
	sc.Insert(sig2, TransactionStatus{Slot: 1, Err: TxErrSanitizeFailure})
	sc.Insert(sig3, TransactionStatus{Slot: 4})

	status, ok := sc.Get(sig2)
	require.True(t, ok)
	assert.ErrorIs(t, status.Err, TxErrSanitizeFailure)
	assert.Equal(t, 3, sc.Len())

	assert.Equal(t, 0, sc.PurgeOlderThan(1))
	assert.Equal(t, 2, sc.PurgeOlderThan(4))

	_, ok = sc.Get(sig1)
	assert.False(t, ok)
	_, ok = sc.Get(sig3)
	assert.True(t, ok)
}
