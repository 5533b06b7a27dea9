package bank

import (
	"github.com/edwingeng/deque/v2"
	"github.com/gagliardetto/solana-go"
)

// MaxProcessingAge is the number of blockhashes, counting back from the
// latest, that a transaction may reference.
const MaxProcessingAge = 150

type BlockhashEntry struct {
	Hash                 solana.Hash
	Index                uint64
	LamportsPerSignature uint64
}

// BlockhashQueue keeps the most recent blockhashes in registration order,
// oldest first.
type BlockhashQueue struct {
	entries   *deque.Deque[BlockhashEntry]
	byHash    map[solana.Hash]BlockhashEntry
	lastIndex uint64
	maxAge    uint64
}

func NewBlockhashQueue(maxAge uint64) *BlockhashQueue {
	return &BlockhashQueue{
		entries: deque.NewDeque[BlockhashEntry](),
		byHash:  make(map[solana.Hash]BlockhashEntry),
		maxAge:  maxAge,
	}
}

func (q *BlockhashQueue) Register(hash solana.Hash, lamportsPerSignature uint64) {
	q.lastIndex++
	entry := BlockhashEntry{Hash: hash, Index: q.lastIndex, LamportsPerSignature: lamportsPerSignature}
	q.entries.PushBack(entry)
	q.byHash[hash] = entry

	for {
		oldest, ok := q.entries.Front()
		if !ok || q.lastIndex-oldest.Index <= q.maxAge {
			break
		}
		q.entries.PopFront()
		if current, ok := q.byHash[oldest.Hash]; ok && current.Index == oldest.Index {
			delete(q.byHash, oldest.Hash)
		}
	}
}

func (q *BlockhashQueue) LastHash() (solana.Hash, bool) {
	latest, ok := q.entries.Back()
	if !ok {
		return solana.Hash{}, false
	}
	return latest.Hash, true
}

// IsHashValid reports whether hash is within MaxProcessingAge of the latest
// registered blockhash.
func (q *BlockhashQueue) IsHashValid(hash solana.Hash) bool {
	entry, ok := q.byHash[hash]
	return ok && q.lastIndex-entry.Index <= min(q.maxAge, MaxProcessingAge)
}

func (q *BlockhashQueue) LamportsPerSignature(hash solana.Hash) (uint64, bool) {
	entry, ok := q.byHash[hash]
	if !ok {
		return 0, false
	}
	return entry.LamportsPerSignature, true
}

// Age returns how many blockhashes have been registered since hash.
func (q *BlockhashQueue) Age(hash solana.Hash) (uint64, bool) {
	entry, ok := q.byHash[hash]
	if !ok {
		return 0, false
	}
	return q.lastIndex - entry.Index, true
}

func (q *BlockhashQueue) Len() int {
	return q.entries.Len()
}

// Recent returns up to n entries, newest first.
func (q *BlockhashQueue) Recent(n int) []BlockhashEntry {
	recent := make([]BlockhashEntry, 0, min(n, q.entries.Len()))
	for idx := q.entries.Len() - 1; idx >= 0 && len(recent) < n; idx-- {
		recent = append(recent, q.entries.Peek(idx))
	}
	return recent
}
