package bank

import (
	"github.com/gagliardetto/solana-go"
	"github.com/tidwall/btree"
)

type TransactionStatus struct {
	Slot      uint64
	Blockhash solana.Hash
	Err       error
}

// StatusCache remembers the outcome of every committed transaction so that
// replays of the same signature can be rejected.
type StatusCache struct {
	statuses map[solana.Signature]TransactionStatus
	bySlot   btree.Map[uint64, []solana.Signature]
}

func NewStatusCache() *StatusCache {
	return &StatusCache{statuses: make(map[solana.Signature]TransactionStatus)}
}

func (sc *StatusCache) Insert(sig solana.Signature, status TransactionStatus) {
	sc.statuses[sig] = status
	sigs, _ := sc.bySlot.Get(status.Slot)
	sc.bySlot.Set(status.Slot, append(sigs, sig))
}

func (sc *StatusCache) Get(sig solana.Signature) (TransactionStatus, bool) {
	status, ok := sc.statuses[sig]
	return status, ok
}

func (sc *StatusCache) Len() int {
	return len(sc.statuses)
}

// PurgeOlderThan drops the statuses of every slot below slot.
func (sc *StatusCache) PurgeOlderThan(slot uint64) int {
	var stale []uint64
	sc.bySlot.Scan(func(s uint64, sigs []solana.Signature) bool {
		if s >= slot {
			return false
		}
		stale = append(stale, s)
		return true
	})

	var purged int
	for _, s := range stale {
		sigs, _ := sc.bySlot.Delete(s)
		for _, sig := range sigs {
			delete(sc.statuses, sig)
			purged++
		}
	}
	return purged
}
