package bank

import (
	"bytes"
	"encoding/binary"
	"slices"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/util"
	"github.com/gagliardetto/solana-go"
	"github.com/minio/sha256-simd"
)

const merkleFanout = 16

// merkleRoot hashes the leaves in groups of merkleFanout, level by level,
// until a single hash remains.
func merkleRoot(leaves [][32]byte) []byte {
	if len(leaves) == 0 {
		return nil
	}

	for {
		next := make([][32]byte, 0, (len(leaves)+merkleFanout-1)/merkleFanout)
		for chunk := range slices.Chunk(leaves, merkleFanout) {
			hasher := sha256.New()
			for _, leaf := range chunk {
				hasher.Write(leaf[:])
			}
			next = append(next, [32]byte(hasher.Sum(nil)))
		}
		if len(next) == 1 {
			return next[0][:]
		}
		leaves = next
	}
}

// calculateAcctsDeltaHash is the merkle root over the hashes of the accounts
// modified in a slot, ordered by pubkey.
func calculateAcctsDeltaHash(accts []*accounts.Account) []byte {
	sorted := slices.Clone(accts)
	slices.SortStableFunc(sorted, func(a, b *accounts.Account) int {
		return bytes.Compare(a.Key[:], b.Key[:])
	})

	leaves := make([][32]byte, len(sorted))
	for idx, acct := range sorted {
		leaves[idx] = [32]byte(util.CalculateAcctHash(*acct))
	}
	return merkleRoot(leaves)
}

// calculateBankHash commits to the parent bank, the slot's account changes,
// its signature count and its last blockhash.
func calculateBankHash(acctsDeltaHash []byte, parentBankHash [32]byte, numSigs uint64, blockHash [32]byte) []byte {
	var numSigsBytes [8]byte
	binary.LittleEndian.PutUint64(numSigsBytes[:], numSigs)

	hasher := sha256.New()
	hasher.Write(parentBankHash[:])
	hasher.Write(acctsDeltaHash)
	hasher.Write(numSigsBytes[:])
	hasher.Write(blockHash[:])
	return hasher.Sum(nil)
}

// nextBlockhash derives the blockhash of the next slot from the previous
// blockhash and the frozen bank hash.
func nextBlockhash(prev solana.Hash, bankHash []byte) solana.Hash {
	hasher := sha256.New()
	hasher.Write(prev[:])
	hasher.Write(bankHash)
	return solana.HashFromBytes(hasher.Sum(nil))
}

func genesisBlockhash(accts []*accounts.Account) solana.Hash {
	hasher := sha256.New()
	hasher.Write([]byte("genesis"))
	hasher.Write(calculateAcctsDeltaHash(accts))
	return solana.HashFromBytes(hasher.Sum(nil))
}
