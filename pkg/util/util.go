package util

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/gagliardetto/solana-go"
	"github.com/zeebo/blake3"
)

// PubkeyCmp orders pubkeys by their bytes.
func PubkeyCmp(a solana.PublicKey, b solana.PublicKey) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// DedupePubkeys sorts pubkeys in place and drops repeats.
func DedupePubkeys(pubkeys []solana.PublicKey) []solana.PublicKey {
	slices.SortFunc(pubkeys, func(a, b solana.PublicKey) int {
		return bytes.Compare(a[:], b[:])
	})
	return slices.Compact(pubkeys)
}

// CalculateAcctHash hashes every field of the account, so any change to it
// changes the hash.
func CalculateAcctHash(acct accounts.Account) []byte {
	hasher := blake3.New()

	var lamportBytes [8]byte
	binary.LittleEndian.PutUint64(lamportBytes[:], acct.Lamports)
	_, _ = hasher.Write(lamportBytes[:])

	var rentEpochBytes [8]byte
	binary.LittleEndian.PutUint64(rentEpochBytes[:], acct.RentEpoch)
	_, _ = hasher.Write(rentEpochBytes[:])

	_, _ = hasher.Write(acct.Data)

	if acct.Executable {
		_, _ = hasher.Write([]byte{1})
	} else {
		_, _ = hasher.Write([]byte{0})
	}

	_, _ = hasher.Write(acct.Owner[:])
	_, _ = hasher.Write(acct.Key[:])

	return hasher.Sum(nil)
}

func PrettyPrintAcct(acct *accounts.Account) string {
	return fmt.Sprintf("Account{key: %s, lamports: %d, owner: %s, executable: %t, rent_epoch: %d, data.len: %d}",
		acct.Key, acct.Lamports, solana.PublicKey(acct.Owner), acct.Executable, acct.RentEpoch, len(acct.Data))
}
