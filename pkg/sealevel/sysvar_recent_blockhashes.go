package sealevel

import (
	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const SysvarRecentBlockHashesAddrStr = "SysvarRecentB1ockHashes11111111111111111111"

var SysvarRecentBlockHashesAddr = solana.MustPublicKeyFromBase58(SysvarRecentBlockHashesAddrStr)

// MaxRecentBlockhashEntries bounds the sysvar's contents.
const MaxRecentBlockhashEntries = 150

type RecentBlockHashesEntry struct {
	Blockhash     [32]byte
	FeeCalculator FeeCalculator
}

// SysvarRecentBlockhashes is ordered newest first.
type SysvarRecentBlockhashes []RecentBlockHashesEntry

func (recentBlockhashes *SysvarRecentBlockhashes) UnmarshalWithDecoder(decoder *bin.Decoder) error {
	numBlockhashes, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return err
	}
	if numBlockhashes > MaxRecentBlockhashEntries {
		return InstrErrInvalidAccountData
	}

	*recentBlockhashes = (*recentBlockhashes)[:0]
	for count := uint64(0); count < numBlockhashes; count++ {
		var recentBlockhashEntry RecentBlockHashesEntry
		hash, err := decoder.ReadBytes(32)
		if err != nil {
			return err
		}
		copy(recentBlockhashEntry.Blockhash[:], hash)

		recentBlockhashEntry.FeeCalculator.LamportsPerSignature, err = decoder.ReadUint64(bin.LE)
		if err != nil {
			return err
		}

		*recentBlockhashes = append(*recentBlockhashes, recentBlockhashEntry)
	}

	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) MarshalWithEncoder(encoder *bin.Encoder) error {
	rbh := *recentBlockhashes

	err := encoder.WriteUint64(uint64(len(rbh)), bin.LE)
	if err != nil {
		return err
	}

	for _, entry := range rbh {
		err = encoder.WriteBytes(entry.Blockhash[:], false)
		if err != nil {
			return err
		}

		err = encoder.WriteUint64(entry.FeeCalculator.LamportsPerSignature, bin.LE)
		if err != nil {
			return err
		}
	}

	return nil
}

func (recentBlockhashes *SysvarRecentBlockhashes) GetLatest() (RecentBlockHashesEntry, bool) {
	rbh := *recentBlockhashes
	if len(rbh) == 0 {
		return RecentBlockHashesEntry{}, false
	}
	return rbh[0], true
}

func ReadRecentBlockHashesSysvar(accts accounts.Accounts) (SysvarRecentBlockhashes, error) {
	var recentBlockhashes SysvarRecentBlockhashes
	err := readSysvar(accts, SysvarRecentBlockHashesAddr, &recentBlockhashes)
	return recentBlockhashes, err
}

func WriteRecentBlockHashesSysvar(accts accounts.Accounts, recentBlockhashes SysvarRecentBlockhashes) error {
	if len(recentBlockhashes) > MaxRecentBlockhashEntries {
		recentBlockhashes = recentBlockhashes[:MaxRecentBlockhashEntries]
	}
	return writeSysvar(accts, SysvarRecentBlockHashesAddr, &recentBlockhashes)
}
