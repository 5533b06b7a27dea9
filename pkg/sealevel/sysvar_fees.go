package sealevel

import (
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

const SysvarFeesAddrStr = "SysvarFees111111111111111111111111111111111"

var SysvarFeesAddr = solana.MustPublicKeyFromBase58(SysvarFeesAddrStr)

const SysvarFeesStructLen = 8

type FeeCalculator struct {
	LamportsPerSignature uint64
}

type SysvarFees struct {
	FeeCalculator FeeCalculator
}

func (sf *SysvarFees) UnmarshalWithDecoder(decoder *bin.Decoder) (err error) {
	lamportsPerSignature, err := decoder.ReadUint64(bin.LE)
	if err != nil {
		return fmt.Errorf("failed to read LamportsPerSignature when decoding SysvarFees: %w", err)
	}
	sf.FeeCalculator.LamportsPerSignature = lamportsPerSignature
	return
}

func (sf *SysvarFees) MarshalWithEncoder(encoder *bin.Encoder) error {
	return encoder.WriteUint64(sf.FeeCalculator.LamportsPerSignature, bin.LE)
}

func ReadFeesSysvar(accts accounts.Accounts) (SysvarFees, error) {
	var fees SysvarFees
	err := readSysvar(accts, SysvarFeesAddr, &fees)
	return fees, err
}

func WriteFeesSysvar(accts accounts.Accounts, fees SysvarFees) error {
	return writeSysvar(accts, SysvarFeesAddr, &fees)
}
