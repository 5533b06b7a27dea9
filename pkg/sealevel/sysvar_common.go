package sealevel

import (
	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// SysvarAccountLamports funds freshly created sysvar accounts.
const SysvarAccountLamports = 1_000_000

func readSysvar(accts accounts.Accounts, addr solana.PublicKey, sysvar bin.BinaryUnmarshaler) error {
	pk := [32]byte(addr)
	acct, err := accts.GetAccount(&pk)
	if err != nil {
		return InstrErrUnsupportedSysvar
	}
	if acct.Lamports == 0 || len(acct.Data) == 0 {
		return InstrErrUnsupportedSysvar
	}
	err = sysvar.UnmarshalWithDecoder(bin.NewBinDecoder(acct.Data))
	if err != nil {
		return InstrErrUnsupportedSysvar
	}
	return nil
}

// writeSysvar stores the encoded sysvar, creating the account if needed. An
// existing account keeps its balance.
func writeSysvar(accts accounts.Accounts, addr solana.PublicKey, sysvar bin.BinaryMarshaler) error {
	data, err := bin.MarshalBin(sysvar)
	if err != nil {
		return err
	}

	pk := [32]byte(addr)
	acct, err := accts.GetAccount(&pk)
	if err != nil {
		acct = &accounts.Account{Key: addr, Lamports: SysvarAccountLamports, Owner: SysvarOwnerAddr}
	}
	acct.Data = data
	return accts.SetAccount(&pk, acct)
}
