package sealevel

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// AccountInfo is a read-only snapshot of an instruction account as seen by a
// program entrypoint.
type AccountInfo struct {
	Key        solana.PublicKey
	IsSigner   bool
	IsWritable bool
	Lamports   uint64
	Data       []byte
	Owner      solana.PublicKey
	Executable bool
	RentEpoch  uint64
}

const accountInfoDataPreview = 64

func (info AccountInfo) String() string {
	data := info.Data
	if len(data) > accountInfoDataPreview {
		data = data[:accountInfoDataPreview]
	}
	return fmt.Sprintf("AccountInfo { key: %s, owner: %s, is_signer: %t, is_writable: %t, executable: %t, rent_epoch: %d, lamports: %d, data.len: %d, data: %s }",
		info.Key, info.Owner, info.IsSigner, info.IsWritable, info.Executable, info.RentEpoch, info.Lamports, len(info.Data), hex.EncodeToString(data))
}

// Entrypoint is the signature of a program handler that works on account
// snapshots instead of the execution context.
type Entrypoint func(log Logger, programId solana.PublicKey, accts []AccountInfo, data []byte) error

// Processor adapts an Entrypoint into a builtin ProgramFn.
func Processor(entrypoint Entrypoint) ProgramFn {
	return func(execCtx *ExecutionCtx) error {
		err := execCtx.ComputeMeter.Consume(CUBuiltinProgramDefaultComputeUnits)
		if err != nil {
			return InstrErrComputationalBudgetExceeded
		}

		txCtx := execCtx.TransactionContext
		instrCtx, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}

		programId, err := instrCtx.LastProgramKey(txCtx)
		if err != nil {
			return err
		}

		accts, err := InstructionAccountInfos(txCtx, instrCtx)
		if err != nil {
			return err
		}

		return entrypoint(execCtx.Log, programId, accts, bytes.Clone(instrCtx.Data))
	}
}

// InstructionAccountInfos snapshots every instruction account in order.
// Duplicate metas yield copies of the first occurrence.
func InstructionAccountInfos(txCtx *TransactionCtx, instrCtx *InstructionCtx) ([]AccountInfo, error) {
	accts := make([]AccountInfo, 0, instrCtx.NumberOfInstructionAccounts())

	for idx := uint64(0); idx < instrCtx.NumberOfInstructionAccounts(); idx++ {
		isDup, firstIdx, err := instrCtx.IsInstructionAccountDuplicate(idx)
		if err != nil {
			return nil, err
		}
		if isDup && firstIdx < uint64(len(accts)) {
			dup := accts[firstIdx]
			dup.Data = bytes.Clone(dup.Data)
			accts = append(accts, dup)
			continue
		}

		acct, err := instrCtx.BorrowInstructionAccount(txCtx, idx)
		if err != nil {
			return nil, err
		}
		accts = append(accts, AccountInfo{
			Key:        acct.Key(),
			IsSigner:   acct.IsSigner(),
			IsWritable: acct.IsWritable(),
			Lamports:   acct.Lamports(),
			Data:       acct.Data(),
			Owner:      acct.Owner(),
			Executable: acct.IsExecutable(),
			RentEpoch:  acct.RentEpoch(),
		})
		acct.Drop()
	}

	return accts, nil
}

// NextAccountInfos returns the first n accounts, or InstrErrMissingAccount
// if fewer are present.
func NextAccountInfos(accts []AccountInfo, n int) ([]AccountInfo, error) {
	if len(accts) < n {
		return nil, InstrErrMissingAccount
	}
	return accts[:n], nil
}
