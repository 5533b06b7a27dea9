package sealevel

import (
	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/gagliardetto/solana-go"
)

const (
	MaxInstructionStackDepth  = 5
	MaxInstructionTraceLength = 64
)

type TransactionCtx struct {
	Accounts                 TransactionAccounts
	InstructionStackCapacity uint64
	InstructionTraceCapacity uint64
	ComputeBudgetLimits      *ComputeBudgetLimits
	Signature                solana.Signature
	instructionStack         []uint64
	instructionTrace         []InstructionCtx
}

func NewTransactionCtx(txAccts TransactionAccounts, instrStackCapacity uint64, instrTraceCapacity uint64) *TransactionCtx {
	return &TransactionCtx{
		Accounts:                 txAccts,
		InstructionStackCapacity: instrStackCapacity,
		InstructionTraceCapacity: instrTraceCapacity,
		instructionStack:         make([]uint64, 0, instrStackCapacity),
		instructionTrace:         []InstructionCtx{{}},
	}
}

func (txCtx *TransactionCtx) InstructionCtxStackHeight() uint64 {
	return uint64(len(txCtx.instructionStack))
}

// InstructionTraceLength excludes the not-yet-pushed instruction at the end
// of the trace.
func (txCtx *TransactionCtx) InstructionTraceLength() uint64 {
	return uint64(len(txCtx.instructionTrace) - 1)
}

func (txCtx *TransactionCtx) InstructionCtxAtIndexInTrace(idx uint64) (*InstructionCtx, error) {
	if idx >= uint64(len(txCtx.instructionTrace)) {
		return nil, InstrErrCallDepth
	}
	return &txCtx.instructionTrace[idx], nil
}

func (txCtx *TransactionCtx) InstructionCtxAtNestingLevel(level uint64) (*InstructionCtx, error) {
	if level >= txCtx.InstructionCtxStackHeight() {
		return nil, InstrErrCallDepth
	}
	return txCtx.InstructionCtxAtIndexInTrace(txCtx.instructionStack[level])
}

func (txCtx *TransactionCtx) CurrentInstructionCtx() (*InstructionCtx, error) {
	level := txCtx.InstructionCtxStackHeight()
	if level == 0 {
		return nil, InstrErrCallDepth
	}
	return txCtx.InstructionCtxAtNestingLevel(level - 1)
}

func (txCtx *TransactionCtx) NextInstructionCtx() (*InstructionCtx, error) {
	return txCtx.InstructionCtxAtIndexInTrace(txCtx.InstructionTraceLength())
}

func (txCtx *TransactionCtx) Push() error {
	indexInTrace := txCtx.InstructionTraceLength()
	if indexInTrace >= txCtx.InstructionTraceCapacity {
		return InstrErrMaxInstructionTraceLengthExceeded
	}
	txCtx.instructionTrace = append(txCtx.instructionTrace, InstructionCtx{})

	if txCtx.InstructionCtxStackHeight() >= txCtx.InstructionStackCapacity {
		return InstrErrCallDepth
	}
	txCtx.instructionStack = append(txCtx.instructionStack, indexInTrace)
	return nil
}

func (txCtx *TransactionCtx) Pop() error {
	height := txCtx.InstructionCtxStackHeight()
	if height == 0 {
		return InstrErrCallDepth
	}
	txCtx.instructionStack = txCtx.instructionStack[:height-1]
	return nil
}

func (txCtx *TransactionCtx) KeyOfAccountAtIndex(index uint64) (solana.PublicKey, error) {
	if index >= txCtx.Accounts.Len() {
		return solana.PublicKey{}, InstrErrNotEnoughAccountKeys
	}
	return txCtx.Accounts.Accounts[index].Key, nil
}

func (txCtx *TransactionCtx) IndexOfAccount(pubkey solana.PublicKey) (uint64, error) {
	for idx, acct := range txCtx.Accounts.Accounts {
		if acct.Key == pubkey {
			return uint64(idx), nil
		}
	}
	return 0, InstrErrMissingAccount
}

// AccountAtIndex returns the working copy without taking a borrow.
func (txCtx *TransactionCtx) AccountAtIndex(idxInTx uint64) (*accounts.Account, error) {
	if idxInTx >= txCtx.Accounts.Len() {
		return nil, InstrErrNotEnoughAccountKeys
	}
	return txCtx.Accounts.Accounts[idxInTx], nil
}
