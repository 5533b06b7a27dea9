package sealevel

import (
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/cu"
	"github.com/Overclock-Validator/pocbank/pkg/safemath"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

type ExecutionCtx struct {
	Log                Logger
	TransactionContext *TransactionCtx
	ComputeMeter       cu.ComputeMeter
	Programs           *Programs
}

func (execCtx *ExecutionCtx) ProcessInstruction(instrData []byte, instructionAccts []InstructionAccount, programIndices []uint64) error {
	nextInstrCtx, err := execCtx.TransactionContext.NextInstructionCtx()
	if err != nil {
		return err
	}

	nextInstrCtx.Configure(programIndices, instructionAccts, instrData)

	preLamports, err := execCtx.instructionLamports(instructionAccts)
	if err != nil {
		return err
	}

	err = execCtx.Push()
	if err != nil {
		return err
	}

	err1 := execCtx.ExecuteInstruction()

	err2 := execCtx.Pop()

	if err1 != nil {
		return err1
	} else if err2 != nil {
		return err2
	}

	postLamports, err := execCtx.instructionLamports(instructionAccts)
	if err != nil {
		return err
	}
	if preLamports != postLamports {
		klog.V(2).Infof("unbalanced instruction: %d lamports before, %d after", preLamports, postLamports)
		return InstrErrUnbalancedInstruction
	}

	return nil
}

// instructionLamports sums the lamports of the distinct instruction accounts.
func (execCtx *ExecutionCtx) instructionLamports(instructionAccts []InstructionAccount) (uint64, error) {
	var total uint64
	for idx, instrAcct := range instructionAccts {
		if instrAcct.IndexInCallee != uint64(idx) {
			continue
		}
		acct, err := execCtx.TransactionContext.AccountAtIndex(instrAcct.IndexInTransaction)
		if err != nil {
			return 0, err
		}
		total, err = safemath.CheckedAddU64(total, acct.Lamports)
		if err != nil {
			return 0, InstrErrArithmeticOverflow
		}
	}
	return total, nil
}

func (execCtx *ExecutionCtx) ExecuteInstruction() error {
	txCtx := execCtx.TransactionContext
	instrCtx, err := txCtx.CurrentInstructionCtx()
	if err != nil {
		return err
	}

	borrowedRootAccount, err := instrCtx.BorrowProgramAccount(txCtx, 0)
	if err != nil {
		klog.V(2).Infof("BorrowProgramAccount failed: %s", err)
		return InstrErrUnsupportedProgramId
	}
	programId := borrowedRootAccount.Key()
	ownerId := borrowedRootAccount.Owner()
	borrowedRootAccount.Drop()

	execCtx.Log.Log(fmt.Sprintf("Program %s invoke [%d]", programId, execCtx.StackHeight()))

	if ownerId != NativeLoaderAddr {
		klog.V(2).Infof("program %s is owned by %s, not a builtin", programId, ownerId)
		err = InstrErrUnsupportedProgramId
	} else if execCtx.Programs == nil {
		err = InstrErrUnsupportedProgramId
	} else {
		var programFn ProgramFn
		programFn, err = execCtx.Programs.Resolve(programId)
		if err == nil {
			klog.V(2).Infof("calling builtin program %s", programId)
			err = programFn(execCtx)
		}
	}

	if err != nil {
		execCtx.Log.Log(fmt.Sprintf("Program %s failed: %s", programId, err))
		return err
	}
	execCtx.Log.Log(fmt.Sprintf("Program %s success", programId))
	return nil
}

func (execCtx *ExecutionCtx) Push() error {
	txCtx := execCtx.TransactionContext

	instrCtx, err := txCtx.NextInstructionCtx()
	if err != nil {
		return err
	}

	programId, err := instrCtx.LastProgramKey(txCtx)
	if err != nil {
		return InstrErrUnsupportedProgramId
	}

	if txCtx.InstructionCtxStackHeight() != 0 {
		contains, err := execCtx.programOnStack(programId)
		if err != nil {
			return err
		}

		current, err := txCtx.CurrentInstructionCtx()
		if err != nil {
			return err
		}
		currentProgramId, err := current.LastProgramKey(txCtx)
		isLast := err == nil && currentProgramId == programId

		if contains && !isLast {
			return InstrErrReentrancyNotAllowed
		}
	}

	return txCtx.Push()
}

func (execCtx *ExecutionCtx) programOnStack(programId solana.PublicKey) (bool, error) {
	txCtx := execCtx.TransactionContext
	for level := uint64(0); level < txCtx.InstructionCtxStackHeight(); level++ {
		ic, err := txCtx.InstructionCtxAtNestingLevel(level)
		if err != nil {
			return false, err
		}
		key, err := ic.LastProgramKey(txCtx)
		if err == nil && key == programId {
			return true, nil
		}
	}
	return false, nil
}

func (execCtx *ExecutionCtx) Pop() error {
	return execCtx.TransactionContext.Pop()
}

func (execCtx *ExecutionCtx) StackHeight() uint64 {
	return execCtx.TransactionContext.InstructionCtxStackHeight()
}
