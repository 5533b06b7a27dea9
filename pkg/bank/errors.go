package bank

import (
	"errors"
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
)

// transaction errors
var (
	TxErrAccountNotFound            = errors.New("TxErrAccountNotFound")
	TxErrProgramAccountNotFound     = errors.New("TxErrProgramAccountNotFound")
	TxErrInsufficientFundsForFee    = errors.New("TxErrInsufficientFundsForFee")
	TxErrInvalidAccountForFee       = errors.New("TxErrInvalidAccountForFee")
	TxErrAlreadyProcessed           = errors.New("TxErrAlreadyProcessed")
	TxErrBlockhashNotFound          = errors.New("TxErrBlockhashNotFound")
	TxErrSignatureFailure           = errors.New("TxErrSignatureFailure")
	TxErrSanitizeFailure            = errors.New("TxErrSanitizeFailure")
	TxErrInvalidProgramForExecution = errors.New("TxErrInvalidProgramForExecution")
	TxErrDuplicateInstruction       = errors.New("TxErrDuplicateInstruction")
)

var ErrInvalidFeeCollector = errors.New("fee collector must be a non-executable system account")

// InstructionError reports the instruction that failed a transaction.
type InstructionError struct {
	Index uint8
	Err   error
}

func (err *InstructionError) Error() string {
	return fmt.Sprintf("Error processing Instruction %d: %s", err.Index, err.Err)
}

// Code is the numerical Solana error code of the failed instruction.
func (err *InstructionError) Code() int {
	return sealevel.InstrErrCode(err.Err)
}

func (err *InstructionError) Unwrap() error {
	return err.Err
}
