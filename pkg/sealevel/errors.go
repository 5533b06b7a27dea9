package sealevel

import "errors"

// instruction errors
var (
	InstrErrGenericError                      = errors.New("InstrErrGenericError")
	InstrErrInvalidArgument                   = errors.New("InstrErrInvalidArgument")
	InstrErrInvalidInstructionData            = errors.New("InstrErrInvalidInstructionData")
	InstrErrInvalidAccountData                = errors.New("InstrErrInvalidAccountData")
	InstrErrInsufficientFunds                 = errors.New("InstrErrInsufficientFunds")
	InstrErrMissingRequiredSignature          = errors.New("InstrErrMissingRequiredSignature")
	InstrErrUnbalancedInstruction             = errors.New("InstrErrUnbalancedInstruction")
	InstrErrModifiedProgramId                 = errors.New("InstrErrModifiedProgramId")
	InstrErrExternalAccountLamportSpend       = errors.New("InstrErrExternalAccountLamportSpend")
	InstrErrExternalAccountDataModified       = errors.New("InstrErrExternalAccountDataModified")
	InstrErrReadonlyLamportChange             = errors.New("InstrErrReadonlyLamportChange")
	InstrErrReadonlyDataModified              = errors.New("InstrErrReadonlyDataModified")
	InstrErrNotEnoughAccountKeys              = errors.New("InstrErrNotEnoughAccountKeys")
	InstrErrAccountNotExecutable              = errors.New("InstrErrAccountNotExecutable")
	InstrErrAccountBorrowFailed               = errors.New("InstrErrAccountBorrowFailed")
	InstrErrUnsupportedProgramId              = errors.New("InstrErrUnsupportedProgramId")
	InstrErrExecutableDataModified            = errors.New("InstrErrExecutableDataModified")
	InstrErrExecutableLamportChange           = errors.New("InstrErrExecutableLamportChange")
	InstrErrCallDepth                         = errors.New("InstrErrCallDepth")
	InstrErrMissingAccount                    = errors.New("InstrErrMissingAccount")
	InstrErrReentrancyNotAllowed              = errors.New("InstrErrReentrancyNotAllowed")
	InstrErrInvalidRealloc                    = errors.New("InstrErrInvalidRealloc")
	InstrErrComputationalBudgetExceeded       = errors.New("InstrErrComputationalBudgetExceeded")
	InstrErrInvalidAccountOwner               = errors.New("InstrErrInvalidAccountOwner")
	InstrErrArithmeticOverflow                = errors.New("InstrErrArithmeticOverflow")
	InstrErrUnsupportedSysvar                 = errors.New("InstrErrUnsupportedSysvar")
	InstrErrMaxInstructionTraceLengthExceeded = errors.New("InstrErrMaxInstructionTraceLengthExceeded")
)

// ErrDuplicateComputeBudgetInstruction is returned when a transaction carries
// more than one compute budget instruction of the same kind.
var ErrDuplicateComputeBudgetInstruction = errors.New("DuplicateInstruction")

// instruction errors - Solana numerical error codes
const (
	InstrErrCodeSuccess                           = 0
	InstrErrCodeGenericError                      = 1
	InstrErrCodeInvalidArgument                   = 2
	InstrErrCodeInvalidInstructionData            = 3
	InstrErrCodeInvalidAccountData                = 4
	InstrErrCodeInsufficientFunds                 = 6
	InstrErrCodeMissingRequiredSignature          = 8
	InstrErrCodeUnbalancedInstruction             = 11
	InstrErrCodeModifiedProgramId                 = 12
	InstrErrCodeExternalAccountLamportSpend       = 13
	InstrErrCodeExternalAccountDataModified       = 14
	InstrErrCodeReadonlyLamportChange             = 15
	InstrErrCodeReadonlyDataModified              = 16
	InstrErrCodeNotEnoughAccountKeys              = 20
	InstrErrCodeAccountNotExecutable              = 22
	InstrErrCodeAccountBorrowFailed               = 23
	InstrErrCodeExecutableDataModified            = 28
	InstrErrCodeExecutableLamportChange           = 29
	InstrErrCodeUnsupportedProgramId              = 31
	InstrErrCodeCallDepth                         = 32
	InstrErrCodeMissingAccount                    = 33
	InstrErrCodeReentrancyNotAllowed              = 34
	InstrErrCodeInvalidRealloc                    = 37
	InstrErrCodeComputationalBudgetExceeded       = 38
	InstrErrCodeInvalidAccountOwner               = 47
	InstrErrCodeArithmeticOverflow                = 48
	InstrErrCodeUnsupportedSysvar                 = 49
	InstrErrCodeMaxInstructionTraceLengthExceeded = 53
)

var instrErrCodes = map[error]int{
	InstrErrGenericError:                      InstrErrCodeGenericError,
	InstrErrInvalidArgument:                   InstrErrCodeInvalidArgument,
	InstrErrInvalidInstructionData:            InstrErrCodeInvalidInstructionData,
	InstrErrInvalidAccountData:                InstrErrCodeInvalidAccountData,
	InstrErrInsufficientFunds:                 InstrErrCodeInsufficientFunds,
	InstrErrMissingRequiredSignature:          InstrErrCodeMissingRequiredSignature,
	InstrErrUnbalancedInstruction:             InstrErrCodeUnbalancedInstruction,
	InstrErrModifiedProgramId:                 InstrErrCodeModifiedProgramId,
	InstrErrExternalAccountLamportSpend:       InstrErrCodeExternalAccountLamportSpend,
	InstrErrExternalAccountDataModified:       InstrErrCodeExternalAccountDataModified,
	InstrErrReadonlyLamportChange:             InstrErrCodeReadonlyLamportChange,
	InstrErrReadonlyDataModified:              InstrErrCodeReadonlyDataModified,
	InstrErrNotEnoughAccountKeys:              InstrErrCodeNotEnoughAccountKeys,
	InstrErrAccountNotExecutable:              InstrErrCodeAccountNotExecutable,
	InstrErrAccountBorrowFailed:               InstrErrCodeAccountBorrowFailed,
	InstrErrExecutableDataModified:            InstrErrCodeExecutableDataModified,
	InstrErrExecutableLamportChange:           InstrErrCodeExecutableLamportChange,
	InstrErrUnsupportedProgramId:              InstrErrCodeUnsupportedProgramId,
	InstrErrCallDepth:                         InstrErrCodeCallDepth,
	InstrErrMissingAccount:                    InstrErrCodeMissingAccount,
	InstrErrReentrancyNotAllowed:              InstrErrCodeReentrancyNotAllowed,
	InstrErrInvalidRealloc:                    InstrErrCodeInvalidRealloc,
	InstrErrComputationalBudgetExceeded:       InstrErrCodeComputationalBudgetExceeded,
	InstrErrInvalidAccountOwner:               InstrErrCodeInvalidAccountOwner,
	InstrErrArithmeticOverflow:                InstrErrCodeArithmeticOverflow,
	InstrErrUnsupportedSysvar:                 InstrErrCodeUnsupportedSysvar,
	InstrErrMaxInstructionTraceLengthExceeded: InstrErrCodeMaxInstructionTraceLengthExceeded,
}

// InstrErrCode translates an instruction error into its Solana numerical
// code. Errors without a mapping are reported as GenericError.
func InstrErrCode(err error) int {
	if err == nil {
		return InstrErrCodeSuccess
	}
	for sentinel, code := range instrErrCodes {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return InstrErrCodeGenericError
}
