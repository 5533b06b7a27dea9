package fees

import (
	"errors"
	"math"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/safemath"
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	"github.com/gagliardetto/solana-go"
	"github.com/ryanavella/wide"
	"k8s.io/klog/v2"
)

// There are currently two aspects of the tx fee cost model on Solana
// 1) fee per signature (5k lamports/sig)
// 2) prioritization fees set via a SetComputeUnitPrice instruction

const (
	DefaultLamportsPerSignature = 5000
	microLamportsPerLamport     = 1000000
	feePayerIdx                 = 0
)

var (
	ErrInsufficientFundsForFee = errors.New("insufficient funds for fee")
	ErrInvalidAccountForFee    = errors.New("invalid account for fee")
)

// calculatePriorityFee rounds the micro-lamport fee up to whole lamports,
// saturating at math.MaxUint64.
func calculatePriorityFee(computeBudgetLimits *sealevel.ComputeBudgetLimits) uint64 {
	computeUnitPrice := wide.Uint128FromUint64(computeBudgetLimits.ComputeUnitPrice)
	computeUnitLimit := wide.Uint128FromUint64(uint64(computeBudgetLimits.ComputeUnitLimit))

	microLamportFee, err := safemath.CheckedMulU128(computeUnitPrice, computeUnitLimit)
	if err != nil {
		return math.MaxUint64
	}

	fee := safemath.SaturatingAddU128(microLamportFee, wide.Uint128FromUint64(microLamportsPerLamport-1)).Div(wide.Uint128FromUint64(microLamportsPerLamport))
	if !fee.IsUint64() {
		return math.MaxUint64
	}
	return fee.Uint64()
}

// NumSignatures counts the message's required signatures plus the signatures
// verified by precompile instructions, whose count is the first data byte.
func NumSignatures(msg *solana.Message, instrs []sealevel.Instruction) uint64 {
	numSignatures := uint64(msg.Header.NumRequiredSignatures)

	// have to pay fees per signatures to these precompiles as well
	for _, instr := range instrs {
		if sealevel.IsPrecompile(instr.ProgramId) && len(instr.Data) != 0 {
			numSignatures += uint64(instr.Data[0])
		}
	}

	return numSignatures
}

// CalculateFee returns the total fee a message is charged: the signature fee
// plus the priority fee, if a compute unit price was requested.
func CalculateFee(msg *solana.Message, instrs []sealevel.Instruction, lamportsPerSignature uint64, computeBudgetLimits *sealevel.ComputeBudgetLimits) uint64 {
	baseTxFee := safemath.SaturatingMulU64(NumSignatures(msg, instrs), lamportsPerSignature)

	var priorityFee uint64
	if computeBudgetLimits != nil && computeBudgetLimits.ComputeUnitPrice != 0 {
		priorityFee = calculatePriorityFee(computeBudgetLimits)
	}

	return safemath.SaturatingAddU64(baseTxFee, priorityFee)
}

// ApplyTxFees debits the fee from the fee payer, which is always the first
// transaction account. It returns the fee and the payer's post-balance.
func ApplyTxFees(msg *solana.Message, instrs []sealevel.Instruction, transactionAccts *sealevel.TransactionAccounts, computeBudgetLimits *sealevel.ComputeBudgetLimits, lamportsPerSignature uint64) (uint64, uint64, error) {
	feePayerAcct, err := transactionAccts.GetAccount(feePayerIdx)
	if err != nil {
		return 0, 0, ErrInvalidAccountForFee
	}
	defer transactionAccts.Unlock(feePayerIdx)

	if feePayerAcct.Owner != [32]byte(sealevel.SystemProgramAddr) {
		return 0, 0, ErrInvalidAccountForFee
	}

	totalTxFee := CalculateFee(msg, instrs, lamportsPerSignature, computeBudgetLimits)

	if feePayerAcct.Lamports < totalTxFee {
		return totalTxFee, feePayerAcct.Lamports, ErrInsufficientFundsForFee
	}

	klog.V(2).Infof("tx fee: %d", totalTxFee)

	feePayerAcct.Lamports -= totalTxFee
	err = transactionAccts.Touch(feePayerIdx)
	if err != nil {
		return 0, 0, err
	}

	return totalTxFee, feePayerAcct.Lamports, nil
}

// DistributeTxFees burns half of the collected fees and credits the rest to
// the collector account, creating it if needed. A collector that is not a
// plain system account cannot be paid and the whole amount is burned.
func DistributeTxFees(accts accounts.Accounts, collector solana.PublicKey, totalFees uint64) (uint64, uint64, error) {
	feesToBurn := totalFees / 2
	feesToCollector := totalFees - feesToBurn

	if feesToCollector == 0 {
		return feesToBurn, 0, nil
	}

	pk := [32]byte(collector)
	collectorAcct, err := accts.GetAccount(&pk)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		collectorAcct = &accounts.Account{Key: collector, Owner: sealevel.SystemProgramAddr}
	} else if err != nil {
		return 0, 0, err
	}

	if !IsValidFeeCollector(collectorAcct) {
		klog.Warningf("fee collector %s is not a system account, burning %d lamports", collector, totalFees)
		return totalFees, 0, nil
	}

	collectorAcct.Lamports, err = safemath.CheckedAddU64(collectorAcct.Lamports, feesToCollector)
	if err != nil {
		return 0, 0, err
	}

	err = accts.SetAccount(&pk, collectorAcct)
	if err != nil {
		return 0, 0, err
	}

	klog.V(2).Infof("distributed fees to collector: %d, post-balance: %d (%s)", feesToCollector, collectorAcct.Lamports, collector)
	return feesToBurn, feesToCollector, nil
}

// IsValidFeeCollector reports whether acct may receive fees: it must be a
// non-executable account owned by the system program.
func IsValidFeeCollector(acct *accounts.Account) bool {
	return acct.Owner == [32]byte(sealevel.SystemProgramAddr) && !acct.Executable
}
