package bank

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/cu"
	"github.com/Overclock-Validator/pocbank/pkg/fees"
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	"github.com/Overclock-Validator/pocbank/pkg/util"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

type TransactionResult struct {
	Signature            solana.Signature
	Slot                 uint64
	Fee                  uint64
	ComputeUnitsConsumed uint64
	Logs                 []string
	Err                  error
}

var sysvarIds = []solana.PublicKey{
	sealevel.SysvarClockAddr,
	sealevel.SysvarFeesAddr,
	sealevel.SysvarRecentBlockHashesAddr,
}

func sanitizeMessage(msg *solana.Message) error {
	h := msg.Header
	numKeys := len(msg.AccountKeys)

	if msg.IsVersioned() && msg.NumLookups() != 0 {
		return fmt.Errorf("%w: address table lookups are not supported", TxErrSanitizeFailure)
	}
	if h.NumRequiredSignatures == 0 || h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return fmt.Errorf("%w: fee payer must be a writable signer", TxErrSanitizeFailure)
	}
	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > numKeys {
		return fmt.Errorf("%w: header exceeds account keys", TxErrSanitizeFailure)
	}

	seen := make(map[solana.PublicKey]struct{}, numKeys)
	for _, key := range msg.AccountKeys {
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%w: duplicate account key %s", TxErrSanitizeFailure, key)
		}
		seen[key] = struct{}{}
	}

	for _, ci := range msg.Instructions {
		if ci.ProgramIDIndex == 0 || int(ci.ProgramIDIndex) >= numKeys {
			return fmt.Errorf("%w: invalid program id index %d", TxErrSanitizeFailure, ci.ProgramIDIndex)
		}
		for _, idx := range ci.Accounts {
			if int(idx) >= numKeys {
				return fmt.Errorf("%w: invalid account index %d", TxErrSanitizeFailure, idx)
			}
		}
	}

	return nil
}

func isSignerIndex(msg *solana.Message, idx int) bool {
	return idx < int(msg.Header.NumRequiredSignatures)
}

// writableAccounts resolves write access per account key. Invoked programs
// and sysvars are always demoted to read-only.
func writableAccounts(msg *solana.Message) []bool {
	h := msg.Header
	numKeys := len(msg.AccountKeys)
	numSigned := int(h.NumRequiredSignatures)

	programIdxs := make([]uint16, 0, len(msg.Instructions))
	for _, ci := range msg.Instructions {
		programIdxs = append(programIdxs, ci.ProgramIDIndex)
	}

	writable := make([]bool, numKeys)
	for idx := range msg.AccountKeys {
		if idx < numSigned {
			writable[idx] = idx < numSigned-int(h.NumReadonlySignedAccounts)
		} else {
			writable[idx] = idx-numSigned < numKeys-numSigned-int(h.NumReadonlyUnsignedAccounts)
		}

		if slices.Contains(programIdxs, uint16(idx)) || slices.Contains(sysvarIds, msg.AccountKeys[idx]) {
			writable[idx] = false
		}
	}
	return writable
}

func instrsFromMessage(msg *solana.Message, writable []bool) []sealevel.Instruction {
	instrs := make([]sealevel.Instruction, len(msg.Instructions))
	for idx, ci := range msg.Instructions {
		acctMetas := make([]sealevel.AccountMeta, 0, len(ci.Accounts))
		for _, acctIdx := range ci.Accounts {
			acctMetas = append(acctMetas, sealevel.AccountMeta{
				Pubkey:     msg.AccountKeys[acctIdx],
				IsSigner:   isSignerIndex(msg, int(acctIdx)),
				IsWritable: writable[acctIdx],
			})
		}
		instrs[idx] = sealevel.Instruction{Accounts: acctMetas, ProgramId: msg.AccountKeys[ci.ProgramIDIndex], Data: ci.Data}
	}
	return instrs
}

func (b *Bank) loadTransactionAccounts(msg *solana.Message) (*sealevel.TransactionAccounts, error) {
	acctsForTx := make([]accounts.Account, 0, len(msg.AccountKeys))
	exists := make([]bool, len(msg.AccountKeys))

	for idx, key := range msg.AccountKeys {
		acct, err := b.getAccount(key)
		if errors.Is(err, accounts.ErrAccountNotFound) {
			if idx == 0 {
				return nil, TxErrAccountNotFound
			}
			acct = &accounts.Account{Key: key, Owner: sealevel.SystemProgramAddr}
		} else if err != nil {
			return nil, err
		} else {
			exists[idx] = true
		}
		acctsForTx = append(acctsForTx, *acct)
	}

	for _, ci := range msg.Instructions {
		if !exists[ci.ProgramIDIndex] {
			return nil, TxErrProgramAccountNotFound
		}
		if !acctsForTx[ci.ProgramIDIndex].Executable {
			return nil, TxErrInvalidProgramForExecution
		}
	}

	return sealevel.NewTransactionAccounts(acctsForTx), nil
}

// loadedTransaction holds the accounts an executed transaction may commit.
type loadedTransaction struct {
	accts    *sealevel.TransactionAccounts
	writable []bool

	// feePayer is the payer as it stood after the fee was deducted and
	// before any instruction ran.
	feePayer *accounts.Account
}

// executeTransaction runs the transaction against a private copy of its
// accounts. Errors returned directly reject the transaction without a fee.
func (b *Bank) executeTransaction(tx *solana.Transaction) (*TransactionResult, *loadedTransaction, error) {
	msg := &tx.Message

	err := sanitizeMessage(msg)
	if err != nil {
		return nil, nil, err
	}
	if len(tx.Signatures) != int(msg.Header.NumRequiredSignatures) {
		return nil, nil, fmt.Errorf("%w: expected %d signatures, got %d", TxErrSanitizeFailure, msg.Header.NumRequiredSignatures, len(tx.Signatures))
	}
	err = tx.VerifySignatures()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s", TxErrSignatureFailure, err)
	}

	lamportsPerSignature, ok := b.blockhashQueue.LamportsPerSignature(msg.RecentBlockhash)
	if !ok || !b.blockhashQueue.IsHashValid(msg.RecentBlockhash) {
		return nil, nil, TxErrBlockhashNotFound
	}

	writable := writableAccounts(msg)
	instrs := instrsFromMessage(msg, writable)

	computeBudgetLimits, err := sealevel.ComputeBudgetExecuteInstructions(instrs)
	if errors.Is(err, sealevel.ErrDuplicateComputeBudgetInstruction) {
		return nil, nil, TxErrDuplicateInstruction
	} else if err != nil {
		return nil, nil, err
	}

	transactionAccts, err := b.loadTransactionAccounts(msg)
	if err != nil {
		return nil, nil, err
	}

	totalFee, _, err := fees.ApplyTxFees(msg, instrs, transactionAccts, computeBudgetLimits, lamportsPerSignature)
	if errors.Is(err, fees.ErrInsufficientFundsForFee) {
		return nil, nil, TxErrInsufficientFundsForFee
	} else if errors.Is(err, fees.ErrInvalidAccountForFee) {
		return nil, nil, TxErrInvalidAccountForFee
	} else if err != nil {
		return nil, nil, err
	}

	loaded := &loadedTransaction{
		accts:    transactionAccts,
		writable: writable,
		feePayer: transactionAccts.Accounts[0].Clone(),
	}

	var log sealevel.LogRecorder
	txCtx := sealevel.NewTransactionCtx(*transactionAccts, sealevel.MaxInstructionStackDepth, sealevel.MaxInstructionTraceLength)
	txCtx.ComputeBudgetLimits = computeBudgetLimits
	txCtx.Signature = tx.Signatures[0]
	execCtx := &sealevel.ExecutionCtx{
		Log:                &log,
		TransactionContext: txCtx,
		ComputeMeter:       cu.NewComputeMeter(uint64(computeBudgetLimits.ComputeUnitLimit)),
		Programs:           b.programs,
	}

	var instrErr error
	for instrIdx, ci := range msg.Instructions {
		instructionAccts := sealevel.InstructionAcctsFromAccountMetas(instrs[instrIdx].Accounts, *transactionAccts)

		err = execCtx.ProcessInstruction(ci.Data, instructionAccts, []uint64{uint64(ci.ProgramIDIndex)})
		if err != nil {
			instrErr = &InstructionError{Index: uint8(instrIdx), Err: err}
			break
		}
	}

	for _, l := range log.Logs {
		klog.V(2).Infof("%s", l)
	}
	klog.V(1).Infof("tx %s - fee: %d, compute units consumed: %d, err: %v", tx.Signatures[0], totalFee, execCtx.ComputeMeter.Used(), instrErr)

	res := &TransactionResult{
		Signature:            tx.Signatures[0],
		Slot:                 b.slot,
		Fee:                  totalFee,
		ComputeUnitsConsumed: execCtx.ComputeMeter.Used(),
		Logs:                 log.Logs,
		Err:                  instrErr,
	}
	return res, loaded, nil
}

func (b *Bank) commitTransaction(tx *solana.Transaction, res *TransactionResult, loaded *loadedTransaction) error {
	if res.Err == nil {
		for idx, acct := range loaded.accts.Accounts {
			if !loaded.writable[idx] {
				continue
			}
			err := b.setAccount(acct)
			if err != nil {
				return err
			}
		}
	} else {
		// if there was an error in the tx, do not update account states, except for deducting the tx fee
		// from the payer account
		payer := loaded.feePayer
		err := b.setAccount(payer)
		if err != nil {
			return err
		}
		klog.V(2).Infof("failed tx, payer state: %s", util.PrettyPrintAcct(payer))
	}

	b.collectedFees += res.Fee
	b.signatureCount += uint64(len(tx.Signatures))
	b.transactionCount++
	b.statusCache.Insert(res.Signature, TransactionStatus{Slot: b.slot, Blockhash: tx.Message.RecentBlockhash, Err: res.Err})
	b.metrics.observeTransaction(res)
	return nil
}

// ProcessTransaction executes and commits a transaction. A returned error
// means the transaction was rejected and nothing, not even the fee, was
// charged. An executed transaction that failed reports its error in
// TransactionResult.Err and still pays the fee.
func (b *Bank) ProcessTransaction(tx *solana.Transaction) (*TransactionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(tx.Signatures) != 0 {
		if _, seen := b.statusCache.Get(tx.Signatures[0]); seen {
			b.metrics.observeRejected()
			return nil, TxErrAlreadyProcessed
		}
	}

	res, loaded, err := b.executeTransaction(tx)
	if err != nil {
		b.metrics.observeRejected()
		return nil, err
	}

	err = b.commitTransaction(tx, res, loaded)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SimulateTransaction executes a transaction without committing any state.
func (b *Bank) SimulateTransaction(tx *solana.Transaction) (*TransactionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	res, _, err := b.executeTransaction(tx)
	return res, err
}

// GetFeeForMessage returns the fee the message would be charged, or false
// when its blockhash is unknown or its compute budget is invalid.
func (b *Bank) GetFeeForMessage(msg *solana.Message) (uint64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	lamportsPerSignature, ok := b.blockhashQueue.LamportsPerSignature(msg.RecentBlockhash)
	if !ok {
		return 0, false
	}
	if sanitizeMessage(msg) != nil {
		return 0, false
	}

	instrs := instrsFromMessage(msg, writableAccounts(msg))
	computeBudgetLimits, err := sealevel.ComputeBudgetExecuteInstructions(instrs)
	if err != nil {
		return 0, false
	}

	return fees.CalculateFee(msg, instrs, lamportsPerSignature, computeBudgetLimits), true
}

// GetSignatureStatus reports the committed outcome of a transaction.
func (b *Bank) GetSignatureStatus(sig solana.Signature) (TransactionStatus, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusCache.Get(sig)
}
