package sealevel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/cu"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEntrypoint struct {
	programId solana.PublicKey
	accts     []AccountInfo
	data      []byte
	err       error
}

func (r *recordingEntrypoint) entrypoint(log Logger, programId solana.PublicKey, accts []AccountInfo, data []byte) error {
	r.programId = programId
	r.accts = accts
	r.data = data
	Msgf(log, "saw %d accounts", len(accts))
	return r.err
}

func newTestBuiltinTx(t *testing.T, programId solana.PublicKey, extra ...accounts.Account) *TransactionAccounts {
	t.Helper()
	programAcct := accounts.Account{Key: programId, Lamports: 1, Owner: NativeLoaderAddr, Executable: true, RentEpoch: 100}
	return NewTransactionAccounts(append(extra, programAcct))
}

func TestExecute_Tx_Builtin_Processor_Success(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	payer := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 5000}
	dataAcct := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 10000, Data: []byte{1}, Owner: programId, RentEpoch: 7}
	transactionAccts := newTestBuiltinTx(t, programId, payer, dataAcct)

	acctMetas := []AccountMeta{
		{Pubkey: payer.Key, IsSigner: true, IsWritable: true},
		{Pubkey: dataAcct.Key, IsSigner: false, IsWritable: true},
		{Pubkey: programId, IsSigner: false, IsWritable: false},
	}
	instructionAccts := InstructionAcctsFromAccountMetas(acctMetas, *transactionAccts)

	var recorder recordingEntrypoint
	programs := NewPrograms()
	programs.Register(programId, "recorder", Processor(recorder.entrypoint))

	var log LogRecorder
	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &log, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: programs}

	err := execCtx.ProcessInstruction([]byte{0}, instructionAccts, []uint64{2})
	require.NoError(t, err)

	assert.Equal(t, programId, recorder.programId)
	assert.Equal(t, []byte{0}, recorder.data)
	require.Len(t, recorder.accts, 3)

	assert.Equal(t, payer.Key, recorder.accts[0].Key)
	assert.True(t, recorder.accts[0].IsSigner)
	assert.True(t, recorder.accts[0].IsWritable)
	assert.Equal(t, uint64(5000), recorder.accts[0].Lamports)

	assert.Equal(t, dataAcct.Key, recorder.accts[1].Key)
	assert.False(t, recorder.accts[1].IsSigner)
	assert.Equal(t, []byte{1}, recorder.accts[1].Data)
	assert.Equal(t, programId, recorder.accts[1].Owner)
	assert.Equal(t, uint64(7), recorder.accts[1].RentEpoch)

	assert.True(t, recorder.accts[2].Executable)
	assert.Equal(t, solana.PublicKey(NativeLoaderAddr), recorder.accts[2].Owner)

	assert.Equal(t, []string{
		fmt.Sprintf("Program %s invoke [1]", programId),
		"Program log: saw 3 accounts",
		fmt.Sprintf("Program %s success", programId),
	}, log.Logs)
	assert.Equal(t, uint64(CUBuiltinProgramDefaultComputeUnits), execCtx.ComputeMeter.Used())

	for idx := uint64(0); idx < transactionAccts.Len(); idx++ {
		assert.False(t, txCtx.Accounts.IsBorrowed(idx))
	}
}

func TestExecute_Tx_Builtin_Processor_Snapshot_Is_Read_Only(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	dataAcct := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 10000, Data: []byte{1, 2, 3}, Owner: programId}
	transactionAccts := newTestBuiltinTx(t, programId, dataAcct)

	mutate := func(log Logger, programId solana.PublicKey, accts []AccountInfo, data []byte) error {
		accts[0].Data[0] = 0xff
		accts[0].Lamports = 0
		return nil
	}
	programs := NewPrograms()
	programs.Register(programId, "mutate", Processor(mutate))

	acctMetas := []AccountMeta{{Pubkey: dataAcct.Key, IsWritable: true}}
	instructionAccts := InstructionAcctsFromAccountMetas(acctMetas, *transactionAccts)
	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: programs}

	err := execCtx.ProcessInstruction(nil, instructionAccts, []uint64{1})
	require.NoError(t, err)

	acct, err := txCtx.AccountAtIndex(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, acct.Data)
	assert.Equal(t, uint64(10000), acct.Lamports)
}

func TestExecute_Tx_Builtin_Processor_Duplicate_Accounts(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	dataAcct := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 42}
	transactionAccts := newTestBuiltinTx(t, programId, dataAcct)

	var recorder recordingEntrypoint
	programs := NewPrograms()
	programs.Register(programId, "recorder", Processor(recorder.entrypoint))

	acctMetas := []AccountMeta{
		{Pubkey: dataAcct.Key, IsWritable: true},
		{Pubkey: dataAcct.Key, IsWritable: true},
	}
	instructionAccts := InstructionAcctsFromAccountMetas(acctMetas, *transactionAccts)
	assert.Equal(t, uint64(0), instructionAccts[1].IndexInCallee)

	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: programs}

	err := execCtx.ProcessInstruction(nil, instructionAccts, []uint64{1})
	require.NoError(t, err)
	require.Len(t, recorder.accts, 2)
	assert.Equal(t, recorder.accts[0].Key, recorder.accts[1].Key)
	assert.Equal(t, uint64(42), recorder.accts[1].Lamports)
}

func TestExecute_Tx_Builtin_Processor_Error_Is_Logged(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	transactionAccts := newTestBuiltinTx(t, programId)

	recorder := recordingEntrypoint{err: InstrErrInvalidArgument}
	programs := NewPrograms()
	programs.Register(programId, "recorder", Processor(recorder.entrypoint))

	var log LogRecorder
	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &log, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: programs}

	err := execCtx.ProcessInstruction([]byte{1}, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrInvalidArgument)
	require.NotEmpty(t, log.Logs)
	assert.Equal(t, fmt.Sprintf("Program %s failed: %s", programId, InstrErrInvalidArgument), log.Logs[len(log.Logs)-1])
	assert.Equal(t, uint64(0), txCtx.InstructionCtxStackHeight())
}

func TestExecute_Tx_Unregistered_Program_Failure(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	transactionAccts := newTestBuiltinTx(t, programId)

	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: NewPrograms()}

	err := execCtx.ProcessInstruction(nil, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrUnsupportedProgramId)
}

func TestExecute_Tx_Program_Not_Owned_By_Native_Loader_Failure(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	programAcct := accounts.Account{Key: programId, Lamports: 1, Owner: solana.NewWallet().PublicKey(), Executable: true}
	transactionAccts := NewTransactionAccounts([]accounts.Account{programAcct})

	programs := NewPrograms()
	programs.Register(programId, "noop", Processor(func(Logger, solana.PublicKey, []AccountInfo, []byte) error { return nil }))

	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: programs}

	err := execCtx.ProcessInstruction(nil, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrUnsupportedProgramId)
}

func TestExecute_Tx_Compute_Budget_Exceeded(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	transactionAccts := newTestBuiltinTx(t, programId)

	programs := NewPrograms()
	programs.Register(programId, "noop", Processor(func(Logger, solana.PublicKey, []AccountInfo, []byte) error { return nil }))

	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeter(CUBuiltinProgramDefaultComputeUnits - 1), Programs: programs}

	err := execCtx.ProcessInstruction(nil, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrComputationalBudgetExceeded)
}

func TestExecute_Tx_Instruction_Trace_Length_Exceeded(t *testing.T) {
	transactionAccts := newTestBuiltinTx(t, ComputeBudgetProgramAddr)

	txCtx := NewTransactionCtx(*transactionAccts, MaxInstructionStackDepth, 1)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: NewPrograms()}

	err := execCtx.ProcessInstruction(nil, nil, []uint64{0})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), txCtx.InstructionTraceLength())

	err = execCtx.ProcessInstruction(nil, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrMaxInstructionTraceLengthExceeded)
}

func TestExecute_Tx_Call_Depth(t *testing.T) {
	transactionAccts := newTestBuiltinTx(t, ComputeBudgetProgramAddr)

	txCtx := NewTransactionCtx(*transactionAccts, 0, MaxInstructionTraceLength)
	execCtx := ExecutionCtx{Log: &LogRecorder{}, TransactionContext: txCtx, ComputeMeter: cu.NewComputeMeterDefault(), Programs: NewPrograms()}

	err := execCtx.ProcessInstruction(nil, nil, []uint64{0})
	assert.ErrorIs(t, err, InstrErrCallDepth)

	err = txCtx.Pop()
	assert.ErrorIs(t, err, InstrErrCallDepth)
}

func TestTransactionAccounts_Borrow(t *testing.T) {
	acct := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 1}
	txAccounts := NewTransactionAccounts([]accounts.Account{acct})

	borrowed, err := txAccounts.GetAccount(0)
	require.NoError(t, err)
	assert.Equal(t, acct.Key, borrowed.Key)

	_, err = txAccounts.GetAccount(0)
	assert.ErrorIs(t, err, InstrErrAccountBorrowFailed)

	txAccounts.Unlock(0)
	_, err = txAccounts.GetAccount(0)
	assert.NoError(t, err)

	_, err = txAccounts.GetAccount(1)
	assert.ErrorIs(t, err, InstrErrNotEnoughAccountKeys)

	require.NoError(t, txAccounts.Touch(0))
	assert.True(t, txAccounts.Touched[0])
}

func TestNextAccountInfos(t *testing.T) {
	accts := []AccountInfo{{Lamports: 1}, {Lamports: 2}, {Lamports: 3}}

	got, err := NextAccountInfos(accts, 2)
	require.NoError(t, err)
	assert.Equal(t, accts[:2], got)

	_, err = NextAccountInfos(accts[:1], 2)
	assert.ErrorIs(t, err, InstrErrMissingAccount)

	_, err = NextAccountInfos(nil, 2)
	assert.ErrorIs(t, err, InstrErrMissingAccount)
}

func TestAccountInfo_String(t *testing.T) {
	key := solana.MustPublicKeyFromBase58("SysvarC1ock11111111111111111111111111111111")
	info := AccountInfo{Key: key, Owner: key, IsWritable: true, Lamports: 10000, Data: []byte{1}}
	s := info.String()
	assert.Contains(t, s, "key: SysvarC1ock11111111111111111111111111111111")
	assert.Contains(t, s, "is_signer: false")
	assert.Contains(t, s, "is_writable: true")
	assert.Contains(t, s, "lamports: 10000")
	assert.Contains(t, s, "data.len: 1")
	assert.Contains(t, s, "data: 01")
}

func TestInstrErrCode(t *testing.T) {
	assert.Equal(t, InstrErrCodeSuccess, InstrErrCode(nil))
	assert.Equal(t, InstrErrCodeInvalidArgument, InstrErrCode(InstrErrInvalidArgument))
	assert.Equal(t, InstrErrCodeMissingAccount, InstrErrCode(InstrErrMissingAccount))
	assert.Equal(t, InstrErrCodeMissingAccount, InstrErrCode(fmt.Errorf("wrapped: %w", InstrErrMissingAccount)))
	assert.Equal(t, InstrErrCodeGenericError, InstrErrCode(errors.New("something else")))
}

func TestPrograms_Registry(t *testing.T) {
	programs := NewPrograms()
	_, err := programs.Resolve(ComputeBudgetProgramAddr)
	require.NoError(t, err)

	programId := solana.NewWallet().PublicKey()
	_, err = programs.Resolve(programId)
	assert.ErrorIs(t, err, InstrErrUnsupportedProgramId)

	programs.Register(programId, "test", Processor(func(Logger, solana.PublicKey, []AccountInfo, []byte) error { return nil }))
	_, err = programs.Resolve(programId)
	require.NoError(t, err)
	assert.Len(t, programs.Builtins(), 3)
}

func TestSysvars_Write_Read(t *testing.T) {
	accts := accounts.NewMemAccounts()

	_, err := ReadFeesSysvar(accts)
	assert.ErrorIs(t, err, InstrErrUnsupportedSysvar)

	require.NoError(t, WriteFeesSysvar(accts, SysvarFees{FeeCalculator: FeeCalculator{LamportsPerSignature: 5000}}))
	fees, err := ReadFeesSysvar(accts)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), fees.FeeCalculator.LamportsPerSignature)

	pk := [32]byte(SysvarFeesAddr)
	feesAcct, err := accts.GetAccount(&pk)
	require.NoError(t, err)
	assert.Len(t, feesAcct.Data, SysvarFeesStructLen)
	assert.Equal(t, [32]byte(SysvarOwnerAddr), feesAcct.Owner)

	rbh := SysvarRecentBlockhashes{
		{Blockhash: [32]byte{2}, FeeCalculator: FeeCalculator{LamportsPerSignature: 5000}},
		{Blockhash: [32]byte{1}, FeeCalculator: FeeCalculator{LamportsPerSignature: 5000}},
	}
	require.NoError(t, WriteRecentBlockHashesSysvar(accts, rbh))
	readRbh, err := ReadRecentBlockHashesSysvar(accts)
	require.NoError(t, err)
	assert.Equal(t, rbh, readRbh)
	latest, ok := readRbh.GetLatest()
	require.True(t, ok)
	assert.Equal(t, [32]byte{2}, latest.Blockhash)

	clock := SysvarClock{Slot: 12, Epoch: 0, UnixTimestamp: 1700000000}
	require.NoError(t, WriteClockSysvar(accts, clock))
	readClock, err := ReadClockSysvar(accts)
	require.NoError(t, err)
	assert.Equal(t, clock, readClock)
}
