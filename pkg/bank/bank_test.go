package bank

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayerLamports = 1_000_000_000

type testBank struct {
	*Bank
	payer     solana.PrivateKey
	programId solana.PublicKey
}

// echoProgram fails with InvalidArgument unless the first data byte is zero.
func echoProgram(log sealevel.Logger, programId solana.PublicKey, accts []sealevel.AccountInfo, data []byte) error {
	sealevel.Msgf(log, "echo %x", data)
	if len(data) == 0 || data[0] != 0 {
		return sealevel.InstrErrInvalidArgument
	}
	return nil
}

func newTestBank(t *testing.T, extra ...accounts.Account) *testBank {
	t.Helper()

	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	programId := solana.NewWallet().PublicKey()

	programs := sealevel.NewPrograms()
	programs.Register(programId, "echo", sealevel.Processor(echoProgram))

	genesis := append([]accounts.Account{{Key: payer.PublicKey(), Lamports: testPayerLamports, Owner: sealevel.SystemProgramAddr}}, extra...)
	b, err := NewBank(Config{Programs: programs, GenesisAccounts: genesis, FeeCollector: solana.NewWallet().PublicKey()})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return &testBank{Bank: b, payer: payer, programId: programId}
}

func (tb *testBank) newTx(t *testing.T, blockhash solana.Hash, data []byte, metas solana.AccountMetaSlice, signers ...solana.PrivateKey) *solana.Transaction {
	t.Helper()

	instr := solana.NewInstruction(tb.programId, metas, data)
	tx, err := solana.NewTransaction([]solana.Instruction{instr}, blockhash, solana.TransactionPayer(tb.payer.PublicKey()))
	require.NoError(t, err)

	keys := append([]solana.PrivateKey{tb.payer}, signers...)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		for idx := range keys {
			if keys[idx].PublicKey() == pk {
				return &keys[idx]
			}
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func TestBank_Genesis(t *testing.T) {
	tb := newTestBank(t)

	assert.Equal(t, uint64(0), tb.Slot())
	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports), balance)

	programAcct, err := tb.GetAccount(tb.programId)
	require.NoError(t, err)
	assert.True(t, programAcct.Executable)
	assert.Equal(t, [32]byte(sealevel.NativeLoaderAddr), programAcct.Owner)

	cbAcct, err := tb.GetAccount(sealevel.ComputeBudgetProgramAddr)
	require.NoError(t, err)
	assert.True(t, cbAcct.Executable)

	blockhash, lastValid := tb.LatestBlockhash()
	assert.True(t, tb.IsBlockhashValid(blockhash))
	assert.Equal(t, uint64(MaxProcessingAge), lastValid)

	fees, err := sealevel.ReadFeesSysvar(tb.accts)
	require.NoError(t, err)
	assert.Equal(t, uint64(5000), fees.FeeCalculator.LamportsPerSignature)

	rbh, err := sealevel.ReadRecentBlockHashesSysvar(tb.accts)
	require.NoError(t, err)
	require.Len(t, rbh, 1)
	assert.Equal(t, [32]byte(blockhash), rbh[0].Blockhash)

	missing, err := tb.GetBalance(solana.NewWallet().PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), missing)
}

func TestBank_ProcessTransaction_Success(t *testing.T) {
	dataKey := solana.NewWallet().PublicKey()
	tb := newTestBank(t)
	require.NoError(t, tb.SetAccount(&accounts.Account{Key: dataKey, Lamports: 10000, Data: []byte{1}, Owner: tb.programId}))

	blockhash, _ := tb.LatestBlockhash()
	metas := solana.AccountMetaSlice{
		solana.Meta(tb.payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(dataKey).WRITE(),
		solana.Meta(tb.programId).WRITE(),
	}
	tx := tb.newTx(t, blockhash, []byte{0}, metas)

	res, err := tb.ProcessTransaction(tx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, tx.Signatures[0], res.Signature)
	assert.Equal(t, uint64(5000), res.Fee)
	assert.Equal(t, uint64(sealevel.CUBuiltinProgramDefaultComputeUnits), res.ComputeUnitsConsumed)
	assert.Equal(t, []string{
		fmt.Sprintf("Program %s invoke [1]", tb.programId),
		"Program log: echo 00",
		fmt.Sprintf("Program %s success", tb.programId),
	}, res.Logs)

	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports-5000), balance)

	dataAcct, err := tb.GetAccount(dataKey)
	require.NoError(t, err)
	assert.Equal(t, uint64(10000), dataAcct.Lamports)
	assert.Equal(t, []byte{1}, dataAcct.Data)

	// the program account stays executable and untouched despite the writable meta
	programAcct, err := tb.GetAccount(tb.programId)
	require.NoError(t, err)
	assert.True(t, programAcct.Executable)

	status, ok := tb.GetSignatureStatus(tx.Signatures[0])
	require.True(t, ok)
	assert.NoError(t, status.Err)
	assert.Equal(t, uint64(1), tb.TransactionCount())
	assert.Equal(t, float64(1), testutil.ToFloat64(tb.Metrics().transactions.WithLabelValues("success")))
	assert.Equal(t, float64(5000), testutil.ToFloat64(tb.Metrics().fees))
}

func TestBank_ProcessTransaction_Replay_Rejected(t *testing.T) {
	tb := newTestBank(t)

	blockhash, _ := tb.LatestBlockhash()
	tx := tb.newTx(t, blockhash, []byte{0}, nil)

	_, err := tb.ProcessTransaction(tx)
	require.NoError(t, err)

	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrAlreadyProcessed)

	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports-5000), balance)
}

func TestBank_ProcessTransaction_Instruction_Failure_Charges_Fee(t *testing.T) {
	tb := newTestBank(t)

	blockhash, _ := tb.LatestBlockhash()
	tx := tb.newTx(t, blockhash, []byte{1}, nil)

	res, err := tb.ProcessTransaction(tx)
	require.NoError(t, err)
	require.Error(t, res.Err)

	var instrErr *InstructionError
	require.True(t, errors.As(res.Err, &instrErr))
	assert.Equal(t, uint8(0), instrErr.Index)
	assert.Equal(t, sealevel.InstrErrCodeInvalidArgument, instrErr.Code())
	assert.ErrorIs(t, res.Err, sealevel.InstrErrInvalidArgument)
	assert.Equal(t, "Error processing Instruction 0: InstrErrInvalidArgument", res.Err.Error())

	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports-5000), balance)

	status, ok := tb.GetSignatureStatus(tx.Signatures[0])
	require.True(t, ok)
	assert.ErrorIs(t, status.Err, sealevel.InstrErrInvalidArgument)
}

func TestBank_ProcessTransaction_Rejections(t *testing.T) {
	tb := newTestBank(t)
	blockhash, _ := tb.LatestBlockhash()

	// unknown blockhash
	tx := tb.newTx(t, solana.Hash{9}, []byte{0}, nil)
	_, err := tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrBlockhashNotFound)

	// tampered signature
	tx = tb.newTx(t, blockhash, []byte{0}, nil)
	tx.Signatures[0][0] ^= 0xff
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrSignatureFailure)

	// missing signature
	tx = tb.newTx(t, blockhash, []byte{0}, nil)
	tx.Signatures = nil
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrSanitizeFailure)

	// unknown program
	unknown := &testBank{Bank: tb.Bank, payer: tb.payer, programId: solana.NewWallet().PublicKey()}
	tx = unknown.newTx(t, blockhash, []byte{0}, nil)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrProgramAccountNotFound)

	// non-executable program account
	dataKey := solana.NewWallet().PublicKey()
	require.NoError(t, tb.SetAccount(&accounts.Account{Key: dataKey, Lamports: 1}))
	notProgram := &testBank{Bank: tb.Bank, payer: tb.payer, programId: dataKey}
	tx = notProgram.newTx(t, blockhash, []byte{0}, nil)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrInvalidProgramForExecution)

	// unfunded payer
	stranger, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	unfunded := &testBank{Bank: tb.Bank, payer: stranger, programId: tb.programId}
	tx = unfunded.newTx(t, blockhash, []byte{0}, nil)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrAccountNotFound)

	// payer below the fee
	require.NoError(t, tb.SetAccount(&accounts.Account{Key: stranger.PublicKey(), Lamports: 4999, Owner: sealevel.SystemProgramAddr}))
	tx = unfunded.newTx(t, blockhash, []byte{0}, nil)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrInsufficientFundsForFee)

	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports), balance)
	assert.Equal(t, uint64(0), tb.TransactionCount())
	assert.Equal(t, float64(7), testutil.ToFloat64(tb.Metrics().transactions.WithLabelValues("rejected")))
}

func TestBank_ProcessTransaction_Compute_Budget(t *testing.T) {
	tb := newTestBank(t)
	blockhash, _ := tb.LatestBlockhash()

	setPrice := sealevel.ComputeBudgetInstrSetComputeUnitPrice{MicroLamports: 1_000_000}
	priceData, err := encodeBorsh(&setPrice)
	require.NoError(t, err)
	setLimit := sealevel.ComputeBudgetInstrSetComputeUnitLimit{ComputeUnitLimit: 1000}
	limitData, err := encodeBorsh(&setLimit)
	require.NoError(t, err)

	instrs := []solana.Instruction{
		solana.NewInstruction(sealevel.ComputeBudgetProgramAddr, nil, priceData),
		solana.NewInstruction(sealevel.ComputeBudgetProgramAddr, nil, limitData),
		solana.NewInstruction(tb.programId, nil, []byte{0}),
	}
	tx, err := solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(tb.payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey { return &tb.payer })
	require.NoError(t, err)

	fee, ok := tb.GetFeeForMessage(&tx.Message)
	require.True(t, ok)
	assert.Equal(t, uint64(5000+1000), fee)

	res, err := tb.ProcessTransaction(tx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, uint64(6000), res.Fee)
	assert.Equal(t, uint64(2*sealevel.CUComputeBudgetProgramDefaultComputeUnits+sealevel.CUBuiltinProgramDefaultComputeUnits), res.ComputeUnitsConsumed)

	// duplicate limit instructions reject the transaction outright
	instrs = append(instrs, solana.NewInstruction(sealevel.ComputeBudgetProgramAddr, nil, limitData))
	tx, err = solana.NewTransaction(instrs, blockhash, solana.TransactionPayer(tb.payer.PublicKey()))
	require.NoError(t, err)
	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey { return &tb.payer })
	require.NoError(t, err)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrDuplicateInstruction)
}

func TestBank_GetFeeForMessage(t *testing.T) {
	tb := newTestBank(t)
	blockhash, _ := tb.LatestBlockhash()

	for numSigners := 1; numSigners <= 3; numSigners++ {
		metas := solana.AccountMetaSlice{}
		for i := 1; i < numSigners; i++ {
			metas = append(metas, solana.Meta(solana.NewWallet().PublicKey()).WRITE().SIGNER())
		}
		instr := solana.NewInstruction(tb.programId, metas, []byte{0})
		tx, err := solana.NewTransaction([]solana.Instruction{instr}, blockhash, solana.TransactionPayer(tb.payer.PublicKey()))
		require.NoError(t, err)

		fee, ok := tb.GetFeeForMessage(&tx.Message)
		require.True(t, ok)
		assert.Equal(t, uint64(numSigners)*5000, fee)
	}

	tx := tb.newTx(t, solana.Hash{9}, []byte{0}, nil)
	_, ok := tb.GetFeeForMessage(&tx.Message)
	assert.False(t, ok)
}

func TestBank_SimulateTransaction_Does_Not_Commit(t *testing.T) {
	tb := newTestBank(t)
	blockhash, _ := tb.LatestBlockhash()
	tx := tb.newTx(t, blockhash, []byte{0}, nil)

	res, err := tb.SimulateTransaction(tx)
	require.NoError(t, err)
	require.NoError(t, res.Err)
	assert.Equal(t, uint64(5000), res.Fee)

	balance, err := tb.GetBalance(tb.payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(testPayerLamports), balance)

	_, ok := tb.GetSignatureStatus(tx.Signatures[0])
	assert.False(t, ok)

	_, err = tb.ProcessTransaction(tx)
	require.NoError(t, err)
}

func TestBank_AdvanceSlot(t *testing.T) {
	tb := newTestBank(t)
	genesisBlockhash, _ := tb.LatestBlockhash()
	genesisHash := tb.Hash()

	tx := tb.newTx(t, genesisBlockhash, []byte{0}, nil)
	_, err := tb.ProcessTransaction(tx)
	require.NoError(t, err)

	slot, err := tb.AdvanceSlot()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), slot)
	assert.NotEqual(t, genesisHash, tb.Hash())

	blockhash, _ := tb.LatestBlockhash()
	assert.NotEqual(t, genesisBlockhash, blockhash)
	assert.True(t, tb.IsBlockhashValid(genesisBlockhash))

	collector, err := tb.GetBalance(tb.feeCollector)
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), collector)
	assert.Equal(t, float64(2500), testutil.ToFloat64(tb.Metrics().burnedFees))

	clock, err := sealevel.ReadClockSysvar(tb.accts)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), clock.Slot)

	// the replay protection outlives the slot the transaction landed in
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrAlreadyProcessed)

	for i := 0; i < MaxProcessingAge; i++ {
		_, err = tb.AdvanceSlot()
		require.NoError(t, err)
	}
	assert.False(t, tb.IsBlockhashValid(genesisBlockhash))

	tx = tb.newTx(t, genesisBlockhash, []byte{0, 1}, nil)
	_, err = tb.ProcessTransaction(tx)
	assert.ErrorIs(t, err, TxErrBlockhashNotFound)
}

func TestBank_Persistent_Accounts(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	dir := t.TempDir()
	b, err := NewBank(Config{
		AccountsDbPath:  dir,
		GenesisAccounts: []accounts.Account{{Key: payer.PublicKey(), Lamports: 42, Owner: sealevel.SystemProgramAddr}},
	})
	require.NoError(t, err)

	balance, err := b.GetBalance(payer.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
	require.NoError(t, b.Close())
}

func encodeBorsh(v bin.BinaryMarshaler) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := v.MarshalWithEncoder(bin.NewBorshEncoder(buf))
	return buf.Bytes(), err
}

func TestBank_Default_Fee_Collector(t *testing.T) {
	payer, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	programId := solana.NewWallet().PublicKey()
	programs := sealevel.NewPrograms()
	programs.Register(programId, "echo", sealevel.Processor(echoProgram))

	b, err := NewBank(Config{
		Programs:        programs,
		GenesisAccounts: []accounts.Account{{Key: payer.PublicKey(), Lamports: testPayerLamports, Owner: sealevel.SystemProgramAddr}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	tb := &testBank{Bank: b, payer: payer, programId: programId}

	// the zero key is the system program's address
	assert.False(t, tb.FeeCollector().IsZero())
	assert.NotEqual(t, sealevel.SystemProgramAddr, tb.FeeCollector())

	blockhash, _ := tb.LatestBlockhash()
	res, err := tb.ProcessTransaction(tb.newTx(t, blockhash, []byte{0}, nil))
	require.NoError(t, err)
	require.NoError(t, res.Err)
	_, err = tb.AdvanceSlot()
	require.NoError(t, err)

	systemProgram, err := tb.GetAccount(sealevel.SystemProgramAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), systemProgram.Lamports)

	collector, err := tb.GetBalance(tb.FeeCollector())
	require.NoError(t, err)
	assert.Equal(t, uint64(2500), collector)
}

func TestBank_Invalid_Fee_Collector(t *testing.T) {
	programId := solana.NewWallet().PublicKey()
	programs := sealevel.NewPrograms()
	programs.Register(programId, "echo", sealevel.Processor(echoProgram))
	programOwned := accounts.Account{Key: solana.NewWallet().PublicKey(), Lamports: 1, Owner: programId}

	for _, collector := range []solana.PublicKey{sealevel.ComputeBudgetProgramAddr, programId, sealevel.SysvarClockAddr, programOwned.Key} {
		_, err := NewBank(Config{Programs: programs, GenesisAccounts: []accounts.Account{programOwned}, FeeCollector: collector})
		assert.ErrorIs(t, err, ErrInvalidFeeCollector, "collector %s", collector)
	}
}
