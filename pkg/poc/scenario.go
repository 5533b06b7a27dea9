package poc

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/bank"
	"github.com/Overclock-Validator/pocbank/pkg/fees"
	"github.com/Overclock-Validator/pocbank/pkg/programtest"
	"github.com/Overclock-Validator/pocbank/pkg/util"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"k8s.io/klog/v2"
)

const (
	DefaultAccountLamports = 10000
)

var (
	ErrPayerNotFunded = errors.New("payer not funded")
	ErrMessageMutated = errors.New("signing changed the message")
	ErrFeeUnavailable = errors.New("fee unavailable for message")
	ErrFeeMismatch    = errors.New("fee mismatch")
)

type ScenarioConfig struct {
	Bank bank.Config
	// AccountLamports and AccountData seed the data account. Zero lamports
	// select 10000 and nil data selects [1]; an empty non-nil slice seeds
	// an account without data.
	AccountLamports uint64
	AccountData     []byte
	Commitment      rpc.CommitmentType

	// Clone lists cluster accounts copied into genesis through Fetcher.
	Clone   []solana.PublicKey
	Fetcher programtest.AccountFetcher
}

type ScenarioResult struct {
	ProgramId    solana.PublicKey
	AccountId    solana.PublicKey
	Payer        solana.PublicKey
	PayerBalance uint64
	Signature    solana.Signature
	ExpectedFee  uint64
	Fee          uint64
	Logs         []string
}

// RunScenario starts a program test with the program registered, invokes
// LogAccounts on a seeded account and checks the fee charged for it.
func RunScenario(ctx context.Context, cfg ScenarioConfig) (*ScenarioResult, error) {
	if cfg.AccountLamports == 0 {
		cfg.AccountLamports = DefaultAccountLamports
	}
	if cfg.AccountData == nil {
		cfg.AccountData = []byte{1}
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentConfirmed
	}

	res := &ScenarioResult{
		ProgramId: programtest.NewUniquePubkey(),
		AccountId: programtest.NewUniquePubkey(),
	}

	pt := programtest.New(ProgramName, res.ProgramId, Program())
	pt.SetConfig(cfg.Bank)
	pt.AddAccount(accounts.Account{
		Key:      res.AccountId,
		Lamports: cfg.AccountLamports,
		Data:     cfg.AccountData,
		Owner:    res.ProgramId,
	})
	if len(cfg.Clone) != 0 {
		if cfg.Fetcher == nil {
			return nil, fmt.Errorf("cloning %d accounts: no fetcher configured", len(cfg.Clone))
		}
		err := pt.CloneAccounts(ctx, cfg.Fetcher, cfg.Clone...)
		if err != nil {
			return nil, err
		}
	}

	client, payer, blockhash, err := pt.Start(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting program test: %w", err)
	}
	defer client.Close()

	res.Payer = payer.PublicKey()
	klog.Infof("payer: %s", res.Payer)

	acct, err := client.GetAccount(ctx, res.AccountId)
	if err != nil {
		return nil, err
	}
	klog.Infof("account: %s", util.PrettyPrintAcct(acct))

	res.PayerBalance, err = client.GetBalance(ctx, res.Payer)
	if err != nil {
		return nil, err
	}
	klog.Infof("payer balance: %d", res.PayerBalance)
	if res.PayerBalance == 0 {
		return nil, ErrPayerNotFunded
	}

	tx, err := NewLogAccountsTransaction(res.ProgramId, res.AccountId, payer, blockhash)
	if err != nil {
		return nil, err
	}
	res.Signature = tx.Signatures[0]
	msg := tx.Message

	meta, err := client.ProcessTransactionWithMetadata(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("processing transaction: %w", err)
	}
	res.Logs = meta.Logs
	if meta.Err != nil {
		return res, fmt.Errorf("processing transaction: %w", meta.Err)
	}

	lamportsPerSignature := cfg.Bank.LamportsPerSignature
	if lamportsPerSignature == 0 {
		lamportsPerSignature = fees.DefaultLamportsPerSignature
	}
	res.ExpectedFee = uint64(msg.Header.NumRequiredSignatures) * lamportsPerSignature
	fee, err := client.GetFeeForMessage(ctx, &msg, cfg.Commitment)
	if err != nil {
		return res, err
	}
	if fee == nil {
		return res, ErrFeeUnavailable
	}
	res.Fee = *fee

	if res.Fee != res.ExpectedFee {
		return res, fmt.Errorf("%w: expected %d, got %d", ErrFeeMismatch, res.ExpectedFee, res.Fee)
	}
	return res, nil
}

// NewLogAccountsTransaction builds and signs a LogAccounts invocation. The
// program id is passed as a writable account alongside the payer and the
// data account.
func NewLogAccountsTransaction(programId, accountId solana.PublicKey, payer solana.PrivateKey, blockhash solana.Hash) (*solana.Transaction, error) {
	instr := solana.NewInstruction(programId, solana.AccountMetaSlice{
		solana.Meta(payer.PublicKey()).WRITE().SIGNER(),
		solana.Meta(accountId).WRITE(),
		solana.Meta(programId).WRITE(),
	}, InstrLogAccounts.Data())

	tx, err := solana.NewTransaction([]solana.Instruction{instr}, blockhash, solana.TransactionPayer(payer.PublicKey()))
	if err != nil {
		return nil, err
	}

	unsigned, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}

	_, err = tx.Sign(func(pk solana.PublicKey) *solana.PrivateKey {
		if pk == payer.PublicKey() {
			return &payer
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	signed, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(unsigned, signed) {
		return nil, ErrMessageMutated
	}
	return tx, nil
}
