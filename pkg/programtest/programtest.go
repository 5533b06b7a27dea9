package programtest

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/bank"
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	"github.com/Overclock-Validator/pocbank/pkg/util"
	"github.com/gagliardetto/solana-go"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// PayerLamports funds the payer created by Start.
const PayerLamports = 1_000_000 * solana.LAMPORTS_PER_SOL

var uniquePubkeyCounter atomic.Uint64

// NewUniquePubkey returns a pubkey that no other call in this process
// returns. The counter is stored big-endian in the first 8 bytes.
func NewUniquePubkey() solana.PublicKey {
	var pk solana.PublicKey
	binary.BigEndian.PutUint64(pk[:8], uniquePubkeyCounter.Add(1))
	return pk
}

// AccountFetcher loads accounts from a live cluster.
type AccountFetcher interface {
	GetAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([]accounts.Account, error)
}

// ProgramTest builds an in-process bank with a set of builtin programs and
// genesis accounts.
type ProgramTest struct {
	programs *sealevel.Programs
	accts    []accounts.Account
	cfg      bank.Config
}

// New creates a ProgramTest with the named program registered at programId.
// A nil fn registers nothing.
func New(name string, programId solana.PublicKey, fn sealevel.ProgramFn) *ProgramTest {
	pt := &ProgramTest{programs: sealevel.NewPrograms()}
	if fn != nil {
		pt.AddProgram(name, programId, fn)
	}
	return pt
}

func (pt *ProgramTest) AddProgram(name string, programId solana.PublicKey, fn sealevel.ProgramFn) {
	pt.programs.Register(programId, name, fn)
}

// AddAccount seeds an account into genesis, replacing an earlier one with
// the same key.
func (pt *ProgramTest) AddAccount(acct accounts.Account) {
	for idx := range pt.accts {
		if pt.accts[idx].Key == acct.Key {
			pt.accts[idx] = *acct.Clone()
			return
		}
	}
	pt.accts = append(pt.accts, *acct.Clone())
}

// CloneAccounts copies accounts from a live cluster into genesis.
func (pt *ProgramTest) CloneAccounts(ctx context.Context, fetcher AccountFetcher, pubkeys ...solana.PublicKey) error {
	accts, err := fetcher.GetAccounts(ctx, util.DedupePubkeys(slices.Clone(pubkeys)))
	if err != nil {
		return fmt.Errorf("cloning accounts: %w", err)
	}
	for _, acct := range accts {
		pt.AddAccount(acct)
	}
	klog.Infof("cloned %d accounts", len(accts))
	return nil
}

// SetConfig overrides the bank configuration. Programs and genesis accounts
// always come from the ProgramTest.
func (pt *ProgramTest) SetConfig(cfg bank.Config) {
	pt.cfg = cfg
}

// Start creates the bank, funds a fresh payer and starts serving it. The
// returned client owns the bank; Close releases it.
func (pt *ProgramTest) Start(ctx context.Context) (*BanksClient, solana.PrivateKey, solana.Hash, error) {
	payer, err := solana.NewRandomPrivateKey()
	if err != nil {
		return nil, nil, solana.Hash{}, err
	}

	cfg := pt.cfg
	cfg.Programs = pt.programs
	cfg.GenesisAccounts = append([]accounts.Account{{
		Key:      payer.PublicKey(),
		Lamports: PayerLamports,
		Owner:    sealevel.SystemProgramAddr,
	}}, pt.accts...)

	b, err := bank.NewBank(cfg)
	if err != nil {
		return nil, nil, solana.Hash{}, err
	}

	serverCtx, cancel := context.WithCancel(context.Background())
	group, serverCtx := errgroup.WithContext(serverCtx)

	server := newBanksServer(b)
	group.Go(func() error {
		return server.run(serverCtx)
	})

	client := newBanksClient(server.requests, cancel, group, b)
	blockhash, err := client.GetLatestBlockhash(ctx)
	if err != nil {
		client.Close()
		return nil, nil, solana.Hash{}, err
	}

	klog.Infof("program test started with payer %s", payer.PublicKey())
	return client, payer, blockhash, nil
}
