package bank

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/fees"
	"github.com/Overclock-Validator/pocbank/pkg/safemath"
	"github.com/Overclock-Validator/pocbank/pkg/sealevel"
	"github.com/Overclock-Validator/pocbank/pkg/util"
	"github.com/gagliardetto/solana-go"
	"k8s.io/klog/v2"
)

const (
	// SlotDuration is the simulated wall-clock length of a slot.
	SlotDuration = 400 * time.Millisecond
)

type Config struct {
	// LamportsPerSignature defaults to fees.DefaultLamportsPerSignature.
	LamportsPerSignature uint64
	// FeeCollector receives the unburned half of collected fees. A zero key
	// gives the bank a freshly generated collector.
	FeeCollector solana.PublicKey
	// Programs defaults to sealevel.NewPrograms().
	Programs        *sealevel.Programs
	GenesisAccounts []accounts.Account
	// AccountsDbPath selects a persistent account store. Empty keeps
	// accounts in memory.
	AccountsDbPath string
	GenesisTime    time.Time
}

// Bank is a single-fork ledger: it owns the account store, the recent
// blockhashes and the record of processed transactions.
type Bank struct {
	mu sync.Mutex

	accts  accounts.Accounts
	closer io.Closer

	programs       *sealevel.Programs
	blockhashQueue *BlockhashQueue
	statusCache    *StatusCache
	metrics        *Metrics

	slot                 uint64
	parentHash           [32]byte
	lamportsPerSignature uint64
	feeCollector         solana.PublicKey
	genesisTime          time.Time

	collectedFees    uint64
	signatureCount   uint64
	transactionCount uint64
	modified         map[solana.PublicKey]struct{}
}

func NewBank(cfg Config) (*Bank, error) {
	b := &Bank{
		programs:             cfg.Programs,
		blockhashQueue:       NewBlockhashQueue(MaxProcessingAge),
		statusCache:          NewStatusCache(),
		metrics:              newMetrics(),
		lamportsPerSignature: cfg.LamportsPerSignature,
		feeCollector:         cfg.FeeCollector,
		genesisTime:          cfg.GenesisTime,
		modified:             make(map[solana.PublicKey]struct{}),
	}
	if b.programs == nil {
		b.programs = sealevel.NewPrograms()
	}
	if b.lamportsPerSignature == 0 {
		b.lamportsPerSignature = fees.DefaultLamportsPerSignature
	}
	if b.genesisTime.IsZero() {
		b.genesisTime = time.Now()
	}
	if b.feeCollector.IsZero() {
		b.feeCollector = solana.NewWallet().PublicKey()
		klog.V(1).Infof("no fee collector configured, using %s", b.feeCollector)
	}

	if cfg.AccountsDbPath != "" {
		db, err := accounts.OpenAccountsDb(cfg.AccountsDbPath)
		if err != nil {
			return nil, fmt.Errorf("opening accounts db at %s: %w", cfg.AccountsDbPath, err)
		}
		b.accts = db
		b.closer = db
	} else {
		b.accts = accounts.NewMemAccounts()
	}

	genesis := make([]*accounts.Account, 0, len(cfg.GenesisAccounts))
	for _, builtin := range b.programs.Builtins() {
		genesis = append(genesis, &accounts.Account{
			Key:        builtin.ProgramId,
			Lamports:   1,
			Data:       []byte(builtin.Name),
			Owner:      sealevel.NativeLoaderAddr,
			Executable: true,
		})
	}
	for idx := range cfg.GenesisAccounts {
		genesis = append(genesis, &cfg.GenesisAccounts[idx])
	}

	for _, acct := range genesis {
		err := b.setAccount(acct)
		if err != nil {
			b.Close()
			return nil, err
		}
	}

	b.blockhashQueue.Register(genesisBlockhash(genesis), b.lamportsPerSignature)
	err := b.updateSysvars()
	if err != nil {
		b.Close()
		return nil, err
	}

	err = b.checkFeeCollector()
	if err != nil {
		b.Close()
		return nil, err
	}
	b.metrics.slot.Set(0)

	klog.Infof("bank created with %d genesis accounts and %d builtins", len(cfg.GenesisAccounts), len(b.programs.Builtins()))
	return b, nil
}

// checkFeeCollector rejects collectors that exist but could not be paid,
// such as builtin program accounts.
func (b *Bank) checkFeeCollector() error {
	acct, err := b.getAccount(b.feeCollector)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return nil
	} else if err != nil {
		return err
	}
	if !fees.IsValidFeeCollector(acct) {
		return fmt.Errorf("%w: %s", ErrInvalidFeeCollector, b.feeCollector)
	}
	return nil
}

func (b *Bank) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *Bank) getAccount(pubkey solana.PublicKey) (*accounts.Account, error) {
	pk := [32]byte(pubkey)
	return b.accts.GetAccount(&pk)
}

func (b *Bank) setAccount(acct *accounts.Account) error {
	pk := [32]byte(acct.Key)
	err := b.accts.SetAccount(&pk, acct)
	if err != nil {
		return err
	}
	b.modified[acct.Key] = struct{}{}
	return nil
}

func (b *Bank) updateSysvars() error {
	recent := b.blockhashQueue.Recent(sealevel.MaxRecentBlockhashEntries)
	recentBlockhashes := make(sealevel.SysvarRecentBlockhashes, 0, len(recent))
	for _, entry := range recent {
		recentBlockhashes = append(recentBlockhashes, sealevel.RecentBlockHashesEntry{
			Blockhash:     entry.Hash,
			FeeCalculator: sealevel.FeeCalculator{LamportsPerSignature: entry.LamportsPerSignature},
		})
	}

	clock := sealevel.SysvarClock{
		Slot:                b.slot,
		EpochStartTimestamp: b.genesisTime.Unix(),
		UnixTimestamp:       b.genesisTime.Add(time.Duration(b.slot) * SlotDuration).Unix(),
	}
	feesSysvar := sealevel.SysvarFees{FeeCalculator: sealevel.FeeCalculator{LamportsPerSignature: b.lamportsPerSignature}}

	err := sealevel.WriteRecentBlockHashesSysvar(b.accts, recentBlockhashes)
	if err != nil {
		return err
	}
	err = sealevel.WriteClockSysvar(b.accts, clock)
	if err != nil {
		return err
	}
	err = sealevel.WriteFeesSysvar(b.accts, feesSysvar)
	if err != nil {
		return err
	}

	for _, id := range sysvarIds {
		b.modified[id] = struct{}{}
	}
	return nil
}

func (b *Bank) modifiedAccounts() ([]*accounts.Account, error) {
	keys := make([]solana.PublicKey, 0, len(b.modified))
	for key := range b.modified {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return util.PubkeyCmp(keys[i], keys[j]) })

	accts := make([]*accounts.Account, 0, len(keys))
	for _, key := range keys {
		acct, err := b.getAccount(key)
		if err != nil {
			return nil, fmt.Errorf("loading modified account %s: %w", key, err)
		}
		accts = append(accts, acct)
	}
	return accts, nil
}

// AdvanceSlot freezes the current slot, computing its bank hash, and starts
// the next one with a fresh blockhash.
func (b *Bank) AdvanceSlot() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	burned, collected, err := fees.DistributeTxFees(b.accts, b.feeCollector, b.collectedFees)
	if err != nil {
		return b.slot, err
	}
	if collected != 0 {
		b.modified[b.feeCollector] = struct{}{}
	}
	b.metrics.burnedFees.Add(float64(burned))

	modified, err := b.modifiedAccounts()
	if err != nil {
		return b.slot, err
	}

	lastBlockhash, _ := b.blockhashQueue.LastHash()
	bankHash := calculateBankHash(calculateAcctsDeltaHash(modified), b.parentHash, b.signatureCount, lastBlockhash)
	klog.V(1).Infof("froze slot %d: bank hash %s, %d modified accounts, %d signatures", b.slot, solana.HashFromBytes(bankHash), len(modified), b.signatureCount)

	copy(b.parentHash[:], bankHash)
	b.slot++
	b.collectedFees = 0
	b.signatureCount = 0
	b.modified = make(map[solana.PublicKey]struct{})

	b.blockhashQueue.Register(nextBlockhash(lastBlockhash, bankHash), b.lamportsPerSignature)
	err = b.updateSysvars()
	if err != nil {
		return b.slot, err
	}

	purged := b.statusCache.PurgeOlderThan(safemath.SaturatingSubU64(b.slot, MaxProcessingAge))
	if purged != 0 {
		klog.V(2).Infof("purged %d transaction statuses", purged)
	}
	b.metrics.slot.Set(float64(b.slot))

	return b.slot, nil
}

func (b *Bank) GetAccount(pubkey solana.PublicKey) (*accounts.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.getAccount(pubkey)
}

// GetBalance returns zero for accounts that do not exist.
func (b *Bank) GetBalance(pubkey solana.PublicKey) (uint64, error) {
	acct, err := b.GetAccount(pubkey)
	if errors.Is(err, accounts.ErrAccountNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	return acct.Lamports, nil
}

// SetAccount overwrites an account outside of transaction processing.
func (b *Bank) SetAccount(acct *accounts.Account) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.setAccount(acct)
}

// LatestBlockhash returns the newest blockhash and the last slot at which
// transactions referencing it are accepted.
func (b *Bank) LatestBlockhash() (solana.Hash, uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	hash, _ := b.blockhashQueue.LastHash()
	return hash, b.slot + MaxProcessingAge
}

func (b *Bank) IsBlockhashValid(hash solana.Hash) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blockhashQueue.IsHashValid(hash)
}

func (b *Bank) Slot() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slot
}

// Hash returns the bank hash of the last frozen slot.
func (b *Bank) Hash() solana.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()
	return solana.HashFromBytes(b.parentHash[:])
}

func (b *Bank) TransactionCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transactionCount
}

func (b *Bank) FeeCollector() solana.PublicKey {
	return b.feeCollector
}

func (b *Bank) LamportsPerSignature() uint64 {
	return b.lamportsPerSignature
}

func (b *Bank) Metrics() *Metrics {
	return b.metrics
}
