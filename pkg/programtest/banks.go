package programtest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/Overclock-Validator/pocbank/pkg/bank"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

var (
	ErrClientClosed      = errors.New("banks client closed")
	ErrInvalidCommitment = errors.New("invalid commitment")
)

type request struct {
	handle func(b *bank.Bank)
}

// banksServer owns the bank. Requests are handled one at a time on the
// server goroutine.
type banksServer struct {
	bank     *bank.Bank
	requests chan request
}

func newBanksServer(b *bank.Bank) *banksServer {
	return &banksServer{bank: b, requests: make(chan request)}
}

func (s *banksServer) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			req.handle(s.bank)
		}
	}
}

// BanksClient talks to the bank served by a started ProgramTest.
type BanksClient struct {
	requests chan<- request
	cancel   context.CancelFunc
	group    *errgroup.Group
	bank     *bank.Bank

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newBanksClient(requests chan<- request, cancel context.CancelFunc, group *errgroup.Group, b *bank.Bank) *BanksClient {
	return &BanksClient{
		requests: requests,
		cancel:   cancel,
		group:    group,
		bank:     b,
		closed:   make(chan struct{}),
	}
}

// call runs fn on the server goroutine and waits for its result.
func call[T any](ctx context.Context, c *BanksClient, fn func(b *bank.Bank) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type response struct {
		val T
		err error
	}
	respCh := make(chan response, 1)
	req := request{handle: func(b *bank.Bank) {
		val, err := fn(b)
		respCh <- response{val: val, err: err}
	}}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-c.closed:
		return zero, ErrClientClosed
	case c.requests <- req:
	}

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case resp := <-respCh:
		return resp.val, resp.err
	}
}

// Close stops the server and releases the bank. It is safe to call more
// than once.
func (c *BanksClient) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.cancel()
		err := c.group.Wait()
		c.closeErr = errors.Join(err, c.bank.Close())
	})
	return c.closeErr
}

// GetAccount returns accounts.ErrAccountNotFound for unknown keys.
func (c *BanksClient) GetAccount(ctx context.Context, pubkey solana.PublicKey) (*accounts.Account, error) {
	return call(ctx, c, func(b *bank.Bank) (*accounts.Account, error) {
		return b.GetAccount(pubkey)
	})
}

func (c *BanksClient) GetBalance(ctx context.Context, pubkey solana.PublicKey) (uint64, error) {
	return call(ctx, c, func(b *bank.Bank) (uint64, error) {
		return b.GetBalance(pubkey)
	})
}

// ProcessTransaction commits a transaction and returns its error, either
// a rejection or the failure of an executed instruction.
func (c *BanksClient) ProcessTransaction(ctx context.Context, tx *solana.Transaction) error {
	res, err := c.ProcessTransactionWithMetadata(ctx, tx)
	if err != nil {
		return err
	}
	return res.Err
}

// ProcessTransactionWithMetadata commits a transaction. The returned error
// is set only when the transaction was rejected; execution failures are
// reported in the result.
func (c *BanksClient) ProcessTransactionWithMetadata(ctx context.Context, tx *solana.Transaction) (*bank.TransactionResult, error) {
	return call(ctx, c, func(b *bank.Bank) (*bank.TransactionResult, error) {
		return b.ProcessTransaction(tx)
	})
}

func (c *BanksClient) SimulateTransaction(ctx context.Context, tx *solana.Transaction) (*bank.TransactionResult, error) {
	return call(ctx, c, func(b *bank.Bank) (*bank.TransactionResult, error) {
		return b.SimulateTransaction(tx)
	})
}

// GetFeeForMessage returns nil if the message's blockhash has expired or is
// unknown. All commitment levels are served from the same bank.
func (c *BanksClient) GetFeeForMessage(ctx context.Context, msg *solana.Message, commitment rpc.CommitmentType) (*uint64, error) {
	switch commitment {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommitment, commitment)
	}

	return call(ctx, c, func(b *bank.Bank) (*uint64, error) {
		fee, ok := b.GetFeeForMessage(msg)
		if !ok {
			return nil, nil
		}
		return &fee, nil
	})
}

func (c *BanksClient) GetLatestBlockhash(ctx context.Context) (solana.Hash, error) {
	return call(ctx, c, func(b *bank.Bank) (solana.Hash, error) {
		hash, _ := b.LatestBlockhash()
		return hash, nil
	})
}

// GetNewLatestBlockhash returns a blockhash different from prev, advancing
// the bank by a slot if prev is still the latest.
func (c *BanksClient) GetNewLatestBlockhash(ctx context.Context, prev solana.Hash) (solana.Hash, error) {
	return call(ctx, c, func(b *bank.Bank) (solana.Hash, error) {
		hash, _ := b.LatestBlockhash()
		if hash != prev {
			return hash, nil
		}
		slot, err := b.AdvanceSlot()
		if err != nil {
			return solana.Hash{}, err
		}
		klog.V(1).Infof("advanced to slot %d for a new blockhash", slot)
		hash, _ = b.LatestBlockhash()
		return hash, nil
	})
}

func (c *BanksClient) GetSlot(ctx context.Context) (uint64, error) {
	return call(ctx, c, func(b *bank.Bank) (uint64, error) {
		return b.Slot(), nil
	})
}

// AdvanceSlot freezes the current slot and returns the new one.
func (c *BanksClient) AdvanceSlot(ctx context.Context) (uint64, error) {
	return call(ctx, c, func(b *bank.Bank) (uint64, error) {
		return b.AdvanceSlot()
	})
}

// Metrics exposes the served bank's metrics.
func (c *BanksClient) Metrics() *bank.Metrics {
	return c.bank.Metrics()
}
