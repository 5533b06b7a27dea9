package rpcclient

import (
	"context"
	"fmt"

	"github.com/Overclock-Validator/pocbank/pkg/accounts"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"k8s.io/klog/v2"
)

// MaxAccountsPerRequest is the cluster's limit for getMultipleAccounts.
const MaxAccountsPerRequest = 100

// GetAccounts fetches the given accounts at the client's commitment. An
// account that does not exist on the cluster is an error.
func (fetcher *RpcClient) GetAccounts(ctx context.Context, pubkeys []solana.PublicKey) ([]accounts.Account, error) {
	accts := make([]accounts.Account, 0, len(pubkeys))

	for start := 0; start < len(pubkeys); start += MaxAccountsPerRequest {
		end := min(start+MaxAccountsPerRequest, len(pubkeys))
		batch := pubkeys[start:end]

		result, err := fetcher.client.GetMultipleAccountsWithOpts(ctx, batch, &rpc.GetMultipleAccountsOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: fetcher.commitment,
		})
		if err != nil {
			return nil, fmt.Errorf("fetching %d accounts: %w", len(batch), err)
		}
		if len(result.Value) != len(batch) {
			return nil, fmt.Errorf("expected %d accounts, got %d", len(batch), len(result.Value))
		}

		for idx, rpcAcct := range result.Value {
			if rpcAcct == nil {
				return nil, fmt.Errorf("account %s: %w", batch[idx], accounts.ErrAccountNotFound)
			}
			accts = append(accts, accountFromRpc(batch[idx], rpcAcct))
		}
		klog.V(1).Infof("fetched %d accounts at slot %d", len(batch), result.Context.Slot)
	}

	return accts, nil
}

func accountFromRpc(pubkey solana.PublicKey, rpcAcct *rpc.Account) accounts.Account {
	acct := accounts.Account{
		Key:        pubkey,
		Lamports:   rpcAcct.Lamports,
		Owner:      rpcAcct.Owner,
		Executable: rpcAcct.Executable,
	}
	if rpcAcct.Data != nil {
		acct.Data = rpcAcct.Data.GetBinary()
	}
	if rpcAcct.RentEpoch != nil && rpcAcct.RentEpoch.IsUint64() {
		acct.RentEpoch = rpcAcct.RentEpoch.Uint64()
	}
	return acct
}
